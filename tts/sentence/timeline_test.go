package sentence

import (
	"math"
	"testing"
)

// sentencesWithWordCounts builds a sentence sequence where sentence i has
// the given number of words, without caring about the actual text.
func sentencesWithWordCounts(counts ...int) []Sentence {
	sentences := make([]Sentence, len(counts))
	for i, n := range counts {
		words := make([]string, n)
		for j := range words {
			words[j] = "word"
		}
		sentences[i] = Sentence{Index: i, Text: "text", Words: words}
	}
	return sentences
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNewTimeline(t *testing.T) {
	// 6, 9 and 15 words at 180 WPM are 2s, 3s and 5s.
	tl := NewTimeline(sentencesWithWordCounts(6, 9, 15), 1.0)

	if tl.Len() != 3 {
		t.Fatalf("Expected 3 entries, got %d", tl.Len())
	}

	wantDurations := []float64{2, 3, 5}
	wantStarts := []float64{0, 2, 5}
	wantEnds := []float64{2, 5, 10}
	for i := range wantDurations {
		if !approxEqual(tl.Durations[i], wantDurations[i]) {
			t.Errorf("Duration %d: expected %v, got %v", i, wantDurations[i], tl.Durations[i])
		}
		if !approxEqual(tl.Starts[i], wantStarts[i]) {
			t.Errorf("Start %d: expected %v, got %v", i, wantStarts[i], tl.Starts[i])
		}
		if !approxEqual(tl.Ends[i], wantEnds[i]) {
			t.Errorf("End %d: expected %v, got %v", i, wantEnds[i], tl.Ends[i])
		}
	}

	if !approxEqual(tl.Total, 10) {
		t.Errorf("Expected total 10, got %v", tl.Total)
	}
}

func TestTimelineCumulativeInvariant(t *testing.T) {
	tl := NewTimeline(sentencesWithWordCounts(3, 12, 1, 7, 30), 1.25)

	for i := 0; i < tl.Len(); i++ {
		if !approxEqual(tl.Ends[i]-tl.Starts[i], tl.Durations[i]) {
			t.Errorf("Entry %d: end-start %v does not match duration %v",
				i, tl.Ends[i]-tl.Starts[i], tl.Durations[i])
		}
		if i > 0 && !approxEqual(tl.Starts[i], tl.Ends[i-1]) {
			t.Errorf("Entry %d: start %v does not continue from previous end %v",
				i, tl.Starts[i], tl.Ends[i-1])
		}
	}

	if !approxEqual(tl.Total, tl.Ends[tl.Len()-1]) {
		t.Errorf("Total %v does not match last end %v", tl.Total, tl.Ends[tl.Len()-1])
	}
}

func TestTimelineRateScaling(t *testing.T) {
	sentences := sentencesWithWordCounts(6, 9, 15)
	slow := NewTimeline(sentences, 1.0)
	fast := NewTimeline(sentences, 2.0)

	for i := 0; i < slow.Len(); i++ {
		if !approxEqual(fast.Durations[i]*2, slow.Durations[i]) {
			t.Errorf("Duration %d: doubling the rate should halve %v, got %v",
				i, slow.Durations[i], fast.Durations[i])
		}
	}
	if !approxEqual(fast.Total*2, slow.Total) {
		t.Errorf("Doubling the rate should halve total %v, got %v", slow.Total, fast.Total)
	}
}

func TestSentenceAt(t *testing.T) {
	// Durations 2, 3 and 5 seconds, so sentence ends at 2, 5 and 10.
	tl := NewTimeline(sentencesWithWordCounts(6, 9, 15), 1.0)

	tests := []struct {
		name     string
		elapsed  float64
		expected int
	}{
		{name: "zero resolves to first", elapsed: 0.0, expected: 0},
		{name: "inside first", elapsed: 1.5, expected: 0},
		{name: "shared boundary favors earlier", elapsed: 2.0, expected: 0},
		{name: "inside second", elapsed: 4.0, expected: 1},
		{name: "end of second", elapsed: 5.0, expected: 1},
		{name: "inside last", elapsed: 9.9, expected: 2},
		{name: "exact total", elapsed: 10.0, expected: 2},
		{name: "beyond total clamps to last", elapsed: 42.0, expected: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tl.SentenceAt(tt.elapsed); got != tt.expected {
				t.Errorf("SentenceAt(%v): expected %d, got %d", tt.elapsed, tt.expected, got)
			}
		})
	}
}

func TestSentenceAtEmpty(t *testing.T) {
	tl := NewTimeline(nil, 1.0)
	if got := tl.SentenceAt(3.0); got != -1 {
		t.Errorf("Expected -1 for empty timeline, got %d", got)
	}
}

func TestStartOf(t *testing.T) {
	tl := NewTimeline(sentencesWithWordCounts(6, 9, 15), 1.0)

	tests := []struct {
		name     string
		index    int
		expected float64
	}{
		{name: "first", index: 0, expected: 0},
		{name: "second", index: 1, expected: 2},
		{name: "last", index: 2, expected: 5},
		{name: "negative clamps to first", index: -4, expected: 0},
		{name: "past the end clamps to last", index: 99, expected: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tl.StartOf(tt.index); !approxEqual(got, tt.expected) {
				t.Errorf("StartOf(%d): expected %v, got %v", tt.index, tt.expected, got)
			}
		})
	}

	empty := NewTimeline(nil, 1.0)
	if got := empty.StartOf(0); got != 0 {
		t.Errorf("Expected 0 for empty timeline, got %v", got)
	}
}
