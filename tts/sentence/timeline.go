package sentence

// BaselineWPM is the assumed speaking pace, in words per minute, at a
// speaking rate of 1.0. Estimated durations scale linearly against it.
const BaselineWPM = 180.0

// Timeline is the estimated duration model for a sentence sequence at a
// fixed speaking rate: per-sentence durations in seconds, each sentence's
// start and end offset on the virtual clock, and the grand total. A
// timeline is immutable once built; construct a new one whenever the
// sentence sequence or the rate changes.
type Timeline struct {
	Rate      float64
	Durations []float64
	Starts    []float64
	Ends      []float64
	Total     float64
}

// NewTimeline estimates speaking durations for sentences at the given
// rate. Each sentence's duration is its word count divided by the
// rate-scaled baseline pace.
func NewTimeline(sentences []Sentence, rate float64) *Timeline {
	t := &Timeline{
		Rate:      rate,
		Durations: make([]float64, len(sentences)),
		Starts:    make([]float64, len(sentences)),
		Ends:      make([]float64, len(sentences)),
	}
	for i, s := range sentences {
		d := float64(len(s.Words)) / (BaselineWPM * rate) * 60.0
		t.Durations[i] = d
		t.Starts[i] = t.Total
		t.Total += d
		t.Ends[i] = t.Total
	}
	return t
}

// Len returns the number of sentences the timeline covers.
func (t *Timeline) Len() int {
	return len(t.Durations)
}

// StartOf returns the virtual-clock offset at which sentence i begins.
// Out-of-range indices clamp to the nearest valid sentence; an empty
// timeline starts at zero.
func (t *Timeline) StartOf(i int) float64 {
	if len(t.Starts) == 0 {
		return 0
	}
	if i < 0 {
		i = 0
	}
	if i >= len(t.Starts) {
		i = len(t.Starts) - 1
	}
	return t.Starts[i]
}

// SentenceAt resolves a virtual-clock offset to the sentence playing at
// that moment: the first sentence whose end reaches or passes elapsed, so
// ties on a shared boundary favor the earlier sentence. Offsets beyond the
// total resolve to the last sentence; an empty timeline resolves to -1.
func (t *Timeline) SentenceAt(elapsed float64) int {
	if len(t.Ends) == 0 {
		return -1
	}
	for i, end := range t.Ends {
		if end >= elapsed {
			return i
		}
	}
	return len(t.Ends) - 1
}
