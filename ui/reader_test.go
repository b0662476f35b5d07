package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/termenv"

	"lector/internal/library"
	"lector/tts"
	"lector/tts/sentence"
)

const readerTestText = "Alpha beta gamma delta epsilon. Two. Three four five."

// newTestReaderModel builds a reader around a segmented sample book,
// without an engine behind it. The cache paths under test never touch
// the engine.
func newTestReaderModel(w, h int) readerModel {
	m := readerModel{
		common:   &commonModel{cfg: Config{}, width: w, height: h},
		viewport: viewport.New(w, h),
		snap:     tts.Snapshot{Highlight: tts.NoHighlight},
	}
	m.sentences = sentence.Segment(readerTestText)
	m.buildCache()
	return m
}

// TestBuildCacheLineIndex verifies the wrapped line cache: where each
// sentence starts, how many lines it takes and the blank separators
// between sentences.
func TestBuildCacheLineIndex(t *testing.T) {
	m := newTestReaderModel(24, 10)

	if m.textWidth != 20 {
		t.Fatalf("textWidth = %d, want 20", m.textWidth)
	}
	if len(m.lines) != 6 {
		t.Fatalf("got %d cached lines, want 6: %q", len(m.lines), m.lines)
	}

	wantLines := []string{
		"Alpha beta gamma",
		"delta epsilon.",
		"",
		"Two.",
		"",
		"Three four five.",
	}
	for i, want := range wantLines {
		if m.lines[i] != want {
			t.Errorf("lines[%d] = %q, want %q", i, m.lines[i], want)
		}
	}

	wantOf := []int{0, 3, 5}
	wantCount := []int{2, 1, 1}
	for i := range m.sentences {
		if m.lineOf[i] != wantOf[i] {
			t.Errorf("lineOf[%d] = %d, want %d", i, m.lineOf[i], wantOf[i])
		}
		if m.lineCount[i] != wantCount[i] {
			t.Errorf("lineCount[%d] = %d, want %d", i, m.lineCount[i], wantCount[i])
		}
	}
}

// TestCurrentSentenceViewLineParity verifies that the styled render of
// the spoken sentence breaks on the same lines as the plain cache, for
// every highlight position. Styling is forced on so the wrap really
// sees escape sequences.
func TestCurrentSentenceViewLineParity(t *testing.T) {
	orig := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.TrueColor)
	defer lipgloss.SetColorProfile(orig)

	m := newTestReaderModel(24, 10)
	m.snap.SentenceIndex = 0

	s := m.sentences[0]
	for word := -1; word < len(s.Words); word++ {
		m.snap.Highlight = tts.Highlight{Sentence: 0, Word: word}

		view := m.currentSentenceView(s, "  ")
		if got := strings.Count(view, "\n"); got != m.lineCount[0] {
			t.Errorf("word %d: styled render takes %d lines, cache says %d", word, got, m.lineCount[0])
		}
		for _, line := range strings.Split(strings.TrimRight(view, "\n"), "\n") {
			if w := ansi.PrintableRuneWidth(line); w > m.textWidth+readerPad {
				t.Errorf("word %d: line %q is %d cells wide, limit %d", word, line, w, m.textWidth+readerPad)
			}
		}
	}
}

func TestDesiredTextWidth(t *testing.T) {
	cases := []struct {
		name        string
		width       int
		readerWidth uint
		want        int
	}{
		{"wide terminal caps at default", 200, 0, 80},
		{"configured cap wins", 200, 60, 60},
		{"narrow terminal minus margins", 30, 0, 26},
		{"floor of one", 3, 0, 1},
	}
	for _, tc := range cases {
		m := readerModel{
			common:   &commonModel{cfg: Config{ReaderWidth: tc.readerWidth}},
			viewport: viewport.New(tc.width, 10),
		}
		if got := m.desiredTextWidth(); got != tc.want {
			t.Errorf("%s: desiredTextWidth = %d, want %d", tc.name, got, tc.want)
		}
	}
}

// TestScrollToCurrent verifies centering on the spoken sentence and the
// clamping at both ends of the book.
func TestScrollToCurrent(t *testing.T) {
	m := newTestReaderModel(24, 4)

	cases := []struct {
		index int
		want  int
	}{
		{0, 0},
		{1, 3},
		{2, 4},
	}
	for _, tc := range cases {
		m.snap.SentenceIndex = tc.index
		m.renderContent()
		m.scrollToCurrent()
		if got := m.viewport.YOffset; got != tc.want {
			t.Errorf("sentence %d: YOffset = %d, want %d", tc.index, got, tc.want)
		}
	}
}

func TestBookNote(t *testing.T) {
	m := readerModel{}
	if got := m.bookNote(); got != "" {
		t.Errorf("bookNote without a book = %q", got)
	}

	m.book = &library.Book{Title: "Moby Dick"}
	if got := m.bookNote(); got != "Moby Dick" {
		t.Errorf("bookNote = %q", got)
	}

	m.book.Author = "Herman Melville"
	if got := m.bookNote(); got != "Moby Dick · Herman Melville" {
		t.Errorf("bookNote = %q", got)
	}
}

func TestReaderHelpView(t *testing.T) {
	m := newTestReaderModel(80, 24)

	got := m.helpView()
	for _, want := range []string{"play/pause", "choose voice", "copy sentence", "reload this book", "back to library"} {
		if !strings.Contains(got, want) {
			t.Errorf("help missing %q", want)
		}
	}
}
