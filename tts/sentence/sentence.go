// Package sentence segments book text into spoken sentences and models
// the estimated playback timeline derived from them.
package sentence

import (
	"regexp"
	"strings"
	"unicode"
)

// Sentence is one speakable unit of a book. Index is its position in the
// book's flattened sentence sequence and is the unit of playback position.
type Sentence struct {
	Index int
	Text  string
	Words []string
}

// segmentRegex matches a maximal run of non-terminator characters followed
// by any trailing run of terminators, so unpunctuated fragments still form
// a sentence of their own.
var segmentRegex = regexp.MustCompile(`[^.!?]+[.!?]*`)

// Segment splits text into sentences on `.`, `!` and `?` terminator runs.
// Sentences that are empty after trimming whitespace are dropped, and the
// remaining sentences are indexed in order. Segmentation is deterministic:
// the same text always yields the same sequence, so positions survive a
// reload of the same book.
func Segment(text string) []Sentence {
	chunks := segmentRegex.FindAllString(text, -1)
	if chunks == nil {
		chunks = []string{text}
	}

	sentences := make([]Sentence, 0, len(chunks))
	for _, chunk := range chunks {
		trimmed := strings.TrimSpace(chunk)
		if trimmed == "" {
			continue
		}
		sentences = append(sentences, Sentence{
			Index: len(sentences),
			Text:  trimmed,
			Words: strings.Fields(trimmed),
		})
	}
	return sentences
}

// WordAt maps a character offset into the sentence text to a word index by
// counting the whitespace-delimited tokens before the offset. Speech
// backends report boundary offsets at word starts; an offset landing
// inside a word resolves to the next index. The result is clamped to the
// valid word range, or -1 for a sentence with no words.
func (s Sentence) WordAt(offset int) int {
	if len(s.Words) == 0 {
		return -1
	}
	if offset <= 0 {
		return 0
	}
	if offset > len(s.Text) {
		offset = len(s.Text)
	}
	idx := len(strings.Fields(s.Text[:offset]))
	if idx >= len(s.Words) {
		idx = len(s.Words) - 1
	}
	return idx
}

// WordOffsets returns the byte offset of each word start within Text. The
// offsets line up one-to-one with Words; backends that synthesize their own
// boundary events use them to report positions WordAt maps back.
func (s Sentence) WordOffsets() []int {
	offsets := make([]int, 0, len(s.Words))
	inWord := false
	for i, r := range s.Text {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			offsets = append(offsets, i)
			inWord = true
		}
	}
	return offsets
}
