package tts

// Speaking rate bounds. Rates outside this range are rejected, not
// clamped.
const (
	MinRate     = 0.5
	MaxRate     = 2.0
	DefaultRate = 1.0
)

// RateSteps are the discrete speeds playback cycles through.
var RateSteps = []float64{
	0.5,  // Half speed
	0.75, // Three-quarter speed
	1.0,  // Normal speed
	1.25, // Quarter faster
	1.5,  // Half faster
	1.75, // Three-quarter faster
	2.0,  // Double speed
}

// Progress is the persisted playback position for one book: the sentence
// being read, the selected voice, the speaking rate, and the virtual-clock
// offset in seconds. An empty VoiceURI means no explicit selection.
type Progress struct {
	SentenceIndex int     `msgpack:"sentence_index"`
	VoiceURI      string  `msgpack:"voice_uri"`
	Rate          float64 `msgpack:"rate"`
	Elapsed       float64 `msgpack:"elapsed"`
}

// DefaultProgress returns the zero position a book starts from when it
// first enters the library.
func DefaultProgress() Progress {
	return Progress{Rate: DefaultRate}
}

// Normalized returns p with its fields forced into range for a book of
// sentenceCount sentences. Stored records can be stale: the book may have
// shrunk since the index was written, or the record may predate the rate
// field.
func (p Progress) Normalized(sentenceCount int) Progress {
	if p.SentenceIndex < 0 {
		p.SentenceIndex = 0
	}
	if sentenceCount == 0 {
		p.SentenceIndex = 0
	} else if p.SentenceIndex >= sentenceCount {
		p.SentenceIndex = sentenceCount - 1
	}
	if p.Rate < MinRate || p.Rate > MaxRate {
		p.Rate = DefaultRate
	}
	if p.Elapsed < 0 {
		p.Elapsed = 0
	}
	return p
}

// ValidRate reports whether rate is inside the supported range.
func ValidRate(rate float64) bool {
	return rate >= MinRate && rate <= MaxRate
}

// NextRate returns the next faster step after rate, staying put at the
// top of the table.
func NextRate(rate float64) float64 {
	for _, step := range RateSteps {
		if step > rate {
			return step
		}
	}
	return rate
}

// PrevRate returns the next slower step before rate, staying put at the
// bottom of the table.
func PrevRate(rate float64) float64 {
	for i := len(RateSteps) - 1; i >= 0; i-- {
		if RateSteps[i] < rate {
			return RateSteps[i]
		}
	}
	return rate
}
