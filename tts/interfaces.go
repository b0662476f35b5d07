package tts

import "context"

// Voice is one synthesis voice offered by a speech backend.
type Voice struct {
	// URI identifies the voice stably across refreshes.
	URI string
	// Name is the human-readable voice name.
	Name string
	// Lang is the voice's BCP 47 language tag, such as "es-AR".
	Lang string
	// Local reports whether synthesis runs on this machine rather than
	// through a network service.
	Local bool
}

// Utterance is a single speech request for one sentence.
type Utterance struct {
	Text string
	// Voice is the resolved voice, or nil to let the backend pick one
	// for Lang.
	Voice *Voice
	// Lang is the fallback language tag used when Voice is nil.
	Lang string
	// Rate is the speaking rate multiplier.
	Rate float64
}

// EventType labels a step in an utterance's lifecycle.
type EventType int

const (
	// EventStarted fires once when the backend begins speaking.
	EventStarted EventType = iota
	// EventBoundary fires as the backend reaches a new word.
	EventBoundary
	// EventEnded fires once when the utterance finishes normally.
	EventEnded
	// EventFailed fires once when the utterance terminates abnormally,
	// including benign cancellation.
	EventFailed
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "started"
	case EventBoundary:
		return "boundary"
	case EventEnded:
		return "ended"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one step in an utterance's lifecycle. A well-behaved backend
// emits exactly one Started, zero or more Boundary events, then exactly
// one terminal Ended or Failed, and closes the stream.
type Event struct {
	Type EventType
	// Offset is the byte offset within the utterance text of the word
	// being spoken. Set for Boundary events.
	Offset int
	// Err is the terminal failure. Set for Failed events.
	Err error
}

// Backend abstracts a speech synthesis engine: voice discovery, one
// utterance at a time, and coarse transport controls. Implementations
// must be safe for concurrent use.
type Backend interface {
	// Voices lists the synthesis voices currently known to the backend.
	// A backend that is still warming up may transiently return an
	// empty list.
	Voices(ctx context.Context) ([]Voice, error)

	// Speak starts synthesizing one utterance and returns its event
	// stream. Cancelling ctx cancels the utterance; the stream still
	// terminates with a benign Failed event before closing.
	Speak(ctx context.Context, u Utterance) (<-chan Event, error)

	// Pause suspends the in-flight utterance. Backends that cannot
	// suspend drop the utterance instead and report Paused false.
	Pause() error

	// Resume continues a paused utterance.
	Resume() error

	// Cancel discards the in-flight utterance, if any.
	Cancel() error

	// Speaking reports whether an utterance is in flight, paused or not.
	Speaking() bool

	// Paused reports whether the in-flight utterance is suspended.
	Paused() bool

	// OnVoicesChanged registers fn to run whenever the backend's voice
	// list may have changed. Multiple callbacks may be registered.
	OnVoicesChanged(fn func())

	// Close releases the backend's resources.
	Close() error
}

// ProgressStore persists playback progress keyed by a book identity
// string.
type ProgressStore interface {
	Save(key string, p Progress) error
	Load(key string) (Progress, error)
}
