package tts

// State is the playback engine's top-level mode. A session starts stopped,
// moves between playing and paused, and returns to stopped on cancel,
// completion or a fatal backend failure.
type State int

const (
	// StateStopped indicates no utterance is active and the position is
	// at the start of the current sentence.
	StateStopped State = iota
	// StatePlaying indicates an utterance is in flight and the virtual
	// clock is running.
	StatePlaying
	// StatePaused indicates the in-flight utterance and the clock are
	// frozen.
	StatePaused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Highlight identifies the word currently being spoken. It resets to
// NoHighlight on every sentence transition and on stop.
type Highlight struct {
	Sentence int
	Word     int
}

// NoHighlight is the cleared highlight value.
var NoHighlight = Highlight{Sentence: -1, Word: -1}

// Active reports whether the highlight points at a real word.
func (h Highlight) Active() bool {
	return h.Sentence >= 0 && h.Word >= 0
}

// Snapshot is an immutable view of one engine's session state, taken under
// the engine lock and safe to render from.
type Snapshot struct {
	State         State
	SentenceIndex int
	SentenceCount int
	Elapsed       float64
	Total         float64
	Rate          float64
	VoiceURI      string
	Highlight     Highlight
	Stalled       bool
	PendingPlay   bool
}
