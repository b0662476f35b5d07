package tts

// Messages published by the engine and the voice registry for the UI.
// They are delivered through the configured notifier (usually
// tea.Program.Send) and may be dropped under backpressure, so consumers
// should treat each one as a hint to re-read Snapshot rather than as the
// sole source of truth.

// StateMsg announces a playback state change.
type StateMsg struct {
	State   State
	Index   int
	Stalled bool
	Pending bool
}

// ProgressMsg announces virtual-clock movement: a tick, a seek, a rate
// change or a scrub preview.
type ProgressMsg struct {
	Index   int
	Elapsed float64
	Total   float64
}

// HighlightMsg announces a spoken-word highlight update.
type HighlightMsg struct {
	Highlight Highlight
}

// VoicesMsg announces a completed voice registry refresh.
type VoicesMsg struct {
	Status VoiceStatus
	Count  int
}

// RateMsg announces a speaking rate change.
type RateMsg struct {
	Rate float64
}

// VoiceSelectedMsg announces a voice selection change.
type VoiceSelectedMsg struct {
	URI string
}
