package tts

// Scrubber translates drag gestures over the virtual timeline into a
// playback position. While the gesture is held the elapsed clock previews
// the pointer position; only releasing commits a sentence index. A
// gesture that began during playback re-enters playback at the committed
// position, otherwise the session settles into paused.
//
// A Scrubber is driven from a single goroutine, the UI event loop.
type Scrubber struct {
	e          *Engine
	active     bool
	wasPlaying bool
}

// NewScrubber creates a scrub controller for the engine.
func NewScrubber(e *Engine) *Scrubber {
	return &Scrubber{e: e}
}

// Active reports whether a gesture is in progress.
func (s *Scrubber) Active() bool {
	return s.active
}

// Start begins a gesture at pos, a fraction of the scrub track clamped to
// [0,1]. Playback pauses for the duration of the gesture.
func (s *Scrubber) Start(pos float64) {
	e := s.e
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.timeline == nil || e.timeline.Len() == 0 {
		return
	}

	s.active = true
	s.wasPlaying = e.state == StatePlaying
	if s.wasPlaying {
		e.setStateLocked(StatePaused)
		if err := e.backend.Pause(); err != nil {
			e.logger.Warn("backend pause failed", "error", err)
		}
	}
	s.preview(pos)
}

// Move updates the preview while the pointer is held down. No sentence is
// committed.
func (s *Scrubber) Move(pos float64) {
	if !s.active {
		return
	}
	e := s.e
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.timeline == nil || e.timeline.Len() == 0 {
		return
	}
	s.preview(pos)
}

// End resolves pos to a sentence, cancels whatever was in flight and
// commits the new position.
func (s *Scrubber) End(pos float64) {
	if !s.active {
		return
	}
	s.active = false

	e := s.e
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.timeline == nil || e.timeline.Len() == 0 {
		return
	}

	target := clamp01(pos) * e.timeline.Total
	idx := e.timeline.SentenceAt(target)
	if idx < 0 {
		return
	}

	e.cancelUtteranceLocked()
	e.highlight = NoHighlight
	e.progress.SentenceIndex = idx
	e.progress.Elapsed = e.timeline.StartOf(idx)
	e.lastSpoken = idx

	if s.wasPlaying {
		e.setStateLocked(StatePlaying)
		e.speakLocked()
	} else {
		e.setStateLocked(StatePaused)
	}

	e.pokePersistLocked()
	e.notifyLocked(ProgressMsg{
		Index:   idx,
		Elapsed: e.progress.Elapsed,
		Total:   e.timeline.Total,
	})
	e.notifyLocked(HighlightMsg{Highlight: e.highlight})
}

// preview sets the elapsed clock from a pointer position without touching
// the sentence index. Callers hold the engine lock.
func (s *Scrubber) preview(pos float64) {
	e := s.e
	e.progress.Elapsed = clamp01(pos) * e.timeline.Total
	e.notifyLocked(ProgressMsg{
		Index:   e.progress.SentenceIndex,
		Elapsed: e.progress.Elapsed,
		Total:   e.timeline.Total,
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
