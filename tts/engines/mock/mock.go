// Package mock provides a scripted speech backend for tests and
// --engine mock dry runs. It walks the full utterance event lifecycle
// on a timer without synthesizing any audio, counts calls, and can be
// told to fail or to change its voice list on demand.
package mock

import (
	"context"
	"sync"
	"time"

	"lector/tts"
	"lector/tts/sentence"
)

// pauseStep is the polling granularity while an utterance waits out a
// pause.
const pauseStep = 5 * time.Millisecond

// DefaultVoices returns the built-in voice pair advertised for a
// locale, so a dry run behaves like a backend with voices installed.
func DefaultVoices(locale string) []tts.Voice {
	if locale == "" {
		locale = "en-US"
	}
	return []tts.Voice{
		{URI: "mock:primary", Name: "Mock Primary", Lang: locale, Local: true},
		{URI: "mock:alternate", Name: "Mock Alternate", Lang: locale, Local: true},
	}
}

// Backend is the scripted speech backend.
type Backend struct {
	mu      sync.Mutex
	voices  []tts.Voice
	delay   time.Duration
	failure error
	current *utterance
	paused  bool
	closed  bool
	subs    []func()
	calls   map[string]int
}

type utterance struct {
	events chan tts.Event
	stop   chan struct{}
	once   sync.Once
}

func (u *utterance) halt() {
	u.once.Do(func() { close(u.stop) })
}

// New creates a mock backend advertising the given voices.
func New(voices ...tts.Voice) *Backend {
	return &Backend{
		voices: voices,
		calls:  make(map[string]int),
	}
}

// SetVoices replaces the advertised voice list and fires the
// voices-changed signal.
func (b *Backend) SetVoices(voices ...tts.Voice) {
	b.mu.Lock()
	b.voices = voices
	subs := make([]func(), len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// TriggerVoicesChanged fires the voices-changed signal without touching
// the list.
func (b *Backend) TriggerVoicesChanged() {
	b.mu.Lock()
	subs := make([]func(), len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// SetDelay fixes the gap between word boundaries. Zero restores the
// estimated pace derived from the utterance rate.
func (b *Backend) SetDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// SetFailure makes subsequent Speak calls return err until cleared.
func (b *Backend) SetFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failure = err
}

// ClearFailure removes an injected failure.
func (b *Backend) ClearFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failure = nil
}

// GetCallCount returns how many times the named method ran.
func (b *Backend) GetCallCount(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

// Reset clears call counts and any injected failure.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = make(map[string]int)
	b.failure = nil
}

func (b *Backend) countLocked(method string) {
	b.calls[method]++
}

// Voices returns the advertised voice list.
func (b *Backend) Voices(ctx context.Context) ([]tts.Voice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.countLocked("Voices")
	out := make([]tts.Voice, len(b.voices))
	copy(out, b.voices)
	return out, nil
}

// Speak schedules the scripted event sequence for the utterance: one
// started event, a boundary per word, then the terminal.
func (b *Backend) Speak(ctx context.Context, u tts.Utterance) (<-chan tts.Event, error) {
	b.mu.Lock()
	b.countLocked("Speak")
	if b.closed {
		b.mu.Unlock()
		return nil, tts.ErrBackendClosed
	}
	if b.failure != nil {
		err := b.failure
		b.mu.Unlock()
		return nil, err
	}
	if b.current != nil {
		b.current.halt()
		b.current = nil
	}

	ut := &utterance{
		events: make(chan tts.Event, 16),
		stop:   make(chan struct{}),
	}
	b.current = ut
	b.paused = false

	delay := b.delay
	if delay <= 0 {
		rate := u.Rate
		if rate <= 0 {
			rate = 1.0
		}
		delay = time.Duration(60.0 / (sentence.BaselineWPM * rate) * float64(time.Second))
	}
	b.mu.Unlock()

	offsets := (sentence.Sentence{Text: u.Text}).WordOffsets()
	go b.run(ctx, ut, offsets, delay)
	return ut.events, nil
}

func (b *Backend) run(ctx context.Context, ut *utterance, offsets []int, delay time.Duration) {
	go func() {
		select {
		case <-ctx.Done():
			ut.halt()
		case <-ut.stop:
		}
	}()

	ut.events <- tts.Event{Type: tts.EventStarted}
	for i, off := range offsets {
		if i > 0 && !b.await(ut, delay) {
			b.finish(ut, tts.Event{Type: tts.EventFailed, Err: tts.ErrUtteranceCanceled})
			return
		}
		select {
		case ut.events <- tts.Event{Type: tts.EventBoundary, Offset: off}:
		default:
		}
	}
	if !b.await(ut, delay) {
		b.finish(ut, tts.Event{Type: tts.EventFailed, Err: tts.ErrUtteranceCanceled})
		return
	}
	b.finish(ut, tts.Event{Type: tts.EventEnded})
}

// await sleeps out delay of unpaused time. It returns false when the
// utterance was halted first.
func (b *Backend) await(ut *utterance, delay time.Duration) bool {
	remaining := delay
	for remaining > 0 {
		b.mu.Lock()
		paused := b.paused
		b.mu.Unlock()

		step := pauseStep
		if !paused && step > remaining {
			step = remaining
		}
		select {
		case <-ut.stop:
			return false
		case <-time.After(step):
			if !paused {
				remaining -= step
			}
		}
	}
	return true
}

func (b *Backend) finish(ut *utterance, terminal tts.Event) {
	ut.halt()
	b.mu.Lock()
	if b.current == ut {
		b.current = nil
		b.paused = false
	}
	b.mu.Unlock()
	ut.events <- terminal
	close(ut.events)
}

// Pause freezes the scripted clock.
func (b *Backend) Pause() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.countLocked("Pause")
	if b.current != nil {
		b.paused = true
	}
	return nil
}

// Resume continues the scripted clock.
func (b *Backend) Resume() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.countLocked("Resume")
	b.paused = false
	return nil
}

// Cancel halts the in-flight utterance; its stream terminates with the
// canceled event.
func (b *Backend) Cancel() error {
	b.mu.Lock()
	b.countLocked("Cancel")
	ut := b.current
	b.current = nil
	b.paused = false
	b.mu.Unlock()

	if ut != nil {
		ut.halt()
	}
	return nil
}

// Speaking reports whether a scripted utterance is in flight.
func (b *Backend) Speaking() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current != nil
}

// Paused reports whether the scripted clock is frozen.
func (b *Backend) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current != nil && b.paused
}

// OnVoicesChanged registers fn for SetVoices and TriggerVoicesChanged.
func (b *Backend) OnVoicesChanged(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Close halts any in-flight utterance and rejects further speech.
func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	ut := b.current
	b.current = nil
	b.mu.Unlock()

	if ut != nil {
		ut.halt()
	}
	return nil
}
