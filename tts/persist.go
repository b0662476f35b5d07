package tts

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultSaveDebounce is the quiet period before a progress snapshot is
// written to the store.
const DefaultSaveDebounce = time.Second

// Persister debounces progress writes for one book. Every change cancels
// and restarts the timer, so only the last state after a quiet period is
// stored; intermediate states are never written. Closing drops any
// pending write without flushing it, accepting the loss of up to one
// debounce window on abrupt exit.
type Persister struct {
	mu     sync.Mutex
	store  ProgressStore
	key    string
	delay  time.Duration
	logger *log.Logger
	timer  *time.Timer
	closed bool
}

// NewPersister creates a persister writing to store under key. A nil
// store disables persistence. A non-positive delay falls back to
// DefaultSaveDebounce.
func NewPersister(store ProgressStore, key string, delay time.Duration, logger *log.Logger) *Persister {
	if delay <= 0 {
		delay = DefaultSaveDebounce
	}
	return &Persister{
		store:  store,
		key:    key,
		delay:  delay,
		logger: logger,
	}
}

// Poke schedules p for storage after the debounce delay, replacing any
// previously scheduled snapshot.
func (p *Persister) Poke(progress Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.store == nil {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.delay, func() { p.flush(progress) })
}

// flush writes one snapshot. Failures are logged and never retried; the
// session keeps running on in-memory state.
func (p *Persister) flush(progress Progress) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	if err := p.store.Save(p.key, progress); err != nil {
		p.logger.Error("saving progress failed", "book", p.key, "error", err)
	}
}

// Close cancels any pending write. There is no final flush.
func (p *Persister) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
