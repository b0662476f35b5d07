package engines

import (
	"sync"
	"time"

	"lector/tts/sentence"
)

// boundaryClock synthesizes word boundary events for backends whose
// audio path reports none of its own. Words are assumed evenly spaced
// at the engine's estimated pace. The clock pauses and resumes without
// losing its place in the word sequence.
//
// emit runs with the clock's lock held, so it must not block; after
// stop returns no further emits happen.
type boundaryClock struct {
	mu        sync.Mutex
	offsets   []int
	perWord   time.Duration
	next      int
	timer     *time.Timer
	armedAt   time.Time
	remaining time.Duration
	started   bool
	paused    bool
	stopped   bool
	emit      func(offset int)
}

// newBoundaryClock builds a clock over the word start offsets of an
// utterance spoken at rate.
func newBoundaryClock(offsets []int, rate float64, emit func(offset int)) *boundaryClock {
	if rate <= 0 {
		rate = 1.0
	}
	perWord := time.Duration(60.0 / (sentence.BaselineWPM * rate) * float64(time.Second))
	return &boundaryClock{offsets: offsets, perWord: perWord, emit: emit}
}

// start emits the first word's boundary immediately and schedules the
// rest. Starting twice is a no-op.
func (c *boundaryClock) start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped || len(c.offsets) == 0 {
		return
	}
	c.started = true
	c.emit(c.offsets[c.next])
	c.next++
	if c.next < len(c.offsets) && !c.paused {
		c.armLocked(c.perWord)
	}
}

func (c *boundaryClock) armLocked(d time.Duration) {
	c.armedAt = time.Now()
	c.remaining = d
	c.timer = time.AfterFunc(d, c.tick)
}

func (c *boundaryClock) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.paused || c.next >= len(c.offsets) {
		return
	}
	c.emit(c.offsets[c.next])
	c.next++
	if c.next < len(c.offsets) {
		c.armLocked(c.perWord)
	} else {
		c.timer = nil
	}
}

// pause freezes the clock, keeping the remaining wait of the pending
// word.
func (c *boundaryClock) pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.stopped {
		return
	}
	c.paused = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
		c.remaining -= time.Since(c.armedAt)
		if c.remaining < 0 {
			c.remaining = 0
		}
	}
}

// resume continues a paused clock from where pause froze it.
func (c *boundaryClock) resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused || c.stopped {
		return
	}
	c.paused = false
	if c.started && c.next < len(c.offsets) {
		d := c.remaining
		if d <= 0 {
			d = time.Millisecond
		}
		c.armLocked(d)
	}
}

// stop ends the clock. After stop returns no emit is in flight.
func (c *boundaryClock) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
