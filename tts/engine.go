// Package tts drives sentence-synchronized speech playback: it segments
// book text, estimates a virtual timeline, coordinates a speech backend
// through per-utterance event streams, and persists progress.
package tts

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"lector/tts/sentence"
)

// Engine drives sentence-by-sentence speech for one book session. It owns
// the playback state machine, the virtual clock, the word highlight, the
// pending-play flag and the progress record. All mutation happens under a
// single mutex; backend callbacks re-enter through per-utterance event
// streams consumed on their own goroutines.
type Engine struct {
	mu sync.Mutex

	cfg      Config
	backend  Backend
	registry *Registry
	store    ProgressStore
	logger   *log.Logger

	bookKey   string
	sentences []sentence.Sentence
	timeline  *sentence.Timeline

	state     State
	progress  Progress
	highlight Highlight
	stalled   bool

	utterance   *utterance
	generation  uint64
	lastSpoken  int
	pendingPlay bool

	persister *Persister

	notifier func(tea.Msg)
	notices  chan tea.Msg

	done      chan struct{}
	closeOnce sync.Once
}

// utterance tracks one in-flight speech request. The generation stamp
// distinguishes its events from those of a superseded request whose
// terminal event arrives late.
type utterance struct {
	index  int
	gen    uint64
	cancel context.CancelFunc
}

// New creates an engine bound to a backend, a shared voice registry and a
// progress store. The engine is idle until a book is loaded. Close must
// be called to release its timers.
func New(cfg Config, backend Backend, registry *Registry, store ProgressStore, logger *log.Logger) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 12 * time.Second
	}
	if cfg.SeekStep <= 0 {
		cfg.SeekStep = DefaultSeekStep
	}

	e := &Engine{
		cfg:        cfg,
		backend:    backend,
		registry:   registry,
		store:      store,
		logger:     logger,
		state:      StateStopped,
		highlight:  NoHighlight,
		lastSpoken: -1,
		notifier:   func(tea.Msg) {},
		notices:    make(chan tea.Msg, 64),
		done:       make(chan struct{}),
	}
	registry.OnChange(e.voicesChanged)

	go e.run()
	go e.dispatch()
	return e
}

// SetNotifier routes engine announcements to fn, usually a
// tea.Program's Send.
func (e *Engine) SetNotifier(fn func(tea.Msg)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fn != nil {
		e.notifier = fn
	}
}

// Load replaces the engine's book: the text is segmented, the timeline is
// rebuilt and the stored progress resumes, clamped into the new sentence
// sequence. Any current playback is cancelled first. Returns
// ErrNoSentences when the text segments into nothing speakable; the
// engine stays usable but inert.
func (e *Engine) Load(bookKey, text string, initial Progress) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelUtteranceLocked()
	if e.persister != nil {
		e.persister.Close()
	}

	e.bookKey = bookKey
	e.sentences = sentence.Segment(text)
	e.pendingPlay = false
	e.stalled = false
	e.highlight = NoHighlight
	e.lastSpoken = -1
	e.persister = NewPersister(e.store, bookKey, e.cfg.SaveDebounce, e.logger)

	if initial.VoiceURI == "" {
		initial.VoiceURI = e.cfg.Voice
	}
	e.progress = initial.Normalized(len(e.sentences))
	e.resolveVoiceLocked(e.progress.VoiceURI)
	e.timeline = sentence.NewTimeline(e.sentences, e.progress.Rate)
	e.setStateLocked(StateStopped)
	e.notifyLocked(ProgressMsg{
		Index:   e.progress.SentenceIndex,
		Elapsed: e.progress.Elapsed,
		Total:   e.timeline.Total,
	})

	if len(e.sentences) == 0 {
		e.logger.Warn("book has no speakable sentences", "book", bookKey)
		return ErrNoSentences
	}
	e.logger.Info("book loaded",
		"book", bookKey,
		"sentences", len(e.sentences),
		"resume_index", e.progress.SentenceIndex)
	return nil
}

// Play starts playback at the current sentence, resumes from pause, or
// parks a pending play while voices are still loading.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.sentences) == 0 {
		return ErrNoSentences
	}

	switch e.state {
	case StatePlaying:
		return nil

	case StatePaused:
		e.setStateLocked(StatePlaying)
		if e.utterance != nil && e.backend.Paused() {
			if err := e.backend.Resume(); err == nil {
				return nil
			}
			e.logger.Warn("backend resume failed, re-issuing utterance")
		}
		// The backend lost the paused utterance, so speak the current
		// sentence again from its start.
		e.speakLocked()
		return nil

	default:
		if !e.registry.Loaded() {
			// Voices are not in yet. Park the request; the registry's
			// first successful refresh honors it. Only the latest
			// request is kept.
			e.pendingPlay = true
			e.notifyLocked(StateMsg{
				State:   e.state,
				Index:   e.progress.SentenceIndex,
				Stalled: e.stalled,
				Pending: true,
			})
			return nil
		}
		e.setStateLocked(StatePlaying)
		e.speakLocked()
		return nil
	}
}

// Pause freezes playback and the virtual clock. The in-flight utterance
// is suspended, not cancelled.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePlaying {
		return nil
	}
	e.setStateLocked(StatePaused)
	if err := e.backend.Pause(); err != nil {
		e.logger.Warn("backend pause failed", "error", err)
	}
	e.pokePersistLocked()
	return nil
}

// Stop cancels playback and resets the session to the beginning of the
// book. Stopping an already stopped engine is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelUtteranceLocked()
	e.pendingPlay = false
	e.highlight = NoHighlight
	e.lastSpoken = -1
	e.progress.SentenceIndex = 0
	e.progress.Elapsed = 0
	e.setStateLocked(StateStopped)
	e.notifyLocked(HighlightMsg{Highlight: e.highlight})
	e.pokePersistLocked()
	return nil
}

// SeekDirection selects which way Seek jumps.
type SeekDirection int

const (
	SeekBackward SeekDirection = -1
	SeekForward  SeekDirection = 1
)

// Seek jumps the position by the configured step of sentences, clamped to
// the book. While playing the new sentence is spoken immediately; while
// paused or stopped only the position moves and no speech is produced
// until play is requested.
func (e *Engine) Seek(dir SeekDirection) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.sentences) == 0 {
		return ErrNoSentences
	}

	target := clampIndex(e.progress.SentenceIndex+int(dir)*e.cfg.SeekStep, len(e.sentences))
	e.progress.SentenceIndex = target
	e.progress.Elapsed = e.timeline.StartOf(target)
	e.highlight = NoHighlight
	e.lastSpoken = target

	if e.state == StatePlaying {
		e.speakLocked()
	} else {
		e.cancelUtteranceLocked()
	}

	e.pokePersistLocked()
	e.notifyLocked(ProgressMsg{
		Index:   target,
		Elapsed: e.progress.Elapsed,
		Total:   e.timeline.Total,
	})
	return nil
}

// SetRate changes the speaking rate and rebuilds the timeline. Elapsed
// time already accrued keeps its value; only forward estimates change.
// The new rate applies from the next utterance.
func (e *Engine) SetRate(rate float64) error {
	if !ValidRate(rate) {
		return ErrRateOutOfRange
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if rate == e.progress.Rate {
		return nil
	}
	e.progress.Rate = rate
	e.timeline = sentence.NewTimeline(e.sentences, rate)
	e.pokePersistLocked()
	e.notifyLocked(RateMsg{Rate: rate})
	e.notifyLocked(ProgressMsg{
		Index:   e.progress.SentenceIndex,
		Elapsed: e.progress.Elapsed,
		Total:   e.timeline.Total,
	})
	return nil
}

// IncreaseRate steps the rate up and returns the new value.
func (e *Engine) IncreaseRate() float64 {
	e.mu.Lock()
	next := NextRate(e.progress.Rate)
	e.mu.Unlock()
	_ = e.SetRate(next)
	return next
}

// DecreaseRate steps the rate down and returns the new value.
func (e *Engine) DecreaseRate() float64 {
	e.mu.Lock()
	prev := PrevRate(e.progress.Rate)
	e.mu.Unlock()
	_ = e.SetRate(prev)
	return prev
}

// SetVoice selects a voice by URI for subsequent utterances. An empty URI
// clears the selection so the registry default applies again.
func (e *Engine) SetVoice(uri string) error {
	if uri != "" {
		if _, ok := e.registry.ByURI(uri); !ok {
			return ErrVoiceNotFound
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.progress.VoiceURI = uri
	e.pokePersistLocked()
	e.notifyLocked(VoiceSelectedMsg{URI: uri})
	return nil
}

// Snapshot returns an immutable view of the session for rendering.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		State:         e.state,
		SentenceIndex: e.progress.SentenceIndex,
		SentenceCount: len(e.sentences),
		Elapsed:       e.progress.Elapsed,
		Rate:          e.progress.Rate,
		VoiceURI:      e.progress.VoiceURI,
		Highlight:     e.highlight,
		Stalled:       e.stalled,
		PendingPlay:   e.pendingPlay,
	}
	if e.timeline != nil {
		snap.Total = e.timeline.Total
	}
	return snap
}

// Sentences returns the book's sentence sequence. The slice is shared and
// must be treated as read-only.
func (e *Engine) Sentences() []sentence.Sentence {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sentences
}

// CurrentSentence returns the sentence at the playback position.
func (e *Engine) CurrentSentence() (sentence.Sentence, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.sentences) == 0 {
		return sentence.Sentence{}, false
	}
	return e.sentences[clampIndex(e.progress.SentenceIndex, len(e.sentences))], true
}

// Timeline returns the current duration model. It is immutable; a rate
// change publishes a fresh one.
func (e *Engine) Timeline() *sentence.Timeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeline
}

// Close cancels the in-flight utterance, stops the engine's timers and
// discards any pending progress write.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.cancelUtteranceLocked()
		persister := e.persister
		e.mu.Unlock()

		close(e.done)
		if persister != nil {
			persister.Close()
		}
	})
	return nil
}

// speakLocked issues the utterance for the current sentence, superseding
// any previous one. Remaining events from the superseded utterance are
// discarded as benign.
func (e *Engine) speakLocked() {
	if len(e.sentences) == 0 {
		return
	}

	idx := clampIndex(e.progress.SentenceIndex, len(e.sentences))
	e.progress.SentenceIndex = idx
	s := e.sentences[idx]

	e.cancelUtteranceLocked()

	e.generation++
	ctx, cancel := context.WithCancel(context.Background())
	u := &utterance{index: idx, gen: e.generation, cancel: cancel}
	e.utterance = u
	e.lastSpoken = idx

	req := Utterance{
		Text: s.Text,
		Lang: e.cfg.Locale,
		Rate: e.progress.Rate,
	}
	if v, ok := e.registry.ByURI(e.progress.VoiceURI); ok {
		req.Voice = &v
	}

	events, err := e.backend.Speak(ctx, req)
	if err != nil {
		cancel()
		e.utterance = nil
		e.failLocked(err)
		return
	}

	e.logger.Debug("utterance issued", "index", idx, "words", len(s.Words))
	go e.consume(u, events)
}

// cancelUtteranceLocked supersedes the in-flight utterance, if any. The
// generation bump comes first so that events already in flight are
// recognized as stale.
func (e *Engine) cancelUtteranceLocked() {
	e.generation++
	if e.utterance != nil {
		e.utterance.cancel()
		e.utterance = nil
	}
	if err := e.backend.Cancel(); err != nil {
		e.logger.Debug("backend cancel failed", "error", err)
	}
}

// consume drains one utterance's event stream.
func (e *Engine) consume(u *utterance, events <-chan Event) {
	for ev := range events {
		e.handleEvent(u, ev)
	}
}

// handleEvent applies one backend event to the session. Events from
// superseded utterances are dropped.
func (e *Engine) handleEvent(u *utterance, ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if u.gen != e.generation {
		if ev.Type == EventFailed && !IsBenign(ev.Err) {
			e.logger.Debug("stale utterance error ignored", "index", u.index, "error", ev.Err)
		}
		return
	}

	switch ev.Type {
	case EventStarted:
		e.stalled = false
		e.progress.Elapsed = e.timeline.StartOf(u.index)
		e.pokePersistLocked()
		e.notifyLocked(ProgressMsg{
			Index:   u.index,
			Elapsed: e.progress.Elapsed,
			Total:   e.timeline.Total,
		})

	case EventBoundary:
		word := e.sentences[u.index].WordAt(ev.Offset)
		e.highlight = Highlight{Sentence: u.index, Word: word}
		e.notifyLocked(HighlightMsg{Highlight: e.highlight})

	case EventEnded:
		e.highlight = NoHighlight
		e.utterance = nil
		e.notifyLocked(HighlightMsg{Highlight: e.highlight})
		if e.state != StatePlaying {
			return
		}
		if u.index >= len(e.sentences)-1 {
			// Last sentence finished: the book is done. The index
			// stays on the last sentence.
			e.progress.Elapsed = e.timeline.Total
			e.setStateLocked(StateStopped)
			e.pokePersistLocked()
			return
		}
		e.progress.SentenceIndex = u.index + 1
		e.pokePersistLocked()
		e.indexAdvancedLocked()

	case EventFailed:
		e.highlight = NoHighlight
		e.utterance = nil
		e.notifyLocked(HighlightMsg{Highlight: e.highlight})
		if IsBenign(ev.Err) {
			return
		}
		e.failLocked(ev.Err)
	}
}

// indexAdvancedLocked is the index watcher: it speaks only when the index
// moved past the last spoken sentence, so unrelated index rewrites never
// re-trigger speech.
func (e *Engine) indexAdvancedLocked() {
	if e.state != StatePlaying {
		return
	}
	if e.progress.SentenceIndex <= e.lastSpoken {
		return
	}
	e.speakLocked()
}

// failLocked handles a genuine backend failure: playback stops where it
// is and the session is flagged stalled. The position is kept so the user
// can resume.
func (e *Engine) failLocked(err error) {
	e.logger.Error("backend failure", "index", e.progress.SentenceIndex, "error", err)
	e.stalled = true
	e.highlight = NoHighlight
	e.setStateLocked(StateStopped)
	e.pokePersistLocked()
}

// resolveVoiceLocked reconciles the selected voice with the registry's
// published list: a vanished selection falls back to the default pick
// for the target locale. Before discovery completes the selection is
// left alone.
func (e *Engine) resolveVoiceLocked(prev string) {
	if !e.registry.Loaded() {
		return
	}
	if v := e.registry.DefaultVoice(prev); v != nil {
		e.progress.VoiceURI = v.URI
	} else {
		e.progress.VoiceURI = ""
	}
}

// voicesChanged runs after every completed registry refresh: it
// re-validates the selected voice against the new list and honors a
// pending play once voices are actually available.
func (e *Engine) voicesChanged() {
	e.mu.Lock()
	prev := e.progress.VoiceURI
	e.resolveVoiceLocked(prev)
	if e.progress.VoiceURI != prev {
		e.pokePersistLocked()
		e.notifyLocked(VoiceSelectedMsg{URI: e.progress.VoiceURI})
	}

	fire := e.pendingPlay && len(e.registry.Voices()) > 0
	if fire {
		e.pendingPlay = false
	}
	e.mu.Unlock()

	if fire {
		if err := e.Play(); err != nil {
			e.logger.Warn("pending play failed", "error", err)
		}
	}
}

// run owns the engine's two clocks: the per-second virtual-time tick and
// the slow keep-alive nudge.
func (e *Engine) run() {
	tick := time.NewTicker(e.cfg.TickInterval)
	keepAlive := time.NewTicker(e.cfg.KeepAliveInterval)
	defer tick.Stop()
	defer keepAlive.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-tick.C:
			e.tickElapsed()
		case <-keepAlive.C:
			e.nudgeBackend()
		}
	}
}

// tickElapsed advances the virtual clock while playing. The clock models
// wall time because the backend exposes no reliable fine-grained
// progress.
func (e *Engine) tickElapsed() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePlaying {
		return
	}
	e.progress.Elapsed += e.cfg.TickInterval.Seconds()
	e.pokePersistLocked()
	e.notifyLocked(ProgressMsg{
		Index:   e.progress.SentenceIndex,
		Elapsed: e.progress.Elapsed,
		Total:   e.timeline.Total,
	})
}

// nudgeBackend resumes a backend that claims to be speaking yet is not
// paused. Some backends silently freeze on long utterances; a periodic
// resume unsticks them.
func (e *Engine) nudgeBackend() {
	e.mu.Lock()
	playing := e.state == StatePlaying
	e.mu.Unlock()

	if !playing {
		return
	}
	if e.backend.Speaking() && !e.backend.Paused() {
		if err := e.backend.Resume(); err != nil {
			e.logger.Debug("keep-alive resume failed", "error", err)
		}
	}
}

// setStateLocked transitions the state machine and announces it.
func (e *Engine) setStateLocked(s State) {
	if e.state == s {
		return
	}
	e.logger.Debug("state change", "from", e.state, "to", s)
	e.state = s
	e.notifyLocked(StateMsg{
		State:   s,
		Index:   e.progress.SentenceIndex,
		Stalled: e.stalled,
		Pending: e.pendingPlay,
	})
}

// pokePersistLocked hands the current progress to the debounced
// persister.
func (e *Engine) pokePersistLocked() {
	if e.persister != nil {
		e.persister.Poke(e.progress)
	}
}

// notifyLocked queues a message for the notifier. Delivery is best
// effort: when the queue is full the message is dropped, and consumers
// recover by reading Snapshot.
func (e *Engine) notifyLocked(msg tea.Msg) {
	select {
	case e.notices <- msg:
	default:
	}
}

// dispatch forwards queued notices to the configured notifier.
func (e *Engine) dispatch() {
	for {
		select {
		case <-e.done:
			return
		case msg := <-e.notices:
			e.mu.Lock()
			notifier := e.notifier
			e.mu.Unlock()
			notifier(msg)
		}
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
