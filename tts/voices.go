package tts

import (
	"context"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
)

// VoiceStatus tracks whether voice discovery has completed.
type VoiceStatus int

const (
	// VoicesLoading indicates discovery has not yet produced a result.
	VoicesLoading VoiceStatus = iota
	// VoicesLoaded indicates discovery completed, possibly with an
	// empty list.
	VoicesLoaded
)

// String returns the string representation of the status.
func (s VoiceStatus) String() string {
	if s == VoicesLoaded {
		return "loaded"
	}
	return "loading"
}

// VoiceGroup is a run of voices sharing an exact language tag, in
// discovery order.
type VoiceGroup struct {
	Lang   string
	Voices []Voice
}

const (
	voiceRetryLimit = 5
	voiceRetryStep  = 120 * time.Millisecond
	voiceQueryLimit = 2 * time.Second
)

// Registry discovers voices from a speech backend and resolves voice
// selection for a target locale. Discovery is unreliable: a backend may
// report an empty list while it warms up, so the registry retries on a
// short bounded schedule and also listens for the backend's voices-changed
// signal, whichever delivers first. Refreshes are idempotent and
// last-write-wins, so duplicate completions are harmless. One registry is
// shared by all book sessions; voices are a machine-level resource.
type Registry struct {
	mu       sync.Mutex
	backend  Backend
	locale   string // full target locale, e.g. "es-AR"
	language string // bare language tag, e.g. "es"
	logger   *log.Logger

	voices   []Voice
	status   VoiceStatus
	attempts int
	timer    *time.Timer
	closed   bool

	onChange []func()
	notify   func(tea.Msg)
}

// NewRegistry creates a registry targeting the given locale. Call Start
// to begin discovery.
func NewRegistry(backend Backend, locale string, logger *log.Logger) *Registry {
	language, _, _ := strings.Cut(locale, "-")
	return &Registry{
		backend:  backend,
		locale:   locale,
		language: language,
		logger:   logger,
		notify:   func(tea.Msg) {},
	}
}

// SetNotifier routes registry announcements to fn.
func (r *Registry) SetNotifier(fn func(tea.Msg)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn != nil {
		r.notify = fn
	}
}

// OnChange registers fn to run after every completed refresh.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}

// Start begins discovery: an immediate attempt, a bounded retry schedule
// for empty results, and a standing voices-changed subscription.
func (r *Registry) Start() {
	r.backend.OnVoicesChanged(func() { r.Refresh() })
	r.Refresh()
}

// Refresh queries the backend and replaces the published voice list. An
// empty result while still loading schedules another attempt after an
// increasing delay; once the retry budget is spent the registry settles
// as loaded with whatever it has.
func (r *Registry) Refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), voiceQueryLimit)
	voices, err := r.backend.Voices(ctx)
	cancel()
	if err != nil {
		r.logger.Warn("voice discovery failed", "error", err)
		voices = nil
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if len(voices) == 0 && r.status != VoicesLoaded && r.attempts < voiceRetryLimit {
		r.attempts++
		delay := time.Duration(r.attempts) * voiceRetryStep
		if r.timer != nil {
			r.timer.Stop()
		}
		r.timer = time.AfterFunc(delay, r.Refresh)
		r.mu.Unlock()
		return
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.voices = voices
	r.status = VoicesLoaded
	count := len(voices)
	subs := make([]func(), len(r.onChange))
	copy(subs, r.onChange)
	notify := r.notify
	r.mu.Unlock()

	r.logger.Debug("voices refreshed", "count", count)
	notify(VoicesMsg{Status: VoicesLoaded, Count: count})
	for _, fn := range subs {
		fn()
	}
}

// Status returns the discovery status.
func (r *Registry) Status() VoiceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Loaded reports whether discovery has completed.
func (r *Registry) Loaded() bool {
	return r.Status() == VoicesLoaded
}

// Voices returns a copy of the full published voice list, in discovery
// order.
func (r *Registry) Voices() []Voice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Voice, len(r.voices))
	copy(out, r.voices)
	return out
}

// ByURI looks up a voice by its URI.
func (r *Registry) ByURI(uri string) (Voice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.voices {
		if v.URI == uri {
			return v, true
		}
	}
	return Voice{}, false
}

// Groups returns the voices usable for the target language, grouped by
// exact language tag. Group order and the order within each group follow
// discovery order.
func (r *Registry) Groups() []VoiceGroup {
	r.mu.Lock()
	defer r.mu.Unlock()

	var groups []VoiceGroup
	index := make(map[string]int)
	for _, v := range r.voices {
		if !langMatches(v.Lang, r.language) {
			continue
		}
		i, ok := index[v.Lang]
		if !ok {
			i = len(groups)
			index[v.Lang] = i
			groups = append(groups, VoiceGroup{Lang: v.Lang})
		}
		groups[i].Voices = append(groups[i].Voices, v)
	}
	return groups
}

// DefaultVoice resolves the voice a session should use. In priority
// order: the previously selected voice when it still exists, a voice for
// the full target locale, a local voice for the target language, any
// voice for the target language, the first discovered voice. Returns nil
// when no voices are known.
func (r *Registry) DefaultVoice(previousURI string) *Voice {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.voices) == 0 {
		return nil
	}
	if previousURI != "" {
		for _, v := range r.voices {
			if v.URI == previousURI {
				picked := v
				return &picked
			}
		}
	}
	for _, v := range r.voices {
		if langMatches(v.Lang, r.locale) {
			picked := v
			return &picked
		}
	}
	for _, v := range r.voices {
		if v.Local && langMatches(v.Lang, r.language) {
			picked := v
			return &picked
		}
	}
	for _, v := range r.voices {
		if langMatches(v.Lang, r.language) {
			picked := v
			return &picked
		}
	}
	picked := r.voices[0]
	return &picked
}

// Close stops any pending retry. The voices-changed subscription stays
// registered but refreshes become no-ops.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// langMatches reports whether a voice language tag falls under the given
// tag prefix, compared case-insensitively.
func langMatches(lang, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(lang), strings.ToLower(prefix))
}
