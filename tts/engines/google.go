package engines

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"

	"lector/tts"
	"lector/tts/sentence"
)

// playbackPoll is how often the playback loop checks the player state.
const playbackPoll = 50 * time.Millisecond

// Google synthesizes utterances through Google Cloud Text-to-Speech and
// plays the LINEAR16 result through the shared playback context. Audio
// comes back at the voice's natural sample rate and is resampled to the
// output rate. Synthesized audio is cached on disk so re-reading a
// passage does not re-bill the API.
type Google struct {
	client *texttospeech.Client
	cache  *synthCache
	locale string
	logger *log.Logger

	mu      sync.Mutex
	current *googleUtterance
	subs    []func()
	closed  bool
}

// googleUtterance is one synthesis-and-playback run. The player and
// clock appear only once synthesis finishes; until then cancellation
// works through the context and the canceled flag.
type googleUtterance struct {
	events chan tts.Event
	cancel context.CancelFunc

	mu       sync.Mutex
	player   *oto.Player
	clock    *boundaryClock
	canceled bool
	paused   bool
}

func (u *googleUtterance) activate(p *oto.Player, c *boundaryClock) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.canceled {
		return false
	}
	u.player = p
	u.clock = c
	return true
}

func (u *googleUtterance) abort() {
	u.mu.Lock()
	u.canceled = true
	p := u.player
	c := u.clock
	u.mu.Unlock()

	u.cancel()
	if c != nil {
		c.stop()
	}
	if p != nil {
		p.Close()
	}
}

// pause suspends playback. It reports false while synthesis is still in
// flight, because there is nothing to suspend yet.
func (u *googleUtterance) pause() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.canceled || u.player == nil {
		return false
	}
	u.paused = true
	u.player.Pause()
	u.clock.pause()
	return true
}

func (u *googleUtterance) resume() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.canceled || u.player == nil {
		return
	}
	u.player.Play()
	u.clock.resume()
	u.paused = false
}

func (u *googleUtterance) isPaused() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.paused
}

func (u *googleUtterance) isCanceled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.canceled
}

func (u *googleUtterance) playing() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.player != nil && u.player.IsPlaying()
}

// NewGoogle creates the Cloud TTS backend. Credentials come from the
// environment the way the Google client libraries usually find them.
func NewGoogle(ctx context.Context, cfg Config, logger *log.Logger) (*Google, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tts.ErrBackendUnavailable, err)
	}

	g := &Google{client: client, locale: cfg.Locale, logger: logger}
	if cfg.CacheDir != "" {
		cache, err := newSynthCache(cfg.CacheDir, logger)
		if err != nil {
			logger.Warn("synthesis cache disabled", "dir", cfg.CacheDir, "error", err)
		} else {
			g.cache = cache
			logger.Debug("synthesis cache ready", "dir", cfg.CacheDir, "bytes", cache.size())
		}
	}
	return g, nil
}

// Voices lists the Cloud TTS voices for the configured locale's
// language.
func (g *Google) Voices(ctx context.Context) ([]tts.Voice, error) {
	language, _, _ := strings.Cut(g.locale, "-")
	resp, err := g.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{
		LanguageCode: language,
	})
	if err != nil {
		return nil, &tts.BackendError{Op: "list voices", Err: err}
	}

	voices := make([]tts.Voice, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		lang := ""
		if len(v.LanguageCodes) > 0 {
			lang = v.LanguageCodes[0]
		}
		voices = append(voices, tts.Voice{
			URI:  "google:" + v.Name,
			Name: v.Name,
			Lang: lang,
		})
	}
	return voices, nil
}

// Speak synthesizes and plays one utterance. The network round trip
// runs on its own goroutine; failures arrive on the event stream.
func (g *Google) Speak(ctx context.Context, u tts.Utterance) (<-chan tts.Event, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, tts.ErrBackendClosed
	}
	g.cancelCurrentLocked()

	sctx, cancel := context.WithCancel(ctx)
	ut := &googleUtterance{
		events: make(chan tts.Event, 16),
		cancel: cancel,
	}
	g.current = ut
	g.mu.Unlock()

	go g.speak(sctx, ut, u)
	return ut.events, nil
}

func (g *Google) speak(ctx context.Context, ut *googleUtterance, u tts.Utterance) {
	defer close(ut.events)

	pcm, err := g.synthesize(ctx, u)
	if err != nil {
		g.clearCurrent(ut)
		if ctx.Err() != nil || ut.isCanceled() {
			ut.events <- tts.Event{Type: tts.EventFailed, Err: tts.ErrUtteranceCanceled}
		} else {
			ut.events <- tts.Event{Type: tts.EventFailed, Err: &tts.BackendError{Op: "synthesize", Err: err}}
		}
		return
	}

	actx, err := audioContext()
	if err != nil {
		g.clearCurrent(ut)
		ut.events <- tts.Event{Type: tts.EventFailed, Err: &tts.BackendError{Op: "audio", Err: err}}
		return
	}

	player := actx.NewPlayer(bytes.NewReader(pcm))
	offsets := (sentence.Sentence{Text: u.Text}).WordOffsets()
	clock := newBoundaryClock(offsets, u.Rate, func(off int) {
		select {
		case ut.events <- tts.Event{Type: tts.EventBoundary, Offset: off}:
		default:
		}
	})
	if !ut.activate(player, clock) {
		player.Close()
		g.clearCurrent(ut)
		ut.events <- tts.Event{Type: tts.EventFailed, Err: tts.ErrUtteranceCanceled}
		return
	}

	g.logger.Debug("playing synthesis",
		"bytes", len(pcm),
		"duration", pcmDuration(len(pcm)),
		"words", len(offsets))

	ut.events <- tts.Event{Type: tts.EventStarted}
	ut.resume()
	clock.start()

	ticker := time.NewTicker(playbackPoll)
	defer ticker.Stop()
	for range ticker.C {
		if ut.isCanceled() {
			clock.stop()
			g.clearCurrent(ut)
			ut.events <- tts.Event{Type: tts.EventFailed, Err: tts.ErrUtteranceCanceled}
			return
		}
		if ut.isPaused() {
			continue
		}
		if !ut.playing() {
			break
		}
	}

	clock.stop()
	ut.abort()
	g.clearCurrent(ut)
	ut.events <- tts.Event{Type: tts.EventEnded}
}

// synthesize returns output-rate PCM for the utterance, from the cache
// when possible. Cloud TTS applies the speaking rate server side, so
// cached audio is keyed on it too.
func (g *Google) synthesize(ctx context.Context, u tts.Utterance) ([]byte, error) {
	voiceName := ""
	lang := u.Lang
	if u.Voice != nil {
		voiceName = strings.TrimPrefix(u.Voice.URI, "google:")
		if u.Voice.Lang != "" {
			lang = u.Voice.Lang
		}
	}
	if lang == "" {
		lang = g.locale
	}
	rate := u.Rate
	if rate <= 0 {
		rate = 1.0
	}

	key := cacheKey(u.Text, voiceName+"|"+lang, rate)
	if g.cache != nil {
		if pcm, ok := g.cache.get(key); ok {
			g.logger.Debug("synthesis cache hit", "key", key)
			return pcm, nil
		}
	}

	resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: u.Text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: lang,
			Name:         voiceName,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_LINEAR16,
			SpeakingRate:  rate,
		},
	})
	if err != nil {
		return nil, err
	}

	pcm, srcRate := wavPCM(resp.AudioContent)
	pcm, err = resamplePCM(pcm, srcRate)
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		g.cache.put(key, pcm)
	}
	return pcm, nil
}

// Pause suspends playback. An utterance still synthesizing is dropped
// instead, so the engine re-issues it on resume.
func (g *Google) Pause() error {
	g.mu.Lock()
	ut := g.current
	g.mu.Unlock()

	if ut == nil {
		return nil
	}
	if !ut.pause() {
		g.logger.Debug("pause before playback, dropping utterance")
		g.Cancel()
	}
	return nil
}

// Resume continues paused playback.
func (g *Google) Resume() error {
	g.mu.Lock()
	ut := g.current
	g.mu.Unlock()

	if ut != nil {
		ut.resume()
	}
	return nil
}

// Cancel discards the in-flight utterance, if any.
func (g *Google) Cancel() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCurrentLocked()
	return nil
}

func (g *Google) cancelCurrentLocked() {
	if g.current == nil {
		return
	}
	g.current.abort()
	g.current = nil
}

func (g *Google) clearCurrent(ut *googleUtterance) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == ut {
		g.current = nil
	}
}

// Speaking reports whether an utterance is synthesizing or playing.
func (g *Google) Speaking() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current != nil
}

// Paused reports whether playback is suspended.
func (g *Google) Paused() bool {
	g.mu.Lock()
	ut := g.current
	g.mu.Unlock()
	return ut != nil && ut.isPaused()
}

// OnVoicesChanged registers fn. The Cloud voice catalog only changes
// across releases, so fn is kept but never called.
func (g *Google) OnVoicesChanged(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs = append(g.subs, fn)
}

// Close cancels playback and releases the API client and cache.
func (g *Google) Close() error {
	g.mu.Lock()
	g.closed = true
	g.cancelCurrentLocked()
	cache := g.cache
	g.mu.Unlock()

	if cache != nil {
		cache.close()
	}
	return g.client.Close()
}
