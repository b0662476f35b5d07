package engines

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"lector/tts"
	"lector/tts/sentence"
)

// espeakBinaries lists the names probed when no explicit binary is
// configured.
var espeakBinaries = []string{"espeak-ng", "espeak"}

// Espeak drives the espeak-ng command line synthesizer, one process per
// utterance. espeak-ng plays through the system audio device itself, so
// this backend never touches the shared playback context. Pause and
// resume stop and continue the process group; word boundaries come from
// an estimated clock because the CLI reports none.
type Espeak struct {
	binary string
	locale string
	logger *log.Logger

	mu      sync.Mutex
	current *espeakUtterance
	subs    []func()
	closed  bool
}

// espeakUtterance tracks one running espeak process and its event
// stream. paused is guarded by the backend mutex; the kill state has
// its own lock because the context watcher races the waiter.
type espeakUtterance struct {
	cmd      *exec.Cmd
	clock    *boundaryClock
	events   chan tts.Event
	procDone chan struct{}
	paused   bool

	killMu sync.Mutex
	dead   bool
}

func (u *espeakUtterance) kill() {
	u.killMu.Lock()
	if u.dead {
		u.killMu.Unlock()
		return
	}
	u.dead = true
	u.killMu.Unlock()
	killProcessGroup(u.cmd)
}

func (u *espeakUtterance) killed() bool {
	u.killMu.Lock()
	defer u.killMu.Unlock()
	return u.dead
}

// NewEspeak locates the espeak-ng binary and returns the backend.
// A missing binary is reported as ErrBackendUnavailable.
func NewEspeak(cfg Config, logger *log.Logger) (*Espeak, error) {
	candidates := espeakBinaries
	if cfg.Binary != "" {
		candidates = []string{cfg.Binary}
	}
	for _, name := range candidates {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		logger.Debug("using espeak binary", "path", path)
		return &Espeak{binary: path, locale: cfg.Locale, logger: logger}, nil
	}
	return nil, fmt.Errorf("%w: espeak-ng not found (tried %s)",
		tts.ErrBackendUnavailable, strings.Join(candidates, ", "))
}

// Voices lists the voices espeak-ng offers for the configured locale's
// language, or all voices when no locale is set.
func (e *Espeak) Voices(ctx context.Context) ([]tts.Voice, error) {
	arg := "--voices"
	if lang, _, _ := strings.Cut(e.locale, "-"); lang != "" {
		arg = "--voices=" + strings.ToLower(lang)
	}
	out, err := exec.CommandContext(ctx, e.binary, arg).Output()
	if err != nil {
		return nil, &tts.BackendError{Op: "list voices", Err: err}
	}
	return parseEspeakVoices(out), nil
}

// parseEspeakVoices reads the table printed by espeak-ng --voices. Data
// rows start with a numeric priority; the language column doubles as
// the -v selector, so it becomes the voice URI. Variants sharing a
// language collapse onto the first row.
func parseEspeakVoices(out []byte) []tts.Voice {
	var voices []tts.Voice
	seen := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 {
			continue
		}
		if _, err := strconv.Atoi(fields[0]); err != nil {
			continue
		}
		lang := fields[1]
		if seen[lang] {
			continue
		}
		seen[lang] = true
		voices = append(voices, tts.Voice{
			URI:   "espeak:" + lang,
			Name:  strings.ReplaceAll(fields[3], "_", " "),
			Lang:  lang,
			Local: true,
		})
	}
	return voices
}

// espeakVoice resolves the -v argument for an utterance: the selected
// voice's identifier, or the bare language of the fallback tag.
func espeakVoice(u tts.Utterance) string {
	if u.Voice != nil {
		return strings.TrimPrefix(u.Voice.URI, "espeak:")
	}
	lang, _, _ := strings.Cut(u.Lang, "-")
	if lang == "" {
		return "en"
	}
	return strings.ToLower(lang)
}

// speakArgs builds the espeak-ng invocation for one utterance. The
// speaking rate maps onto words per minute against the estimation
// baseline, so audio and the virtual timeline drift as little as the
// estimate allows.
func speakArgs(u tts.Utterance) []string {
	rate := u.Rate
	if rate <= 0 {
		rate = 1.0
	}
	return []string{
		"-v", espeakVoice(u),
		"-s", strconv.Itoa(int(sentence.BaselineWPM * rate)),
		"--stdin",
	}
}

// Speak spawns one espeak-ng process for the utterance, superseding any
// previous one. The text goes in on stdin; boundaries come from the
// estimated clock.
func (e *Espeak) Speak(ctx context.Context, u tts.Utterance) (<-chan tts.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, tts.ErrBackendClosed
	}
	e.cancelCurrentLocked()

	cmd := exec.Command(e.binary, speakArgs(u)...)
	cmd.Stdin = strings.NewReader(u.Text)
	setProcessGroup(cmd)

	ut := &espeakUtterance{
		cmd:      cmd,
		events:   make(chan tts.Event, 16),
		procDone: make(chan struct{}),
	}
	offsets := (sentence.Sentence{Text: u.Text}).WordOffsets()
	ut.clock = newBoundaryClock(offsets, u.Rate, func(off int) {
		select {
		case ut.events <- tts.Event{Type: tts.EventBoundary, Offset: off}:
		default:
		}
	})

	if err := cmd.Start(); err != nil {
		return nil, &tts.BackendError{Op: "start espeak", Err: err}
	}
	e.current = ut
	e.logger.Debug("espeak speaking", "pid", cmd.Process.Pid, "words", len(offsets))

	ut.events <- tts.Event{Type: tts.EventStarted}
	ut.clock.start()
	go e.wait(ctx, ut)
	return ut.events, nil
}

// wait reaps the espeak process and emits the terminal event.
func (e *Espeak) wait(ctx context.Context, ut *espeakUtterance) {
	go func() {
		select {
		case <-ctx.Done():
			ut.kill()
		case <-ut.procDone:
		}
	}()

	err := ut.cmd.Wait()
	close(ut.procDone)
	ut.clock.stop()

	e.mu.Lock()
	if e.current == ut {
		e.current = nil
	}
	e.mu.Unlock()

	switch {
	case ut.killed() || ctx.Err() != nil:
		ut.events <- tts.Event{Type: tts.EventFailed, Err: tts.ErrUtteranceCanceled}
	case err != nil:
		ut.events <- tts.Event{Type: tts.EventFailed, Err: &tts.BackendError{Op: "espeak", Err: err}}
	default:
		ut.events <- tts.Event{Type: tts.EventEnded}
	}
	close(ut.events)
}

// Pause stops the process group mid-word. On platforms without process
// suspension the utterance is dropped instead and Paused stays false,
// which makes the engine re-issue the sentence on resume.
func (e *Espeak) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ut := e.current
	if ut == nil || ut.paused {
		return nil
	}
	if err := suspendProcessGroup(ut.cmd); err != nil {
		e.logger.Debug("suspend unsupported, dropping utterance", "error", err)
		ut.kill()
		return nil
	}
	ut.paused = true
	ut.clock.pause()
	return nil
}

// Resume continues the process group. The signal also goes to a
// nominally running process, which unsticks one that stopped behind our
// back.
func (e *Espeak) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ut := e.current
	if ut == nil {
		return nil
	}
	if err := resumeProcessGroup(ut.cmd); err != nil {
		return &tts.BackendError{Op: "resume", Err: err}
	}
	if ut.paused {
		ut.paused = false
		ut.clock.resume()
	}
	return nil
}

// Cancel kills the in-flight utterance's process group, if any.
func (e *Espeak) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelCurrentLocked()
	return nil
}

func (e *Espeak) cancelCurrentLocked() {
	if e.current == nil {
		return
	}
	e.current.clock.stop()
	e.current.kill()
	e.current = nil
}

// Speaking reports whether an espeak process is in flight.
func (e *Espeak) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// Paused reports whether the in-flight process group is stopped.
func (e *Espeak) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil && e.current.paused
}

// OnVoicesChanged registers fn. An espeak install's voice list never
// changes at runtime, so fn is kept but never called.
func (e *Espeak) OnVoicesChanged(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, fn)
}

// Close kills any in-flight utterance and rejects further speech.
func (e *Espeak) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.cancelCurrentLocked()
	return nil
}
