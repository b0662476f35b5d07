package engines

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"lector/tts"
)

const (
	remoteWriteWait   = 10 * time.Second
	remotePongWait    = 60 * time.Second
	remotePingPeriod  = 50 * time.Second
	remoteDialTimeout = 10 * time.Second
)

// wireMsg is the JSON envelope of the remote speech protocol. The
// client issues speak, cancel, pause, resume and voices commands; the
// service answers with per-utterance started, boundary, ended and
// failed events carrying the utterance id, plus voices listings and
// unsolicited voices_changed pushes.
type wireMsg struct {
	Type   string      `json:"type"`
	ID     uint64      `json:"id,omitempty"`
	Text   string      `json:"text,omitempty"`
	Voice  string      `json:"voice,omitempty"`
	Lang   string      `json:"lang,omitempty"`
	Rate   float64     `json:"rate,omitempty"`
	Offset int         `json:"offset,omitempty"`
	Error  string      `json:"error,omitempty"`
	Benign bool        `json:"benign,omitempty"`
	Voices []wireVoice `json:"voices,omitempty"`
}

type wireVoice struct {
	URI   string `json:"uri"`
	Name  string `json:"name"`
	Lang  string `json:"lang"`
	Local bool   `json:"local"`
}

// Remote speaks through a network speech service over a WebSocket. The
// service produces real start, boundary and end events, so no estimated
// clock is involved. The connection is dialed lazily and re-dialed on
// demand, paced by a limiter so a dead service is not hammered.
type Remote struct {
	url    string
	logger *log.Logger
	redial *rate.Limiter

	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	dialed    bool
	nextID    uint64
	current   *remoteUtterance
	paused    bool
	voicesReq chan []tts.Voice
	subs      []func()
	closed    bool
}

// remoteUtterance is one in-flight speak command. Its mutex only guards
// stream termination, so delivering never entangles with the backend
// lock.
type remoteUtterance struct {
	id     uint64
	events chan tts.Event
	done   chan struct{}

	mu       sync.Mutex
	finished bool
}

// deliver forwards one event, closing the stream after the terminal
// one. Later events for the same utterance are dropped.
func (u *remoteUtterance) deliver(ev tts.Event) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.finished {
		return
	}
	u.events <- ev
	if ev.Type == tts.EventEnded || ev.Type == tts.EventFailed {
		u.finished = true
		close(u.events)
		close(u.done)
	}
}

// NewRemote validates the service URL and returns the backend. No
// connection is made yet; the first operation dials.
func NewRemote(cfg Config, logger *log.Logger) (*Remote, error) {
	if cfg.RemoteURL == "" {
		return nil, fmt.Errorf("%w: remote engine needs a service url", tts.ErrBackendUnavailable)
	}
	parsed, err := url.Parse(cfg.RemoteURL)
	if err != nil || (parsed.Scheme != "ws" && parsed.Scheme != "wss") {
		return nil, fmt.Errorf("%w: remote url must be ws:// or wss://", tts.ErrBackendUnavailable)
	}
	return &Remote{
		url:    cfg.RemoteURL,
		logger: logger,
		redial: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}, nil
}

// ensureConn returns the live connection, dialing one when needed.
func (r *Remote) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, tts.ErrBackendClosed
	}
	if r.conn != nil {
		conn := r.conn
		r.mu.Unlock()
		return conn, nil
	}
	reconnect := r.dialed
	r.mu.Unlock()

	if err := r.redial.Wait(ctx); err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: remoteDialTimeout}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return nil, &tts.BackendError{Op: "dial", Err: err}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		conn.Close()
		return nil, tts.ErrBackendClosed
	}
	if existing := r.conn; existing != nil {
		r.mu.Unlock()
		conn.Close()
		return existing, nil
	}
	r.conn = conn
	r.dialed = true
	r.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(remotePongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(remotePongWait))
		return nil
	})
	go r.readPump(conn)
	go r.pingLoop(conn)

	r.logger.Info("connected to speech service", "url", r.url)
	if reconnect {
		// The service may have a different voice inventory now.
		go r.fireVoicesChanged()
	}
	return conn, nil
}

// send writes one frame. gorilla allows a single concurrent writer, so
// all writes funnel through here.
func (r *Remote) send(conn *websocket.Conn, msg wireMsg) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(remoteWriteWait))
	return conn.WriteJSON(msg)
}

// readPump translates service frames until the connection dies.
func (r *Remote) readPump(conn *websocket.Conn) {
	for {
		var msg wireMsg
		if err := conn.ReadJSON(&msg); err != nil {
			r.connLost(conn, err)
			return
		}
		r.handle(msg)
	}
}

func (r *Remote) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(remotePingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		r.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(remoteWriteWait))
		err := conn.WriteMessage(websocket.PingMessage, nil)
		r.writeMu.Unlock()
		if err != nil {
			return
		}
		r.mu.Lock()
		live := r.conn == conn
		r.mu.Unlock()
		if !live {
			return
		}
	}
}

// handle routes one service frame.
func (r *Remote) handle(msg wireMsg) {
	switch msg.Type {
	case "started", "boundary", "ended", "failed":
		r.mu.Lock()
		ut := r.current
		if ut != nil && ut.id != msg.ID {
			ut = nil
		}
		terminal := msg.Type == "ended" || msg.Type == "failed"
		if ut != nil && terminal {
			r.current = nil
			r.paused = false
		}
		r.mu.Unlock()
		if ut == nil {
			return
		}
		ut.deliver(eventFromWire(msg))

	case "voices":
		voices := make([]tts.Voice, 0, len(msg.Voices))
		for _, v := range msg.Voices {
			voices = append(voices, tts.Voice{URI: v.URI, Name: v.Name, Lang: v.Lang, Local: v.Local})
		}
		r.mu.Lock()
		waiter := r.voicesReq
		r.voicesReq = nil
		r.mu.Unlock()
		if waiter != nil {
			waiter <- voices
			return
		}
		// Unsolicited listing: treat it as a change push.
		go r.fireVoicesChanged()

	case "voices_changed":
		// Subscribers re-query through Voices, whose reply only this
		// pump can read, so they must not run on the pump goroutine.
		go r.fireVoicesChanged()

	default:
		r.logger.Debug("unknown frame from speech service", "type", msg.Type)
	}
}

func eventFromWire(msg wireMsg) tts.Event {
	switch msg.Type {
	case "started":
		return tts.Event{Type: tts.EventStarted}
	case "boundary":
		return tts.Event{Type: tts.EventBoundary, Offset: msg.Offset}
	case "ended":
		return tts.Event{Type: tts.EventEnded}
	default:
		var err error
		switch {
		case msg.Benign && msg.Error == "":
			err = tts.ErrUtteranceCanceled
		case msg.Benign:
			err = fmt.Errorf("%w: %s", tts.ErrUtteranceCanceled, msg.Error)
		default:
			err = &tts.BackendError{Op: "remote speak", Err: errors.New(msg.Error)}
		}
		return tts.Event{Type: tts.EventFailed, Err: err}
	}
}

// connLost tears down state bound to a dead connection. An utterance
// cut off mid-speech fails hard so playback stalls visibly instead of
// hanging.
func (r *Remote) connLost(conn *websocket.Conn, err error) {
	conn.Close()

	r.mu.Lock()
	if r.conn == conn {
		r.conn = nil
	}
	ut := r.current
	r.current = nil
	r.paused = false
	waiter := r.voicesReq
	r.voicesReq = nil
	closed := r.closed
	r.mu.Unlock()

	if waiter != nil {
		close(waiter)
	}
	if ut != nil {
		ut.deliver(tts.Event{Type: tts.EventFailed, Err: &tts.BackendError{Op: "stream", Err: err}})
	}
	if !closed {
		r.logger.Warn("speech service connection lost", "error", err)
	}
}

func (r *Remote) fireVoicesChanged() {
	r.mu.Lock()
	subs := make([]func(), len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

// Voices asks the service for its current voice inventory.
func (r *Remote) Voices(ctx context.Context) ([]tts.Voice, error) {
	conn, err := r.ensureConn(ctx)
	if err != nil {
		return nil, err
	}

	reply := make(chan []tts.Voice, 1)
	r.mu.Lock()
	r.voicesReq = reply
	r.mu.Unlock()

	clear := func() {
		r.mu.Lock()
		if r.voicesReq == reply {
			r.voicesReq = nil
		}
		r.mu.Unlock()
	}

	if err := r.send(conn, wireMsg{Type: "voices"}); err != nil {
		clear()
		return nil, &tts.BackendError{Op: "list voices", Err: err}
	}

	select {
	case voices, ok := <-reply:
		if !ok {
			return nil, &tts.BackendError{Op: "list voices", Err: errors.New("connection lost")}
		}
		return voices, nil
	case <-ctx.Done():
		clear()
		return nil, ctx.Err()
	}
}

// Speak sends one speak command and returns the event stream fed by the
// read pump.
func (r *Remote) Speak(ctx context.Context, u tts.Utterance) (<-chan tts.Event, error) {
	conn, err := r.ensureConn(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, tts.ErrBackendClosed
	}
	if prev := r.current; prev != nil {
		r.current = nil
		defer prev.deliver(tts.Event{Type: tts.EventFailed, Err: tts.ErrUtteranceInterrupted})
	}
	r.nextID++
	ut := &remoteUtterance{
		id:     r.nextID,
		events: make(chan tts.Event, 16),
		done:   make(chan struct{}),
	}
	r.current = ut
	r.paused = false
	msg := wireMsg{Type: "speak", ID: ut.id, Text: u.Text, Lang: u.Lang, Rate: u.Rate}
	if u.Voice != nil {
		msg.Voice = u.Voice.URI
		if msg.Lang == "" {
			msg.Lang = u.Voice.Lang
		}
	}
	r.mu.Unlock()

	if err := r.send(conn, msg); err != nil {
		r.mu.Lock()
		if r.current == ut {
			r.current = nil
		}
		r.mu.Unlock()
		return nil, &tts.BackendError{Op: "speak", Err: err}
	}

	go func() {
		select {
		case <-ctx.Done():
			r.cancelUtterance(ut)
		case <-ut.done:
		}
	}()
	return ut.events, nil
}

// cancelUtterance drops one utterance: the service gets a cancel
// command and the stream terminates benignly right away.
func (r *Remote) cancelUtterance(ut *remoteUtterance) {
	r.mu.Lock()
	if r.current == ut {
		r.current = nil
		r.paused = false
	}
	conn := r.conn
	r.mu.Unlock()

	if conn != nil {
		if err := r.send(conn, wireMsg{Type: "cancel", ID: ut.id}); err != nil {
			r.logger.Debug("cancel send failed", "error", err)
		}
	}
	ut.deliver(tts.Event{Type: tts.EventFailed, Err: tts.ErrUtteranceCanceled})
}

// Pause asks the service to suspend the utterance. If the service is
// unreachable the utterance is dropped instead, so the engine re-issues
// it on resume.
func (r *Remote) Pause() error {
	r.mu.Lock()
	ut := r.current
	conn := r.conn
	r.mu.Unlock()

	if ut == nil {
		return nil
	}
	if conn == nil {
		r.cancelUtterance(ut)
		return nil
	}
	if err := r.send(conn, wireMsg{Type: "pause", ID: ut.id}); err != nil {
		r.cancelUtterance(ut)
		return nil
	}
	r.mu.Lock()
	if r.current == ut {
		r.paused = true
	}
	r.mu.Unlock()
	return nil
}

// Resume asks the service to continue the suspended utterance.
func (r *Remote) Resume() error {
	r.mu.Lock()
	ut := r.current
	conn := r.conn
	r.mu.Unlock()

	if ut == nil || conn == nil {
		return nil
	}
	if err := r.send(conn, wireMsg{Type: "resume", ID: ut.id}); err != nil {
		return &tts.BackendError{Op: "resume", Err: err}
	}
	r.mu.Lock()
	if r.current == ut {
		r.paused = false
	}
	r.mu.Unlock()
	return nil
}

// Cancel discards the in-flight utterance, if any.
func (r *Remote) Cancel() error {
	r.mu.Lock()
	ut := r.current
	r.mu.Unlock()

	if ut != nil {
		r.cancelUtterance(ut)
	}
	return nil
}

// Speaking reports whether a speak command is outstanding.
func (r *Remote) Speaking() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}

// Paused reports whether the service acknowledged a pause for the
// in-flight utterance.
func (r *Remote) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil && r.paused
}

// OnVoicesChanged registers fn to run on voices_changed pushes and
// after reconnects.
func (r *Remote) OnVoicesChanged(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

// Close drops the connection and terminates any in-flight utterance.
func (r *Remote) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	conn := r.conn
	r.conn = nil
	ut := r.current
	r.current = nil
	r.mu.Unlock()

	if ut != nil {
		ut.deliver(tts.Event{Type: tts.EventFailed, Err: tts.ErrUtteranceCanceled})
	}
	if conn != nil {
		conn.Close()
	}
	return nil
}
