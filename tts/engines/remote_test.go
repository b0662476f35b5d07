package engines

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"lector/tts"
)

// newSpeechService starts a scripted WebSocket speech service and
// returns its ws:// URL.
func newSpeechService(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newRemote(t *testing.T, url string) *Remote {
	t.Helper()
	r, err := NewRemote(Config{RemoteURL: url}, log.New(io.Discard))
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func nextRemoteEvent(t *testing.T, events <-chan tts.Event) tts.Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event stream closed early")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return tts.Event{}
}

func TestRemoteSpeakStreamsEvents(t *testing.T) {
	url := newSpeechService(t, func(conn *websocket.Conn) {
		var msg wireMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "speak" || msg.Text != "Hola mundo." {
			t.Errorf("unexpected command %+v", msg)
		}
		conn.WriteJSON(wireMsg{Type: "started", ID: msg.ID})
		conn.WriteJSON(wireMsg{Type: "boundary", ID: msg.ID, Offset: 5})
		conn.WriteJSON(wireMsg{Type: "ended", ID: msg.ID})
		conn.ReadMessage() // hold the connection open
	})

	r := newRemote(t, url)
	events, err := r.Speak(context.Background(), tts.Utterance{Text: "Hola mundo.", Rate: 1.0})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}

	if ev := nextRemoteEvent(t, events); ev.Type != tts.EventStarted {
		t.Fatalf("first event %v, want started", ev.Type)
	}
	ev := nextRemoteEvent(t, events)
	if ev.Type != tts.EventBoundary || ev.Offset != 5 {
		t.Fatalf("second event %+v, want boundary at offset 5", ev)
	}
	if ev := nextRemoteEvent(t, events); ev.Type != tts.EventEnded {
		t.Fatalf("third event %v, want ended", ev.Type)
	}
	if _, ok := <-events; ok {
		t.Fatal("stream should close after the terminal event")
	}
	if r.Speaking() {
		t.Error("Speaking() = true after ended")
	}
}

func TestRemoteVoicesListing(t *testing.T) {
	url := newSpeechService(t, func(conn *websocket.Conn) {
		var msg wireMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "voices" {
			t.Errorf("unexpected command %+v", msg)
		}
		conn.WriteJSON(wireMsg{Type: "voices", Voices: []wireVoice{
			{URI: "svc:lucia", Name: "Lucia", Lang: "es-ES"},
			{URI: "svc:diego", Name: "Diego", Lang: "es-MX"},
		}})
		conn.ReadMessage()
	})

	r := newRemote(t, url)
	voices, err := r.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	first := voices[0]
	if first.URI != "svc:lucia" || first.Name != "Lucia" || first.Lang != "es-ES" || first.Local {
		t.Errorf("first voice = %+v", first)
	}
}

func TestRemoteVoicesChangedPush(t *testing.T) {
	url := newSpeechService(t, func(conn *websocket.Conn) {
		var msg wireMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		conn.WriteJSON(wireMsg{Type: "voices", Voices: []wireVoice{
			{URI: "svc:lucia", Name: "Lucia", Lang: "es-ES"},
		}})
		conn.WriteJSON(wireMsg{Type: "voices_changed"})
		conn.ReadMessage()
	})

	r := newRemote(t, url)
	var mu sync.Mutex
	fired := false
	r.OnVoicesChanged(func() {
		mu.Lock()
		fired = true
		mu.Unlock()
	})

	if _, err := r.Voices(context.Background()); err != nil {
		t.Fatalf("Voices: %v", err)
	}
	waitFor(t, "voices change notification", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired
	})
}

func TestRemotePauseResumeCommands(t *testing.T) {
	var mu sync.Mutex
	var commands []string
	url := newSpeechService(t, func(conn *websocket.Conn) {
		for {
			var msg wireMsg
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			mu.Lock()
			commands = append(commands, msg.Type)
			mu.Unlock()
			if msg.Type == "speak" {
				conn.WriteJSON(wireMsg{Type: "started", ID: msg.ID})
			}
		}
	})

	r := newRemote(t, url)
	events, err := r.Speak(context.Background(), tts.Utterance{Text: "Una frase."})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	nextRemoteEvent(t, events)

	if err := r.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !r.Paused() {
		t.Error("Paused() = false after Pause")
	}
	if err := r.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if r.Paused() {
		t.Error("Paused() = true after Resume")
	}

	waitFor(t, "pause and resume commands", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(commands) >= 3
	})
	mu.Lock()
	defer mu.Unlock()
	for i, want := range []string{"speak", "pause", "resume"} {
		if commands[i] != want {
			t.Errorf("command %d = %q, want %q", i, commands[i], want)
		}
	}
}

func TestRemoteConnectionLossFailsUtterance(t *testing.T) {
	url := newSpeechService(t, func(conn *websocket.Conn) {
		var msg wireMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		conn.WriteJSON(wireMsg{Type: "started", ID: msg.ID})
		conn.Close()
	})

	r := newRemote(t, url)
	events, err := r.Speak(context.Background(), tts.Utterance{Text: "Una frase."})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	nextRemoteEvent(t, events)

	ev := nextRemoteEvent(t, events)
	if ev.Type != tts.EventFailed {
		t.Fatalf("event after drop = %v, want failed", ev.Type)
	}
	if tts.IsBenign(ev.Err) {
		t.Errorf("connection loss must not be benign, got %v", ev.Err)
	}
	if r.Speaking() {
		t.Error("Speaking() = true after connection loss")
	}
}

func TestRemoteCancelProducesBenignTerminal(t *testing.T) {
	var mu sync.Mutex
	var commands []string
	url := newSpeechService(t, func(conn *websocket.Conn) {
		for {
			var msg wireMsg
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			mu.Lock()
			commands = append(commands, msg.Type)
			mu.Unlock()
			if msg.Type == "speak" {
				conn.WriteJSON(wireMsg{Type: "started", ID: msg.ID})
			}
		}
	})

	r := newRemote(t, url)
	events, err := r.Speak(context.Background(), tts.Utterance{Text: "Una frase."})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	nextRemoteEvent(t, events)

	if err := r.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	ev := nextRemoteEvent(t, events)
	if ev.Type != tts.EventFailed || !errors.Is(ev.Err, tts.ErrUtteranceCanceled) {
		t.Fatalf("event after cancel = %+v, want canceled failure", ev)
	}
	if r.Speaking() {
		t.Error("Speaking() = true after cancel")
	}
	waitFor(t, "cancel command at the service", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(commands) >= 2 && commands[1] == "cancel"
	})
}
