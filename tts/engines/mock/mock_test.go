package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"lector/tts"
)

// collect drains the stream until it closes and returns every event.
func collect(t *testing.T, events <-chan tts.Event) []tts.Event {
	t.Helper()
	var out []tts.Event
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("stream did not close, got %d events", len(out))
		}
	}
}

func nextEvent(t *testing.T, events <-chan tts.Event) tts.Event {
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

func TestSpeakLifecycle(t *testing.T) {
	b := New(DefaultVoices("es-AR")...)
	defer b.Close()
	b.SetDelay(2 * time.Millisecond)

	events, err := b.Speak(context.Background(), tts.Utterance{Text: "uno dos tres."})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	got := collect(t, events)

	if got[0].Type != tts.EventStarted {
		t.Fatalf("first event %v, want started", got[0].Type)
	}
	if last := got[len(got)-1]; last.Type != tts.EventEnded {
		t.Fatalf("last event %+v, want ended", last)
	}
	var offsets []int
	for _, ev := range got {
		if ev.Type == tts.EventBoundary {
			offsets = append(offsets, ev.Offset)
		}
	}
	want := []int{0, 4, 8}
	if len(offsets) != len(want) {
		t.Fatalf("boundaries %v, want %v", offsets, want)
	}
	for i := range want {
		if offsets[i] != want[i] {
			t.Fatalf("boundaries %v, want %v", offsets, want)
		}
	}
	if b.Speaking() {
		t.Error("Speaking() = true after ended")
	}
}

func TestCancelEmitsCanceledTerminal(t *testing.T) {
	b := New(DefaultVoices("")...)
	defer b.Close()
	b.SetDelay(50 * time.Millisecond)

	events, err := b.Speak(context.Background(), tts.Utterance{Text: "uno dos tres."})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if ev := nextEvent(t, events); ev.Type != tts.EventStarted {
		t.Fatalf("first event %v, want started", ev.Type)
	}
	if err := b.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got := collect(t, events)
	terminal := got[len(got)-1]
	if terminal.Type != tts.EventFailed || !errors.Is(terminal.Err, tts.ErrUtteranceCanceled) {
		t.Fatalf("terminal = %+v, want canceled failure", terminal)
	}
	if b.Speaking() {
		t.Error("Speaking() = true after cancel")
	}
}

func TestContextCancelHaltsUtterance(t *testing.T) {
	b := New(DefaultVoices("")...)
	defer b.Close()
	b.SetDelay(100 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := b.Speak(ctx, tts.Utterance{Text: "uno dos tres."})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	nextEvent(t, events)
	cancel()

	got := collect(t, events)
	terminal := got[len(got)-1]
	if terminal.Type != tts.EventFailed || !errors.Is(terminal.Err, tts.ErrUtteranceCanceled) {
		t.Fatalf("terminal = %+v, want canceled failure", terminal)
	}
}

func TestPauseFreezesBoundaries(t *testing.T) {
	b := New(DefaultVoices("")...)
	defer b.Close()
	b.SetDelay(30 * time.Millisecond)

	events, err := b.Speak(context.Background(), tts.Utterance{Text: "uno dos tres."})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	nextEvent(t, events) // started
	if ev := nextEvent(t, events); ev.Type != tts.EventBoundary || ev.Offset != 0 {
		t.Fatalf("event %+v, want boundary at offset 0", ev)
	}

	if err := b.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !b.Paused() {
		t.Error("Paused() = false after Pause")
	}
	select {
	case ev := <-events:
		t.Fatalf("event %+v while paused", ev)
	case <-time.After(100 * time.Millisecond):
	}

	if err := b.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if b.Paused() {
		t.Error("Paused() = true after Resume")
	}
	if ev := nextEvent(t, events); ev.Type != tts.EventBoundary || ev.Offset != 4 {
		t.Fatalf("event %+v after resume, want boundary at offset 4", ev)
	}
}

func TestCallCounts(t *testing.T) {
	b := New(DefaultVoices("")...)
	defer b.Close()
	b.SetDelay(time.Millisecond)

	ctx := context.Background()
	if _, err := b.Voices(ctx); err != nil {
		t.Fatalf("Voices: %v", err)
	}
	events, err := b.Speak(ctx, tts.Utterance{Text: "uno."})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	b.Pause()
	b.Resume()
	b.Cancel()
	collect(t, events)

	for _, method := range []string{"Voices", "Speak", "Pause", "Resume", "Cancel"} {
		if got := b.GetCallCount(method); got != 1 {
			t.Errorf("GetCallCount(%q) = %d, want 1", method, got)
		}
	}
	b.Reset()
	if got := b.GetCallCount("Speak"); got != 0 {
		t.Errorf("GetCallCount after Reset = %d, want 0", got)
	}
}

func TestSetFailure(t *testing.T) {
	b := New(DefaultVoices("")...)
	defer b.Close()

	boom := errors.New("synthesizer exploded")
	b.SetFailure(boom)
	if _, err := b.Speak(context.Background(), tts.Utterance{Text: "uno."}); !errors.Is(err, boom) {
		t.Fatalf("Speak err = %v, want injected failure", err)
	}

	b.ClearFailure()
	b.SetDelay(time.Millisecond)
	events, err := b.Speak(context.Background(), tts.Utterance{Text: "uno."})
	if err != nil {
		t.Fatalf("Speak after ClearFailure: %v", err)
	}
	got := collect(t, events)
	if got[len(got)-1].Type != tts.EventEnded {
		t.Fatalf("terminal = %+v, want ended", got[len(got)-1])
	}
}

func TestVoicesChangedSignal(t *testing.T) {
	b := New(DefaultVoices("")...)
	defer b.Close()

	fired := 0
	b.OnVoicesChanged(func() { fired++ })

	b.SetVoices(tts.Voice{URI: "mock:new", Name: "Mock New", Lang: "en-US", Local: true})
	if fired != 1 {
		t.Fatalf("fired = %d after SetVoices, want 1", fired)
	}
	voices, _ := b.Voices(context.Background())
	if len(voices) != 1 || voices[0].URI != "mock:new" {
		t.Fatalf("voices = %+v", voices)
	}

	b.TriggerVoicesChanged()
	if fired != 2 {
		t.Fatalf("fired = %d after TriggerVoicesChanged, want 2", fired)
	}
}

func TestSpeakSupersedesPrevious(t *testing.T) {
	b := New(DefaultVoices("")...)
	defer b.Close()
	b.SetDelay(100 * time.Millisecond)

	first, err := b.Speak(context.Background(), tts.Utterance{Text: "uno dos tres."})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if ev := nextEvent(t, first); ev.Type != tts.EventStarted {
		t.Fatalf("event %v, want started", ev.Type)
	}

	second, err := b.Speak(context.Background(), tts.Utterance{Text: "cuatro."})
	if err != nil {
		t.Fatalf("second Speak: %v", err)
	}

	got := collect(t, first)
	terminal := got[len(got)-1]
	if terminal.Type != tts.EventFailed || !errors.Is(terminal.Err, tts.ErrUtteranceCanceled) {
		t.Fatalf("first terminal = %+v, want canceled failure", terminal)
	}
	b.Cancel()
	collect(t, second)
}

func TestDefaultVoices(t *testing.T) {
	voices := DefaultVoices("es-AR")
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	for _, v := range voices {
		if v.Lang != "es-AR" || !v.Local {
			t.Errorf("voice %+v should carry the locale and be local", v)
		}
	}
	if DefaultVoices("")[0].Lang != "en-US" {
		t.Error("empty locale should default to en-US")
	}
}
