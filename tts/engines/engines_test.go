package engines

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"lector/tts"
	"lector/tts/engines/mock"
)

func TestNewUnknownEngine(t *testing.T) {
	_, err := New(context.Background(), Config{Engine: "bogus"}, log.New(io.Discard))
	if !errors.Is(err, tts.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}
	if !strings.Contains(err.Error(), "bogus") {
		t.Errorf("error %q does not name the engine", err)
	}
}

func TestNewMockEngine(t *testing.T) {
	backend, err := New(context.Background(), Config{Engine: "mock", Locale: "es-AR"}, log.New(io.Discard))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer backend.Close()

	if _, ok := backend.(*mock.Backend); !ok {
		t.Fatalf("backend is %T, want *mock.Backend", backend)
	}
	voices, err := backend.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	for _, v := range voices {
		if v.Lang != "es-AR" {
			t.Errorf("voice %q has lang %q, want es-AR", v.URI, v.Lang)
		}
	}
}

func TestNewRemoteRequiresURL(t *testing.T) {
	_, err := New(context.Background(), Config{Engine: "remote"}, log.New(io.Discard))
	if !errors.Is(err, tts.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}
}

func TestNewRemoteBadScheme(t *testing.T) {
	_, err := New(context.Background(), Config{Engine: "remote", RemoteURL: "http://speech.example"}, log.New(io.Discard))
	if !errors.Is(err, tts.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}
}
