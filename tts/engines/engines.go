// Package engines provides the speech backends behind the playback
// engine: the espeak-ng command line synthesizer, Google Cloud
// Text-to-Speech, a remote WebSocket speech service, and a scripted
// mock for dry runs. All of them implement tts.Backend.
package engines

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"lector/tts"
	"lector/tts/engines/mock"
)

// Config selects and tunes a speech backend.
type Config struct {
	// Engine names the backend: "espeak", "google", "remote" or "mock".
	Engine string
	// Locale is the preferred BCP 47 tag used for voice discovery and
	// as the synthesis language when no voice is selected.
	Locale string
	// CacheDir holds synthesized audio for backends that cache. Empty
	// disables caching.
	CacheDir string
	// RemoteURL is the WebSocket endpoint of the remote speech service.
	RemoteURL string
	// Binary overrides the espeak-ng binary, which is otherwise found
	// on PATH.
	Binary string
}

// New builds the backend named by cfg.Engine. An empty name selects
// espeak.
func New(ctx context.Context, cfg Config, logger *log.Logger) (tts.Backend, error) {
	switch cfg.Engine {
	case "", "espeak":
		return NewEspeak(cfg, logger)
	case "google":
		return NewGoogle(ctx, cfg, logger)
	case "remote":
		return NewRemote(cfg, logger)
	case "mock":
		return mock.New(mock.DefaultVoices(cfg.Locale)...), nil
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", tts.ErrBackendUnavailable, cfg.Engine)
	}
}
