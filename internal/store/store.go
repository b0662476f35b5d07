// Package store persists playback progress. A Store keeps one Progress
// record per book identity key; the badger backend is the default, with
// sqlite as a single-file alternative and memory for tests and
// throwaway sessions. Every backend satisfies the engine's narrower
// tts.ProgressStore.
package store

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"lector/tts"
)

// ErrNotFound is returned when no progress record exists for a key.
var ErrNotFound = errors.New("store: progress not found")

// Store is a progress store with enumeration and lifecycle management
// on top of the engine's load/save pair.
type Store interface {
	// Load returns the record for key, or ErrNotFound.
	Load(key string) (tts.Progress, error)

	// Save writes the record for key, overwriting any existing one.
	Save(key string, p tts.Progress) error

	// Delete removes the record for key. Missing keys are not an error.
	Delete(key string) error

	// Keys lists every book key holding a record.
	Keys() ([]string, error)

	// Close releases the store's resources.
	Close() error
}

// Config selects and locates a store backend.
type Config struct {
	// Backend is "badger", "sqlite" or "memory". Empty selects badger.
	Backend string
	// Path is the data directory (badger) or database file (sqlite).
	Path string
}

// Open creates the configured store.
func Open(cfg Config, logger *log.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "badger":
		return OpenBadger(cfg.Path, logger)
	case "sqlite":
		return OpenSQLite(cfg.Path)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
