package tts

import (
	"fmt"
	"time"
)

// DefaultSeekStep is how many sentences a seek jumps by.
const DefaultSeekStep = 10

// Config holds the playback engine settings.
type Config struct {
	// Engine selects the speech backend by name.
	Engine string `yaml:"engine" env:"LECTOR_ENGINE" envDefault:"espeak"`

	// Locale is the target reading locale. It drives voice filtering
	// and serves as the utterance language when no voice is resolved.
	Locale string `yaml:"locale" env:"LECTOR_LOCALE" envDefault:"es-AR"`

	// Voice is a preferred voice URI. Empty lets the registry resolve
	// a default.
	Voice string `yaml:"voice" env:"LECTOR_VOICE"`

	// Rate is the initial speaking rate multiplier.
	Rate float64 `yaml:"rate" env:"LECTOR_RATE" envDefault:"1.0"`

	// SeekStep is how many sentences a seek jumps by.
	SeekStep int `yaml:"seek_step" env:"LECTOR_SEEK_STEP" envDefault:"10"`

	// TickInterval is the virtual-clock granularity.
	TickInterval time.Duration `yaml:"tick_interval" env:"LECTOR_TICK_INTERVAL" envDefault:"1s"`

	// KeepAliveInterval is how often a seemingly stalled backend gets
	// nudged with a resume.
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval" env:"LECTOR_KEEP_ALIVE_INTERVAL" envDefault:"12s"`

	// SaveDebounce is the quiet period before progress is written out.
	SaveDebounce time.Duration `yaml:"save_debounce" env:"LECTOR_SAVE_DEBOUNCE" envDefault:"1s"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine:            "espeak",
		Locale:            "es-AR",
		Rate:              DefaultRate,
		SeekStep:          DefaultSeekStep,
		TickInterval:      time.Second,
		KeepAliveInterval: 12 * time.Second,
		SaveDebounce:      DefaultSaveDebounce,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Locale == "" {
		return fmt.Errorf("locale cannot be empty")
	}
	if !ValidRate(c.Rate) {
		return fmt.Errorf("rate %.2f out of range: %w", c.Rate, ErrRateOutOfRange)
	}
	if c.SeekStep < 1 {
		return fmt.Errorf("seek step must be at least 1, got %d", c.SeekStep)
	}
	if c.TickInterval < 100*time.Millisecond {
		return fmt.Errorf("tick interval must be at least 100ms, got %v", c.TickInterval)
	}
	if c.KeepAliveInterval < time.Second {
		return fmt.Errorf("keep-alive interval must be at least 1s, got %v", c.KeepAliveInterval)
	}
	if c.SaveDebounce <= 0 {
		return fmt.Errorf("save debounce must be positive, got %v", c.SaveDebounce)
	}
	return nil
}
