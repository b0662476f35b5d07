package tts

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid defaults, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty locale", func(c *Config) { c.Locale = "" }, true},
		{"rate too low", func(c *Config) { c.Rate = 0.1 }, true},
		{"rate too high", func(c *Config) { c.Rate = 5 }, true},
		{"zero seek step", func(c *Config) { c.SeekStep = 0 }, true},
		{"negative seek step", func(c *Config) { c.SeekStep = -3 }, true},
		{"tick interval too fine", func(c *Config) { c.TickInterval = time.Millisecond }, true},
		{"keep-alive too eager", func(c *Config) { c.KeepAliveInterval = 100 * time.Millisecond }, true},
		{"zero save debounce", func(c *Config) { c.SaveDebounce = 0 }, true},
		{"custom valid settings", func(c *Config) {
			c.Engine = "google"
			c.Locale = "pt-BR"
			c.Rate = 1.75
			c.SeekStep = 3
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected a validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestConfigValidateWrapsRateError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rate = 7
	if err := cfg.Validate(); !errors.Is(err, ErrRateOutOfRange) {
		t.Errorf("Expected ErrRateOutOfRange in the chain, got %v", err)
	}
}

func TestFromViperUsesDefaultsWhenUnset(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfg, err := FromViper()
	if err != nil {
		t.Fatalf("FromViper returned error: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestFromViperOverrides(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("engine", "google")
	viper.Set("locale", "es-MX")
	viper.Set("voice", "voice:amalia")
	viper.Set("rate", 1.5)
	viper.Set("seek_step", 5)
	viper.Set("tick_interval", "500ms")
	viper.Set("keep_alive_interval", "30s")
	viper.Set("save_debounce", "2s")

	cfg, err := FromViper()
	if err != nil {
		t.Fatalf("FromViper returned error: %v", err)
	}

	if cfg.Engine != "google" || cfg.Locale != "es-MX" || cfg.Voice != "voice:amalia" {
		t.Errorf("Unexpected strings: %+v", cfg)
	}
	if cfg.Rate != 1.5 || cfg.SeekStep != 5 {
		t.Errorf("Unexpected numbers: %+v", cfg)
	}
	if cfg.TickInterval != 500*time.Millisecond {
		t.Errorf("Expected 500ms tick, got %v", cfg.TickInterval)
	}
	if cfg.KeepAliveInterval != 30*time.Second {
		t.Errorf("Expected 30s keep-alive, got %v", cfg.KeepAliveInterval)
	}
	if cfg.SaveDebounce != 2*time.Second {
		t.Errorf("Expected 2s debounce, got %v", cfg.SaveDebounce)
	}
}

func TestFromViperValidates(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("rate", 9.0)
	if _, err := FromViper(); !errors.Is(err, ErrRateOutOfRange) {
		t.Errorf("Expected ErrRateOutOfRange, got %v", err)
	}
}
