package tts

import (
	"fmt"

	"github.com/spf13/viper"
)

// FromViper assembles a Config from the flag, environment and config-file
// values bound in viper, falling back to defaults for anything unset.
func FromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("engine") {
		cfg.Engine = viper.GetString("engine")
	}
	if viper.IsSet("locale") {
		cfg.Locale = viper.GetString("locale")
	}
	if viper.IsSet("voice") {
		cfg.Voice = viper.GetString("voice")
	}
	if viper.IsSet("rate") {
		cfg.Rate = viper.GetFloat64("rate")
	}
	if viper.IsSet("seek_step") {
		cfg.SeekStep = viper.GetInt("seek_step")
	}
	if viper.IsSet("tick_interval") {
		cfg.TickInterval = viper.GetDuration("tick_interval")
	}
	if viper.IsSet("keep_alive_interval") {
		cfg.KeepAliveInterval = viper.GetDuration("keep_alive_interval")
	}
	if viper.IsSet("save_debounce") {
		cfg.SaveDebounce = viper.GetDuration("save_debounce")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid playback configuration: %w", err)
	}
	return cfg, nil
}

// SetViperDefaults seeds viper with the playback defaults so config files
// and environment overrides merge on top of them.
func SetViperDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("engine", defaults.Engine)
	viper.SetDefault("locale", defaults.Locale)
	viper.SetDefault("voice", defaults.Voice)
	viper.SetDefault("rate", defaults.Rate)
	viper.SetDefault("seek_step", defaults.SeekStep)
	viper.SetDefault("tick_interval", defaults.TickInterval.String())
	viper.SetDefault("keep_alive_interval", defaults.KeepAliveInterval.String())
	viper.SetDefault("save_debounce", defaults.SaveDebounce.String())
}
