// Package config provides the configuration schema, loader, and file watcher
// for the game master client.
package config

import (
	"log/slog"
	"time"

	"github.com/PawanKonwar/ai-game-master/internal/choice"
	"github.com/PawanKonwar/ai-game-master/internal/story"
)

// LogLevel controls log verbosity for the client.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l onto the corresponding [slog.Level]. Unrecognised values map
// to [slog.LevelInfo].
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for the client.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Game    GameConfig    `yaml:"game"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig describes the game master backend to talk to.
type ServerConfig struct {
	// URL is the backend base URL (e.g., "http://localhost:8000").
	// Environment references like ${AIGM_SERVER_URL} are expanded at load.
	URL string `yaml:"url"`

	// RequestTimeout bounds one backend round-trip, in time.ParseDuration
	// form (e.g., "120s"). Scene generation sits on an LLM call, so keep
	// this generous.
	RequestTimeout string `yaml:"request_timeout"`

	// HealthInterval sets how often the backend is probed for
	// reachability, in time.ParseDuration form.
	HealthInterval string `yaml:"health_interval"`
}

// Timeout returns the parsed RequestTimeout. Values [Validate] rejected
// fall back to the default.
func (s ServerConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(s.RequestTimeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// ProbeInterval returns the parsed HealthInterval. Values [Validate]
// rejected fall back to the default.
func (s ServerConfig) ProbeInterval() time.Duration {
	d, err := time.ParseDuration(s.HealthInterval)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// GameConfig holds gameplay behaviour settings.
type GameConfig struct {
	// IncludeDiceRolls asks the backend to resolve dice rolls inside the
	// narration. Toggleable at runtime with the /dice command.
	IncludeDiceRolls bool `yaml:"include_dice_rolls"`

	// ChoiceStrategy selects how player choices are extracted from scenes.
	ChoiceStrategy choice.Strategy `yaml:"choice_strategy"`

	// ContextStoreRunes caps the retained narrative context, in runes.
	ContextStoreRunes int `yaml:"context_store_runes"`

	// ContextReadRunes caps the context slice embedded in prompts, in runes.
	ContextReadRunes int `yaml:"context_read_runes"`
}

// LoggingConfig controls the client's log output. The TUI owns the
// terminal, so logs always go to a file.
type LoggingConfig struct {
	// Level controls verbosity.
	Level LogLevel `yaml:"level"`

	// File is the log file path. Environment references are expanded.
	File string `yaml:"file"`
}

// MetricsConfig controls the optional Prometheus scrape endpoint.
type MetricsConfig struct {
	// Enabled starts an HTTP listener exposing /metrics when true.
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the TCP address for the metrics listener.
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns a Config populated with working defaults: a local
// backend, dice resolution on, and tagged choice extraction. [LoadFromReader]
// decodes user YAML over this struct, so absent keys keep their defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:            "http://localhost:8000",
			RequestTimeout: "120s",
			HealthInterval: "10s",
		},
		Game: GameConfig{
			IncludeDiceRolls:  true,
			ChoiceStrategy:    choice.StrategyTagged,
			ContextStoreRunes: story.DefaultStoreMax,
			ContextReadRunes:  story.DefaultReadMax,
		},
		Logging: LoggingConfig{
			Level: LogInfo,
			File:  "aigm.log",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9090",
		},
	}
}
