package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath is the environment variable consulted by [ResolvePath] when
// no explicit path is given.
const EnvConfigPath = "AIGM_CONFIG"

// defaultPath is the config file looked for in the working directory.
const defaultPath = "config.yml"

// ResolvePath picks the config file location: an explicit path wins, then
// $AIGM_CONFIG, then "config.yml" in the working directory.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return defaultPath
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. A missing file is not an error: the defaults from [Default]
// apply unchanged, so the client runs without any config file at all.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Environment references like ${AIGM_SERVER_URL} in the document are
// expanded before decoding. Decoding starts from [Default], so keys absent
// from the document keep their default values. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.URL == "" {
		errs = append(errs, errors.New("server.url is required"))
	} else if u, err := url.Parse(cfg.Server.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("server.url %q is not a valid http(s) URL", cfg.Server.URL))
	}
	if err := validateDuration("server.request_timeout", cfg.Server.RequestTimeout); err != nil {
		errs = append(errs, err)
	}
	if err := validateDuration("server.health_interval", cfg.Server.HealthInterval); err != nil {
		errs = append(errs, err)
	}

	// Game
	if cfg.Game.ChoiceStrategy != "" && !cfg.Game.ChoiceStrategy.Valid() {
		errs = append(errs, fmt.Errorf("game.choice_strategy %q is invalid; valid values: tagged, heuristic", cfg.Game.ChoiceStrategy))
	}
	if cfg.Game.ContextStoreRunes < 0 {
		errs = append(errs, fmt.Errorf("game.context_store_runes %d must not be negative", cfg.Game.ContextStoreRunes))
	}
	if cfg.Game.ContextReadRunes < 0 {
		errs = append(errs, fmt.Errorf("game.context_read_runes %d must not be negative", cfg.Game.ContextReadRunes))
	}
	if cfg.Game.ContextReadRunes > cfg.Game.ContextStoreRunes && cfg.Game.ContextStoreRunes > 0 {
		slog.Warn("game.context_read_runes exceeds context_store_runes; prompts will carry the whole stored context",
			"read", cfg.Game.ContextReadRunes,
			"store", cfg.Game.ContextStoreRunes,
		)
	}

	// Logging. An empty file disables log output entirely, which is valid:
	// the TUI owns the terminal, so logs never go to stderr.
	if cfg.Logging.Level != "" && !cfg.Logging.Level.IsValid() {
		errs = append(errs, fmt.Errorf("logging.level %q is invalid; valid values: debug, info, warn, error", cfg.Logging.Level))
	}

	// Metrics
	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr == "" {
		errs = append(errs, errors.New("metrics.listen_addr is required when metrics.enabled is true"))
	}

	return errors.Join(errs...)
}

// validateDuration checks a time.ParseDuration-formatted field. Empty is
// allowed: accessors substitute the default.
func validateDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s %q is not a duration (try \"120s\" or \"2m\")", field, value)
	}
	if d <= 0 {
		return fmt.Errorf("%s %q must be positive", field, value)
	}
	return nil
}
