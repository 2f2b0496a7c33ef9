package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; server and
// metrics settings require a restart.
type ConfigDiff struct {
	// LogLevelChanged is true when logging.level changed.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GameChanged is true when any game.* field changed.
	GameChanged bool
	NewGame     GameConfig
}

// Any reports whether the diff contains at least one reloadable change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.GameChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Logging.Level != new.Logging.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Logging.Level
	}

	if old.Game != new.Game {
		d.GameChanged = true
		d.NewGame = new.Game
	}

	return d
}
