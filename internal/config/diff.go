package config

// ConfigDiff describes what changed between two configs. Stream formats and
// device names cannot be applied to running hardware streams, so those
// changes only raise RestartRequired.
type ConfigDiff struct {
	// LogLevelChanged is true when the log level differs; log levels are
	// safe to apply live.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired is true when devices, audio format, agent connection,
	// or monitor settings changed. The route must be stopped and started to
	// pick these up.
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Agent != new.Agent ||
		old.Devices != new.Devices ||
		old.Audio != new.Audio ||
		old.Monitor != new.Monitor {
		d.RestartRequired = true
	}

	return d
}
