package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	// DictionaryChanged is true when dictionary.path changed. A [Watcher]
	// also sets it when the dictionary file's content changed.
	DictionaryChanged bool

	// SessionChanged is true when any correction or narration-gate setting
	// changed. Running sessions keep their settings; new sessions pick up
	// the change.
	SessionChanged bool

	// SpeakerChanged is true when the speech sink settings changed.
	SpeakerChanged bool

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists settings that changed but only take effect
	// after a restart.
	RestartRequired []string
}

// Changed reports whether any hot-reloadable setting differs.
func (d ConfigDiff) Changed() bool {
	return d.DictionaryChanged || d.SessionChanged || d.SpeakerChanged || d.LogLevelChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.DictionaryChanged = old.Dictionary.Path != new.Dictionary.Path
	d.SessionChanged = old.Correction != new.Correction ||
		old.Narration.Cooldown != new.Narration.Cooldown ||
		old.Narration.DuplicateThreshold != new.Narration.DuplicateThreshold
	d.SpeakerChanged = old.Narration.WordsPerMinute != new.Narration.WordsPerMinute ||
		old.Narration.Language != new.Narration.Language

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Server.LogFormat != new.Server.LogFormat || old.Server.LogFile != new.Server.LogFile {
		d.RestartRequired = append(d.RestartRequired, "server.log_format/log_file")
	}
	if old.Input != new.Input {
		d.RestartRequired = append(d.RestartRequired, "input")
	}

	return d
}
