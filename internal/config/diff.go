package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only the feedback script and the log level are applied without a
// restart; every other changed section is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	FeedbackChanged bool

	// RestartRequired names top-level sections whose change only takes
	// effect after a restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.FeedbackChanged = !reflect.DeepEqual(old.Feedback, new.Feedback)

	sections := []struct {
		name     string
		old, new any
	}{
		{"server.listen_addr", old.Server.ListenAddr, new.Server.ListenAddr},
		{"devices", old.Devices, new.Devices},
		{"recording", old.Recording, new.Recording},
		{"effects", old.Effects, new.Effects},
		{"playback", old.Playback, new.Playback},
		{"startup", old.Startup, new.Startup},
		{"tasks", old.Tasks, new.Tasks},
		{"transcription", old.Transcription, new.Transcription},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}
