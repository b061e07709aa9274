// Package config provides the configuration schema, loader, device registry
// and file watcher of the appliance.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity.
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

// Level maps l to the matching slog level; unknown values map to info.
func (l LogLevel) Level() slog.Level {
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

// Duration is a [time.Duration] written in YAML as a Go duration string
// such as "1500ms" or "10s".
type Duration time.Duration

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"500ms\": %w", n.Line, err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements [yaml.Marshaler].
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RGB is a colour written as [r, g, b] with components in 0..255.
type RGB [3]int

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Devices       DevicesConfig       `yaml:"devices"`
	Recording     RecordingConfig     `yaml:"recording"`
	Effects       EffectsConfig       `yaml:"effects"`
	Playback      PlaybackConfig      `yaml:"playback"`
	Feedback      FeedbackConfig      `yaml:"feedback"`
	Startup       StartupConfig       `yaml:"startup"`
	Tasks         TasksConfig         `yaml:"tasks"`
	Transcription TranscriptionConfig `yaml:"transcription"`
}

// ServerConfig holds the health/metrics listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /healthz, /readyz and /metrics
	// (e.g., ":9090"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DevicesConfig selects a driver for each hardware collaborator. Each entry
// is resolved through the [Registry].
type DevicesConfig struct {
	Microphone DeviceEntry `yaml:"microphone"`
	Speaker    DeviceEntry `yaml:"speaker"`
	LEDStrip   DeviceEntry `yaml:"led_strip"`
	Detector   DeviceEntry `yaml:"detector"`
	Volume     DeviceEntry `yaml:"volume"`
}

// DeviceEntry is the configuration block shared by all device kinds.
type DeviceEntry struct {
	// Driver selects the registered implementation (e.g., "portaudio").
	Driver string `yaml:"driver"`

	// Options holds driver-specific values. Values may be strings, numbers,
	// booleans, lists or nested maps.
	Options map[string]any `yaml:"options"`
}

// String returns the string option key, or def when unset or mistyped.
func (e DeviceEntry) String(key, def string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return def
}

// Int returns the integer option key, or def when unset or mistyped.
func (e DeviceEntry) Int(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// Strings returns the string-list option key, or nil.
func (e DeviceEntry) Strings(key string) []string {
	raw, ok := e.Options[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// RecordingConfig tunes the recording session.
type RecordingConfig struct {
	// SilenceThreshold is the largest sample magnitude, in raw PCM units,
	// counted as silence. Default 1000.
	SilenceThreshold int `yaml:"silence_threshold"`

	// SilenceDuration of continuous silence ends a recording. Default 1500ms.
	SilenceDuration Duration `yaml:"silence_duration"`

	// MinDuration is the shortest recording silence may end. Default 2s.
	MinDuration Duration `yaml:"min_duration"`

	// MaxDuration bounds a recording. Default 10s.
	MaxDuration Duration `yaml:"max_duration"`

	// ChunkSamples is the per-read capture size. Zero derives 20ms from the
	// detector's sample rate.
	ChunkSamples int `yaml:"chunk_samples"`

	// IntroDuration is the wake fade-in length. Default 500ms.
	IntroDuration Duration `yaml:"intro_duration"`

	// ListenCue is played on wake.
	ListenCue string `yaml:"listen_cue"`

	// ProgressColor colours the wake and progress effects. Default [0,0,100].
	ProgressColor *RGB `yaml:"progress_color"`
}

// EffectsConfig tunes the LED effect scheduler.
type EffectsConfig struct {
	// LEDCount is the number of LEDs on the strip. Default 12.
	LEDCount int `yaml:"led_count"`

	LockTimeout   Duration `yaml:"lock_timeout"`
	StopGrace     Duration `yaml:"stop_grace"`
	FrameInterval Duration `yaml:"frame_interval"`
	MinStep       Duration `yaml:"min_step"`
}

// PlaybackConfig tunes the playback scheduler.
type PlaybackConfig struct {
	// CueDir is the directory cues are read from. Default "cues".
	CueDir string `yaml:"cue_dir"`

	// SampleRate is the speaker's rate; WAV cues are converted to it.
	// Default 16000.
	SampleRate int `yaml:"sample_rate"`

	ChunkBytes   int      `yaml:"chunk_bytes"`
	WriteTimeout Duration `yaml:"write_timeout"`
	StopPoll     Duration `yaml:"stop_poll"`
	LockTimeout  Duration `yaml:"lock_timeout"`
}

// FeedbackConfig is the post-recording feedback script. An empty Steps list
// selects the built-in script.
type FeedbackConfig struct {
	Steps []StepConfig `yaml:"steps"`
}

// StepConfig is one feedback step.
type StepConfig struct {
	Effect *EffectConfig `yaml:"effect"`
	Cue    string        `yaml:"cue"`
	Settle Duration      `yaml:"settle"`
}

// EffectConfig describes an LED effect invocation.
type EffectConfig struct {
	// Kind is one of rainbow, fade_in, fade_out or breathing.
	Kind     string   `yaml:"kind"`
	Color    RGB      `yaml:"color"`
	Start    int      `yaml:"start"`
	Duration Duration `yaml:"duration"`
	Cycles   int      `yaml:"cycles"`
	Reverse  bool     `yaml:"reverse"`
}

// StartupConfig is the boot feedback.
type StartupConfig struct {
	// Cue is played once at boot. Empty plays nothing.
	Cue string `yaml:"cue"`

	// Effect is started once at boot.
	Effect *EffectConfig `yaml:"effect"`
}

// TasksConfig bounds background work.
type TasksConfig struct {
	// Limit is the maximum number of live background tasks. Default 8.
	Limit int `yaml:"limit"`
}

// TranscriptionConfig enables transcription of captured utterances.
type TranscriptionConfig struct {
	// ModelPath is a whisper.cpp model file. Empty disables transcription.
	ModelPath string `yaml:"model_path"`

	// Language is the spoken language code. Default "en".
	Language string `yaml:"language"`

	// FailureThreshold consecutive failures pause transcription for
	// Cooldown. Defaults 3 and 1m.
	FailureThreshold int      `yaml:"failure_threshold"`
	Cooldown         Duration `yaml:"cooldown"`
}
