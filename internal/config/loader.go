package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ValidDriverNames lists the built-in driver names per device kind.
// Used by [Validate] to warn about unrecognised drivers.
var ValidDriverNames = map[string][]string{
	"microphone": {"portaudio", "mock"},
	"speaker":    {"portaudio", "mock"},
	"led_strip":  {"sim"},
	"detector":   {"whisper", "mock"},
	"volume":     {"fixed", "sysfs"},
}

// EffectKinds lists the effect names accepted in feedback and startup
// steps.
var EffectKinds = []string{"rainbow", "fade_in", "fade_out", "breathing"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	return LoadFS(afero.NewOsFs(), path)
}

// LoadFS is like [Load] but reads from fs.
func LoadFS(fs afero.Fs, path string) (*Config, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with the firmware defaults.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.LogLevel, LogInfo)

	setDefault(&cfg.Devices.Microphone.Driver, "portaudio")
	setDefault(&cfg.Devices.Speaker.Driver, "portaudio")
	setDefault(&cfg.Devices.LEDStrip.Driver, "sim")
	setDefault(&cfg.Devices.Detector.Driver, "whisper")
	setDefault(&cfg.Devices.Volume.Driver, "fixed")

	r := &cfg.Recording
	setDefault(&r.SilenceThreshold, 1000)
	setDefault(&r.SilenceDuration, Duration(1500*time.Millisecond))
	setDefault(&r.MinDuration, Duration(2*time.Second))
	setDefault(&r.MaxDuration, Duration(10*time.Second))
	setDefault(&r.IntroDuration, Duration(500*time.Millisecond))
	setDefault(&r.ListenCue, "custom_listening_start.pcm")
	if r.ProgressColor == nil {
		r.ProgressColor = &RGB{0, 0, 100}
	}

	e := &cfg.Effects
	setDefault(&e.LEDCount, 12)
	setDefault(&e.LockTimeout, Duration(200*time.Millisecond))
	setDefault(&e.StopGrace, Duration(50*time.Millisecond))
	setDefault(&e.FrameInterval, Duration(50*time.Millisecond))
	setDefault(&e.MinStep, Duration(5*time.Millisecond))

	p := &cfg.Playback
	setDefault(&p.CueDir, "cues")
	setDefault(&p.SampleRate, 16000)
	setDefault(&p.ChunkBytes, 4096)
	setDefault(&p.WriteTimeout, Duration(time.Second))
	setDefault(&p.StopPoll, Duration(100*time.Millisecond))
	setDefault(&p.LockTimeout, Duration(500*time.Millisecond))

	setDefault(&cfg.Tasks.Limit, 8)

	t := &cfg.Transcription
	setDefault(&t.Language, "en")
	setDefault(&t.FailureThreshold, 3)
	setDefault(&t.Cooldown, Duration(time.Minute))
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateDriverName("microphone", cfg.Devices.Microphone.Driver)
	validateDriverName("speaker", cfg.Devices.Speaker.Driver)
	validateDriverName("led_strip", cfg.Devices.LEDStrip.Driver)
	validateDriverName("detector", cfg.Devices.Detector.Driver)
	validateDriverName("volume", cfg.Devices.Volume.Driver)

	r := cfg.Recording
	if r.SilenceThreshold < 0 || r.SilenceThreshold > 32767 {
		errs = append(errs, fmt.Errorf("recording.silence_threshold %d is out of range [0, 32767]", r.SilenceThreshold))
	}
	if r.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("recording.max_duration must be positive"))
	}
	if r.MinDuration < 0 || r.MinDuration > r.MaxDuration {
		errs = append(errs, fmt.Errorf("recording.min_duration %s must be between 0 and max_duration %s", r.MinDuration.Std(), r.MaxDuration.Std()))
	}
	if r.SilenceDuration <= 0 {
		errs = append(errs, fmt.Errorf("recording.silence_duration must be positive"))
	}
	if r.ChunkSamples < 0 {
		errs = append(errs, fmt.Errorf("recording.chunk_samples must not be negative"))
	}
	if r.IntroDuration < 0 {
		errs = append(errs, fmt.Errorf("recording.intro_duration must not be negative"))
	}
	if r.ProgressColor != nil {
		errs = append(errs, validateColor("recording.progress_color", *r.ProgressColor)...)
	}

	e := cfg.Effects
	if e.LEDCount <= 0 {
		errs = append(errs, fmt.Errorf("effects.led_count must be positive"))
	}
	for name, d := range map[string]Duration{
		"effects.lock_timeout":   e.LockTimeout,
		"effects.stop_grace":     e.StopGrace,
		"effects.frame_interval": e.FrameInterval,
		"effects.min_step":       e.MinStep,
		"playback.write_timeout": cfg.Playback.WriteTimeout,
		"playback.stop_poll":     cfg.Playback.StopPoll,
		"playback.lock_timeout":  cfg.Playback.LockTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	p := cfg.Playback
	if p.ChunkBytes < 2 || p.ChunkBytes%2 != 0 {
		errs = append(errs, fmt.Errorf("playback.chunk_bytes %d must be a positive even number", p.ChunkBytes))
	}
	if p.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("playback.sample_rate must be positive"))
	}

	for i, st := range cfg.Feedback.Steps {
		prefix := fmt.Sprintf("feedback.steps[%d]", i)
		if st.Settle < 0 {
			errs = append(errs, fmt.Errorf("%s.settle must not be negative", prefix))
		}
		if st.Effect == nil && st.Cue == "" && st.Settle == 0 {
			errs = append(errs, fmt.Errorf("%s is empty", prefix))
		}
		if st.Effect != nil {
			errs = append(errs, validateEffect(prefix+".effect", *st.Effect, e.LEDCount)...)
		}
	}
	if cfg.Startup.Effect != nil {
		errs = append(errs, validateEffect("startup.effect", *cfg.Startup.Effect, e.LEDCount)...)
	}

	if cfg.Tasks.Limit < 3 {
		errs = append(errs, fmt.Errorf("tasks.limit %d is too small; a recording, an effect and a playback must fit", cfg.Tasks.Limit))
	}

	if cfg.Transcription.ModelPath == "" && cfg.Devices.Detector.Driver == "whisper" &&
		cfg.Devices.Detector.String("model_path", "") == "" {
		errs = append(errs, fmt.Errorf("devices.detector.options.model_path is required for the whisper detector"))
	}

	return errors.Join(errs...)
}

func validateEffect(prefix string, e EffectConfig, leds int) []error {
	var errs []error
	if !slices.Contains(EffectKinds, e.Kind) {
		errs = append(errs, fmt.Errorf("%s.kind %q is invalid; valid values: %v", prefix, e.Kind, EffectKinds))
	}
	if e.Start < 0 || (leds > 0 && e.Start >= leds) {
		errs = append(errs, fmt.Errorf("%s.start %d is outside the strip of %d LEDs", prefix, e.Start, leds))
	}
	if e.Kind != "rainbow" && e.Duration <= 0 {
		errs = append(errs, fmt.Errorf("%s.duration must be positive for %s", prefix, e.Kind))
	}
	if e.Kind == "breathing" && e.Cycles < 1 {
		errs = append(errs, fmt.Errorf("%s.cycles must be at least 1 for breathing", prefix))
	}
	return append(errs, validateColor(prefix+".color", e.Color)...)
}

func validateColor(prefix string, c RGB) []error {
	var errs []error
	for i, v := range c {
		if v < 0 || v > 255 {
			errs = append(errs, fmt.Errorf("%s[%d] %d is out of range [0, 255]", prefix, i, v))
		}
	}
	return errs
}

// validateDriverName logs a warning if name is not a built-in driver for
// kind.
func validateDriverName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidDriverNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown device driver; may be a typo or an externally registered driver",
		"kind", kind,
		"driver", name,
		"known", known,
	)
}
