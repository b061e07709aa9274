package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/ada-assistant/ada/internal/config"
	"github.com/ada-assistant/ada/pkg/audio"
	audiomock "github.com/ada-assistant/ada/pkg/audio/mock"
	"github.com/ada-assistant/ada/pkg/led"
	ledmock "github.com/ada-assistant/ada/pkg/led/mock"
	"github.com/ada-assistant/ada/pkg/provider/wake"
	wakemock "github.com/ada-assistant/ada/pkg/provider/wake/mock"
	"github.com/ada-assistant/ada/pkg/volume"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug

devices:
  microphone:
    driver: portaudio
    options:
      sample_rate: 16000
      channels: 1
  speaker:
    driver: portaudio
  led_strip:
    driver: sim
  detector:
    driver: whisper
    options:
      model_path: /models/ggml-tiny.en.bin
      phrases: ["hey ada", "ok ada"]
  volume:
    driver: sysfs
    options:
      path: /sys/bus/iio/devices/iio:device0/in_voltage0_raw

recording:
  silence_threshold: 800
  max_duration: 8s
  progress_color: [0, 40, 100]

effects:
  led_count: 30

playback:
  cue_dir: /usr/share/ada/cues

feedback:
  steps:
    - effect: {kind: breathing, color: [255, 80, 0], duration: 5s, cycles: 3}
      cue: custom_listening_end.pcm
      settle: 5s
    - effect: {kind: fade_out, color: [0, 0, 100], start: 29, duration: 2s, reverse: true}

startup:
  cue: windows_7_startup.pcm
  effect: {kind: rainbow}
`

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

// ── loading ──────────────────────────────────────────────────────────────────

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	det := cfg.Devices.Detector
	if got := det.String("model_path", ""); got != "/models/ggml-tiny.en.bin" {
		t.Errorf("detector model_path = %q", got)
	}
	if got := det.Strings("phrases"); len(got) != 2 || got[1] != "ok ada" {
		t.Errorf("detector phrases = %v", got)
	}
	if got := cfg.Devices.Microphone.Int("sample_rate", 0); got != 16000 {
		t.Errorf("microphone sample_rate = %d", got)
	}
	if got := cfg.Devices.Microphone.Int("missing", 7); got != 7 {
		t.Errorf("missing option default = %d", got)
	}

	r := cfg.Recording
	if r.SilenceThreshold != 800 || r.MaxDuration.Std() != 8*time.Second {
		t.Errorf("recording = %+v", r)
	}
	if *r.ProgressColor != (config.RGB{0, 40, 100}) {
		t.Errorf("progress_color = %v", *r.ProgressColor)
	}

	steps := cfg.Feedback.Steps
	if len(steps) != 2 {
		t.Fatalf("feedback steps = %d, want 2", len(steps))
	}
	if steps[0].Effect.Cycles != 3 || steps[0].Settle.Std() != 5*time.Second {
		t.Errorf("step 0 = %+v / %+v", steps[0], *steps[0].Effect)
	}
	if !steps[1].Effect.Reverse || steps[1].Effect.Start != 29 {
		t.Errorf("step 1 effect = %+v", *steps[1].Effect)
	}
	if cfg.Startup.Effect.Kind != "rainbow" {
		t.Errorf("startup effect = %+v", cfg.Startup.Effect)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, "devices:\n  detector:\n    driver: mock\n")

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"log level", cfg.Server.LogLevel, config.LogInfo},
		{"silence threshold", cfg.Recording.SilenceThreshold, 1000},
		{"silence duration", cfg.Recording.SilenceDuration.Std(), 1500 * time.Millisecond},
		{"min duration", cfg.Recording.MinDuration.Std(), 2 * time.Second},
		{"max duration", cfg.Recording.MaxDuration.Std(), 10 * time.Second},
		{"intro", cfg.Recording.IntroDuration.Std(), 500 * time.Millisecond},
		{"listen cue", cfg.Recording.ListenCue, "custom_listening_start.pcm"},
		{"progress colour", *cfg.Recording.ProgressColor, config.RGB{0, 0, 100}},
		{"effect lock", cfg.Effects.LockTimeout.Std(), 200 * time.Millisecond},
		{"stop grace", cfg.Effects.StopGrace.Std(), 50 * time.Millisecond},
		{"frame interval", cfg.Effects.FrameInterval.Std(), 50 * time.Millisecond},
		{"min step", cfg.Effects.MinStep.Std(), 5 * time.Millisecond},
		{"chunk bytes", cfg.Playback.ChunkBytes, 4096},
		{"write timeout", cfg.Playback.WriteTimeout.Std(), time.Second},
		{"stop poll", cfg.Playback.StopPoll.Std(), 100 * time.Millisecond},
		{"playback lock", cfg.Playback.LockTimeout.Std(), 500 * time.Millisecond},
		{"task limit", cfg.Tasks.Limit, 8},
		{"microphone driver", cfg.Devices.Microphone.Driver, "portaudio"},
		{"strip driver", cfg.Devices.LEDStrip.Driver, "sim"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if len(cfg.Feedback.Steps) != 0 {
		t.Errorf("feedback steps = %d, want none (built-in script)", len(cfg.Feedback.Steps))
	}
}

func TestLoadFS(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/cfg.yaml", []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.LoadFS(fs, "/cfg.yaml")
	if err != nil {
		t.Fatalf("LoadFS: %v", err)
	}
	if cfg.Effects.LEDCount != 30 {
		t.Errorf("led_count = %d", cfg.Effects.LEDCount)
	}

	if _, err := config.LoadFS(fs, "/missing.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

func TestRegistry_CreateRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	src := &audiomock.Source{}
	sink := &audiomock.Sink{}
	strip := &ledmock.Strip{}
	det := wakemock.New()

	reg.RegisterMicrophone("mock", func(config.DeviceEntry) (audio.Source, error) { return src, nil })
	reg.RegisterSpeaker("mock", func(config.DeviceEntry) (audio.Sink, error) { return sink, nil })
	reg.RegisterLEDStrip("mock", func(config.DeviceEntry) (led.Strip, error) { return strip, nil })
	reg.RegisterDetector("mock", func(config.DeviceEntry) (wake.Detector, error) { return det, nil })
	reg.RegisterVolume("fixed", func(e config.DeviceEntry) (volume.Reader, error) {
		return volume.Fixed(e.Int("level", 100)), nil
	})

	entry := config.DeviceEntry{Driver: "mock"}
	if got, err := reg.CreateMicrophone(entry); err != nil || got != src {
		t.Errorf("CreateMicrophone = %v, %v", got, err)
	}
	if got, err := reg.CreateSpeaker(entry); err != nil || got != sink {
		t.Errorf("CreateSpeaker = %v, %v", got, err)
	}
	if got, err := reg.CreateLEDStrip(entry); err != nil || got != strip {
		t.Errorf("CreateLEDStrip = %v, %v", got, err)
	}
	if got, err := reg.CreateDetector(entry); err != nil || got != det {
		t.Errorf("CreateDetector = %v, %v", got, err)
	}
	v, err := reg.CreateVolume(config.DeviceEntry{Driver: "fixed", Options: map[string]any{"level": 40}})
	if err != nil || v.Volume() != 40 {
		t.Errorf("CreateVolume = %v, %v", v, err)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	entry := config.DeviceEntry{Driver: "nope"}

	checks := map[string]error{}
	_, checks["microphone"] = reg.CreateMicrophone(entry)
	_, checks["speaker"] = reg.CreateSpeaker(entry)
	_, checks["led_strip"] = reg.CreateLEDStrip(entry)
	_, checks["detector"] = reg.CreateDetector(entry)
	_, checks["volume"] = reg.CreateVolume(entry)
	for kind, err := range checks {
		if !errors.Is(err, config.ErrDriverNotRegistered) {
			t.Errorf("%s: want ErrDriverNotRegistered, got %v", kind, err)
		}
		if err != nil && !strings.Contains(err.Error(), kind) {
			t.Errorf("%s: error %q should name the device kind", kind, err)
		}
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("no such card")
	reg.RegisterSpeaker("bad", func(config.DeviceEntry) (audio.Sink, error) { return nil, boom })

	if _, err := reg.CreateSpeaker(config.DeviceEntry{Driver: "bad"}); !errors.Is(err, boom) {
		t.Errorf("want factory error, got %v", err)
	}
}
