package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/ada-assistant/ada/internal/config"
	"github.com/ada-assistant/ada/pkg/audio"
	audiomock "github.com/ada-assistant/ada/pkg/audio/mock"
	"github.com/ada-assistant/ada/pkg/audio/portaudio"
	"github.com/ada-assistant/ada/pkg/led"
	"github.com/ada-assistant/ada/pkg/led/sim"
	"github.com/ada-assistant/ada/pkg/provider/wake"
	wakemock "github.com/ada-assistant/ada/pkg/provider/wake/mock"
	"github.com/ada-assistant/ada/pkg/provider/whisper"
	"github.com/ada-assistant/ada/pkg/volume"
)

const defaultADCPath = "/sys/bus/iio/devices/iio:device0/in_voltage0_raw"

var defaultPhrases = []string{"hey ada"}

// Transcriber turns a captured mono utterance into text.
type Transcriber interface {
	TranscribePCM(ctx context.Context, samples []int16, rate int) (string, error)
}

// Devices holds one collaborator per device slot plus the optional
// utterance transcriber.
type Devices struct {
	Microphone  audio.Source
	Speaker     audio.Sink
	Strip       led.Strip
	Detector    wake.Detector
	Volume      volume.Reader
	Transcriber Transcriber

	closers []func() error
}

// Close releases resources the drivers opened, such as loaded models.
func (d *Devices) Close() error {
	var errs []error
	for _, c := range d.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// models shares whisper models between the detector and the transcriber so
// a path is loaded once.
type models struct {
	mu     sync.Mutex
	lang   string
	loaded map[string]*whisper.Model
}

func (m *models) open(path string) (*whisper.Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wm, ok := m.loaded[path]; ok {
		return wm, nil
	}
	wm, err := whisper.Open(path, whisper.WithLanguage(m.lang))
	if err != nil {
		return nil, err
	}
	if m.loaded == nil {
		m.loaded = make(map[string]*whisper.Model)
	}
	m.loaded[path] = wm
	return wm, nil
}

func (m *models) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for path, wm := range m.loaded {
		if err := wm.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close model %s: %w", path, err))
		}
	}
	m.loaded = nil
	return errors.Join(errs...)
}

// registerDrivers wires every driver shipped with the appliance into reg.
// Factories needing cross-section settings (speaker rate, model path) read
// them from cfg.
func registerDrivers(reg *config.Registry, cfg *config.Config, fs afero.Fs, ms *models) {
	// ── Microphone ────────────────────────────────────────────────────────
	reg.RegisterMicrophone("portaudio", func(e config.DeviceEntry) (audio.Source, error) {
		return portaudio.NewSource(
			portaudio.WithSampleRate(e.Int("sample_rate", whisper.SampleRate)),
			portaudio.WithChannels(e.Int("channels", 1)),
			portaudio.WithFramesPerBuffer(e.Int("frames_per_buffer", 512)),
		), nil
	})
	reg.RegisterMicrophone("mock", func(e config.DeviceEntry) (audio.Source, error) {
		return &audiomock.Source{
			Chans: e.Int("channels", 1),
			Tag:   e.String("format", "M"),
			Delay: time.Duration(e.Int("read_delay_ms", 10)) * time.Millisecond,
		}, nil
	})

	// ── Speaker ───────────────────────────────────────────────────────────
	reg.RegisterSpeaker("portaudio", func(e config.DeviceEntry) (audio.Sink, error) {
		return portaudio.NewSink(
			portaudio.WithSampleRate(e.Int("sample_rate", cfg.Playback.SampleRate)),
			portaudio.WithChannels(1),
			portaudio.WithFramesPerBuffer(e.Int("frames_per_buffer", 1024)),
		), nil
	})
	reg.RegisterSpeaker("mock", func(config.DeviceEntry) (audio.Sink, error) {
		return &audiomock.Sink{}, nil
	})

	// ── LED strip ─────────────────────────────────────────────────────────
	reg.RegisterLEDStrip("sim", func(config.DeviceEntry) (led.Strip, error) {
		return sim.New(slog.Default()), nil
	})

	// ── Detector ──────────────────────────────────────────────────────────
	reg.RegisterDetector("whisper", func(e config.DeviceEntry) (wake.Detector, error) {
		wm, err := ms.open(e.String("model_path", cfg.Transcription.ModelPath))
		if err != nil {
			return nil, err
		}
		phrases := e.Strings("phrases")
		if len(phrases) == 0 {
			phrases = defaultPhrases
		}
		opts := []whisper.DetectorOption{
			whisper.WithChannels(cfg.Devices.Microphone.Int("channels", 1)),
		}
		if feed, fetch := e.Int("feed_chunk", 0), e.Int("fetch_chunk", 0); feed > 0 && fetch > 0 {
			opts = append(opts, whisper.WithChunkSizes(feed, fetch))
		}
		if w := e.Int("window", 0); w > 0 {
			opts = append(opts, whisper.WithWindow(w))
		}
		return whisper.NewDetector(wm, phrases, opts...)
	})
	reg.RegisterDetector("mock", func(e config.DeviceEntry) (wake.Detector, error) {
		d := wakemock.New()
		d.Chans = cfg.Devices.Microphone.Int("channels", 1)
		d.Rate = e.Int("sample_rate", d.Rate)
		return d, nil
	})

	// ── Volume ────────────────────────────────────────────────────────────
	reg.RegisterVolume("fixed", func(e config.DeviceEntry) (volume.Reader, error) {
		level := e.Int("level", 100)
		if level < 0 || level > 100 {
			return nil, fmt.Errorf("volume level %d out of range 0..100", level)
		}
		return volume.Fixed(level), nil
	})
	reg.RegisterVolume("sysfs", func(e config.DeviceEntry) (volume.Reader, error) {
		return volume.NewPotentiometer(volume.NewSysfsSampler(fs, e.String("path", defaultADCPath))), nil
	})
}

func buildDevices(cfg *config.Config, reg *config.Registry, ms *models) (*Devices, error) {
	d := &Devices{closers: []func() error{ms.close}}
	fail := func(format string, err error) (*Devices, error) {
		_ = d.Close()
		return nil, fmt.Errorf(format, err)
	}

	var err error
	if d.Microphone, err = reg.CreateMicrophone(cfg.Devices.Microphone); err != nil {
		return fail("create microphone: %w", err)
	}
	if d.Speaker, err = reg.CreateSpeaker(cfg.Devices.Speaker); err != nil {
		return fail("create speaker: %w", err)
	}
	if d.Strip, err = reg.CreateLEDStrip(cfg.Devices.LEDStrip); err != nil {
		return fail("create led strip: %w", err)
	}
	if d.Detector, err = reg.CreateDetector(cfg.Devices.Detector); err != nil {
		return fail("create detector: %w", err)
	}
	if d.Volume, err = reg.CreateVolume(cfg.Devices.Volume); err != nil {
		return fail("create volume: %w", err)
	}

	if path := cfg.Transcription.ModelPath; path != "" {
		wm, err := ms.open(path)
		if err != nil {
			return fail("open transcription model: %w", err)
		}
		d.Transcriber = wm
	}

	slog.Info("devices created",
		"microphone", cfg.Devices.Microphone.Driver,
		"speaker", cfg.Devices.Speaker.Driver,
		"led_strip", cfg.Devices.LEDStrip.Driver,
		"detector", cfg.Devices.Detector.Driver,
		"volume", cfg.Devices.Volume.Driver,
	)
	return d, nil
}

// Setup registers the builtin drivers on a fresh registry and builds the
// devices cfg names. fs backs file-based drivers such as the sysfs volume
// sampler. Call [Devices.Close] when done.
func Setup(cfg *config.Config, fs afero.Fs) (*Devices, error) {
	reg := config.NewRegistry()
	ms := &models{lang: cfg.Transcription.Language}
	registerDrivers(reg, cfg, fs, ms)
	return buildDevices(cfg, reg, ms)
}
