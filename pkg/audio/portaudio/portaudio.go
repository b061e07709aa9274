// Package portaudio implements [audio.Source] and [audio.Sink] on the host's
// default input and output devices via PortAudio. It is the driver used when
// running the appliance on a development machine or a Linux board with an
// ALSA sound card.
package portaudio

import (
	"fmt"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/ada-assistant/ada/internal/fault"
	"github.com/ada-assistant/ada/pkg/audio"
)

var (
	_ audio.Source = (*Source)(nil)
	_ audio.Sink   = (*Sink)(nil)
)

const (
	defaultInputRate   = 16000
	defaultOutputRate  = 44100
	defaultFramesPerIO = 320
)

// Option configures a PortAudio device.
type Option func(*config)

type config struct {
	rate     int
	channels int
	frames   int
}

// WithSampleRate sets the stream sample rate in Hz.
func WithSampleRate(hz int) Option {
	return func(c *config) { c.rate = hz }
}

// WithChannels sets the number of interleaved channels.
func WithChannels(n int) Option {
	return func(c *config) { c.channels = n }
}

// WithFramesPerBuffer sets the PortAudio host buffer size in frames.
func WithFramesPerBuffer(n int) Option {
	return func(c *config) { c.frames = n }
}

func newConfig(rate int, opts []Option) config {
	c := config{rate: rate, channels: 1, frames: defaultFramesPerIO}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// ─── Source ──────────────────────────────────────────────────────────────────

// Source reads from the default input device.
type Source struct {
	cfg     config
	stream  *pa.Stream
	in      []int16
	pending []int16
}

// NewSource returns an unopened microphone. Defaults: 16 kHz mono.
func NewSource(opts ...Option) *Source {
	return &Source{cfg: newConfig(defaultInputRate, opts)}
}

// Init implements [audio.Source]. It initialises PortAudio and starts the
// capture stream.
func (s *Source) Init() error {
	if err := pa.Initialize(); err != nil {
		return fault.Hardware("portaudio: initialize", err)
	}
	s.in = make([]int16, s.cfg.frames*s.cfg.channels)
	stream, err := pa.OpenDefaultStream(s.cfg.channels, 0, float64(s.cfg.rate), s.cfg.frames, s.in)
	if err != nil {
		_ = pa.Terminate()
		return fault.Hardware("portaudio: open input", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return fault.Hardware("portaudio: start input", err)
	}
	s.stream = stream
	return nil
}

// Deinit implements [audio.Source].
func (s *Source) Deinit() error {
	if s.stream == nil {
		return nil
	}
	errStop := s.stream.Stop()
	errClose := s.stream.Close()
	s.stream = nil
	if err := pa.Terminate(); err != nil {
		return fault.Hardware("portaudio: terminate", err)
	}
	if errStop != nil {
		return fault.Hardware("portaudio: stop input", errStop)
	}
	return fault.Hardware("portaudio: close input", errClose)
}

// ReadFrame implements [audio.Source]. It blocks on host buffers until buf
// can be filled completely.
func (s *Source) ReadFrame(buf []int16) (int, error) {
	if s.stream == nil {
		return 0, fmt.Errorf("portaudio: read before init: %w", fault.ErrInvalidState)
	}
	for len(s.pending) < len(buf) {
		if err := s.stream.Read(); err != nil {
			return 0, fault.Hardware("portaudio: read", err)
		}
		s.pending = append(s.pending, s.in...)
	}
	n := copy(buf, s.pending)
	s.pending = s.pending[:copy(s.pending, s.pending[n:])]
	return n, nil
}

// Channels implements [audio.Source].
func (s *Source) Channels() int { return s.cfg.channels }

// InputFormat implements [audio.Source]. One "M" per microphone channel.
func (s *Source) InputFormat() string {
	tag := ""
	for range s.cfg.channels {
		tag += "M"
	}
	return tag
}

// SampleRate reports the capture rate in Hz.
func (s *Source) SampleRate() int { return s.cfg.rate }

// ─── Sink ────────────────────────────────────────────────────────────────────

// Sink writes to the default output device. The stream is started by Enable
// and stopped by Disable so the amplifier idles between cues.
type Sink struct {
	cfg    config
	mu     sync.Mutex
	stream *pa.Stream
	out    []int16
	conv   []int16
}

// NewSink returns an unopened speaker. Defaults: 44.1 kHz mono.
func NewSink(opts ...Option) *Sink {
	return &Sink{cfg: newConfig(defaultOutputRate, opts)}
}

// Init implements [audio.Sink].
func (s *Sink) Init() error {
	if err := pa.Initialize(); err != nil {
		return fault.Hardware("portaudio: initialize", err)
	}
	s.out = make([]int16, s.cfg.frames*s.cfg.channels)
	stream, err := pa.OpenDefaultStream(0, s.cfg.channels, float64(s.cfg.rate), s.cfg.frames, s.out)
	if err != nil {
		_ = pa.Terminate()
		return fault.Hardware("portaudio: open output", err)
	}
	s.stream = stream
	return nil
}

// Deinit implements [audio.Sink].
func (s *Sink) Deinit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	errClose := s.stream.Close()
	s.stream = nil
	if err := pa.Terminate(); err != nil {
		return fault.Hardware("portaudio: terminate", err)
	}
	return fault.Hardware("portaudio: close output", errClose)
}

// Enable implements [audio.Sink].
func (s *Sink) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return fmt.Errorf("portaudio: enable before init: %w", fault.ErrInvalidState)
	}
	return fault.Hardware("portaudio: start output", s.stream.Start())
}

// Disable implements [audio.Sink].
func (s *Sink) Disable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	return fault.Hardware("portaudio: stop output", s.stream.Stop())
}

// Write implements [audio.Sink]. p is split into host buffers; the final
// buffer is zero-padded. When timeout elapses between buffers the bytes
// written so far are returned with an error wrapping [fault.ErrTimeout].
func (s *Sink) Write(p []byte, timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return 0, fmt.Errorf("portaudio: write before init: %w", fault.ErrInvalidState)
	}

	deadline := time.Now().Add(timeout)
	s.conv = audio.BytesToInt16(s.conv, p)
	written := 0
	for off := 0; off < len(s.conv); off += len(s.out) {
		if timeout > 0 && time.Now().After(deadline) {
			return written * 2, fmt.Errorf("portaudio: write: %w", fault.ErrTimeout)
		}
		n := copy(s.out, s.conv[off:])
		clear(s.out[n:])
		if err := s.stream.Write(); err != nil {
			return written * 2, fault.Hardware("portaudio: write", err)
		}
		written += n
	}
	return written * 2, nil
}
