// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Sink] for unit tests.
//
// Both mocks are safe for concurrent use. They record calls so tests can
// assert on counts and data, and expose fields that control return values.
//
// Typical usage:
//
//	src := &mock.Source{Chans: 1, Fill: func(buf []int16) { /* loud audio */ }}
//	sink := &mock.Sink{}
//	// ... exercise the engine ...
//	if sink.Enabled() { t.Error("output left enabled") }
package mock

import (
	"sync"
	"time"

	"github.com/ada-assistant/ada/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Source = (*Source)(nil)
	_ audio.Sink   = (*Sink)(nil)
)

// ─── Source ──────────────────────────────────────────────────────────────────

// Source is a mock [audio.Source].
type Source struct {
	mu sync.Mutex

	// Chans is returned by Channels. Defaults to 1 when zero.
	Chans int

	// Tag is returned by InputFormat.
	Tag string

	// Fill, when set, populates each read buffer. Left nil, buffers are
	// zeroed (silence).
	Fill func(buf []int16)

	// Delay is slept before each read returns, emulating a blocking DMA read.
	Delay time.Duration

	// ReadErr is returned by ReadFrame when non-nil.
	ReadErr error

	// InitErr and DeinitErr are returned by Init and Deinit.
	InitErr   error
	DeinitErr error

	// CallCountRead records how many times ReadFrame was called.
	CallCountRead int

	// Concurrent reports the highest number of ReadFrame calls observed in
	// flight at once.
	Concurrent int
	inFlight   int
}

// Init implements [audio.Source].
func (s *Source) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.InitErr
}

// Deinit implements [audio.Source].
func (s *Source) Deinit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DeinitErr
}

// ReadFrame implements [audio.Source].
func (s *Source) ReadFrame(buf []int16) (int, error) {
	s.mu.Lock()
	s.CallCountRead++
	s.inFlight++
	s.Concurrent = max(s.Concurrent, s.inFlight)
	fill, delay, err := s.Fill, s.Delay, s.ReadErr
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return 0, err
	}
	if fill != nil {
		fill(buf)
	} else {
		clear(buf)
	}
	return len(buf), nil
}

// SetFill replaces the fill function under the mock's lock.
func (s *Source) SetFill(fill func(buf []int16)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fill = fill
}

// Reads returns the number of ReadFrame calls so far.
func (s *Source) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountRead
}

// MaxConcurrent returns the highest observed number of overlapping reads.
func (s *Source) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Concurrent
}

// Channels implements [audio.Source].
func (s *Source) Channels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Chans <= 0 {
		return 1
	}
	return s.Chans
}

// InputFormat implements [audio.Source].
func (s *Source) InputFormat() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Tag
}

// ─── Sink ────────────────────────────────────────────────────────────────────

// Sink is a mock [audio.Sink] that captures written bytes.
type Sink struct {
	mu sync.Mutex

	// WriteErr is returned by Write when non-nil.
	WriteErr error

	// WriteDelay is slept inside each Write.
	WriteDelay time.Duration

	// ShortWrite, when positive, caps the bytes accepted per Write.
	ShortWrite int

	// InitErr, DeinitErr, EnableErr and DisableErr are returned by the
	// matching methods.
	InitErr    error
	DeinitErr  error
	EnableErr  error
	DisableErr error

	// Written holds every byte accepted by Write.
	Written []byte

	// CallCountWrite, CallCountEnable and CallCountDisable record calls.
	CallCountWrite   int
	CallCountEnable  int
	CallCountDisable int

	enabled bool
}

// Init implements [audio.Sink].
func (s *Sink) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.InitErr
}

// Deinit implements [audio.Sink].
func (s *Sink) Deinit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.DeinitErr
}

// Enable implements [audio.Sink].
func (s *Sink) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountEnable++
	if s.EnableErr != nil {
		return s.EnableErr
	}
	s.enabled = true
	return nil
}

// Disable implements [audio.Sink].
func (s *Sink) Disable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountDisable++
	s.enabled = false
	return s.DisableErr
}

// Write implements [audio.Sink].
func (s *Sink) Write(p []byte, _ time.Duration) (int, error) {
	s.mu.Lock()
	delay := s.WriteDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountWrite++
	if s.WriteErr != nil {
		return 0, s.WriteErr
	}
	n := len(p)
	if s.ShortWrite > 0 && n > s.ShortWrite {
		n = s.ShortWrite
	}
	s.Written = append(s.Written, p[:n]...)
	return n, nil
}

// Enabled reports whether the output is currently enabled.
func (s *Sink) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Bytes returns a copy of everything written so far.
func (s *Sink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.Written...)
}

// Writes returns the number of Write calls so far.
func (s *Sink) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountWrite
}
