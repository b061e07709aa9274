// Package mock provides an in-memory [led.Strip] for unit tests. It records
// every refreshed frame so tests can assert on animation output.
package mock

import (
	"sync"

	"github.com/ada-assistant/ada/pkg/led"
)

var _ led.Strip = (*Strip)(nil)

// Strip is a mock [led.Strip]. It is safe for concurrent use so tests can
// observe it while an effect task draws.
type Strip struct {
	mu sync.Mutex

	// InitErr, RefreshErr and ClearErr are returned by the matching methods.
	InitErr    error
	RefreshErr error
	ClearErr   error

	// KeepFrames records every refreshed frame in Frames when true.
	KeepFrames bool

	// Frames holds copies of the latched frames, oldest first.
	Frames [][]led.Color

	// CallCountRefresh and CallCountClear record calls.
	CallCountRefresh int
	CallCountClear   int

	staged  []led.Color
	latched []led.Color
}

// Init implements [led.Strip].
func (s *Strip) Init(maxLeds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InitErr != nil {
		return s.InitErr
	}
	s.staged = make([]led.Color, maxLeds)
	s.latched = make([]led.Color, maxLeds)
	return nil
}

// Len implements [led.Strip].
func (s *Strip) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.staged)
}

// SetPixel implements [led.Strip].
func (s *Strip) SetPixel(index int, c led.Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= 0 && index < len(s.staged) {
		s.staged[index] = c
	}
}

// Refresh implements [led.Strip].
func (s *Strip) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountRefresh++
	if s.RefreshErr != nil {
		return s.RefreshErr
	}
	copy(s.latched, s.staged)
	if s.KeepFrames {
		s.Frames = append(s.Frames, append([]led.Color(nil), s.latched...))
	}
	return nil
}

// Clear implements [led.Strip].
func (s *Strip) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClear++
	if s.ClearErr != nil {
		return s.ClearErr
	}
	clear(s.staged)
	clear(s.latched)
	return nil
}

// Refreshes returns the number of Refresh calls so far.
func (s *Strip) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountRefresh
}

// Clears returns the number of Clear calls so far.
func (s *Strip) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClear
}

// Pixels returns a copy of the currently latched frame.
func (s *Strip) Pixels() []led.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]led.Color(nil), s.latched...)
}

// RecordedFrames returns a copy of the recorded frame history.
func (s *Strip) RecordedFrames() [][]led.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]led.Color(nil), s.Frames...)
}

// Dark reports whether every latched pixel is off.
func (s *Strip) Dark() bool {
	for _, c := range s.Pixels() {
		if c != led.Black {
			return false
		}
	}
	return true
}
