// Package sim implements a simulated [led.Strip] that renders latched frames
// to the debug log. It is the default strip driver when no LED transport is
// attached, so effects stay observable on a development machine.
package sim

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ada-assistant/ada/pkg/led"
)

var _ led.Strip = (*Strip)(nil)

// Strip is a log-rendering strip.
type Strip struct {
	log    *slog.Logger
	pixels []led.Color
	frames uint64
}

// New returns a simulated strip logging through l, or slog.Default when l is
// nil.
func New(l *slog.Logger) *Strip {
	if l == nil {
		l = slog.Default()
	}
	return &Strip{log: l.With("device", "led_strip")}
}

// Init implements [led.Strip].
func (s *Strip) Init(maxLeds int) error {
	if maxLeds <= 0 {
		return fmt.Errorf("led sim: maxLeds must be positive, got %d", maxLeds)
	}
	s.pixels = make([]led.Color, maxLeds)
	return nil
}

// Len implements [led.Strip].
func (s *Strip) Len() int { return len(s.pixels) }

// SetPixel implements [led.Strip].
func (s *Strip) SetPixel(index int, c led.Color) {
	if index >= 0 && index < len(s.pixels) {
		s.pixels[index] = c
	}
}

// Refresh implements [led.Strip].
func (s *Strip) Refresh() error {
	s.frames++
	s.log.Debug("led frame", "frame", s.frames, "pixels", render(s.pixels))
	return nil
}

// Clear implements [led.Strip].
func (s *Strip) Clear() error {
	clear(s.pixels)
	return s.Refresh()
}

// Frames reports how many frames have been latched.
func (s *Strip) Frames() uint64 { return s.frames }

func render(px []led.Color) string {
	var b strings.Builder
	for i, c := range px {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02x%02x%02x", c.R, c.G, c.B)
	}
	return b.String()
}
