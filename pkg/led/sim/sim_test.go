package sim_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/ada-assistant/ada/pkg/led"
	"github.com/ada-assistant/ada/pkg/led/sim"
)

func TestStripRendersFrames(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := sim.New(l)
	if err := s.Init(3); err != nil {
		t.Fatal(err)
	}
	s.SetPixel(0, led.Color{R: 0xff})
	s.SetPixel(2, led.Color{B: 0x10})
	s.SetPixel(9, led.Color{G: 1})
	if err := s.Refresh(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "ff0000 000000 000010") {
		t.Errorf("rendered frame missing, log: %s", buf.String())
	}

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if s.Frames() != 2 {
		t.Errorf("frames = %d, want 2", s.Frames())
	}
}

func TestInitRejectsEmptyStrip(t *testing.T) {
	t.Parallel()
	if err := sim.New(nil).Init(0); err == nil {
		t.Fatal("expected error for zero LEDs")
	}
}
