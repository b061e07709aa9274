package effects

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ada-assistant/ada/internal/fault"
	"github.com/ada-assistant/ada/pkg/led"
)

const (
	rainbowHueStep   = 5
	rainbowLEDPhase  = 30
	rainbowSat       = 100
	rainbowValue     = 20
	maxFrameFailures = 3
)

// StartRainbow clears the strip and starts a rotating rainbow that runs until
// stopped.
func (s *Scheduler) StartRainbow() (*Effect, error) {
	n := s.strip.Len()
	prepare := func() error {
		return fault.Hardware("effects: clear", s.strip.Clear())
	}
	return s.start(KindRainbow, Plan{Step: s.frameInterval}, prepare, func(e *Effect) {
		offset := 0
		next := time.Now()
		for e.ctx.Err() == nil {
			err := s.frame(e, func() {
				for i := range n {
					s.strip.SetPixel(i, led.HSV(offset+i*rainbowLEDPhase, rainbowSat, rainbowValue))
				}
			})
			if errors.Is(err, errRevoked) {
				return
			}
			if err != nil {
				slog.Warn("effects: rainbow frame skipped", "err", err)
			}
			offset = (offset + rainbowHueStep) % 360
			next = next.Add(s.frameInterval)
			if !sleepUntil(e, next) {
				return
			}
		}
	})
}

// StartSequentialFadeIn fades every LED from off to c, one after another
// starting at start, so the last LED reaches c after total. reverse walks
// the strip downwards from start.
func (s *Scheduler) StartSequentialFadeIn(start int, c led.Color, total time.Duration, reverse bool) (*Effect, error) {
	return s.startFade(KindFadeIn, start, c, total, reverse)
}

// StartSequentialFadeOut fades every LED from c to off, one after another
// starting at start, so the last LED goes dark after total. LEDs whose fade
// has not begun are held at c.
func (s *Scheduler) StartSequentialFadeOut(start int, c led.Color, total time.Duration, reverse bool) (*Effect, error) {
	return s.startFade(KindFadeOut, start, c, total, reverse)
}

func (s *Scheduler) startFade(kind Kind, start int, c led.Color, total time.Duration, reverse bool) (*Effect, error) {
	n := s.strip.Len()
	if start < 0 || start >= n {
		return nil, s.reject(kind, fmt.Errorf("effects: start index %d outside strip of %d: %w", start, n, fault.ErrInvalidArgument))
	}
	plan, err := PlanFadeIn(total, n, s.minStep)
	if kind == KindFadeOut {
		plan, err = PlanFadeOut(total, n, s.minStep)
	}
	if err != nil {
		return nil, s.reject(kind, err)
	}

	order := traversal(start, n, reverse)
	return s.start(kind, plan, nil, func(e *Effect) {
		s.runFade(e, order, c)
	})
}

// runFade draws frame k at nominal time k*Step. LED i of the traversal
// starts fading at i*LEDDelay and advances one level per frame.
func (s *Scheduler) runFade(e *Effect, order []int, c led.Color) {
	p := e.plan
	begin := time.Now()
	failures := 0
	for k := 0; ; k++ {
		t := time.Duration(k) * p.Step
		complete := true
		err := s.frame(e, func() {
			for i, idx := range order {
				lvl := fadeLevel(t, time.Duration(i)*p.LEDDelay, p.Step, p.Steps)
				if lvl < p.Steps {
					complete = false
				}
				switch {
				case e.kind == KindFadeOut:
					s.strip.SetPixel(idx, c.Scale(p.Steps-lvl, p.Steps))
				case lvl > 0:
					s.strip.SetPixel(idx, c.Scale(lvl, p.Steps))
				}
			}
		})
		if errors.Is(err, errRevoked) || e.ctx.Err() != nil {
			return
		}
		if err != nil {
			failures++
			slog.Warn("effects: fade frame failed", "effect", e.kind, "frame", k, "err", err)
			if failures >= maxFrameFailures {
				return
			}
			complete = false
		}
		if !sleepUntil(e, begin.Add(time.Duration(k+1)*p.Step)) {
			return
		}
		if complete {
			return
		}
	}
}

// fadeLevel is the number of steps an LED that starts at ledStart has taken
// by time t, in 0..steps.
func fadeLevel(t, ledStart, step time.Duration, steps int) int {
	if t < ledStart {
		return 0
	}
	return min(steps, int((t-ledStart)/step)+1)
}

// traversal lists LED indices in fade order beginning at start and wrapping
// around the strip.
func traversal(start, n int, reverse bool) []int {
	order := make([]int, n)
	for i := range n {
		if reverse {
			order[i] = ((start-i)%n + n) % n
		} else {
			order[i] = (start + i) % n
		}
	}
	return order
}

// StartColorBreathing pulses LEDs from start to the end of the strip with a
// triangular brightness wave of colour c, cycles times over total, then
// clears the strip.
func (s *Scheduler) StartColorBreathing(start int, c led.Color, total time.Duration, cycles int) (*Effect, error) {
	n := s.strip.Len()
	if start < 0 || start >= n {
		return nil, s.reject(KindBreathing, fmt.Errorf("effects: start index %d outside strip of %d: %w", start, n, fault.ErrInvalidArgument))
	}
	plan, err := PlanBreathing(total, cycles, s.minStep)
	if err != nil {
		return nil, s.reject(KindBreathing, err)
	}

	return s.start(KindBreathing, plan, nil, func(e *Effect) {
		defer s.finalClear(e)
		period := 2 * plan.Steps
		begin := time.Now()
		for k := range plan.Frames() {
			cp := k % period
			level := cp
			if cp >= plan.Steps {
				level = period - cp - 1
			}
			col := c.Scale(level, plan.Steps)
			err := s.frame(e, func() {
				for i := start; i < n; i++ {
					s.strip.SetPixel(i, col)
				}
			})
			if errors.Is(err, errRevoked) || e.ctx.Err() != nil {
				return
			}
			if err != nil {
				slog.Warn("effects: breathing frame failed", "frame", k, "err", err)
			}
			if !sleepUntil(e, begin.Add(time.Duration(k+1)*plan.Step)) {
				return
			}
		}
	})
}
