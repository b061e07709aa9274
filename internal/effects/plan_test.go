package effects_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ada-assistant/ada/internal/effects"
	"github.com/ada-assistant/ada/internal/fault"
)

func TestPlanFadeInExample(t *testing.T) {
	t.Parallel()

	p, err := effects.PlanFadeIn(2000*time.Millisecond, 30, 5*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if p.Steps != 20 {
		t.Errorf("Steps = %d, want 20", p.Steps)
	}
	if p.Step != 40*time.Millisecond {
		t.Errorf("Step = %s, want 40ms", p.Step)
	}
	if p.Fade != 800*time.Millisecond {
		t.Errorf("Fade = %s, want 800ms", p.Fade)
	}
	if p.LEDDelay < 41*time.Millisecond || p.LEDDelay > 42*time.Millisecond {
		t.Errorf("LEDDelay = %s, want ~41.4ms", p.LEDDelay)
	}
	if d := 2000*time.Millisecond - p.Expected; d < 0 || d > time.Millisecond {
		t.Errorf("Expected = %s, want ~2s", p.Expected)
	}
	if p.Frames() != 50 {
		t.Errorf("Frames = %d, want 50", p.Frames())
	}
}

func TestPlanFadeOutSplit(t *testing.T) {
	t.Parallel()

	p, err := effects.PlanFadeOut(10*time.Second, 30, 5*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if p.Steps != 30 {
		t.Errorf("Steps = %d, want one per LED", p.Steps)
	}
	if p.Fade < 1990*time.Millisecond || p.Fade > 2*time.Second {
		t.Errorf("Fade = %s, want ~20%% of 10s", p.Fade)
	}
	if p.LEDDelay < 275*time.Millisecond || p.LEDDelay > 276*time.Millisecond {
		t.Errorf("LEDDelay = %s, want ~275.9ms", p.LEDDelay)
	}
}

// For any total >= 10ms per LED and N > 1 the plan lands within one step of
// the (minimum-adjusted) requested duration, and no delay undercuts the
// minimum.
func TestPlanFadeWithinOneStep(t *testing.T) {
	t.Parallel()

	planners := map[string]func(time.Duration, int, time.Duration) (effects.Plan, error){
		"in":  effects.PlanFadeIn,
		"out": effects.PlanFadeOut,
	}
	for name, plan := range planners {
		for _, minStep := range []time.Duration{time.Millisecond, 5 * time.Millisecond, 10 * time.Millisecond} {
			for _, n := range []int{2, 3, 12, 30, 60, 144} {
				for _, total := range []time.Duration{0, time.Duration(n) * 10 * time.Millisecond, 333 * time.Millisecond, 2 * time.Second, 10 * time.Second} {
					t.Run(fmt.Sprintf("%s/min%s/n%d/%s", name, minStep, n, total), func(t *testing.T) {
						p, err := plan(total, n, minStep)
						if err != nil {
							t.Fatal(err)
						}
						want := max(total, time.Duration(n)*10*time.Millisecond)
						diff := p.Expected - want
						if diff < 0 {
							diff = -diff
						}
						if diff > p.Step {
							t.Errorf("Expected %s drifts %s from %s, more than step %s", p.Expected, diff, want, p.Step)
						}
						if p.Step < minStep || p.LEDDelay < minStep {
							t.Errorf("step %s / led delay %s below minimum %s", p.Step, p.LEDDelay, minStep)
						}
						if p.Steps < 1 || p.Fade != p.Step*time.Duration(p.Steps) {
							t.Errorf("inconsistent plan %+v", p)
						}
					})
				}
			}
		}
	}
}

func TestPlanFadeSingleLED(t *testing.T) {
	t.Parallel()

	p, err := effects.PlanFadeIn(400*time.Millisecond, 1, 5*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if p.LEDDelay != 0 || p.Expected != 400*time.Millisecond {
		t.Errorf("single LED plan = %+v", p)
	}
	if _, err := effects.PlanFadeIn(time.Second, 0, 5*time.Millisecond); !errors.Is(err, fault.ErrInvalidArgument) {
		t.Errorf("zero LEDs: want ErrInvalidArgument, got %v", err)
	}
}

func TestPlanBreathing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		total    time.Duration
		cycles   int
		step     time.Duration
		expected time.Duration
	}{
		{"acknowledge", 5 * time.Second, 3, 27777777, 4999999860},
		{"min duration per cycle", 100 * time.Millisecond, 1, 5 * time.Millisecond, 300 * time.Millisecond},
		{"ambient", 38 * time.Second, 19, 33333333, 37999999620},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := effects.PlanBreathing(tt.total, tt.cycles, 5*time.Millisecond)
			if err != nil {
				t.Fatal(err)
			}
			if p.Step != tt.step || p.Expected != tt.expected {
				t.Errorf("plan = step %d expected %d, want %d / %d", p.Step, p.Expected, tt.step, tt.expected)
			}
			if p.Frames() != 60*tt.cycles {
				t.Errorf("Frames = %d, want %d", p.Frames(), 60*tt.cycles)
			}
		})
	}

	if _, err := effects.PlanBreathing(time.Second, 0, 5*time.Millisecond); !errors.Is(err, fault.ErrInvalidArgument) {
		t.Errorf("zero cycles: want ErrInvalidArgument, got %v", err)
	}
}
