package effects

import (
	"fmt"
	"time"

	"github.com/ada-assistant/ada/internal/fault"
)

const (
	// fadeInSteps is the brightness resolution of one LED's fade-in.
	fadeInSteps = 20

	// breathingHalfSteps is the number of frames per half breathing cycle.
	breathingHalfSteps = 30

	minPerLED   = 10 * time.Millisecond
	minPerCycle = 200 * time.Millisecond
)

// Plan is the timing of one staggered fade or breathing effect. It is
// computed once when the effect starts and copied into the effect task.
type Plan struct {
	// Steps is the number of brightness steps per LED fade (fades) or per
	// half cycle (breathing).
	Steps int

	// Step is the delay between frames.
	Step time.Duration

	// LEDDelay is the stagger between consecutive LEDs starting their fade.
	LEDDelay time.Duration

	// Fade is one LED's individual fade window, Steps*Step.
	Fade time.Duration

	// Cycles is the number of breathing cycles; zero for fades.
	Cycles int

	// Expected is the planned total duration.
	Expected time.Duration
}

// Frames returns the number of refreshes the plan produces.
func (p Plan) Frames() int {
	if p.Cycles > 0 {
		return 2 * p.Steps * p.Cycles
	}
	if p.Step <= 0 {
		return p.Steps
	}
	// Frames until the last LED's final step.
	lastStart := p.Expected - p.Fade
	return int((lastStart+p.Step-1)/p.Step) + p.Steps
}

// PlanFadeIn spreads a sequential fade-in over total for n LEDs: each LED
// fades over 40% of the duration and LED starts are staggered across the
// remaining 60%.
func PlanFadeIn(total time.Duration, n int, minStep time.Duration) (Plan, error) {
	return planFade(total, n, fadeInSteps, 2, 5, minStep)
}

// PlanFadeOut spreads a sequential fade-out over total for n LEDs: LED starts
// are staggered across 80% of the duration and each LED fades over the last
// 20% in n steps.
func PlanFadeOut(total time.Duration, n int, minStep time.Duration) (Plan, error) {
	return planFade(total, n, n, 1, 5, minStep)
}

// planFade allocates fadeNum/fadeDen of total to each LED's fade window and
// the rest to the stagger. When a delay clamps to minStep the complement is
// recomputed: a clamped step shrinks the step count so the fade window holds,
// and a clamped stagger shrinks the fade window. The result never exceeds
// total by more than one step.
func planFade(total time.Duration, n, steps int, fadeNum, fadeDen int64, minStep time.Duration) (Plan, error) {
	if n <= 0 {
		return Plan{}, fmt.Errorf("effects: strip has no LEDs: %w", fault.ErrInvalidArgument)
	}
	if steps <= 0 {
		steps = 1
	}
	total = max(total, time.Duration(n)*minPerLED)

	fade := total
	if n > 1 {
		fade = total * time.Duration(fadeNum) / time.Duration(fadeDen)
	}
	step := fade / time.Duration(steps)
	if step < minStep {
		step = minStep
		steps = max(1, int(fade/step))
	}
	fade = step * time.Duration(steps)

	var ledDelay time.Duration
	if n > 1 {
		ledDelay = (total - fade) / time.Duration(n-1)
		if ledDelay < minStep {
			ledDelay = minStep
			room := total - ledDelay*time.Duration(n-1)
			steps = max(1, int(room/step))
			fade = step * time.Duration(steps)
		}
	}

	return Plan{
		Steps:    steps,
		Step:     step,
		LEDDelay: ledDelay,
		Fade:     fade,
		Expected: ledDelay*time.Duration(n-1) + fade,
	}, nil
}

// PlanBreathing divides total into cycles triangular periods of
// 2*breathingHalfSteps frames.
func PlanBreathing(total time.Duration, cycles int, minStep time.Duration) (Plan, error) {
	if cycles < 1 {
		return Plan{}, fmt.Errorf("effects: breathing needs at least one cycle, got %d: %w", cycles, fault.ErrInvalidArgument)
	}
	total = max(total, time.Duration(cycles)*minPerCycle)
	frames := 2 * breathingHalfSteps * cycles
	step := max(total/time.Duration(frames), minStep)
	return Plan{
		Steps:    breathingHalfSteps,
		Step:     step,
		Cycles:   cycles,
		Expected: step * time.Duration(frames),
	}, nil
}
