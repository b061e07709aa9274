package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ada-assistant/ada/internal/effects"
	"github.com/ada-assistant/ada/internal/fault"
	"github.com/ada-assistant/ada/internal/observe"
	"github.com/ada-assistant/ada/pkg/led"
)

// EffectStep describes the LED effect of one feedback step.
type EffectStep struct {
	Kind     effects.Kind
	Color    led.Color
	Start    int
	Duration time.Duration
	Cycles   int
	Reverse  bool
}

// Step is one entry of the feedback script. Either part may be empty.
type Step struct {
	Effect *EffectStep
	Cue    string

	// Settle is waited after the step has started.
	Settle time.Duration
}

// Script is the feedback choreography run after every recording. Steps run
// strictly in order; each stops the previous step's effect and cue first.
type Script []Step

// DefaultScript is the firmware's acknowledge, error and ambient sequence.
func DefaultScript() Script {
	return Script{
		{
			Effect: &EffectStep{Kind: effects.KindBreathing, Color: led.Color{R: 255, G: 80}, Duration: 5 * time.Second, Cycles: 3},
			Cue:    "custom_listening_end.pcm",
			Settle: 5 * time.Second,
		},
		{
			Effect: &EffectStep{Kind: effects.KindBreathing, Color: led.Color{R: 255}, Duration: 5 * time.Second, Cycles: 6},
			Cue:    "error_lost_wifi_connection.pcm",
			Settle: 5 * time.Second,
		},
		{
			Effect: &EffectStep{Kind: effects.KindBreathing, Color: led.Color{G: 255, B: 125}, Duration: 38 * time.Second, Cycles: 19},
			Cue:    "lounge_act.pcm",
		},
	}
}

// Validate checks every step's effect kind and parameters.
func (s Script) Validate() error {
	var errs []error
	for i, st := range s {
		if st.Settle < 0 {
			errs = append(errs, fmt.Errorf("step %d: negative settle %s", i, st.Settle))
		}
		if st.Effect == nil {
			continue
		}
		switch st.Effect.Kind {
		case effects.KindRainbow:
		case effects.KindFadeIn, effects.KindFadeOut:
			if st.Effect.Duration <= 0 {
				errs = append(errs, fmt.Errorf("step %d: %s needs a duration", i, st.Effect.Kind))
			}
		case effects.KindBreathing:
			if st.Effect.Cycles < 1 {
				errs = append(errs, fmt.Errorf("step %d: breathing needs at least one cycle", i))
			}
		default:
			errs = append(errs, fmt.Errorf("step %d: unknown effect %q", i, st.Effect.Kind))
		}
		if st.Effect.Start < 0 {
			errs = append(errs, fmt.Errorf("step %d: negative start index", i))
		}
	}
	return errors.Join(errs...)
}

// StartEffect starts the described effect on fx.
func StartEffect(fx *effects.Scheduler, st EffectStep) (*effects.Effect, error) {
	switch st.Kind {
	case effects.KindRainbow:
		return fx.StartRainbow()
	case effects.KindFadeIn:
		return fx.StartSequentialFadeIn(st.Start, st.Color, st.Duration, st.Reverse)
	case effects.KindFadeOut:
		return fx.StartSequentialFadeOut(st.Start, st.Color, st.Duration, st.Reverse)
	case effects.KindBreathing:
		return fx.StartColorBreathing(st.Start, st.Color, st.Duration, st.Cycles)
	default:
		return nil, fmt.Errorf("engine: unknown effect %q: %w", st.Kind, fault.ErrInvalidArgument)
	}
}

// runScript runs the steps in order. A step that fails to start its effect
// or cue still waits its settle time so the choreography keeps its pacing.
func (e *Engine) runScript(ctx context.Context, s Script) {
	log := observe.Logger(ctx)
	for i, st := range s {
		if ctx.Err() != nil {
			return
		}
		e.stopFeedback()
		if st.Effect != nil {
			if _, err := StartEffect(e.fx, *st.Effect); err != nil {
				log.Warn("engine: feedback effect", "step", i, "effect", st.Effect.Kind, "err", err)
			}
		}
		if st.Cue != "" {
			if err := e.pb.StartPlayback(st.Cue); err != nil {
				log.Warn("engine: feedback cue", "step", i, "cue", st.Cue, "err", err)
			}
		}
		if st.Settle > 0 {
			sleep(ctx, st.Settle)
		}
	}
}

// enterRecording plays the wake feedback: a short fade-in with the listen
// cue, then a fade-out spanning the maximum recording time as a progress
// bar.
func (e *Engine) enterRecording(ctx context.Context) {
	log := observe.Logger(ctx)
	c := e.cfg.ProgressColor

	e.stopEffect(ctx)
	if err := e.fx.Clear(); err != nil {
		log.Warn("engine: clear strip", "err", err)
	}
	if e.cfg.IntroDuration > 0 {
		if _, err := e.fx.StartSequentialFadeIn(0, c, e.cfg.IntroDuration, false); err != nil {
			log.Warn("engine: wake fade-in", "err", err)
		}
	}

	e.stopPlayback(ctx)
	if e.cfg.ListenCue != "" {
		if err := e.pb.StartPlayback(e.cfg.ListenCue); err != nil {
			log.Warn("engine: listen cue", "err", err)
		}
	}

	if e.cfg.IntroDuration > 0 {
		sleep(ctx, e.cfg.IntroDuration)
	}

	e.stopEffect(ctx)
	if n := e.fx.Len(); n > 0 {
		if _, err := e.fx.StartSequentialFadeOut(n-1, c, e.cfg.MaxDuration, true); err != nil {
			log.Warn("engine: progress fade-out", "err", err)
		}
	}
}

// stopFeedback stops whatever effect and cue are running.
func (e *Engine) stopFeedback() {
	ctx := context.Background()
	e.stopEffect(ctx)
	e.stopPlayback(ctx)
}

func (e *Engine) stopEffect(ctx context.Context) {
	if err := e.fx.StopEffect(); err != nil && !errors.Is(err, fault.ErrInvalidState) {
		observe.Logger(ctx).Warn("engine: stop effect", "err", err)
	}
}

func (e *Engine) stopPlayback(ctx context.Context) {
	if err := e.pb.StopPlayback(); err != nil && !errors.Is(err, fault.ErrInvalidState) {
		observe.Logger(ctx).Warn("engine: stop playback", "err", err)
	}
}
