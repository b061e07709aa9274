package app

import (
	"github.com/ada-assistant/ada/internal/config"
	"github.com/ada-assistant/ada/internal/effects"
	"github.com/ada-assistant/ada/internal/engine"
	"github.com/ada-assistant/ada/pkg/led"
)

// ScriptFromConfig converts the configured feedback steps into an engine
// script. An empty list selects [engine.DefaultScript].
func ScriptFromConfig(fc config.FeedbackConfig) (engine.Script, error) {
	if len(fc.Steps) == 0 {
		return engine.DefaultScript(), nil
	}
	s := make(engine.Script, 0, len(fc.Steps))
	for _, st := range fc.Steps {
		s = append(s, engine.Step{
			Effect: effectStep(st.Effect),
			Cue:    st.Cue,
			Settle: st.Settle.Std(),
		})
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func effectStep(ec *config.EffectConfig) *engine.EffectStep {
	if ec == nil {
		return nil
	}
	return &engine.EffectStep{
		Kind:     effects.Kind(ec.Kind),
		Color:    rgb(ec.Color),
		Start:    ec.Start,
		Duration: ec.Duration.Std(),
		Cycles:   ec.Cycles,
		Reverse:  ec.Reverse,
	}
}

// rgb narrows a validated 0..255 triple.
func rgb(c config.RGB) led.Color {
	return led.Color{R: uint8(c[0]), G: uint8(c[1]), B: uint8(c[2])}
}

// settingsFromConfig maps the recording section onto engine settings.
func settingsFromConfig(rc config.RecordingConfig) engine.Settings {
	s := engine.DefaultSettings()
	s.SilenceThreshold = rc.SilenceThreshold
	s.SilenceDuration = rc.SilenceDuration.Std()
	s.MinDuration = rc.MinDuration.Std()
	s.MaxDuration = rc.MaxDuration.Std()
	s.ChunkSamples = rc.ChunkSamples
	s.IntroDuration = rc.IntroDuration.Std()
	s.ListenCue = rc.ListenCue
	if rc.ProgressColor != nil {
		s.ProgressColor = rgb(*rc.ProgressColor)
	}
	return s
}
