package config_test

import (
	"strings"
	"testing"

	"github.com/ada-assistant/ada/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "bad log level",
			yaml: "server: {log_level: loud}",
			want: []string{"server.log_level"},
		},
		{
			name: "min above max",
			yaml: "recording: {min_duration: 20s, max_duration: 10s}",
			want: []string{"recording.min_duration"},
		},
		{
			name: "threshold out of range",
			yaml: "recording: {silence_threshold: 40000}",
			want: []string{"recording.silence_threshold"},
		},
		{
			name: "odd chunk",
			yaml: "playback: {chunk_bytes: 4095}",
			want: []string{"playback.chunk_bytes"},
		},
		{
			name: "bad colour",
			yaml: "recording: {progress_color: [0, 300, -1]}",
			want: []string{"progress_color[1]", "progress_color[2]"},
		},
		{
			name: "unknown effect and missing cycles",
			yaml: `
feedback:
  steps:
    - effect: {kind: sparkle, duration: 1s}
    - effect: {kind: breathing, duration: 1s}
    - {}
`,
			want: []string{"steps[0].effect.kind", "steps[1].effect.cycles", "steps[2] is empty"},
		},
		{
			name: "start outside strip",
			yaml: `
effects: {led_count: 10}
startup:
  effect: {kind: fade_in, start: 10, duration: 1s}
`,
			want: []string{"startup.effect.start"},
		},
		{
			name: "task limit too small",
			yaml: "tasks: {limit: 2}",
			want: []string{"tasks.limit"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			yaml := "devices: {detector: {driver: mock}}\n" + tt.yaml
			_, err := config.LoadFromReader(strings.NewReader(yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q should mention %q", err, w)
				}
			}
		})
	}
}

func TestValidate_WhisperNeedsModel(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("devices: {detector: {driver: whisper}}"))
	if err == nil || !strings.Contains(err.Error(), "model_path") {
		t.Fatalf("want model_path error, got %v", err)
	}

	// The transcription model doubles as the wake model.
	_, err = config.LoadFromReader(strings.NewReader("transcription: {model_path: /m.bin}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("recording: {silence_treshold: 5}"))
	if err == nil {
		t.Fatal("expected error for misspelled field")
	}
}

func TestLoadFromReader_BadDuration(t *testing.T) {
	t.Parallel()
	for _, yaml := range []string{
		"recording: {max_duration: soon}",
		"recording: {max_duration: 10}",
	} {
		if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
			t.Errorf("%q: expected duration error", yaml)
		}
	}
}
