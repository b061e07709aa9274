package audio_test

import (
	"testing"

	"github.com/ada-assistant/ada/pkg/audio"
)

func TestFirstChannel(t *testing.T) {
	t.Parallel()

	src := []int16{1, -1, 2, -2, 3, -3}
	dst := make([]int16, 3)
	got := audio.FirstChannel(dst, src, 2)
	want := []int16{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	mono := audio.FirstChannel(make([]int16, 4), []int16{7, 8}, 1)
	if len(mono) != 2 || mono[0] != 7 || mono[1] != 8 {
		t.Errorf("mono passthrough = %v", mono)
	}
}

func TestIsSilent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples []int16
		want    bool
	}{
		{"empty", nil, true},
		{"quiet", []int16{0, 500, -999, 1000}, true},
		{"loud positive", []int16{0, 1001}, false},
		{"loud negative", []int16{-1001, 0}, false},
		{"min int16", []int16{-32768}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.IsSilent(tt.samples, 1000); got != tt.want {
				t.Errorf("IsSilent(%v) = %v, want %v", tt.samples, got, tt.want)
			}
		})
	}
}

func TestScaleVolume(t *testing.T) {
	t.Parallel()

	samples := []int16{1000, -1000, 32767}
	p := audio.Int16ToBytes(nil, samples)

	audio.ScaleVolume(p, 100)
	if got := audio.BytesToInt16(nil, p); got[0] != 1000 {
		t.Fatalf("100%% changed samples: %v", got)
	}

	audio.ScaleVolume(p, 50)
	got := audio.BytesToInt16(nil, p)
	want := []int16{500, -500, 16383}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	in := []int16{0, 100, 200, 300}
	if got := audio.Resample(in, 16000, 16000); len(got) != 4 {
		t.Errorf("same-rate resample changed length to %d", len(got))
	}

	up := audio.Resample(in, 8000, 16000)
	if len(up) != 8 {
		t.Fatalf("upsampled len = %d, want 8", len(up))
	}
	if up[1] != 50 {
		t.Errorf("interpolated sample = %d, want 50", up[1])
	}

	down := audio.Resample(in, 16000, 8000)
	if len(down) != 2 || down[1] != 200 {
		t.Errorf("downsampled = %v, want [0 200]", down)
	}
}

func TestFormatString(t *testing.T) {
	t.Parallel()

	if got := (audio.Format{SampleRate: 16000, Channels: 1}).String(); got != "16000Hz mono" {
		t.Errorf("got %q", got)
	}
	if got := (audio.Format{SampleRate: 48000, Channels: 4}).String(); got != "48000Hz 4ch" {
		t.Errorf("got %q", got)
	}
}
