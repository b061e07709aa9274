// Package whisper runs whisper.cpp locally through its CGO bindings for two
// jobs: spotting the wake phrase ([Detector]) and transcribing the captured
// utterance ([Model.TranscribePCM]).
//
// The whisper.cpp static library (libwhisper.a) and headers must be
// available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/ada-assistant/ada/pkg/audio"
)

// SampleRate is the only input rate whisper.cpp accepts.
const SampleRate = 16000

const defaultLanguage = "en"

// Model is a loaded whisper.cpp model. It is safe for concurrent use; each
// inference creates its own context.
type Model struct {
	model    whisperlib.Model
	language string
}

// ModelOption configures a [Model].
type ModelOption func(*Model)

// WithLanguage sets the transcription language code. Defaults to "en".
func WithLanguage(lang string) ModelOption {
	return func(m *Model) { m.language = lang }
}

// Open loads the model file at path. Call Close when done.
func Open(path string, opts ...ModelOption) (*Model, error) {
	if path == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	lib, err := whisperlib.New(path)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", path, err)
	}
	m := &Model{model: lib, language: defaultLanguage}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Close releases the model.
func (m *Model) Close() error {
	if m.model == nil {
		return nil
	}
	return m.model.Close()
}

// TranscribePCM transcribes mono int16 samples recorded at rate Hz. Input at
// other rates is resampled to 16 kHz first.
func (m *Model) TranscribePCM(ctx context.Context, samples []int16, rate int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rate != SampleRate {
		samples = audio.Resample(samples, rate, SampleRate)
	}
	return m.transcribe(toFloat32(samples))
}

func (m *Model) transcribe(samples []float32) (string, error) {
	wctx, err := m.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(m.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", m.language, "err", err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		// Bracketed segments are non-speech annotations like "[BLANK_AUDIO]".
		if text == "" || strings.HasPrefix(text, "[") || strings.HasPrefix(text, "(") {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " "), nil
}

// toFloat32 normalises int16 samples to [-1, 1].
func toFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
