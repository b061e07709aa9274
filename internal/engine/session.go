package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ada-assistant/ada/internal/fault"
	"github.com/ada-assistant/ada/internal/observe"
	"github.com/ada-assistant/ada/pkg/audio"
	"github.com/ada-assistant/ada/pkg/provider/wake"
)

// EndReason says why a recording ended.
type EndReason string

const (
	EndSilence    EndReason = "silence"
	EndTimeout    EndReason = "timeout"
	EndBufferFull EndReason = "buffer_full"
	EndCancelled  EndReason = "cancelled"
)

// Utterance is one captured recording. Samples is mono at SampleRate and is
// only valid for the duration of the handler call.
type Utterance struct {
	Samples    []int16
	SampleRate int
	Reason     EndReason
	Wake       wake.Result
}

// Duration returns the captured audio length.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// UtteranceHandler consumes a captured utterance, for example by
// transcribing it.
type UtteranceHandler func(ctx context.Context, u Utterance) error

// record is one recording session: entry feedback, capture, post-processing
// and hand-back to Detecting.
func (e *Engine) record(ctx context.Context, res wake.Result) {
	ctx, span := observe.StartSpan(ctx, "engine.recording", trace.WithAttributes(
		attribute.Int("wake.model", res.ModelIndex),
		attribute.Int("wake.word", res.WordIndex),
	))
	defer span.End()
	log := observe.Logger(ctx)

	defer func() {
		e.buf = e.buf[:0]
		e.gate.resume()
		e.state.Store(int32(StateDetecting))
		log.Debug("engine: back to detecting")
	}()

	e.enterRecording(ctx)

	reason := e.capture(ctx)
	u := Utterance{Samples: e.buf, SampleRate: e.rate, Reason: reason, Wake: res}
	span.SetAttributes(
		attribute.String("recording.reason", string(reason)),
		attribute.Int("recording.samples", len(e.buf)),
	)
	e.metrics.RecordRecording(ctx, string(reason), u.Duration())
	log.Info("engine: recording ended", "reason", reason, "captured", u.Duration(), "samples", len(e.buf))

	if reason == EndCancelled {
		e.stopFeedback()
		return
	}
	e.postProcess(ctx, u)
}

// capture reads the microphone into the arena until silence, the duration
// bound, a full buffer or cancellation.
func (e *Engine) capture(ctx context.Context) EndReason {
	ch := max(1, e.src.Channels())
	chunk := make([]int16, e.cfg.ChunkSamples*ch)
	mono := make([]int16, e.cfg.ChunkSamples)
	silenceNeeded := int(int64(e.rate) * int64(e.cfg.SilenceDuration) / int64(time.Second))
	log := observe.Logger(ctx)

	start := e.now()
	silent := 0
	for {
		if ctx.Err() != nil {
			return EndCancelled
		}

		n, err := e.src.ReadFrame(chunk)
		if err != nil {
			log.Warn("engine: capture read failed", "err", err)
			e.metrics.RecordDeviceError(ctx, "microphone", fault.Kind(fault.Hardware("read", err)))
			n = 0
		}
		samples := audio.FirstChannel(mono, chunk[:n-n%ch], ch)

		room := cap(e.buf) - len(e.buf)
		if len(samples) > room {
			e.buf = append(e.buf, samples[:room]...)
			return EndBufferFull
		}
		e.buf = append(e.buf, samples...)

		if len(samples) > 0 {
			if audio.IsSilent(samples, e.cfg.SilenceThreshold) {
				silent += len(samples)
			} else {
				silent = 0
			}
		}

		elapsed := e.now().Sub(start)
		if silent >= silenceNeeded && elapsed > e.cfg.MinDuration {
			return EndSilence
		}
		if elapsed >= e.cfg.MaxDuration {
			return EndTimeout
		}
		if err != nil && !sleep(ctx, e.cfg.FeedPause) {
			return EndCancelled
		}
	}
}

// postProcess runs the utterance handler and then the feedback script.
func (e *Engine) postProcess(ctx context.Context, u Utterance) {
	e.stopEffect(ctx)
	if e.handler != nil && len(u.Samples) > 0 {
		e.handle(ctx, u)
	}
	e.runScript(ctx, e.Script())
}

func (e *Engine) handle(ctx context.Context, u Utterance) {
	ctx, span := observe.StartSpan(ctx, "engine.utterance")
	defer span.End()

	start := time.Now()
	err := e.breaker.Do(func() error { return e.handler(ctx, u) })
	e.metrics.RecordTranscription(ctx, time.Since(start), fault.Kind(err))
	if err != nil {
		span.RecordError(err)
		observe.Logger(ctx).Warn("engine: utterance handler failed", "err", err)
	}
}
