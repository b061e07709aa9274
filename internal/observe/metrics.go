// Package observe provides the appliance's observability primitives:
// OpenTelemetry metrics, tracing of recording sessions, and trace-aware
// structured logging.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping through the Prometheus exporter bridge installed by
// [InitProvider]. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/ada-assistant/ada"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// WakeEvents counts wake events accepted by the detect loop. Use with
	//   attribute.Int("model", ...), attribute.Int("word", ...)
	WakeEvents metric.Int64Counter

	// Recordings counts finished recording sessions by termination reason:
	//   attribute.String("reason", "silence"|"timeout"|"buffer_full"|"cancelled")
	Recordings metric.Int64Counter

	// RecordingDuration tracks the captured utterance length in seconds.
	RecordingDuration metric.Float64Histogram

	// EffectStarts counts LED effect start attempts. Use with
	//   attribute.String("effect", ...), attribute.String("status", ...)
	EffectStarts metric.Int64Counter

	// PlaybackStarts counts cue playback start attempts. Use with
	//   attribute.String("status", ...)
	PlaybackStarts metric.Int64Counter

	// DeviceErrors counts steady-state device errors. Use with
	//   attribute.String("device", ...), attribute.String("kind", ...)
	DeviceErrors metric.Int64Counter

	// ActiveTasks tracks live background tasks by kind.
	ActiveTasks metric.Int64UpDownCounter

	// TranscriptionDuration tracks utterance transcription latency.
	TranscriptionDuration metric.Float64Histogram
}

// recordingBuckets covers the configured recording bounds (seconds).
var recordingBuckets = []float64{0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15}

// latencyBuckets defines bucket boundaries (seconds) for inference latency.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.WakeEvents, err = m.Int64Counter("ada.wake.events",
		metric.WithDescription("Total wake events by model and word index."),
	); err != nil {
		return nil, err
	}
	if met.Recordings, err = m.Int64Counter("ada.recordings",
		metric.WithDescription("Total recording sessions by termination reason."),
	); err != nil {
		return nil, err
	}
	if met.RecordingDuration, err = m.Float64Histogram("ada.recording.duration",
		metric.WithDescription("Length of captured utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(recordingBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EffectStarts, err = m.Int64Counter("ada.effect.starts",
		metric.WithDescription("LED effect start attempts by effect and status."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackStarts, err = m.Int64Counter("ada.playback.starts",
		metric.WithDescription("Cue playback start attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.DeviceErrors, err = m.Int64Counter("ada.device.errors",
		metric.WithDescription("Steady-state device errors by device and kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveTasks, err = m.Int64UpDownCounter("ada.active_tasks",
		metric.WithDescription("Number of live background tasks by kind."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("ada.transcription.duration",
		metric.WithDescription("Latency of utterance transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordWake increments the wake counter.
func (m *Metrics) RecordWake(ctx context.Context, model, word int) {
	m.WakeEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("model", model),
		attribute.Int("word", word),
	))
}

// RecordRecording records a finished session and its captured length.
func (m *Metrics) RecordRecording(ctx context.Context, reason string, captured time.Duration) {
	attrs := metric.WithAttributes(attribute.String("reason", reason))
	m.Recordings.Add(ctx, 1, attrs)
	m.RecordingDuration.Record(ctx, captured.Seconds(), attrs)
}

// RecordEffectStart records an effect start attempt.
func (m *Metrics) RecordEffectStart(ctx context.Context, effect, status string) {
	m.EffectStarts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("effect", effect),
		attribute.String("status", status),
	))
}

// RecordPlaybackStart records a playback start attempt.
func (m *Metrics) RecordPlaybackStart(ctx context.Context, status string) {
	m.PlaybackStarts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordDeviceError records a steady-state device error.
func (m *Metrics) RecordDeviceError(ctx context.Context, device, kind string) {
	m.DeviceErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("device", device),
		attribute.String("kind", kind),
	))
}

// TaskStarted and TaskFinished move the active-task gauge for kind.
func (m *Metrics) TaskStarted(ctx context.Context, kind string) {
	m.ActiveTasks.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) TaskFinished(ctx context.Context, kind string) {
	m.ActiveTasks.Add(ctx, -1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordTranscription records the latency of one utterance handler call.
func (m *Metrics) RecordTranscription(ctx context.Context, d time.Duration, status string) {
	m.TranscriptionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}
