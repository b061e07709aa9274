// Package engine is the interaction state machine of the appliance.
//
// An [Engine] runs two long-lived loops. The feed loop reads microphone
// frames and hands them to the wake detector; the detect loop polls the
// detector and, on a wake event, switches the engine to [StateRecording] and
// spawns a recording session. The session captures an utterance directly from
// the microphone, ends it on silence or a duration bound, runs the feedback
// script and hands control back to [StateDetecting].
//
// The microphone has no lock. Exclusive access is structural: entering
// Recording sets the state and then pauses the feed loop, waiting for any
// in-flight read to finish; leaving Recording resumes the feed loop and then
// sets the state.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ada-assistant/ada/internal/effects"
	"github.com/ada-assistant/ada/internal/fault"
	"github.com/ada-assistant/ada/internal/observe"
	"github.com/ada-assistant/ada/internal/playback"
	"github.com/ada-assistant/ada/internal/resilience"
	"github.com/ada-assistant/ada/internal/tasks"
	"github.com/ada-assistant/ada/pkg/audio"
	"github.com/ada-assistant/ada/pkg/led"
	"github.com/ada-assistant/ada/pkg/provider/wake"
)

// State is the interaction state.
type State int32

const (
	StateDetecting State = iota
	StateRecording
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDetecting:
		return "detecting"
	case StateRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// Settings holds the recording and polling parameters.
type Settings struct {
	// SilenceThreshold is the largest sample magnitude, in raw PCM units,
	// that still counts as silence.
	SilenceThreshold int

	// SilenceDuration of consecutive silence ends a recording once
	// MinDuration has passed.
	SilenceDuration time.Duration
	MinDuration     time.Duration

	// MaxDuration bounds a recording and sizes the capture buffer.
	MaxDuration time.Duration

	// ChunkSamples is the per-channel read size of the capture loop. Zero
	// derives a 20ms chunk from the detector's sample rate.
	ChunkSamples int

	// IntroDuration is the length of the wake fade-in and the pause before
	// capture starts.
	IntroDuration time.Duration

	// ListenCue is played on wake. Empty disables it.
	ListenCue string

	// ProgressColor is the colour of the wake fade-in and the recording
	// progress fade-out.
	ProgressColor led.Color

	// FeedPause is the feed loop's sleep while paused, and FetchRetry the
	// detect loop's delay after a fetch failure or while recording.
	FeedPause  time.Duration
	FetchRetry time.Duration
}

// DefaultSettings returns the firmware defaults.
func DefaultSettings() Settings {
	return Settings{
		SilenceThreshold: 1000,
		SilenceDuration:  1500 * time.Millisecond,
		MinDuration:      2 * time.Second,
		MaxDuration:      10 * time.Second,
		IntroDuration:    500 * time.Millisecond,
		ListenCue:        "custom_listening_start.pcm",
		ProgressColor:    led.Color{B: 100},
		FeedPause:        10 * time.Millisecond,
		FetchRetry:       10 * time.Millisecond,
	}
}

func (s Settings) validate() error {
	switch {
	case s.MaxDuration <= 0:
		return fmt.Errorf("engine: max duration must be positive: %w", fault.ErrInvalidArgument)
	case s.MinDuration < 0 || s.MinDuration > s.MaxDuration:
		return fmt.Errorf("engine: min duration %s outside 0..%s: %w", s.MinDuration, s.MaxDuration, fault.ErrInvalidArgument)
	case s.SilenceDuration <= 0:
		return fmt.Errorf("engine: silence duration must be positive: %w", fault.ErrInvalidArgument)
	case s.SilenceThreshold < 0:
		return fmt.Errorf("engine: negative silence threshold: %w", fault.ErrInvalidArgument)
	case s.ChunkSamples < 0:
		return fmt.Errorf("engine: negative chunk size: %w", fault.ErrInvalidArgument)
	case s.FeedPause <= 0 || s.FetchRetry <= 0:
		return fmt.Errorf("engine: poll intervals must be positive: %w", fault.ErrInvalidArgument)
	}
	return nil
}

// Engine ties the microphone, detector and feedback schedulers together.
type Engine struct {
	src     audio.Source
	det     wake.Detector
	fx      *effects.Scheduler
	pb      *playback.Scheduler
	cfg     Settings
	rate    int
	pool    *tasks.Pool
	metrics *observe.Metrics
	now     func() time.Time

	handler UtteranceHandler
	breaker *resilience.Breaker
	script  atomic.Pointer[Script]

	state   atomic.Int32
	gate    feedGate
	running atomic.Bool
	ready   atomic.Bool

	// buf is the capture arena, reused by every session.
	buf      []int16
	sessions sync.WaitGroup
}

// Option configures an [Engine].
type Option func(*Engine)

// WithPool sets the task pool recording sessions are spawned from.
func WithPool(p *tasks.Pool) Option {
	return func(e *Engine) { e.pool = p }
}

// WithMetrics sets the metrics recorder. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now for recording-duration checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithScript sets the post-recording feedback script. Defaults to
// [DefaultScript].
func WithScript(s Script) Option {
	return func(e *Engine) { e.script.Store(&s) }
}

// WithUtteranceHandler hands every captured utterance to h before the
// feedback script runs. Calls go through a circuit breaker; pass nil b for
// a default one.
func WithUtteranceHandler(h UtteranceHandler, b *resilience.Breaker) Option {
	return func(e *Engine) {
		e.handler = h
		e.breaker = b
	}
}

// New returns an engine. The devices must already be initialised. The
// source must deliver the detector's sample rate and channel count.
func New(src audio.Source, det wake.Detector, fx *effects.Scheduler, pb *playback.Scheduler, cfg Settings, opts ...Option) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if det.Channels() != src.Channels() {
		return nil, fmt.Errorf("engine: detector expects %d channels, microphone has %d: %w",
			det.Channels(), src.Channels(), fault.ErrInvalidArgument)
	}
	if det.FeedChunkSize() <= 0 || det.SampleRate() <= 0 {
		return nil, fmt.Errorf("engine: detector reports no chunk size or sample rate: %w", fault.ErrInvalidArgument)
	}

	e := &Engine{
		src:  src,
		det:  det,
		fx:   fx,
		pb:   pb,
		cfg:  cfg,
		rate: det.SampleRate(),
		now:  time.Now,
	}
	if e.cfg.ChunkSamples == 0 {
		e.cfg.ChunkSamples = e.rate / 50
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	if e.pool == nil {
		e.pool = tasks.NewPool(0, tasks.WithMetrics(e.metrics))
	}
	if e.script.Load() == nil {
		e.SetScript(DefaultScript())
	}
	if e.handler != nil && e.breaker == nil {
		e.breaker = resilience.NewBreaker("utterance handler")
	}

	capacity := int(int64(e.rate) * int64(cfg.MaxDuration) / int64(time.Second))
	e.buf = make([]int16, 0, capacity)
	return e, nil
}

// State returns the current interaction state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Ready reports whether the feed and detect loops are running.
func (e *Engine) Ready() bool { return e.ready.Load() }

// SetScript replaces the feedback script. The next session uses it.
func (e *Engine) SetScript(s Script) {
	e.script.Store(&s)
}

// Script returns the current feedback script.
func (e *Engine) Script() Script { return *e.script.Load() }

// Run starts the feed and detect loops and blocks until ctx is cancelled or
// a loop fails. It waits for an in-progress recording session to finish
// before returning. Run may be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("engine: already running: %w", fault.ErrInvalidState)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.feedLoop(gctx) })
	g.Go(func() error { return e.detectLoop(gctx) })
	e.ready.Store(true)
	slog.Info("engine: listening", "sample_rate", e.rate, "feed_chunk", e.det.FeedChunkSize(),
		"channels", e.det.Channels(), "input_format", e.src.InputFormat())

	err := g.Wait()
	e.ready.Store(false)
	e.sessions.Wait()
	return err
}
