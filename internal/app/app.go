// Package app wires the appliance's subsystems into a running process.
//
// The App struct owns the full lifecycle: New initialises the devices and
// builds the LED and playback schedulers and the interaction engine, Run
// plays the startup feedback, serves the probe endpoints and runs the engine
// until ctx ends, and Shutdown releases the devices in reverse order.
//
// For testing, build [Devices] from the mock drivers and inject a metrics
// set and cue filesystem via functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/ada-assistant/ada/internal/config"
	"github.com/ada-assistant/ada/internal/effects"
	"github.com/ada-assistant/ada/internal/engine"
	"github.com/ada-assistant/ada/internal/fault"
	"github.com/ada-assistant/ada/internal/health"
	"github.com/ada-assistant/ada/internal/observe"
	"github.com/ada-assistant/ada/internal/playback"
	"github.com/ada-assistant/ada/internal/resilience"
	"github.com/ada-assistant/ada/internal/tasks"
	"github.com/ada-assistant/ada/pkg/audio"
	"github.com/ada-assistant/ada/pkg/cue"
)

const serverShutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	dev     *Devices
	metrics *observe.Metrics
	promH   http.Handler
	level   *slog.LevelVar
	cueFs   afero.Fs

	// Subsystems, initialised in New.
	pool    *tasks.Pool
	fx      *effects.Scheduler
	pb      *playback.Scheduler
	eng     *engine.Engine
	breaker *resilience.Breaker
	mux     *http.ServeMux

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics sets the metrics every subsystem records to. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.promH = h }
}

// WithLogLevel lets configuration reloads change the log level of the
// process-wide handler built on lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithCueFs sets the filesystem cues are read from. Defaults to the OS
// filesystem.
func WithCueFs(fs afero.Fs) Option {
	return func(a *App) { a.cueFs = fs }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New initialises the devices in dev and wires the schedulers and the engine
// on top of them. A device that fails to initialise aborts startup; devices
// already initialised are deinitialised again and the caller still owns dev.
func New(cfg *config.Config, dev *Devices, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, dev: dev}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.cueFs == nil {
		a.cueFs = afero.NewOsFs()
	}

	// ── 1. Devices ───────────────────────────────────────────────────────
	if err := a.initDevices(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init devices: %w", err)
	}

	// ── 2. Schedulers ────────────────────────────────────────────────────
	a.pool = tasks.NewPool(cfg.Tasks.Limit, tasks.WithMetrics(a.metrics))
	a.initSchedulers()

	// ── 3. Engine ────────────────────────────────────────────────────────
	if err := a.initEngine(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init engine: %w", err)
	}

	// ── 4. Probes ────────────────────────────────────────────────────────
	a.initMux()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initDevices() error {
	if err := a.dev.Microphone.Init(); err != nil {
		return fmt.Errorf("microphone: %w", fault.Hardware("init", err))
	}
	a.closers = append(a.closers, a.dev.Microphone.Deinit)

	if err := a.dev.Speaker.Init(); err != nil {
		return fmt.Errorf("speaker: %w", fault.Hardware("init", err))
	}
	a.closers = append(a.closers, a.dev.Speaker.Deinit)

	if err := a.dev.Strip.Init(a.cfg.Effects.LEDCount); err != nil {
		return fmt.Errorf("led strip: %w", fault.Hardware("init", err))
	}
	a.closers = append(a.closers, a.dev.Strip.Clear)
	return nil
}

func (a *App) initSchedulers() {
	ec, pc := a.cfg.Effects, a.cfg.Playback

	a.fx = effects.New(a.dev.Strip,
		effects.WithLockTimeout(ec.LockTimeout.Std()),
		effects.WithStopGrace(ec.StopGrace.Std()),
		effects.WithFrameInterval(ec.FrameInterval.Std()),
		effects.WithMinStep(ec.MinStep.Std()),
		effects.WithPool(a.pool),
		effects.WithMetrics(a.metrics),
	)

	store := cue.NewStore(a.cueFs, pc.CueDir, audio.Format{SampleRate: pc.SampleRate, Channels: 1})
	a.pb = playback.New(a.dev.Speaker, store,
		playback.WithVolume(a.dev.Volume),
		playback.WithChunkBytes(pc.ChunkBytes),
		playback.WithWriteTimeout(pc.WriteTimeout.Std()),
		playback.WithStopPoll(pc.StopPoll.Std()),
		playback.WithLockTimeout(pc.LockTimeout.Std()),
		playback.WithPool(a.pool),
		playback.WithMetrics(a.metrics),
	)
	a.pb.SetFinishedCallback(cueFinished)
}

func (a *App) initEngine() error {
	script, err := ScriptFromConfig(a.cfg.Feedback)
	if err != nil {
		return fmt.Errorf("feedback script: %w", err)
	}
	opts := []engine.Option{
		engine.WithPool(a.pool),
		engine.WithMetrics(a.metrics),
		engine.WithScript(script),
	}
	if a.dev.Transcriber != nil {
		tc := a.cfg.Transcription
		a.breaker = resilience.NewBreaker("transcriber",
			resilience.WithThreshold(tc.FailureThreshold),
			resilience.WithCooldown(tc.Cooldown.Std()),
		)
		opts = append(opts, engine.WithUtteranceHandler(transcribe(a.dev.Transcriber), a.breaker))
	}

	a.eng, err = engine.New(a.dev.Microphone, a.dev.Detector, a.fx, a.pb, settingsFromConfig(a.cfg.Recording), opts...)
	return err
}

func (a *App) initMux() {
	checkers := []health.Checker{
		health.Flag("engine", a.eng.Ready, "engine loops not running"),
	}
	if a.breaker != nil {
		checkers = append(checkers, health.NotIn("transcriber", a.breaker.State, resilience.StateOpen))
	}

	a.mux = http.NewServeMux()
	health.New(checkers...).Register(a.mux)
	if a.promH != nil {
		a.mux.Handle("GET /metrics", a.promH)
	}
}

// transcribe returns an utterance handler logging the whisper transcript.
func transcribe(t Transcriber) engine.UtteranceHandler {
	return func(ctx context.Context, u engine.Utterance) error {
		text, err := t.TranscribePCM(ctx, u.Samples, u.SampleRate)
		if err != nil {
			return fmt.Errorf("transcribe: %w", err)
		}
		observe.Logger(ctx).Info("utterance transcribed",
			"text", text,
			"reason", u.Reason,
			"duration", u.Duration(),
		)
		return nil
	}
}

func cueFinished(name string, err error) {
	if err != nil {
		slog.Warn("cue playback failed", "cue", name, "err", err)
		return
	}
	slog.Debug("cue finished", "cue", name)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Engine returns the interaction engine.
func (a *App) Engine() *engine.Engine { return a.eng }

// Handler returns the HTTP handler serving the probe and metrics routes.
func (a *App) Handler() http.Handler { return a.mux }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run plays the startup feedback and runs the engine, plus the HTTP server
// when server.listen_addr is set, until ctx is cancelled or either fails.
func (a *App) Run(ctx context.Context) error {
	a.startup()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.eng.Run(gctx) })

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: a.mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			slog.Info("http server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	return g.Wait()
}

// startup starts the configured boot effect and cue. Failures are logged;
// the appliance still listens without them.
func (a *App) startup() {
	sc := a.cfg.Startup
	if sc.Effect != nil {
		if _, err := engine.StartEffect(a.fx, *effectStep(sc.Effect)); err != nil {
			slog.Warn("startup effect failed", "kind", sc.Effect.Kind, "err", err)
		}
	}
	if sc.Cue != "" {
		if err := a.pb.StartPlayback(sc.Cue); err != nil {
			slog.Warn("startup cue failed", "cue", sc.Cue, "err", err)
		}
	}
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of a changed configuration:
// the log level and the feedback script. Other changes are logged as
// needing a restart. It has the signature of a [config.Watcher] callback.
func (a *App) ApplyConfig(old, updated *config.Config) {
	d := config.Diff(old, updated)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.FeedbackChanged {
		script, err := ScriptFromConfig(updated.Feedback)
		if err != nil {
			slog.Warn("feedback script rejected", "err", err)
		} else {
			a.eng.SetScript(script)
			slog.Info("feedback script reloaded", "steps", len(script))
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops any running effect and cue, waits for background tasks and
// releases the devices in reverse-init order. Call it after Run returns. If
// ctx expires while tasks are still running the devices are left open and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.fx.StopEffect(); err != nil && !errors.Is(err, fault.ErrInvalidState) {
			slog.Warn("stop effect", "err", err)
		}
		if err := a.pb.StopPlayback(); err != nil && !errors.Is(err, fault.ErrInvalidState) {
			slog.Warn("stop playback", "err", err)
		}

		done := make(chan struct{})
		go func() {
			a.pool.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded waiting for tasks")
			shutdownErr = ctx.Err()
			return
		}

		a.runClosers()
		if err := a.dev.Close(); err != nil {
			slog.Warn("device close error", "err", err)
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) runClosers() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
}
