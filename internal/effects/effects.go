// Package effects runs LED strip animations.
//
// A [Scheduler] owns the strip. At most one animation task is live at a time:
// starting an effect while another runs fails fast with [fault.ErrBusy], and
// the caller must [Scheduler.StopEffect] first. Every pixel update and
// refresh happens while holding the strip lock, and the lock is released
// between frames so a stop request never waits behind a sleeping animation.
package effects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ada-assistant/ada/internal/fault"
	"github.com/ada-assistant/ada/internal/hwlock"
	"github.com/ada-assistant/ada/internal/observe"
	"github.com/ada-assistant/ada/internal/tasks"
	"github.com/ada-assistant/ada/pkg/led"
)

// Kind names an animation.
type Kind string

const (
	KindRainbow   Kind = "rainbow"
	KindFadeIn    Kind = "fade_in"
	KindFadeOut   Kind = "fade_out"
	KindBreathing Kind = "breathing"
)

const (
	defaultLockTimeout   = 200 * time.Millisecond
	defaultStopGrace     = 50 * time.Millisecond
	defaultFrameInterval = 50 * time.Millisecond
	defaultMinStep       = 5 * time.Millisecond
)

// errRevoked marks a frame skipped because the effect no longer owns the
// strip.
var errRevoked = errors.New("effects: effect stopped")

// Effect is the handle of one running animation, returned by the Start
// methods.
type Effect struct {
	id       uint64
	kind     Kind
	plan     Plan
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	revoked  atomic.Bool
	started  time.Time
	sched    *Scheduler
}

// Kind returns the animation kind.
func (e *Effect) Kind() Kind { return e.kind }

// Plan returns the timing the effect was started with.
func (e *Effect) Plan() Plan { return e.plan }

// Done is closed when the animation task returns.
func (e *Effect) Done() <-chan struct{} { return e.done }

// Wait blocks until the animation finishes or ctx is done.
func (e *Effect) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops this effect if it is still the scheduler's current one.
func (e *Effect) Stop() error {
	return e.sched.stop(e)
}

// Scheduler serialises LED animations on one strip. It is safe for
// concurrent use.
type Scheduler struct {
	strip   led.Strip
	lock    *hwlock.Lock
	pool    *tasks.Pool
	metrics *observe.Metrics

	lockTimeout   time.Duration
	stopGrace     time.Duration
	frameInterval time.Duration
	minStep       time.Duration

	mu     sync.Mutex
	cur    *Effect
	nextID uint64
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithLockTimeout bounds every strip lock wait. Default 200ms.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.lockTimeout = d }
}

// WithStopGrace sets how long StopEffect waits for cooperative exit before
// revoking the task. Default 50ms.
func WithStopGrace(d time.Duration) Option {
	return func(s *Scheduler) { s.stopGrace = d }
}

// WithFrameInterval sets the rainbow cadence. Default 50ms.
func WithFrameInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.frameInterval = d }
}

// WithMinStep sets the minimum per-frame and per-LED delay. Default 5ms.
func WithMinStep(d time.Duration) Option {
	return func(s *Scheduler) { s.minStep = d }
}

// WithPool sets the task pool effects are spawned from.
func WithPool(p *tasks.Pool) Option {
	return func(s *Scheduler) { s.pool = p }
}

// WithMetrics sets the metrics recorder. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New returns a scheduler driving strip, which must already be initialised.
func New(strip led.Strip, opts ...Option) *Scheduler {
	s := &Scheduler{
		strip:         strip,
		lock:          hwlock.New("led strip"),
		lockTimeout:   defaultLockTimeout,
		stopGrace:     defaultStopGrace,
		frameInterval: defaultFrameInterval,
		minStep:       defaultMinStep,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.pool == nil {
		s.pool = tasks.NewPool(0, tasks.WithMetrics(s.metrics))
	}
	return s
}

// Len reports the number of LEDs on the strip.
func (s *Scheduler) Len() int { return s.strip.Len() }

// Running reports whether an effect task currently owns the strip.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Current returns the running effect, or nil.
func (s *Scheduler) Current() *Effect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// SetSolidColor paints every LED c and refreshes.
func (s *Scheduler) SetSolidColor(c led.Color) error {
	if err := s.lock.Acquire(s.lockTimeout); err != nil {
		return fmt.Errorf("effects: set color: %w", err)
	}
	defer s.lock.Release()
	for i := range s.strip.Len() {
		s.strip.SetPixel(i, c)
	}
	return fault.Hardware("effects: refresh", s.strip.Refresh())
}

// Clear turns the strip off.
func (s *Scheduler) Clear() error {
	if err := s.lock.Acquire(s.lockTimeout); err != nil {
		return fmt.Errorf("effects: clear: %w", err)
	}
	defer s.lock.Release()
	return fault.Hardware("effects: clear", s.strip.Clear())
}

// StopEffect stops the running effect. It signals cancellation, waits the
// stop grace for the task to exit, and if it has not, revokes the task's
// ownership of the strip so it can never draw again. Returns an error
// wrapping [fault.ErrInvalidState] when no effect is running.
func (s *Scheduler) StopEffect() error {
	s.mu.Lock()
	e := s.cur
	s.mu.Unlock()
	if e == nil {
		return fmt.Errorf("effects: no effect running: %w", fault.ErrInvalidState)
	}
	return s.stop(e)
}

func (s *Scheduler) stop(e *Effect) error {
	s.mu.Lock()
	current := s.cur == e
	s.mu.Unlock()
	if !current {
		return fmt.Errorf("effects: %s effect not running: %w", e.kind, fault.ErrInvalidState)
	}

	e.cancel()
	t := time.NewTimer(s.stopGrace)
	defer t.Stop()
	select {
	case <-e.done:
		return nil
	case <-t.C:
	}

	// Hold the strip so the task cannot be mid-frame while it is revoked.
	if err := s.lock.Acquire(s.lockTimeout); err != nil {
		slog.Warn("effects: could not lock strip after stop, revoking anyway", "effect", e.kind, "err", err)
	} else {
		defer s.lock.Release()
	}
	e.revoked.Store(true)
	s.release(e)
	slog.Warn("effects: effect did not stop within grace, revoked", "effect", e.kind, "grace", s.stopGrace)
	return nil
}

// release clears e as the current effect if it still is.
func (s *Scheduler) release(e *Effect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == e {
		s.cur = nil
	}
}

// start atomically checks the scheduler is idle and installs a new effect,
// then spawns run on the pool. A spawn failure rolls the installation back.
func (s *Scheduler) start(kind Kind, plan Plan, prepare func() error, run func(e *Effect)) (*Effect, error) {
	e, err := s.install(kind, plan, prepare)
	if err == nil {
		err = s.pool.Go("effect", func() {
			defer s.finish(e)
			run(e)
		})
		if err != nil {
			s.release(e)
			e.cancel()
			close(e.done)
		}
	}

	s.metrics.RecordEffectStart(context.Background(), string(kind), fault.Kind(err))
	if err != nil {
		return nil, fmt.Errorf("effects: start %s: %w", kind, err)
	}
	slog.Debug("effects: started", "effect", kind, "id", e.id, "steps", plan.Steps, "step", plan.Step,
		"led_delay", plan.LEDDelay, "expected", plan.Expected)
	return e, nil
}

// reject records a start refused before any task state was touched.
func (s *Scheduler) reject(kind Kind, err error) error {
	s.metrics.RecordEffectStart(context.Background(), string(kind), fault.Kind(err))
	return err
}

func (s *Scheduler) install(kind Kind, plan Plan, prepare func() error) (*Effect, error) {
	if err := s.lock.Acquire(s.lockTimeout); err != nil {
		return nil, err
	}
	defer s.lock.Release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil {
		return nil, fmt.Errorf("%s effect already running: %w", s.cur.kind, fault.ErrBusy)
	}
	if prepare != nil {
		if err := prepare(); err != nil {
			return nil, err
		}
	}
	s.nextID++
	ctx, cancel := context.WithCancel(context.Background())
	e := &Effect{
		id:      s.nextID,
		kind:    kind,
		plan:    plan,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
		sched:   s,
	}
	s.cur = e
	return e, nil
}

// finish runs when the task returns: it releases ownership and audits the
// actual duration against the plan.
func (s *Scheduler) finish(e *Effect) {
	cancelled := e.ctx.Err() != nil
	e.cancel()
	s.release(e)
	close(e.done)

	if e.plan.Expected <= 0 || cancelled {
		return
	}
	actual := time.Since(e.started)
	diff := actual - e.plan.Expected
	if diff < 0 {
		diff = -diff
	}
	slog.Debug("effects: finished", "effect", e.kind, "expected", e.plan.Expected, "actual", actual)
	if diff > e.plan.Expected/20 {
		slog.Warn("effects: timing off by more than 5%", "effect", e.kind,
			"expected", e.plan.Expected, "actual", actual)
	}
}

// frame runs draw and a refresh under the strip lock, provided e still owns
// the strip and has not been cancelled.
func (s *Scheduler) frame(e *Effect, draw func()) error {
	if err := s.lock.AcquireContext(e.ctx, s.lockTimeout); err != nil {
		return err
	}
	defer s.lock.Release()
	if e.revoked.Load() || e.ctx.Err() != nil {
		return errRevoked
	}
	draw()
	return fault.Hardware("effects: refresh", s.strip.Refresh())
}

// finalClear turns the strip off at the end of an effect, including after a
// cooperative stop, unless the effect was revoked.
func (s *Scheduler) finalClear(e *Effect) {
	if err := s.lock.Acquire(s.lockTimeout); err != nil {
		slog.Warn("effects: final clear skipped", "effect", e.kind, "err", err)
		return
	}
	defer s.lock.Release()
	if e.revoked.Load() {
		return
	}
	if err := s.strip.Clear(); err != nil {
		slog.Warn("effects: final clear failed", "effect", e.kind, "err", err)
	}
}

// sleepUntil waits for deadline and reports false when e is cancelled first.
func sleepUntil(e *Effect, deadline time.Time) bool {
	d := time.Until(deadline)
	if d <= 0 {
		return e.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-e.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
