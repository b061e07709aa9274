// Package resilience guards optional collaborators that may fail repeatedly,
// such as a transcription model, so a broken one stops costing time on the
// interaction path.
//
// [Breaker] is a three-state circuit breaker (closed → open → half-open). It
// is safe for concurrent use.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrOpen] until the cooldown elapses.
	StateOpen

	// StateHalfOpen lets a single probe through. Its outcome closes or
	// re-opens the breaker.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultThreshold = 3
	defaultCooldown  = time.Minute
)

// Breaker trips after a run of consecutive failures.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// Option configures a [Breaker].
type Option func(*Breaker)

// WithThreshold sets how many consecutive failures open the breaker.
// Default 3.
func WithThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCooldown sets how long the breaker stays open before probing.
// Default 1m.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// NewBreaker returns a closed breaker. name labels log lines.
func NewBreaker(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: defaultThreshold,
		cooldown:  defaultCooldown,
		now:       time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Do calls fn unless the breaker is open. A rejected call returns an error
// wrapping [ErrOpen] and fn is not called.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.record(probe, err)
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, fmt.Errorf("%s: %w", b.name, ErrOpen)
		}
		b.state = StateHalfOpen
		slog.Info("circuit breaker probing", "name", b.name)
		fallthrough
	case StateHalfOpen:
		if b.probing {
			return false, fmt.Errorf("%s: probe in flight: %w", b.name, ErrOpen)
		}
		b.probing = true
		return true, nil
	}
	return false, nil
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}
	if err == nil {
		if b.state != StateClosed {
			slog.Info("circuit breaker closed", "name", b.name)
		}
		b.state = StateClosed
		b.failures = 0
		return
	}

	b.failures++
	if probe || b.failures >= b.threshold {
		if b.state != StateOpen {
			slog.Warn("circuit breaker opened", "name", b.name, "consecutive_failures", b.failures, "err", err)
		}
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// State returns the current state. An open breaker whose cooldown has
// elapsed reports [StateHalfOpen]; the transition happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probing = false
}
