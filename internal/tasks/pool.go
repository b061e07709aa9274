// Package tasks spawns the appliance's short-lived background tasks (effect
// animations, cue playback, recording sessions) from a bounded pool.
//
// Spawning never blocks: when the pool is exhausted [Pool.Go] returns
// [fault.ErrSpawn] and the caller rolls back whatever it marked as running.
package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ada-assistant/ada/internal/fault"
	"github.com/ada-assistant/ada/internal/observe"
)

// DefaultLimit is the default number of concurrently live tasks. One
// recording session, one effect and one playback leave headroom for
// overlapping teardown.
const DefaultLimit = 8

// Pool is a bounded spawner. It is safe for concurrent use.
type Pool struct {
	g       errgroup.Group
	metrics *observe.Metrics
}

// Option configures a [Pool].
type Option func(*Pool)

// WithMetrics sets the metrics used to track active tasks. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// NewPool returns a pool that admits at most limit live tasks. A
// non-positive limit selects [DefaultLimit].
func NewPool(limit int, opts ...Option) *Pool {
	if limit <= 0 {
		limit = DefaultLimit
	}
	p := &Pool{}
	p.g.SetLimit(limit)
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Go starts fn on a new goroutine. kind labels the task in logs and metrics.
// Returns an error wrapping [fault.ErrSpawn] when the pool is full; fn is not
// run in that case. A panic in fn is logged and swallowed so one faulty
// animation cannot take the process down.
func (p *Pool) Go(kind string, fn func()) error {
	ok := p.g.TryGo(func() error {
		ctx := context.Background()
		p.metrics.TaskStarted(ctx, kind)
		defer p.metrics.TaskFinished(ctx, kind)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background task panicked", "kind", kind, "panic", r)
			}
		}()
		fn()
		return nil
	})
	if !ok {
		return fmt.Errorf("tasks: start %s: %w", kind, fault.ErrSpawn)
	}
	return nil
}

// Wait blocks until every spawned task has returned.
func (p *Pool) Wait() {
	_ = p.g.Wait()
}
