package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ada-assistant/ada/internal/fault"
	"github.com/ada-assistant/ada/pkg/provider/wake"
)

// feedGate pauses the feed loop. pause returns only once no feed-loop read
// is in flight, so the caller owns the microphone afterwards.
type feedGate struct {
	mu     sync.Mutex
	paused atomic.Bool
}

func (g *feedGate) pause() {
	g.paused.Store(true)
	// Wait out a read that passed the check before the flag was set.
	g.mu.Lock()
	defer g.mu.Unlock()
}

func (g *feedGate) resume() { g.paused.Store(false) }

func (g *feedGate) isPaused() bool { return g.paused.Load() }

// do runs fn unless the gate is paused, and reports whether it ran.
func (g *feedGate) do(fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused.Load() {
		return false
	}
	fn()
	return true
}

func (e *Engine) feedLoop(ctx context.Context) error {
	frame := make([]int16, e.det.FeedChunkSize()*e.det.Channels())
	for ctx.Err() == nil {
		if !e.gate.do(func() { e.feedOnce(ctx, frame) }) {
			sleep(ctx, e.cfg.FeedPause)
		}
	}
	return nil
}

// feedOnce fills frame from the microphone and feeds it. A failed read
// zero-fills the rest of the frame; the transport owns recovery.
func (e *Engine) feedOnce(ctx context.Context, frame []int16) {
	got := 0
	for got < len(frame) {
		n, err := e.src.ReadFrame(frame[got:])
		if err != nil {
			slog.Debug("engine: microphone read failed", "err", err)
			e.metrics.RecordDeviceError(ctx, "microphone", fault.Kind(fault.Hardware("read", err)))
			clear(frame[got:])
			break
		}
		if n <= 0 {
			clear(frame[got:])
			break
		}
		got += n
	}
	if err := e.det.Feed(frame); err != nil {
		slog.Debug("engine: detector feed failed", "err", err)
		e.metrics.RecordDeviceError(ctx, "detector", fault.Kind(err))
	}
}

func (e *Engine) detectLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		if e.State() != StateDetecting {
			sleep(ctx, e.cfg.FetchRetry)
			continue
		}
		res, err := e.det.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("engine: detector fetch failed", "err", err)
			e.metrics.RecordDeviceError(ctx, "detector", fault.Kind(err))
			sleep(ctx, e.cfg.FetchRetry)
			continue
		}
		if res.Wake {
			e.wake(ctx, res)
		}
	}
	return nil
}

// wake moves the engine to Recording and spawns the session. A spawn
// failure rolls the transition back.
func (e *Engine) wake(ctx context.Context, res wake.Result) {
	slog.Info("engine: wake word detected", "model", res.ModelIndex, "word", res.WordIndex)
	e.metrics.RecordWake(ctx, res.ModelIndex, res.WordIndex)

	e.state.Store(int32(StateRecording))
	e.gate.pause()

	e.sessions.Add(1)
	err := e.pool.Go("recording", func() {
		defer e.sessions.Done()
		e.record(ctx, res)
	})
	if err != nil {
		e.sessions.Done()
		e.gate.resume()
		e.state.Store(int32(StateDetecting))
		slog.Error("engine: could not start recording session", "err", err)
	}
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
