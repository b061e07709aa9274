package tasks_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/ada-assistant/ada/internal/fault"
	"github.com/ada-assistant/ada/internal/observe"
	"github.com/ada-assistant/ada/internal/tasks"
)

func newPool(t *testing.T, limit int) *tasks.Pool {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	return tasks.NewPool(limit, tasks.WithMetrics(m))
}

func TestGoRunsTask(t *testing.T) {
	t.Parallel()

	p := newPool(t, 2)
	var ran atomic.Bool
	if err := p.Go("effect", func() { ran.Store(true) }); err != nil {
		t.Fatalf("Go: %v", err)
	}
	p.Wait()
	if !ran.Load() {
		t.Fatal("task did not run")
	}
}

func TestGoFailsWhenExhausted(t *testing.T) {
	t.Parallel()

	p := newPool(t, 1)
	release := make(chan struct{})
	if err := p.Go("playback", func() { <-release }); err != nil {
		t.Fatalf("first Go: %v", err)
	}

	var ran atomic.Bool
	err := p.Go("effect", func() { ran.Store(true) })
	if !errors.Is(err, fault.ErrSpawn) || !errors.Is(err, fault.ErrOutOfMemory) {
		t.Fatalf("want ErrSpawn, got %v", err)
	}

	close(release)
	p.Wait()
	if ran.Load() {
		t.Error("rejected task must not run")
	}

	if err := p.Go("effect", func() {}); err != nil {
		t.Errorf("Go after drain: %v", err)
	}
	p.Wait()
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()

	p := newPool(t, 1)
	if err := p.Go("effect", func() { panic("strip exploded") }); err != nil {
		t.Fatal(err)
	}
	p.Wait()

	// The slot must be free again after the panic.
	if err := p.Go("effect", func() {}); err != nil {
		t.Fatalf("Go after panic: %v", err)
	}
	p.Wait()
}
