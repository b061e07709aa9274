// Package hwlock provides a mutual-exclusion lock for shared hardware handles
// with a bounded acquisition wait.
package hwlock

import (
	"context"
	"fmt"
	"time"

	"github.com/ada-assistant/ada/internal/fault"
)

// Lock guards a single device handle. The zero value is not usable; create
// one with [New].
type Lock struct {
	name string
	sem  chan struct{}
}

// New returns an unlocked Lock. name appears in timeout errors.
func New(name string) *Lock {
	return &Lock{name: name, sem: make(chan struct{}, 1)}
}

// Acquire waits at most timeout for the lock. It returns an error wrapping
// [fault.ErrTimeout] when the wait expires. A non-positive timeout tries once
// without waiting.
func (l *Lock) Acquire(timeout time.Duration) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	default:
	}
	if timeout <= 0 {
		return fmt.Errorf("%s lock: %w", l.name, fault.ErrTimeout)
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-t.C:
		return fmt.Errorf("%s lock: acquire after %s: %w", l.name, timeout, fault.ErrTimeout)
	}
}

// AcquireContext is like Acquire but also gives up when ctx is done, in which
// case ctx.Err() is returned.
func (l *Lock) AcquireContext(ctx context.Context, timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return fmt.Errorf("%s lock: acquire after %s: %w", l.name, timeout, fault.ErrTimeout)
	}
}

// Release unlocks l. Releasing an unlocked Lock panics, like sync.Mutex.
func (l *Lock) Release() {
	select {
	case <-l.sem:
	default:
		panic("hwlock: release of unlocked " + l.name + " lock")
	}
}
