// Package fault defines the error taxonomy shared by the schedulers and the
// interaction engine.
//
// Every error returned by a scheduler wraps exactly one of the sentinels below
// so callers can classify it with [errors.Is]. [Kind] maps an error to a short
// label suitable for metric attributes and log fields.
package fault

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrHardware reports a device-level read, write or configuration failure.
	// Fatal at init time, transient in steady state.
	ErrHardware = errors.New("hardware fault")

	// ErrBusy is returned when an effect, playback or recording is already
	// active and the caller must stop it first.
	ErrBusy = errors.New("resource busy")

	// ErrTimeout is returned when a bounded lock wait or I/O deadline expires.
	ErrTimeout = errors.New("timeout")

	// ErrOutOfMemory reports a capture or task allocation failure.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrInvalidState is returned when an operation is attempted outside its
	// legal state, e.g. stopping with nothing running.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidArgument is returned for out-of-range effect or recording
	// parameters.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ErrSpawn is returned when a background task could not be started. It is an
// allocation failure in the taxonomy.
var ErrSpawn = fmt.Errorf("task spawn failed: %w", ErrOutOfMemory)

// Hardware wraps err as a hardware fault for the named device operation.
// A nil err yields nil.
func Hardware(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrHardware, err)
}

// Kind returns a stable, low-cardinality label for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrOutOfMemory):
		return "out_of_memory"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrHardware):
		return "hardware"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "unknown"
	}
}
