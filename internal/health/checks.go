package health

import (
	"context"
	"errors"
	"fmt"
)

// Flag returns a checker that passes while ok reports true. msg describes
// the failure.
func Flag(name string, ok func() bool, msg string) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if ok() {
			return nil
		}
		return errors.New(msg)
	}}
}

// Stater is anything reporting a named state, such as a circuit breaker.
type Stater interface {
	fmt.Stringer
}

// NotIn returns a checker that fails while state() renders as one of bad.
func NotIn[S Stater](name string, state func() S, bad ...S) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		cur := state()
		for _, b := range bad {
			if cur.String() == b.String() {
				return fmt.Errorf("state %s", cur)
			}
		}
		return nil
	}}
}
