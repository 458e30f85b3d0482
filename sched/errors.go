package sched

import (
	"errors"
	"fmt"
)

// Parameter errors. Returned wrapped with the offending value; match with errors.Is.
var (
	ErrPriorityRange = errors.New("sched: priority out of range")
	ErrBudgetRange   = errors.New("sched: budget out of range")
	ErrWindowRange   = errors.New("sched: window out of range")
	ErrUnknownParam  = errors.New("sched: unknown parameter kind")
)

// State errors.
var (
	ErrInvalidState  = errors.New("sched: operation not valid in current state")
	ErrDeinit        = errors.New("sched: thread is deinitialized")
	ErrUnknownThread = errors.New("sched: thread not registered on this core")
)

// Capacity errors.
var (
	ErrHeapFull       = errors.New("sched: timer heap full")
	ErrTooManyThreads = errors.New("sched: thread capacity exhausted")
)

func stateError(op string, t *Thread) error {
	if t.Sched.State == StateDeinit {
		return fmt.Errorf("%s thread %d: %w", op, t.ID, ErrDeinit)
	}
	return fmt.Errorf("%s thread %d in state %s: %w", op, t.ID, t.Sched.State, ErrInvalidState)
}

// violation aborts the core. Used only for broken internal contracts, never
// for caller errors.
func violation(format string, args ...any) {
	panic(fmt.Sprintf("sched: invariant violation: "+format, args...))
}
