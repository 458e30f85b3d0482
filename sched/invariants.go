package sched

import (
	"errors"
	"fmt"
)

// CheckInvariants audits the core's structures and every registered thread.
// It returns all violations found, joined; nil means the core is consistent.
func (c *Core) CheckInvariants() error {
	var errs []error

	for i := 0; i < c.timeouts.Len(); i++ {
		t := c.timeouts.At(i)
		if t.Timer.HeapIndex != i {
			errs = append(errs, fmt.Errorf("heap slot %d holds thread %d with index %d", i, t.ID, t.Timer.HeapIndex))
		}
		if i > 0 {
			parent := c.timeouts.At((i - 1) / 2)
			if parent.Timer.AbsNextProcessing > t.Timer.AbsNextProcessing {
				errs = append(errs, fmt.Errorf("heap order broken at slot %d", i))
			}
		}
		if c.threads[t.ID] != t {
			errs = append(errs, fmt.Errorf("heap holds unregistered thread %d", t.ID))
		}
	}

	queued := 0
	for level := 0; level < NumPriorities; level++ {
		for e := c.runq.front(level); e != nil; e = e.Next() {
			t := e.Value.(*Thread)
			queued++
			if t.Sched.elem != e || t.Sched.level != level {
				errs = append(errs, fmt.Errorf("thread %d at level %d has stale run-queue link", t.ID, level))
			}
			if t.Priority != level {
				errs = append(errs, fmt.Errorf("thread %d with priority %d queued at level %d", t.ID, t.Priority, level))
			}
			if c.threads[t.ID] != t {
				errs = append(errs, fmt.Errorf("run queue holds unregistered thread %d", t.ID))
			}
		}
	}
	if queued != c.runq.Len() {
		errs = append(errs, fmt.Errorf("run queue size %d, counted %d", c.runq.Len(), queued))
	}

	running := 0
	for id, t := range c.threads {
		if t.ID != id {
			errs = append(errs, fmt.Errorf("thread %d registered under id %d", t.ID, id))
		}
		errs = append(errs, c.checkThread(t)...)
		if t.Sched.State == StateRunning {
			running++
		}
	}
	if running > 1 {
		errs = append(errs, fmt.Errorf("%d threads running on one core", running))
	}
	if cur := c.current; cur != nil && cur.Sched.State != StateRunning {
		errs = append(errs, fmt.Errorf("current thread %d in state %s", cur.ID, cur.Sched.State))
	}
	return errors.Join(errs...)
}

func (c *Core) checkThread(t *Thread) []error {
	var errs []error
	i := t.Timer.HeapIndex
	if i != NotQueued && (i < 0 || i >= c.timeouts.Len() || c.timeouts.At(i) != t) {
		errs = append(errs, fmt.Errorf("thread %d heap index %d does not point at itself", t.ID, i))
	}
	if t.Sched.State.runnable() != t.Queued() {
		errs = append(errs, fmt.Errorf("thread %d in state %s, queued=%t", t.ID, t.Sched.State, t.Queued()))
	}
	if err := t.Sched.Repl.check(); err != nil {
		errs = append(errs, fmt.Errorf("thread %d: %w", t.ID, err))
	}
	if t.Timer.AbsPeriodEnd != t.Timer.AbsPeriodStart+t.Timer.Period {
		errs = append(errs, fmt.Errorf("thread %d period end %d != start %d + period %d",
			t.ID, t.Timer.AbsPeriodEnd, t.Timer.AbsPeriodStart, t.Timer.Period))
	}
	if t.Sched.State == StateRunning && t.Timer.IsBudgeted && t.Timer.Budget <= 0 && c.current == t {
		errs = append(errs, fmt.Errorf("thread %d running with budget %d", t.ID, t.Timer.Budget))
	}
	if got, want := t.Sched.Repl.Total()+t.Stats.Replenished, t.Stats.Consumed; got != want {
		errs = append(errs, fmt.Errorf("thread %d granted %d cycles for %d consumed", t.ID, got, want))
	}
	return errs
}
