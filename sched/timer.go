package sched

import (
	"fmt"

	"github.com/slmsched/fpss/sched/trace"
)

// TimeoutAdd inserts t into the timer heap with key abs. A runnable thread
// must not already have a pending entry. For a blocked thread abs is its
// wakeup time: the entry fires at abs, or earlier for a due replenishment,
// and expiry at abs wakes the thread.
func (c *Core) TimeoutAdd(t *Thread, abs Cycles) error {
	if err := c.lookup("timeout add", t); err != nil {
		return err
	}
	blocked := t.Sched.State.blocked()
	if t.Timer.HeapIndex != NotQueued && !blocked {
		violation("thread %d already in timer heap at slot %d", t.ID, t.Timer.HeapIndex)
	}
	if blocked && abs == 0 {
		return fmt.Errorf("timeout add thread %d: wakeup time must be non-zero: %w", t.ID, ErrInvalidState)
	}
	if t.Timer.HeapIndex == NotQueued && c.timeouts.Full() {
		return fmt.Errorf("timeout add thread %d at %d: %w", t.ID, abs, ErrHeapFull)
	}
	if blocked {
		t.Timer.AbsWakeup = abs
		c.arm(t)
	} else {
		c.push(t, abs)
	}
	c.syncTimer()
	c.audit("timeout add")
	return nil
}

// TimeoutCancel removes t's pending entry and any timed wakeup. No-op if
// there is none.
func (c *Core) TimeoutCancel(t *Thread) error {
	if err := c.lookup("timeout cancel", t); err != nil {
		return err
	}
	c.cancel(t)
	t.Timer.AbsWakeup = 0
	c.syncTimer()
	c.audit("timeout cancel")
	return nil
}

func (c *Core) push(t *Thread, abs Cycles) {
	t.Timer.AbsNextProcessing = abs
	if err := c.timeouts.Push(t); err != nil {
		// One entry per registered thread and capacity equals the thread limit.
		violation("core %d: push thread %d: %v", c.id, t.ID, err)
	}
}

func (c *Core) cancel(t *Thread) {
	i := t.Timer.HeapIndex
	if i == NotQueued {
		return
	}
	if i < 0 || i >= c.timeouts.Len() || c.timeouts.At(i) != t {
		violation("core %d: thread %d heap index %d does not point at itself", c.id, t.ID, i)
	}
	c.timeouts.Remove(i)
}

// arm sets t's heap entry to its next due event, or removes the entry when
// nothing is pending.
func (c *Core) arm(t *Thread) {
	due, ok := t.nextEvent()
	switch {
	case !ok:
		c.cancel(t)
	case t.Timer.HeapIndex != NotQueued:
		t.Timer.AbsNextProcessing = due
		c.timeouts.Fix(t.Timer.HeapIndex)
	default:
		c.push(t, due)
	}
}

// TimerExpired processes every heap entry due at now, then re-arms the
// one-shot timer for whatever is left.
func (c *Core) TimerExpired(now Cycles) {
	for {
		t, ok := c.timeouts.Peek()
		if !ok || t.Timer.AbsNextProcessing > now {
			break
		}
		c.timeouts.PopMin()
		c.expire(t, now)
	}
	c.setNextTimer(now, false)
	c.audit("timer expired")
}

func (c *Core) expire(t *Thread, now Cycles) {
	switch t.Sched.State {
	case StateExpended:
		c.replenish(t, now)
		if t.Timer.Budget > 0 {
			t.Sched.State = StateReady
			c.runq.append(t)
			c.emit(trace.EventWakeup, t, trace.F("budget", t.Timer.Budget))
		}
		c.arm(t)
	case StateReady, StateRunning:
		c.replenish(t, now)
		c.arm(t)
	case StateBlocked:
		if w := t.Timer.AbsWakeup; w != 0 && w <= now {
			t.Timer.AbsWakeup = 0
			if c.waker != nil {
				c.waker.Wake(t)
			} else {
				c.wakeup(t, now)
			}
			return
		}
		c.replenish(t, now)
		c.arm(t)
	case StateBlockedPeriodic:
		if t.Timer.AbsWakeup <= now {
			c.wakeupPeriodic(t, now)
			return
		}
		c.replenish(t, now)
		c.arm(t)
	case StateDeinit:
	default:
		violation("core %d: thread %d expired in state %q", c.id, t.ID, t.Sched.State)
	}
}

// syncTimer re-arms the one-shot timer if the wanted deadline changed.
func (c *Core) syncTimer() {
	c.setNextTimer(c.clock.Now(), false)
}

// setNextTimer programs the timer for the earlier of the heap minimum and
// the moment the running thread would exhaust its budget. With force set the
// timer is written even when the deadline is unchanged.
func (c *Core) setNextTimer(now Cycles, force bool) {
	var next Cycles
	ok := false
	if t, has := c.timeouts.Peek(); has {
		next, ok = t.Timer.AbsNextProcessing, true
	}
	if cur := c.current; cur != nil && cur.Timer.IsBudgeted && cur.Timer.Budget > 0 {
		exhaust := now + Cycles(cur.Timer.Budget)
		if !ok || exhaust < next {
			next, ok = exhaust, true
		}
	}
	if !ok {
		if c.armed || force {
			c.timer.Clear()
			c.armed, c.armedAt = false, 0
		}
		return
	}
	if c.armed && c.armedAt == next && !force {
		return
	}
	c.timer.Set(next)
	c.armed, c.armedAt = true, next
	c.emit(trace.EventTimerSet, nil, trace.F("at", int64(next)))
}
