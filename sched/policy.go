package sched

import (
	"fmt"

	"github.com/slmsched/fpss/sched/trace"
)

// Schedule picks the next thread to run at now. Levels are scanned from most
// to least urgent; within a level the head is taken and rotated to the tail.
// Budgeted threads with no budget left are never returned. The timer is armed
// for the earlier of the next heap event and the chosen thread's budget
// exhaustion. Returns false when the core should idle.
func (c *Core) Schedule(now Cycles) (*Thread, bool) {
	next := c.pick()
	if prev := c.current; prev != nil && prev != next && prev.Sched.State == StateRunning {
		prev.Sched.State = StateReady
	}
	c.current = next
	if next == nil {
		c.emit(trace.EventIdle, nil, trace.F("timeouts", int64(c.timeouts.Len())))
		c.setNextTimer(now, true)
		c.audit("schedule")
		return nil, false
	}
	if next.Timer.IsBudgeted && next.Timer.Budget <= 0 {
		violation("core %d: dispatching thread %d with budget %d", c.id, next.ID, next.Timer.Budget)
	}
	c.runq.rotate(next)
	next.Sched.State = StateRunning
	next.Stats.Dispatches++
	c.emit(trace.EventSchedule, next,
		trace.F("prio", int64(next.Priority)),
		trace.F("budget", next.Timer.Budget))
	c.setNextTimer(now, true)
	c.audit("schedule")
	return next, true
}

func (c *Core) pick() *Thread {
	for level := 0; level < NumPriorities; level++ {
		for e := c.runq.front(level); e != nil; e = e.Next() {
			t := e.Value.(*Thread)
			if t.Timer.IsBudgeted && t.Timer.Budget <= 0 {
				c.throttle.Warnf("exhausted-in-runqueue",
					"core %d: thread %d queued at level %d with budget %d, skipping", c.id, t.ID, level, t.Timer.Budget)
				continue
			}
			return t
		}
	}
	return nil
}

// AccountExecution debits cycles consumed by t and schedules their
// repayment one period later. Unbudgeted and deinitialized threads are
// ignored. A runnable thread whose budget drops to zero or below is
// expended. Blocked threads only record the grant; it is armed on wakeup.
func (c *Core) AccountExecution(t *Thread, cycles Cycles, now Cycles) {
	if t.Sched.State == StateDeinit || !t.Timer.IsBudgeted {
		return
	}
	if c.threads[t.ID] != t {
		violation("core %d: accounting for unregistered thread %d", c.id, t.ID)
	}
	if cycles == 0 {
		return
	}
	t.Timer.Budget -= int64(cycles)
	t.Stats.Consumed += cycles
	if now > t.Timer.AbsPeriodEnd {
		t.advancePeriod(1)
	}

	due := now + t.Timer.Period
	if cycles < due {
		due -= cycles
	} else {
		due = now
	}
	if t.Sched.Repl.Push(due, cycles) {
		c.emit(trace.EventReplMerge, t,
			trace.F("due", int64(due)),
			trace.F("amount", int64(cycles)),
			trace.F("outstanding", int64(t.Sched.Repl.Total())))
	}

	if t.Timer.Budget <= 0 && t.Sched.State.runnable() {
		c.expend(t)
	}
	if !t.Sched.State.blocked() && t.Timer.HeapIndex == NotQueued {
		c.arm(t)
	}
	c.syncTimer()
	c.audit("account execution")
}

func (c *Core) expend(t *Thread) {
	c.runq.remove(t)
	if c.current == t {
		c.current = nil
	}
	t.Sched.State = StateExpended
	t.Stats.Expended++
	t.advancePeriod(1)
	c.emit(trace.EventExpended, t,
		trace.F("budget", t.Timer.Budget),
		trace.F("period_start", int64(t.Timer.AbsPeriodStart)))
}

// replenish applies every grant due at now. Budget never exceeds the
// initial budget; the clamped excess is forfeited but still counted in
// Stats.Replenished, which tracks grants returned from the ring.
func (c *Core) replenish(t *Thread, now Cycles) {
	for {
		r, ok := t.Sched.Repl.PopDue(now)
		if !ok {
			return
		}
		t.Timer.Budget += int64(r.Amount)
		if t.Timer.Budget > t.Timer.InitialBudget {
			t.Timer.Budget = t.Timer.InitialBudget
		}
		t.Stats.Replenished += r.Amount
		c.emit(trace.EventReplenish, t,
			trace.F("amount", int64(r.Amount)),
			trace.F("due", int64(r.Due)),
			trace.F("budget", t.Timer.Budget))
	}
}

// Block removes t from the run queue. Pending heap entries stay armed so
// replenishment continues while the thread is blocked.
func (c *Core) Block(t *Thread) error {
	if err := c.block("block", t); err != nil {
		return err
	}
	c.syncTimer()
	c.audit("block")
	return nil
}

// BlockTimeout blocks t and arranges for it to be woken at abs.
func (c *Core) BlockTimeout(t *Thread, abs Cycles) error {
	if abs == 0 {
		return fmt.Errorf("block timeout thread %d: wakeup time must be non-zero: %w", t.ID, ErrInvalidState)
	}
	if err := c.block("block timeout", t); err != nil {
		return err
	}
	t.Timer.AbsWakeup = abs
	c.arm(t)
	c.syncTimer()
	c.audit("block timeout")
	return nil
}

func (c *Core) block(op string, t *Thread) error {
	if err := c.lookup(op, t); err != nil {
		return err
	}
	if t.Sched.State.blocked() {
		return stateError(op, t)
	}
	c.runq.remove(t)
	if c.current == t {
		c.current = nil
	}
	t.Sched.State = StateBlocked
	c.emit(trace.EventBlock, t, trace.F("budget", t.Timer.Budget))
	return nil
}

// BlockPeriodic parks a budgeted thread until the start of its next period.
func (c *Core) BlockPeriodic(t *Thread) error {
	if err := c.lookup("block periodic", t); err != nil {
		return err
	}
	if !t.Timer.IsBudgeted {
		return fmt.Errorf("block periodic thread %d: not budgeted: %w", t.ID, ErrInvalidState)
	}
	if t.Sched.State.blocked() {
		return stateError("block periodic", t)
	}
	now := c.clock.Now()
	c.runq.remove(t)
	if c.current == t {
		c.current = nil
	}
	t.Sched.State = StateBlockedPeriodic
	n := Cycles(1)
	if now >= t.Timer.AbsPeriodStart {
		n += (now - t.Timer.AbsPeriodStart) / t.Timer.Period
	}
	t.advancePeriod(n)
	t.Timer.AbsWakeup = t.Timer.AbsPeriodStart
	c.arm(t)
	c.emit(trace.EventBlock, t,
		trace.F("budget", t.Timer.Budget),
		trace.F("until", int64(t.Timer.AbsWakeup)))
	c.syncTimer()
	c.audit("block periodic")
	return nil
}

// Wakeup makes a BLOCKED thread runnable. A budgeted thread that was
// blocked across whole periods has its window and pending grants moved
// forward by that many periods. If it still has no budget it becomes
// EXPENDED instead of READY.
func (c *Core) Wakeup(t *Thread) error {
	if err := c.lookup("wakeup", t); err != nil {
		return err
	}
	if t.Sched.State != StateBlocked {
		return stateError("wakeup", t)
	}
	c.wakeup(t, c.clock.Now())
	c.syncTimer()
	c.audit("wakeup")
	return nil
}

func (c *Core) wakeup(t *Thread, now Cycles) {
	t.Timer.AbsWakeup = 0
	if !t.Timer.IsBudgeted {
		c.cancel(t)
		c.makeReady(t)
		return
	}
	var shifted Cycles
	if now > t.Timer.AbsPeriodStart {
		if k := (now - t.Timer.AbsPeriodStart) / t.Timer.Period; k > 0 {
			shifted = k * t.Timer.Period
			t.advancePeriod(k)
			t.Sched.Repl.Shift(shifted)
		}
	}
	c.cancel(t)
	c.arm(t)
	if t.Timer.Budget <= 0 {
		t.Sched.State = StateExpended
		c.emit(trace.EventExpended, t,
			trace.F("budget", t.Timer.Budget),
			trace.F("shifted", int64(shifted)))
		return
	}
	c.makeReady(t, trace.F("shifted", int64(shifted)))
}

func (c *Core) makeReady(t *Thread, fields ...trace.Field) {
	t.Sched.State = StateReady
	c.runq.append(t)
	c.emit(trace.EventWakeup, t, append([]trace.Field{trace.F("budget", t.Timer.Budget)}, fields...)...)
}

// WakeupPeriodic releases a thread parked by BlockPeriodic at now. Due
// grants are applied first.
func (c *Core) WakeupPeriodic(t *Thread, now Cycles) error {
	if err := c.lookup("wakeup periodic", t); err != nil {
		return err
	}
	if t.Sched.State != StateBlockedPeriodic {
		return stateError("wakeup periodic", t)
	}
	c.cancel(t)
	c.wakeupPeriodic(t, now)
	c.setNextTimer(now, false)
	c.audit("wakeup periodic")
	return nil
}

func (c *Core) wakeupPeriodic(t *Thread, now Cycles) {
	t.Timer.AbsWakeup = 0
	c.replenish(t, now)
	if t.Timer.Budget > 0 {
		c.makeReady(t)
	} else {
		t.Sched.State = StateExpended
		c.emit(trace.EventExpended, t, trace.F("budget", t.Timer.Budget))
	}
	c.arm(t)
}

// Yield is reserved for cooperative same-priority yield. Round robin already
// happens on every Schedule, so the fixed-priority policy only records it.
func (c *Core) Yield(t *Thread, target ThreadID) {
	if t.Sched.State == StateDeinit {
		return
	}
	c.emit(trace.EventYield, t, trace.F("target", int64(target)))
}

// ThdInit registers t with the core: lowest priority, unbudgeted, READY and
// queued, with a maximal window starting now.
func (c *Core) ThdInit(t *Thread) error {
	if t.Sched.State == StateDeinit {
		return stateError("init", t)
	}
	if _, dup := c.threads[t.ID]; dup {
		return fmt.Errorf("init thread %d on core %d: already registered: %w", t.ID, c.id, ErrInvalidState)
	}
	if len(c.threads) >= c.max {
		return fmt.Errorf("init thread %d on core %d (limit %d): %w", t.ID, c.id, c.max, ErrTooManyThreads)
	}
	now := c.clock.Now()
	t.Priority = PrioLowest
	t.Timer = TimerPolicy{
		HeapIndex:      NotQueued,
		Period:         WindowHighest,
		AbsPeriodStart: now,
		AbsPeriodEnd:   now + WindowHighest,
	}
	t.Sched = SchedPolicy{State: StateReady}
	t.Stats = ThreadStats{}
	c.threads[t.ID] = t
	c.runq.append(t)
	c.emit(trace.EventInit, t, trace.F("prio", int64(t.Priority)))
	c.audit("init")
	return nil
}

// ThdDeinit removes t from every structure of the core and marks it DEINIT.
// Calling it again, or for a thread not registered here, does nothing.
func (c *Core) ThdDeinit(t *Thread) {
	if t.Sched.State == StateDeinit || c.threads[t.ID] != t {
		return
	}
	c.runq.remove(t)
	c.cancel(t)
	if c.current == t {
		c.current = nil
	}
	delete(c.threads, t.ID)
	t.Sched.State = StateDeinit
	t.Timer.AbsWakeup = 0
	c.emit(trace.EventDeinit, t,
		trace.F("consumed", int64(t.Stats.Consumed)),
		trace.F("outstanding", int64(t.Sched.Repl.Total())))
	c.syncTimer()
	c.audit("deinit")
}
