package sched

import (
	"container/list"
	"fmt"

	"github.com/slmsched/fpss/sched/internal/idxheap"
)

// NotQueued is the HeapIndex of a thread with no pending timer event.
const NotQueued = idxheap.NotQueued

// TimerPolicy is a thread's budget, period window and timer-heap membership.
type TimerPolicy struct {
	HeapIndex         int    // slot in the core's timer heap, NotQueued if absent
	AbsNextProcessing Cycles // key of the heap entry
	AbsPeriodStart    Cycles
	AbsPeriodEnd      Cycles // always AbsPeriodStart + Period
	Period            Cycles
	Budget            int64 // may go negative on overrun
	InitialBudget     int64
	IsBudgeted        bool
	AbsWakeup         Cycles // pending timed wakeup while blocked, 0 if none
}

// SchedPolicy is a thread's state and pending replenishments.
type SchedPolicy struct {
	State State
	Repl  ReplRing

	elem  *list.Element // run-queue membership, nil when not queued
	level int           // run-queue level elem belongs to
}

// ThreadStats are lifetime counters, kept for diagnostics.
type ThreadStats struct {
	Consumed    Cycles // debited by AccountExecution
	Replenished Cycles // popped from the replenishment ring, including any excess clamped away
	Dispatches  int
	Expended    int
}

// Thread is the scheduler's view of a thread owned by the thread manager.
// Policy fields are maintained by the Core the thread is registered with and
// must be treated as read-only by everyone else.
type Thread struct {
	ID       ThreadID
	Priority int
	Timer    TimerPolicy
	Sched    SchedPolicy
	Stats    ThreadStats
}

// NewThread creates an unregistered thread handle. Register it with Core.ThdInit.
func NewThread(id ThreadID) *Thread {
	return &Thread{
		ID:       id,
		Priority: PrioLowest,
		Timer:    TimerPolicy{HeapIndex: NotQueued},
	}
}

// State returns the thread's policy state.
func (t *Thread) State() State { return t.Sched.State }

// Budget returns the remaining budget.
func (t *Thread) Budget() int64 { return t.Timer.Budget }

// Queued reports whether the thread is on a run queue.
func (t *Thread) Queued() bool { return t.Sched.elem != nil }

// InHeap reports whether the thread has a pending timer event.
func (t *Thread) InHeap() bool { return t.Timer.HeapIndex != NotQueued }

// Outstanding returns the total of pending replenishments.
func (t *Thread) Outstanding() Cycles { return t.Sched.Repl.Total() }

func (t *Thread) String() string {
	return fmt.Sprintf("Thread: (ID: %d, Priority: %d, State: %s, Budget: %d, HeapIndex: %d)",
		t.ID, t.Priority, t.Sched.State, t.Timer.Budget, t.Timer.HeapIndex)
}

// nextEvent computes the key the thread's heap entry should have: the
// earliest pending replenishment, or a pending timed wakeup if the thread is
// blocked and that comes first.
func (t *Thread) nextEvent() (Cycles, bool) {
	head, ok := t.Sched.Repl.Head()
	due := head.Due
	if t.Sched.State.blocked() && t.Timer.AbsWakeup != 0 {
		if !ok || t.Timer.AbsWakeup < due {
			due, ok = t.Timer.AbsWakeup, true
		}
	}
	return due, ok
}

// advancePeriod moves the window forward by n periods.
func (t *Thread) advancePeriod(n Cycles) {
	t.Timer.AbsPeriodStart += n * t.Timer.Period
	t.Timer.AbsPeriodEnd = t.Timer.AbsPeriodStart + t.Timer.Period
}
