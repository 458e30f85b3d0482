package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slmsched/fpss/sched/trace"
)

func TestSchedule_UnbudgetedThread_AlwaysDispatched(t *testing.T) {
	// GIVEN a single unbudgeted thread at priority 5
	tc := newTestCore(t, 8)
	thd := tc.spawn(t, 1, 5)

	// WHEN Schedule is called repeatedly
	for i := 0; i < 10; i++ {
		tc.clock.now += 100
		got, ok := tc.Schedule(tc.clock.now)

		// THEN the same thread is returned every time and never leaves READY/RUNNING
		require.True(t, ok)
		assert.Same(t, thd, got)
		assert.Equal(t, StateRunning, thd.State())
	}
	assert.Equal(t, 10, thd.Stats.Dispatches)
	assert.False(t, tc.timer.armed, "no pending events, timer should be cleared")
}

func TestSchedule_RoundRobinWithinLevel(t *testing.T) {
	// GIVEN three unbudgeted threads at the same priority
	tc := newTestCore(t, 8)
	a := tc.spawn(t, 1, 4)
	b := tc.spawn(t, 2, 4)
	c := tc.spawn(t, 3, 4)

	// WHEN Schedule is called six times
	var got []ThreadID
	for i := 0; i < 6; i++ {
		thd, ok := tc.Schedule(tc.clock.now)
		require.True(t, ok)
		got = append(got, thd.ID)
	}

	// THEN each is returned exactly once per round, in FIFO order
	want := []ThreadID{a.ID, b.ID, c.ID, a.ID, b.ID, c.ID}
	assert.Equal(t, want, got)
	assert.Equal(t, StateRunning, c.State())
	assert.Equal(t, StateReady, a.State())
	assert.Equal(t, StateReady, b.State())
}

func TestSchedule_HigherPriorityWins(t *testing.T) {
	tc := newTestCore(t, 8)
	low := tc.spawn(t, 1, 10)
	high := tc.spawn(t, 2, 3)

	got, ok := tc.Schedule(0)
	require.True(t, ok)
	assert.Same(t, high, got)

	require.NoError(t, tc.Block(high))
	got, ok = tc.Schedule(0)
	require.True(t, ok)
	assert.Same(t, low, got)
}

func TestSchedule_SkipsExhaustedThread(t *testing.T) {
	// GIVEN a budgeted thread at the head of the highest level whose budget
	// was zeroed behind the scheduler's back, and a lower priority thread
	tc := newTestCore(t, 8)
	tc.paranoid = false
	bad := tc.spawnBudgeted(t, 1, 2, 500, 10_000)
	other := tc.spawn(t, 2, 9)
	bad.Timer.Budget = 0

	// WHEN Schedule runs
	got, ok := tc.Schedule(0)

	// THEN the exhausted thread is never dispatched
	require.True(t, ok)
	assert.Same(t, other, got)
	assert.Equal(t, StateReady, bad.State())
}

func TestSchedule_Idle_ArmsTimerFromHeap(t *testing.T) {
	// GIVEN an expended thread with a grant due at 10000
	tc := newTestCore(t, 8)
	thd := tc.spawnBudgeted(t, 1, 1, 1000, 10_000)
	_, ok := tc.Schedule(0)
	require.True(t, ok)
	tc.run(thd, 1000)
	require.Equal(t, StateExpended, thd.State())

	// WHEN Schedule finds nothing runnable
	got, ok := tc.Schedule(tc.clock.now)

	// THEN it idles and the timer is armed for the grant
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.True(t, tc.timer.armed)
	assert.Equal(t, Cycles(10_000), tc.timer.deadline)
	assert.Len(t, tc.rec.Named(trace.EventIdle), 1)
}

func TestSchedule_TimerBoundedByBudget(t *testing.T) {
	// GIVEN a thread with 300 cycles of budget and an unrelated event far away
	tc := newTestCore(t, 8)
	thd := tc.spawnBudgeted(t, 1, 1, 300, 10_000)
	sleeper := tc.spawn(t, 2, 5)
	require.NoError(t, tc.BlockTimeout(sleeper, 5000))

	// WHEN it is dispatched at 100
	tc.clock.now = 100
	_, ok := tc.Schedule(100)
	require.True(t, ok)

	// THEN the timer fires when the budget would run out
	assert.Equal(t, Cycles(400), tc.timer.deadline)
	assert.Equal(t, StateRunning, thd.State())
}

func TestAccountExecution_ExpendsAndReplenishes(t *testing.T) {
	// GIVEN a thread with budget 1000 and period 10000
	tc := newTestCore(t, 8)
	thd := tc.spawnBudgeted(t, 1, 1, 1000, 10_000)
	_, ok := tc.Schedule(0)
	require.True(t, ok)

	// WHEN it consumes its full budget
	tc.run(thd, 1000)

	// THEN it is EXPENDED with a grant of 1000 due one period after consumption began
	assert.Equal(t, StateExpended, thd.State())
	assert.Equal(t, int64(0), thd.Budget())
	assert.False(t, thd.Queued())
	head, ok := thd.Sched.Repl.Head()
	require.True(t, ok)
	assert.Equal(t, Replenishment{Due: 10_000, Amount: 1000}, head)
	assert.True(t, thd.InHeap())
	assert.Nil(t, tc.Current())

	// WHEN the timer expires one period later
	tc.TimerExpired(tc.clock.now + 10_000)

	// THEN the thread is READY with its full budget again
	assert.Equal(t, StateReady, thd.State())
	assert.Equal(t, int64(1000), thd.Budget())
	assert.True(t, thd.Queued())
	assert.False(t, thd.InHeap())
	assert.Len(t, tc.rec.Named(trace.EventReplenish), 1)
}

func TestAccountExecution_UnbudgetedIsNoop(t *testing.T) {
	tc := newTestCore(t, 8)
	thd := tc.spawn(t, 1, 3)
	_, ok := tc.Schedule(0)
	require.True(t, ok)

	tc.run(thd, 5000)

	assert.Equal(t, StateRunning, thd.State())
	assert.Equal(t, 0, thd.Sched.Repl.Len())
	assert.Equal(t, Cycles(0), thd.Stats.Consumed)
}

func TestAccountExecution_PartialConsumptionStaysRunning(t *testing.T) {
	tc := newTestCore(t, 8)
	thd := tc.spawnBudgeted(t, 1, 1, 1000, 10_000)
	_, ok := tc.Schedule(0)
	require.True(t, ok)

	tc.run(thd, 250)

	assert.Equal(t, StateRunning, thd.State())
	assert.Equal(t, int64(750), thd.Budget())
	assert.Equal(t, []Replenishment{{Due: 10_000, Amount: 250}}, thd.Sched.Repl.Entries())
	// heap entry for the grant, timer for budget exhaustion at 250+750
	assert.True(t, thd.InHeap())
	assert.Equal(t, Cycles(1000), tc.timer.deadline)
}

func TestAccountExecution_LazyPeriodRollover(t *testing.T) {
	// GIVEN a thread whose window [0, 10000) has passed
	tc := newTestCore(t, 8)
	thd := tc.spawnBudgeted(t, 1, 1, 1000, 10_000)
	_, ok := tc.Schedule(0)
	require.True(t, ok)

	// WHEN execution is accounted after the window end
	tc.clock.now = 10_500
	tc.AccountExecution(thd, 100, tc.clock.now)

	// THEN the window advances by exactly one period
	assert.Equal(t, Cycles(10_000), thd.Timer.AbsPeriodStart)
	assert.Equal(t, Cycles(20_000), thd.Timer.AbsPeriodEnd)
}

func TestAccountExecution_RingMergesAtCapacity(t *testing.T) {
	// GIVEN a thread that has run in five separate slices
	tc := newTestCore(t, 8)
	thd := tc.spawnBudgeted(t, 1, 1, 10_000, 100_000)
	_, ok := tc.Schedule(0)
	require.True(t, ok)
	for i := 0; i < ReplWindowSize; i++ {
		tc.run(thd, 100)
	}
	require.True(t, thd.Sched.Repl.Full())
	before := thd.Outstanding()

	// WHEN a sixth grant of 70 is recorded
	tc.run(thd, 70)

	// THEN the ring still holds five entries and nothing is lost
	assert.Equal(t, ReplWindowSize, thd.Sched.Repl.Len())
	assert.Equal(t, before+70, thd.Outstanding())
	entries := thd.Sched.Repl.Entries()
	assert.Equal(t, Cycles(170), entries[ReplWindowSize-1].Amount)
	assert.Len(t, tc.rec.Named(trace.EventReplMerge), 1)
	assert.Equal(t, thd.Stats.Consumed, thd.Outstanding()+thd.Stats.Replenished)
}

func TestBlock_WithZeroBudget(t *testing.T) {
	// GIVEN a thread that exhausted its budget
	tc := newTestCore(t, 8)
	thd := tc.spawnBudgeted(t, 1, 1, 1000, 10_000)
	_, ok := tc.Schedule(0)
	require.True(t, ok)
	tc.run(thd, 1000)
	require.Equal(t, StateExpended, thd.State())

	// WHEN it blocks
	require.NoError(t, tc.Block(thd))

	// THEN it is never dispatched while blocked, even once replenished
	assert.Equal(t, StateBlocked, thd.State())
	_, ok = tc.Schedule(tc.clock.now)
	assert.False(t, ok)
	tc.advance(10_000)
	assert.Equal(t, StateBlocked, thd.State())
	assert.Equal(t, int64(1000), thd.Budget())
	_, ok = tc.Schedule(tc.clock.now)
	assert.False(t, ok)

	// WHEN it is woken
	require.NoError(t, tc.Wakeup(thd))
	got, ok := tc.Schedule(tc.clock.now)
	require.True(t, ok)
	assert.Same(t, thd, got)
}

func TestBlock_AlreadyBlocked_ReturnsError(t *testing.T) {
	tc := newTestCore(t, 8)
	thd := tc.spawn(t, 1, 3)
	require.NoError(t, tc.Block(thd))

	err := tc.Block(thd)

	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StateBlocked, thd.State())
}

func TestWakeup_ShiftsWindowByWholePeriods(t *testing.T) {
	// GIVEN a thread that ran 100 cycles then blocked at 100
	tc := newTestCore(t, 8)
	thd := tc.spawnBudgeted(t, 1, 1, 1000, 10_000)
	_, ok := tc.Schedule(0)
	require.True(t, ok)
	tc.run(thd, 100)
	require.NoError(t, tc.Block(thd))
	startBefore := thd.Timer.AbsPeriodStart
	dueBefore := thd.Sched.Repl.Entries()[0].Due

	// WHEN it is woken exactly three periods after its window start
	tc.clock.now = 30_000
	require.NoError(t, tc.Wakeup(thd))

	// THEN window and pending grant moved by 3 periods and budget is untouched by the shift
	assert.Equal(t, startBefore+30_000, thd.Timer.AbsPeriodStart)
	assert.Equal(t, thd.Timer.AbsPeriodStart+10_000, thd.Timer.AbsPeriodEnd)
	assert.Equal(t, dueBefore+30_000, thd.Sched.Repl.Entries()[0].Due)
	assert.Equal(t, int64(900), thd.Budget())
	assert.Equal(t, StateReady, thd.State())
	assert.Equal(t, dueBefore+30_000, thd.Timer.AbsNextProcessing)
}

func TestWakeup_PartialPeriodDoesNotShift(t *testing.T) {
	tc := newTestCore(t, 8)
	thd := tc.spawnBudgeted(t, 1, 1, 1000, 10_000)
	require.NoError(t, tc.Block(thd))

	tc.clock.now = 9_999
	require.NoError(t, tc.Wakeup(thd))

	assert.Equal(t, Cycles(0), thd.Timer.AbsPeriodStart)
}

func TestWakeup_NoBudget_BecomesExpended(t *testing.T) {
	tc := newTestCore(t, 8)
	thd := tc.spawnBudgeted(t, 1, 1, 1000, 10_000)
	_, ok := tc.Schedule(0)
	require.True(t, ok)
	tc.clock.now = 500
	require.NoError(t, tc.Block(thd))
	// execution since the last accounting is charged after the block
	tc.run(thd, 1000)
	require.Equal(t, StateBlocked, thd.State())
	assert.False(t, thd.InHeap(), "grants of a blocked thread are armed on wakeup")

	require.NoError(t, tc.Wakeup(thd))

	assert.Equal(t, StateExpended, thd.State())
	assert.False(t, thd.Queued())
	assert.True(t, thd.InHeap())
}

func TestWakeup_NotBlocked_ReturnsError(t *testing.T) {
	tc := newTestCore(t, 8)
	thd := tc.spawn(t, 1, 3)

	err := tc.Wakeup(thd)

	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StateReady, thd.State())
}

func TestBlockTimeout_WakesAtDeadline(t *testing.T) {
	// GIVEN an unbudgeted thread sleeping until 5000
	tc := newTestCore(t, 8)
	thd := tc.spawn(t, 1, 3)
	require.NoError(t, tc.BlockTimeout(thd, 5000))
	assert.Equal(t, Cycles(5000), tc.timer.deadline)

	// WHEN time passes but the deadline has not been reached
	tc.advance(4999)
	assert.Equal(t, StateBlocked, thd.State())

	// THEN it wakes once the deadline passes
	tc.advance(5000)
	assert.Equal(t, StateReady, thd.State())
	assert.False(t, thd.InHeap())
	assert.Equal(t, Cycles(0), thd.Timer.AbsWakeup)
}

func TestBlockTimeout_GrantsDueFirstDoNotWake(t *testing.T) {
	// GIVEN a budgeted thread with a grant due at 10000 sleeping until 25000
	tc := newTestCore(t, 8)
	thd := tc.spawnBudgeted(t, 1, 1, 1000, 10_000)
	_, ok := tc.Schedule(0)
	require.True(t, ok)
	tc.run(thd, 400)
	require.NoError(t, tc.BlockTimeout(thd, 25_000))
	assert.Equal(t, Cycles(10_000), thd.Timer.AbsNextProcessing)

	// WHEN the grant falls due
	tc.advance(10_000)

	// THEN the budget is restored but the thread stays blocked until its wakeup
	assert.Equal(t, StateBlocked, thd.State())
	assert.Equal(t, int64(1000), thd.Budget())
	assert.Equal(t, Cycles(25_000), thd.Timer.AbsNextProcessing)

	tc.advance(25_000)
	assert.Equal(t, StateReady, thd.State())
}

func TestBlockTimeout_DelegatesToWaker(t *testing.T) {
	// GIVEN a core with a Waker collaborator
	clock, timer := &fakeClock{}, &fakeTimer{}
	var woken []*Thread
	c, err := NewCore(Options{
		MaxThreads: 4,
		Clock:      clock,
		Timer:      timer,
		Waker:      WakerFunc(func(t *Thread) { woken = append(woken, t) }),
		Paranoid:   true,
	})
	require.NoError(t, err)
	thd := NewThread(7)
	require.NoError(t, c.ThdInit(thd))
	require.NoError(t, c.BlockTimeout(thd, 100))

	// WHEN the timeout fires
	clock.now = 100
	c.TimerExpired(100)

	// THEN the collaborator is told and the thread waits for it to call Wakeup
	require.Len(t, woken, 1)
	assert.Same(t, thd, woken[0])
	assert.Equal(t, StateBlocked, thd.State())
	require.NoError(t, c.Wakeup(thd))
	assert.Equal(t, StateReady, thd.State())
}

func TestBlockPeriodic_ReleasedAtNextPeriod(t *testing.T) {
	// GIVEN a periodic thread that ran 300 cycles in its first period
	tc := newTestCore(t, 8)
	thd := tc.spawnBudgeted(t, 1, 1, 1000, 10_000)
	_, ok := tc.Schedule(0)
	require.True(t, ok)
	tc.run(thd, 300)

	// WHEN it parks until the next period
	require.NoError(t, tc.BlockPeriodic(thd))

	// THEN it is released at the start of the next period with its budget restored
	assert.Equal(t, StateBlockedPeriodic, thd.State())
	assert.Equal(t, Cycles(10_000), thd.Timer.AbsPeriodStart)
	assert.Equal(t, Cycles(10_000), thd.Timer.AbsWakeup)
	tc.advance(9_999)
	assert.Equal(t, StateBlockedPeriodic, thd.State())
	tc.advance(10_000)
	assert.Equal(t, StateReady, thd.State())
	assert.Equal(t, int64(1000), thd.Budget())
}

func TestBlockPeriodic_UnbudgetedRejected(t *testing.T) {
	tc := newTestCore(t, 8)
	thd := tc.spawn(t, 1, 3)

	err := tc.BlockPeriodic(thd)

	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StateReady, thd.State())
}

func TestWakeupPeriodic_RequiresBlockedPeriodic(t *testing.T) {
	tc := newTestCore(t, 8)
	thd := tc.spawnBudgeted(t, 1, 1, 1000, 10_000)
	require.NoError(t, tc.Block(thd))

	err := tc.WakeupPeriodic(thd, 0)

	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestWakeupPeriodic_Explicit(t *testing.T) {
	tc := newTestCore(t, 8)
	thd := tc.spawnBudgeted(t, 1, 1, 1000, 10_000)
	require.NoError(t, tc.BlockPeriodic(thd))
	require.True(t, thd.InHeap())

	tc.clock.now = 10_000
	require.NoError(t, tc.WakeupPeriodic(thd, 10_000))

	assert.Equal(t, StateReady, thd.State())
	assert.False(t, thd.InHeap())
}

func TestYield_RecordsOnly(t *testing.T) {
	tc := newTestCore(t, 8)
	a := tc.spawn(t, 1, 3)
	b := tc.spawn(t, 2, 3)
	_, ok := tc.Schedule(0)
	require.True(t, ok)

	tc.Yield(a, b.ID)

	assert.Equal(t, StateRunning, a.State())
	ev := tc.rec.Named(trace.EventYield)
	require.Len(t, ev, 1)
	target, _ := ev[0].Get("target")
	assert.Equal(t, int64(b.ID), target)
}

func TestReplenish_ClampedToInitialBudget(t *testing.T) {
	// GIVEN a thread whose budget was reset while a grant was outstanding
	tc := newTestCore(t, 8)
	thd := tc.spawnBudgeted(t, 1, 1, 1000, 10_000)
	_, ok := tc.Schedule(0)
	require.True(t, ok)
	tc.run(thd, 600)
	require.NoError(t, tc.UpdateParameter(thd, ParamBudget, 800))

	// WHEN the grant falls due
	tc.TimerExpired(10_000)

	// THEN the budget does not exceed the new initial budget
	assert.Equal(t, int64(800), thd.Budget())
	assert.Equal(t, Cycles(600), thd.Stats.Replenished)
}
