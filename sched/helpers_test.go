package sched

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slmsched/fpss/sched/trace"
)

type fakeClock struct{ now Cycles }

func (c *fakeClock) Now() Cycles { return c.now }

type fakeTimer struct {
	deadline Cycles
	armed    bool
	sets     int
	clears   int
}

func (t *fakeTimer) Set(abs Cycles) {
	t.deadline, t.armed = abs, true
	t.sets++
}

func (t *fakeTimer) Clear() {
	t.deadline, t.armed = 0, false
	t.clears++
}

type testCore struct {
	*Core
	clock *fakeClock
	timer *fakeTimer
	rec   *trace.Recorder
}

func newTestCore(t *testing.T, maxThreads int) *testCore {
	t.Helper()
	tc := &testCore{clock: &fakeClock{}, timer: &fakeTimer{}, rec: trace.NewRecorder()}
	c, err := NewCore(Options{
		MaxThreads: maxThreads,
		Clock:      tc.clock,
		Timer:      tc.timer,
		Sink:       tc.rec,
		Paranoid:   true,
	})
	require.NoError(t, err)
	tc.Core = c
	return tc
}

// spawn registers a thread and sets its priority.
func (tc *testCore) spawn(t *testing.T, id ThreadID, prio uint64) *Thread {
	t.Helper()
	thd := NewThread(id)
	require.NoError(t, tc.ThdInit(thd))
	require.NoError(t, tc.UpdateParameter(thd, ParamPriority, prio))
	return thd
}

// spawnBudgeted registers a thread with a budget and window.
func (tc *testCore) spawnBudgeted(t *testing.T, id ThreadID, prio, budget, period uint64) *Thread {
	t.Helper()
	thd := tc.spawn(t, id, prio)
	require.NoError(t, tc.UpdateParameter(thd, ParamWindow, period))
	require.NoError(t, tc.UpdateParameter(thd, ParamBudget, budget))
	return thd
}

// run advances the clock by cycles and charges them to thd.
func (tc *testCore) run(thd *Thread, cycles Cycles) {
	tc.clock.now += cycles
	tc.AccountExecution(thd, cycles, tc.clock.now)
}

// advance moves the clock to abs and delivers the timer if it has fired.
func (tc *testCore) advance(abs Cycles) {
	tc.clock.now = abs
	if tc.timer.armed && tc.timer.deadline <= abs {
		tc.TimerExpired(abs)
	}
}
