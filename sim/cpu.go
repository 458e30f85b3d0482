package sim

import (
	"github.com/slmsched/fpss/sched"
	"github.com/slmsched/fpss/sched/notify"
)

// cpu is one simulated core: its scheduler, its notification table and
// whatever it is currently running.
type cpu struct {
	id    int
	core  *sched.Core
	table *notify.Table
	timer *oneShotTimer

	byEvent [notify.MaxEvents]*Thread
	byID    map[sched.ThreadID]*Thread

	running   *Thread
	runStart  sched.Cycles
	idleSince sched.Cycles
	gen       uint64 // bumped on every dispatch; invalidates pending milestones

	Idle       sched.Cycles
	Dispatches int
}

// oneShotTimer implements sched.Timer on the simulator's event queue. Each
// Set or Clear supersedes every earlier fire event.
type oneShotTimer struct {
	sim      *Simulator
	core     int
	gen      uint64
	armed    bool
	deadline sched.Cycles
}

func (t *oneShotTimer) Set(abs sched.Cycles) {
	t.gen++
	t.armed, t.deadline = true, abs
	t.sim.Schedule(&TimerFireEvent{time: max(abs, t.sim.Clock), core: t.core, gen: t.gen})
}

func (t *oneShotTimer) Clear() {
	t.gen++
	t.armed = false
}

// fires consumes the pending deadline if gen is still current.
func (t *oneShotTimer) fires(gen uint64) bool {
	if !t.armed || gen != t.gen {
		return false
	}
	t.armed = false
	return true
}
