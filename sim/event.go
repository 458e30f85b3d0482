package sim

import (
	"github.com/sirupsen/logrus"

	"github.com/slmsched/fpss/sched"
)

// Event defines the interface for all simulation events.
// Each event has a Timestamp (in cycles) and an Execute method that advances
// simulation state when invoked.
type Event interface {
	Timestamp() sched.Cycles
	Execute(*Simulator)
}

// DispatchEvent unconditionally re-runs the scheduling step of a core.
// Used to boot each core.
type DispatchEvent struct {
	time sched.Cycles
	core int
}

func (e *DispatchEvent) Timestamp() sched.Cycles { return e.time }

func (e *DispatchEvent) Execute(sim *Simulator) {
	logrus.Debugf("<< Dispatch: core %d at %d cycles", e.core, e.time)
	sim.dispatch(sim.cpus[e.core])
}

// TimerFireEvent is the one-shot timer of a core reaching its deadline.
// Events superseded by a later Set or Clear are ignored.
type TimerFireEvent struct {
	time sched.Cycles
	core int
	gen  uint64
}

func (e *TimerFireEvent) Timestamp() sched.Cycles { return e.time }

func (e *TimerFireEvent) Execute(sim *Simulator) {
	cpu := sim.cpus[e.core]
	if !cpu.timer.fires(e.gen) {
		return
	}
	logrus.Debugf("<< TimerFire: core %d at %d cycles", e.core, e.time)
	sim.dispatch(cpu)
}

// MilestoneEvent is the running thread finishing the work of its current
// activation. Stale if the core was rescheduled since it was created.
type MilestoneEvent struct {
	time sched.Cycles
	core int
	gen  uint64
}

func (e *MilestoneEvent) Timestamp() sched.Cycles { return e.time }

func (e *MilestoneEvent) Execute(sim *Simulator) {
	cpu := sim.cpus[e.core]
	if cpu.gen != e.gen {
		return
	}
	logrus.Debugf("<< Milestone: core %d at %d cycles", e.core, e.time)
	sim.dispatch(cpu)
}
