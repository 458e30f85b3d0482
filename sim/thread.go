package sim

import (
	"github.com/slmsched/fpss/sched"
	"github.com/slmsched/fpss/sim/workload"
)

// Thread is a simulated thread: its workload description, its scheduler
// handle and its progress through the current activation.
type Thread struct {
	Spec  workload.ThreadSpec
	Sched *sched.Thread
	Core  int

	event     uint8
	work      sched.Cycles // per activation
	sleep     sched.Cycles
	remaining sched.Cycles // work left in the current activation, 0 = none started

	Executed    sched.Cycles
	Activations int
	Completed   int
	MaxOverrun  sched.Cycles // largest negative budget observed after accounting
}

// finite reports whether the behaviour has activations with an end.
func (t *Thread) finite() bool {
	return t.Spec.Behaviour != workload.BehaviourSpin
}

// begin starts a new activation if the previous one completed.
func (t *Thread) begin() {
	if t.finite() && t.remaining == 0 {
		t.remaining = t.work
		t.Activations++
	}
}

// advance charges ran cycles to the current activation and reports whether
// it completed.
func (t *Thread) advance(ran sched.Cycles) bool {
	if !t.finite() {
		return false
	}
	if ran >= t.remaining {
		t.remaining = 0
		t.Completed++
		return true
	}
	t.remaining -= ran
	return false
}

func (t *Thread) observeBudget() {
	if !t.Sched.Timer.IsBudgeted {
		return
	}
	if b := t.Sched.Budget(); b < 0 && sched.Cycles(-b) > t.MaxOverrun {
		t.MaxOverrun = sched.Cycles(-b)
	}
}
