package sched

import "fmt"

// Cycles is an absolute time or a duration in timestamp-counter cycles.
type Cycles uint64

// ThreadID identifies a thread within the thread manager.
type ThreadID uint32

// Priority levels. Lower values are more urgent. Level 0 is reserved for
// prototype threads placed with ParamInitProto.
const (
	NumPriorities = 32
	PrioProto     = 0
	PrioHighest   = 1
	PrioLowest    = NumPriorities - 1
)

// Bounds of a budgeted thread's replenishment window.
const (
	WindowLowest  Cycles = 1000
	WindowHighest Cycles = 1_000_000_000_000
)

// State is a thread's position in the policy state machine.
type State string

const (
	StateReady           State = "ready"
	StateRunning         State = "running"
	StateBlocked         State = "blocked"
	StateBlockedPeriodic State = "blocked-periodic"
	StateExpended        State = "expended"
	StateDeinit          State = "deinit"
)

// runnable reports whether a thread in state s belongs on a run queue.
func (s State) runnable() bool {
	return s == StateReady || s == StateRunning
}

func (s State) blocked() bool {
	return s == StateBlocked || s == StateBlockedPeriodic
}

// ParamKind selects the scheduling parameter changed by UpdateParameter.
type ParamKind int

const (
	ParamInitProto ParamKind = iota // move to the prototype level
	ParamInit                       // move to the lowest priority
	ParamPriority                   // value: priority in [PrioHighest, PrioLowest]
	ParamBudget                     // value: budget in cycles, > 0
	ParamWindow                     // value: period in cycles, in [WindowLowest, WindowHighest]
)

func (k ParamKind) String() string {
	switch k {
	case ParamInitProto:
		return "init-proto"
	case ParamInit:
		return "init"
	case ParamPriority:
		return "priority"
	case ParamBudget:
		return "budget"
	case ParamWindow:
		return "window"
	default:
		return fmt.Sprintf("param(%d)", int(k))
	}
}
