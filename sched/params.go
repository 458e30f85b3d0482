package sched

import (
	"fmt"

	"github.com/slmsched/fpss/sched/trace"
)

// UpdateParameter changes one scheduling parameter of t. Values are checked
// before anything is modified, so a returned error leaves t untouched.
func (c *Core) UpdateParameter(t *Thread, kind ParamKind, value uint64) error {
	if err := c.lookup("update "+kind.String(), t); err != nil {
		return err
	}
	switch kind {
	case ParamInitProto:
		c.setPriority(t, PrioProto)
	case ParamInit:
		c.setPriority(t, PrioLowest)
	case ParamPriority:
		if value < PrioHighest || value > PrioLowest {
			return fmt.Errorf("priority %d not in [%d, %d]: %w", value, PrioHighest, PrioLowest, ErrPriorityRange)
		}
		c.setPriority(t, int(value))
	case ParamBudget:
		if value == 0 || value > uint64(WindowHighest) {
			return fmt.Errorf("budget %d not in [1, %d]: %w", value, WindowHighest, ErrBudgetRange)
		}
		c.setBudget(t, int64(value))
	case ParamWindow:
		if p := Cycles(value); p < WindowLowest || p > WindowHighest {
			return fmt.Errorf("window %d not in [%d, %d]: %w", value, WindowLowest, WindowHighest, ErrWindowRange)
		}
		t.Timer.Period = Cycles(value)
		t.Timer.AbsPeriodEnd = t.Timer.AbsPeriodStart + t.Timer.Period
		c.emit(trace.EventUpdatePeriod, t, trace.F("period", int64(value)))
	default:
		return fmt.Errorf("parameter kind %d: %w", int(kind), ErrUnknownParam)
	}
	c.syncTimer()
	c.audit("update " + kind.String())
	return nil
}

func (c *Core) setPriority(t *Thread, prio int) {
	old := t.Priority
	t.Priority = prio
	if t.Queued() && t.Sched.level != prio {
		c.runq.remove(t)
		c.runq.append(t)
	}
	c.emit(trace.EventUpdatePriority, t, trace.F("from", int64(old)), trace.F("to", int64(prio)))
}

// setBudget resets budget and initial budget. An expended thread becomes
// runnable again since it now has budget.
func (c *Core) setBudget(t *Thread, budget int64) {
	t.Timer.Budget = budget
	t.Timer.InitialBudget = budget
	t.Timer.IsBudgeted = true
	if t.Sched.State == StateExpended {
		t.Sched.State = StateReady
		c.runq.append(t)
	}
	c.emit(trace.EventUpdateBudget, t, trace.F("budget", budget))
}
