// Package trace provides structured diagnostic records emitted by the
// scheduling core for offline analysis.
// It does not import sched and holds plain data types only.
package trace

import "fmt"

// Event names emitted by the scheduling core.
const (
	EventInit           = "init"
	EventSchedule       = "schedule"
	EventIdle           = "idle"
	EventBlock          = "block"
	EventWakeup         = "wakeup"
	EventExpended       = "expended"
	EventReplenish      = "replenish"
	EventReplMerge      = "repl-merge"
	EventYield          = "yield"
	EventUpdatePriority = "update-priority"
	EventUpdateBudget   = "update-budget"
	EventUpdatePeriod   = "update-period"
	EventDeinit         = "deinit"
	EventTimerSet       = "timer-set"
)

// Field is a single key/value pair attached to a Record.
type Field struct {
	Key   string
	Value int64
}

// F is shorthand for constructing a Field.
func F(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Record captures a single scheduler event.
type Record struct {
	Name   string
	Core   int
	Clock  uint64 // absolute cycles at emission
	TID    uint32 // 0 when the event is not about a thread
	Fields []Field
}

// Get returns the value of the named field.
func (r Record) Get(key string) (int64, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return 0, false
}

func (r Record) String() string {
	return fmt.Sprintf("Record: (Name: %s, Core: %d, Clock: %d, TID: %d, Fields: %v)", r.Name, r.Core, r.Clock, r.TID, r.Fields)
}
