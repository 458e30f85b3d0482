package sched

// Clock is the per-core monotonic cycle counter.
type Clock interface {
	Now() Cycles
}

// Timer is the per-core one-shot timer. Set replaces any previous deadline.
type Timer interface {
	Set(abs Cycles)
	Clear()
}

// Waker is notified when a blocked thread's timed wakeup is due. The
// collaborator is expected to call Core.Wakeup for the thread, possibly after
// its own bookkeeping. When no Waker is configured the core wakes the thread
// itself.
type Waker interface {
	Wake(t *Thread)
}

// WakerFunc adapts a function to Waker.
type WakerFunc func(t *Thread)

func (f WakerFunc) Wake(t *Thread) { f(t) }

// CycleConverter converts between microseconds and cycles at a fixed rate.
type CycleConverter struct {
	CyclesPerUsec uint64
}

// UsecToCycles converts microseconds to cycles.
func (cv CycleConverter) UsecToCycles(us uint64) Cycles {
	return Cycles(us * cv.CyclesPerUsec)
}

// CyclesToUsec converts cycles to whole microseconds, rounding down.
func (cv CycleConverter) CyclesToUsec(c Cycles) uint64 {
	if cv.CyclesPerUsec == 0 {
		return 0
	}
	return uint64(c) / cv.CyclesPerUsec
}
