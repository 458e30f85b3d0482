package sched

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/slmsched/fpss/sched/internal/idxheap"
	"github.com/slmsched/fpss/sched/trace"
)

// Options configures a Core.
type Options struct {
	CoreID     int
	MaxThreads int   // bounds both registered threads and the timer heap
	Clock      Clock // required
	Timer      Timer // required
	Waker      Waker // optional, see Waker
	Sink       trace.Sink
	Throttle   *trace.Throttle // rate limit for anomaly warnings, owned by this core; nil logs all
	Paranoid   bool            // audit invariants after every public operation
}

// Core is the scheduling state of a single CPU: its run queues, its timer
// heap and the threads registered on it. A Core is not safe for concurrent
// use; every method is a critical section the caller runs to completion.
type Core struct {
	id       int
	clock    Clock
	timer    Timer
	waker    Waker
	sink     trace.Sink
	throttle *trace.Throttle
	paranoid bool

	runq     *runQueue
	timeouts *idxheap.Heap[*Thread]
	threads  map[ThreadID]*Thread
	max      int
	current  *Thread // the thread last returned by Schedule while it stays RUNNING

	armed   bool
	armedAt Cycles
}

// NewCore creates the scheduling state for one CPU.
func NewCore(opts Options) (*Core, error) {
	if opts.Clock == nil || opts.Timer == nil {
		return nil, fmt.Errorf("core %d: clock and timer are required", opts.CoreID)
	}
	if opts.MaxThreads <= 0 {
		return nil, fmt.Errorf("core %d: max threads must be positive, got %d", opts.CoreID, opts.MaxThreads)
	}
	sink := opts.Sink
	if sink == nil {
		sink = trace.Discard{}
	}
	c := &Core{
		id:       opts.CoreID,
		clock:    opts.Clock,
		timer:    opts.Timer,
		waker:    opts.Waker,
		sink:     sink,
		throttle: opts.Throttle,
		paranoid: opts.Paranoid,
		runq:     newRunQueue(),
		timeouts: idxheap.New(opts.MaxThreads,
			func(a, b *Thread) bool { return a.Timer.AbsNextProcessing <= b.Timer.AbsNextProcessing },
			func(t *Thread, i int) { t.Timer.HeapIndex = i },
		),
		threads: make(map[ThreadID]*Thread, opts.MaxThreads),
		max:     opts.MaxThreads,
	}
	logrus.Debugf("core %d: scheduler initialised, max threads %d", c.id, c.max)
	return c, nil
}

// ID returns the core id.
func (c *Core) ID() int { return c.id }

// Threads returns the number of registered threads.
func (c *Core) Threads() int { return len(c.threads) }

// Thread looks up a registered thread.
func (c *Core) Thread(id ThreadID) (*Thread, bool) {
	t, ok := c.threads[id]
	return t, ok
}

// Current returns the running thread, if any.
func (c *Core) Current() *Thread { return c.current }

// RunQueueLen returns the number of READY and RUNNING threads.
func (c *Core) RunQueueLen() int { return c.runq.Len() }

// PendingTimeouts returns the number of threads with a heap entry.
func (c *Core) PendingTimeouts() int { return c.timeouts.Len() }

// NextTimeout returns the timer deadline last programmed, if any.
func (c *Core) NextTimeout() (Cycles, bool) { return c.armedAt, c.armed }

func (c *Core) emit(name string, t *Thread, fields ...trace.Field) {
	r := trace.Record{Name: name, Core: c.id, Clock: uint64(c.clock.Now()), Fields: fields}
	if t != nil {
		r.TID = uint32(t.ID)
	}
	c.sink.Emit(r)
}

// lookup verifies t is registered here and not deinitialized.
func (c *Core) lookup(op string, t *Thread) error {
	if t.Sched.State == StateDeinit {
		return stateError(op, t)
	}
	if c.threads[t.ID] != t {
		return fmt.Errorf("%s thread %d on core %d: %w", op, t.ID, c.id, ErrUnknownThread)
	}
	return nil
}

func (c *Core) audit(op string) {
	if !c.paranoid {
		return
	}
	if err := c.CheckInvariants(); err != nil {
		violation("after %s: %v", op, err)
	}
}
