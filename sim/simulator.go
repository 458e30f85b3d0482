package sim

import (
	"container/heap"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/slmsched/fpss/sched"
	"github.com/slmsched/fpss/sched/notify"
	"github.com/slmsched/fpss/sched/trace"
	"github.com/slmsched/fpss/sim/workload"
)

// EventQueue implements heap.Interface and orders events by timestamp.
// Ties keep insertion order so equal-time events run deterministically.
type EventQueue []queuedEvent

type queuedEvent struct {
	ev  Event
	seq uint64
}

func (eq EventQueue) Len() int { return len(eq) }
func (eq EventQueue) Less(i, j int) bool {
	ti, tj := eq[i].ev.Timestamp(), eq[j].ev.Timestamp()
	if ti != tj {
		return ti < tj
	}
	return eq[i].seq < eq[j].seq
}
func (eq EventQueue) Swap(i, j int) { eq[i], eq[j] = eq[j], eq[i] }

func (eq *EventQueue) Push(x any) {
	*eq = append(*eq, x.(queuedEvent))
}

func (eq *EventQueue) Pop() any {
	old := *eq
	n := len(old)
	item := old[n-1]
	*eq = old[0 : n-1]
	return item
}

// Options configures the scheduling cores created by NewSimulator.
type Options struct {
	Sink trace.Sink // diagnostic records from every core

	// WarningRates bounds anomaly warnings per category. Each core gets its
	// own limiter built from it; nil logs every warning.
	WarningRates map[time.Duration]int

	Paranoid bool // audit scheduler invariants after every operation
}

// Simulator holds the virtual clock, the event queue and one cpu per core.
type Simulator struct {
	Clock      sched.Cycles
	Horizon    sched.Cycles
	EventQueue EventQueue
	Threads    []*Thread

	cpus []*cpu
	seq  uint64
}

// NewSimulator validates spec and registers every thread with its core.
func NewSimulator(spec *workload.WorkloadSpec, opts Options) (*Simulator, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workload: %w", err)
	}
	cv := spec.Converter()
	s := &Simulator{
		Horizon:    cv.UsecToCycles(spec.HorizonUs),
		EventQueue: make(EventQueue, 0),
	}
	for i := 0; i < spec.Cores; i++ {
		c, err := s.newCPU(i, spec.MaxThreads, opts)
		if err != nil {
			return nil, err
		}
		s.cpus = append(s.cpus, c)
	}
	for i, ts := range spec.Threads {
		th := &Thread{
			Spec:  ts,
			Sched: sched.NewThread(sched.ThreadID(i + 1)),
			Core:  ts.Core,
			work:  cv.UsecToCycles(ts.WorkUs),
			sleep: cv.UsecToCycles(ts.SleepUs),
		}
		if err := s.register(s.cpus[ts.Core], th, cv); err != nil {
			return nil, fmt.Errorf("thread %q: %w", ts.Name, err)
		}
		s.Threads = append(s.Threads, th)
	}
	logrus.Infof("Simulator ready: %d cores, %d threads, horizon %d cycles", len(s.cpus), len(s.Threads), s.Horizon)
	return s, nil
}

func (s *Simulator) newCPU(id, maxThreads int, opts Options) (*cpu, error) {
	c := &cpu{
		id:    id,
		table: notify.NewTable(),
		timer: &oneShotTimer{sim: s, core: id},
		byID:  make(map[sched.ThreadID]*Thread),
	}
	var throttle *trace.Throttle
	if opts.WarningRates != nil {
		throttle = trace.NewThrottle(opts.WarningRates)
	}
	core, err := sched.NewCore(sched.Options{
		CoreID:     id,
		MaxThreads: maxThreads,
		Clock:      s,
		Timer:      c.timer,
		Waker: sched.WakerFunc(func(t *sched.Thread) {
			c.table.Post(c.byID[t.ID].event, notify.FlagWakeup, 0)
		}),
		Sink:     opts.Sink,
		Throttle: throttle,
		Paranoid: opts.Paranoid,
	})
	if err != nil {
		return nil, err
	}
	c.core = core
	return c, nil
}

func (s *Simulator) register(c *cpu, th *Thread, cv sched.CycleConverter) error {
	ev, err := c.table.Alloc()
	if err != nil {
		return err
	}
	th.event = ev
	c.byEvent[ev] = th
	c.byID[th.Sched.ID] = th
	c.table.SetUrgency(ev, uint16(th.Spec.Priority))

	if err := c.core.ThdInit(th.Sched); err != nil {
		return err
	}
	if err := c.core.UpdateParameter(th.Sched, sched.ParamPriority, uint64(th.Spec.Priority)); err != nil {
		return err
	}
	if th.Spec.PeriodUs > 0 {
		if err := c.core.UpdateParameter(th.Sched, sched.ParamWindow, uint64(cv.UsecToCycles(th.Spec.PeriodUs))); err != nil {
			return err
		}
	}
	if th.Spec.Budgeted() {
		if err := c.core.UpdateParameter(th.Sched, sched.ParamBudget, uint64(cv.UsecToCycles(th.Spec.BudgetUs))); err != nil {
			return err
		}
	}
	return nil
}

// Now implements sched.Clock for every core.
func (s *Simulator) Now() sched.Cycles { return s.Clock }

// Core returns the scheduler of core i.
func (s *Simulator) Core(i int) *sched.Core { return s.cpus[i].core }

// Schedule pushes an event into the simulator's EventQueue.
// Not to be confused with sched.Core.Schedule.
func (s *Simulator) Schedule(ev Event) {
	s.seq++
	heap.Push(&s.EventQueue, queuedEvent{ev: ev, seq: s.seq})
}

// Run boots every core at time zero and processes events until the horizon.
func (s *Simulator) Run() {
	for i := range s.cpus {
		s.Schedule(&DispatchEvent{time: 0, core: i})
	}
	for len(s.EventQueue) > 0 {
		ev := heap.Pop(&s.EventQueue).(queuedEvent).ev
		if ev.Timestamp() > s.Horizon {
			break
		}
		s.Clock = ev.Timestamp()
		ev.Execute(s)
	}
	s.Clock = s.Horizon
	for _, c := range s.cpus {
		s.finish(c)
	}
	logrus.Infof("[cycle %d] Simulation ended", s.Clock)
}

// dispatch is the kernel's scheduling step for one core: charge the running
// thread, deliver notifications, expire timeouts and pick the next thread.
func (s *Simulator) dispatch(c *cpu) {
	now := s.Clock
	c.gen++
	if c.running != nil {
		s.stop(c, now)
	} else {
		c.Idle += now - c.idleSince
	}
	s.drain(c, now)
	c.core.TimerExpired(now)
	// wakeups posted by the Waker during expiry
	s.drain(c, now)

	next, ok := c.core.Schedule(now)
	if !ok {
		c.idleSince = now
		return
	}
	s.start(c, c.byID[next.ID], now)
}

func (s *Simulator) start(c *cpu, th *Thread, now sched.Cycles) {
	c.running, c.runStart = th, now
	c.Dispatches++
	th.begin()
	if th.finite() {
		s.Schedule(&MilestoneEvent{time: now + th.remaining, core: c.id, gen: c.gen})
	}
}

// stop takes the running thread off the cpu and posts what it consumed.
func (s *Simulator) stop(c *cpu, now sched.Cycles) {
	th := c.running
	c.running = nil
	ran := now - c.runStart
	th.Executed += ran

	var flags uint8
	if th.advance(ran) {
		switch th.Spec.Behaviour {
		case workload.BehaviourPeriodic, workload.BehaviourSleep:
			flags |= notify.FlagBlocked
		case workload.BehaviourYield:
			c.core.Yield(th.Sched, 0)
		}
	}
	if ran > 0 || flags != 0 {
		c.table.Post(th.event, flags, uint64(ran))
	}
}

// drain hands every pending notification of c to its scheduler.
func (s *Simulator) drain(c *cpu, now sched.Cycles) {
	c.table.ProcessEvents(func(id uint8, flags uint8, cycles uint64) {
		th := c.byEvent[id]
		if cycles != 0 {
			c.core.AccountExecution(th.Sched, sched.Cycles(cycles), now)
			th.observeBudget()
		}
		if flags&notify.FlagBlocked != 0 {
			s.block(c, th, now)
		}
		if flags&notify.FlagWakeup != 0 {
			if err := c.core.Wakeup(th.Sched); err != nil {
				logrus.Debugf("core %d: wakeup %s: %v", c.id, th.Spec.Name, err)
			}
		}
	})
}

func (s *Simulator) block(c *cpu, th *Thread, now sched.Cycles) {
	var err error
	switch th.Spec.Behaviour {
	case workload.BehaviourPeriodic:
		err = c.core.BlockPeriodic(th.Sched)
	case workload.BehaviourSleep:
		err = c.core.BlockTimeout(th.Sched, now+th.sleep)
	}
	if err != nil {
		logrus.Warnf("core %d: block %s: %v", c.id, th.Spec.Name, err)
	}
}

// finish charges whatever ran up to the horizon.
func (s *Simulator) finish(c *cpu) {
	if c.running == nil {
		c.Idle += s.Clock - c.idleSince
		c.idleSince = s.Clock
		return
	}
	s.stop(c, s.Clock)
	s.drain(c, s.Clock)
}
