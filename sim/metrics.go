package sim

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/slmsched/fpss/sched"
)

// ThreadMetrics summarises one thread at the end of a run.
type ThreadMetrics struct {
	Name        string
	Core        int
	Priority    int
	Budgeted    bool
	State       sched.State
	Executed    sched.Cycles
	Replenished sched.Cycles
	Outstanding sched.Cycles
	MaxOverrun  sched.Cycles
	Dispatches  int
	Expended    int
	Activations int
	Completed   int
}

// CoreMetrics summarises one core.
type CoreMetrics struct {
	ID         int
	Idle       sched.Cycles
	Dispatches int
}

// Metrics aggregates the results of a run for final reporting.
type Metrics struct {
	Horizon sched.Cycles
	Threads []ThreadMetrics
	Cores   []CoreMetrics
}

// Collect gathers metrics from the simulator's current state.
func (s *Simulator) Collect() *Metrics {
	m := &Metrics{Horizon: s.Horizon}
	for _, th := range s.Threads {
		m.Threads = append(m.Threads, ThreadMetrics{
			Name:        th.Spec.Name,
			Core:        th.Core,
			Priority:    th.Sched.Priority,
			Budgeted:    th.Sched.Timer.IsBudgeted,
			State:       th.Sched.State(),
			Executed:    th.Executed,
			Replenished: th.Sched.Stats.Replenished,
			Outstanding: th.Sched.Outstanding(),
			MaxOverrun:  th.MaxOverrun,
			Dispatches:  th.Sched.Stats.Dispatches,
			Expended:    th.Sched.Stats.Expended,
			Activations: th.Activations,
			Completed:   th.Completed,
		})
	}
	for _, c := range s.cpus {
		m.Cores = append(m.Cores, CoreMetrics{ID: c.id, Idle: c.Idle, Dispatches: c.Dispatches})
	}
	return m
}

// Share returns the fraction of the horizon thread i executed.
func (m *Metrics) Share(i int) float64 {
	if m.Horizon == 0 {
		return 0
	}
	return float64(m.Threads[i].Executed) / float64(m.Horizon)
}

// Print writes a human-readable report to w.
func (m *Metrics) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Metrics ===")
	fmt.Fprintf(w, "Horizon              : %s cycles\n", humanize.Comma(int64(m.Horizon)))
	for _, c := range m.Cores {
		fmt.Fprintf(w, "Core %-2d              : %s dispatches, %s idle cycles\n",
			c.ID, humanize.Comma(int64(c.Dispatches)), humanize.Comma(int64(c.Idle)))
	}
	fmt.Fprintln(w, "--- Threads ---")
	for i, t := range m.Threads {
		fmt.Fprintf(w, "%-12s core=%d prio=%-2d state=%-16s executed=%s (%.1f%%) dispatches=%s expended=%d",
			t.Name, t.Core, t.Priority, t.State, humanize.Comma(int64(t.Executed)), 100*m.Share(i),
			humanize.Comma(int64(t.Dispatches)), t.Expended)
		if t.Budgeted {
			fmt.Fprintf(w, " replenished=%s outstanding=%s max_overrun=%d",
				humanize.Comma(int64(t.Replenished)), humanize.Comma(int64(t.Outstanding)), t.MaxOverrun)
		}
		if t.Activations > 0 {
			fmt.Fprintf(w, " activations=%d completed=%d", t.Activations, t.Completed)
		}
		fmt.Fprintln(w)
	}
}
