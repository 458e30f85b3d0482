// Package sim is a discrete-event host for the scheduling core. It plays the
// kernel: it owns a virtual cycle clock and one one-shot timer per core, runs
// the thread chosen by sched.Core.Schedule until the timer fires or the
// thread reaches a behaviour milestone, and reports consumed cycles and
// wakeups back through a notify.Table the way a kernel would.
//
// # Reading Guide
//
//   - event.go: events driving the loop (dispatch, timer fire, milestone)
//   - simulator.go: the event loop and per-core dispatch step
//   - cpu.go: per-core state, virtual clock and one-shot timer
//   - thread.go: simulated threads and their behaviours (spin, periodic, sleep, yield)
//   - metrics.go: per-thread and per-core results
//
// Workloads are described by sim/workload.WorkloadSpec.
package sim
