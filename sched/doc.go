// Package sched is a fixed-priority, sporadic-server scheduling policy for a
// single CPU core.
//
// # Reading Guide
//
//   - thread.go: per-thread TimerPolicy (budget, window, heap slot) and SchedPolicy (state, grants)
//   - replenish.go: the bounded ring of pending budget grants
//   - policy.go: Schedule, AccountExecution and the block/wakeup state machine
//   - timer.go: the per-core timer heap and TimerExpired dispatch
//   - params.go: UpdateParameter
//
// # State machine
//
//	READY --Schedule--> RUNNING
//	RUNNING --AccountExecution (budget <= 0)--> EXPENDED
//	RUNNING --Block--> BLOCKED
//	EXPENDED --grant due, budget > 0--> READY
//	BLOCKED --Wakeup--> READY | EXPENDED
//	BLOCKED_PERIODIC --WakeupPeriodic--> READY
//	any --ThdDeinit--> DEINIT
//
// Every unit of execution debited from a budgeted thread is repaid by a
// grant due one period after it was consumed. Grants live in a ring of
// ReplWindowSize entries; when it is full the newest grant is merged into the
// most recent entry so the amount owed is conserved.
//
// # Concurrency
//
// A Core belongs to one CPU and takes no locks: the caller runs each method
// to completion with preemption disabled. Caller mistakes (bad parameters,
// wrong state, capacity) are returned as errors. Broken internal contracts
// panic.
package sched
