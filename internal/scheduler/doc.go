// Package scheduler runs a validated sprint plan.
//
// A [Scheduler] owns the execution state of every task for the duration of
// one run. All state lives on a single goroutine, the loop inside
// [Scheduler.Execute], which blocks in one select over task completions,
// approval decisions, timeouts, control requests and context cancellation.
// Executors and approvers run on their own goroutines and reach the loop only
// through channels.
//
// # Task lifecycle
//
//	Pending → Ready → Assigned → Running → Completed | Failed | Blocked
//
// A task becomes Ready once all of its dependencies completed. Ready tasks are
// dispatched in execution order while concurrency slots are free, unless an
// approval gate that holds them back has not been approved. A task that its
// agent reports as blocked returns to Ready through [Scheduler.Unblock].
//
// # Failure handling
//
// When a task fails, its transitive dependents become Blocked and unrelated
// work continues. With [Config.FailFast] the first failure aborts the run.
// Gate rejection, cancellation and deadlock also end the run; in every case
// [Scheduler.Execute] returns a complete [Report] whose Outcome explains why.
//
// Every status change is published on the event bus as an
// [event.TaskTransitionEvent] carrying a copy of the task state.
package scheduler
