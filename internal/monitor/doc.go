// Package monitor derives sprint statistics from scheduler events.
//
// A [Monitor] listens to task and gate events on the bus and keeps its own
// copy of every task's latest state. It never touches the scheduler. Call
// [Monitor.Snapshot] for live progress and [Monitor.Finalize] once the run
// ends to obtain an immutable [SprintResult].
package monitor
