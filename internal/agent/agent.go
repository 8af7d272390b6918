// Package agent defines the executor boundary between the scheduler and the
// worker agents that actually carry out tasks.
//
// The scheduler hands a task to an [Executor] and later receives exactly one
// [Completion] for it on a channel it owns. Executors run on their own
// goroutines and never touch scheduler state.
package agent

import (
	"context"
	"time"

	"github.com/Iron-Ham/sprint/internal/sprint"
)

// CompletionStatus is the outcome an executor reports for a task.
type CompletionStatus int

const (
	// CompletionSuccess means the task met its acceptance criteria.
	CompletionSuccess CompletionStatus = iota
	// CompletionFailed means the task did not succeed.
	CompletionFailed
	// CompletionBlocked means the agent cannot continue without outside help.
	CompletionBlocked
)

// String returns the completion status name.
func (s CompletionStatus) String() string {
	switch s {
	case CompletionSuccess:
		return "success"
	case CompletionFailed:
		return "failed"
	case CompletionBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Completion is the terminal signal for one dispatched task.
type Completion struct {
	TaskID string
	Status CompletionStatus
	Error  string // Set for failed and blocked completions
	At     time.Time
}

// Succeeded returns a success completion for taskID.
func Succeeded(taskID string) Completion {
	return Completion{TaskID: taskID, Status: CompletionSuccess, At: time.Now()}
}

// Failed returns a failure completion for taskID.
func Failed(taskID, reason string) Completion {
	return Completion{TaskID: taskID, Status: CompletionFailed, Error: reason, At: time.Now()}
}

// Blocked returns a blocked completion for taskID.
func Blocked(taskID, reason string) Completion {
	return Completion{TaskID: taskID, Status: CompletionBlocked, Error: reason, At: time.Now()}
}

// Handle controls a dispatched task.
type Handle interface {
	// Abort asks the agent to stop. The executor still delivers a completion
	// for the task, normally a failure.
	Abort(reason string) error
}

// HandleFunc adapts a function to the Handle interface.
type HandleFunc func(reason string) error

// Abort calls f(reason).
func (f HandleFunc) Abort(reason string) error { return f(reason) }

// NopHandle is a Handle whose Abort does nothing.
var NopHandle Handle = HandleFunc(func(string) error { return nil })

// Executor launches tasks on worker agents.
type Executor interface {
	// Dispatch starts task and returns once the agent has acknowledged it.
	// A nil error means exactly one Completion for task.ID will later be
	// sent on events. A non-nil error means the task was not started and no
	// completion will follow.
	Dispatch(ctx context.Context, task sprint.Task, events chan<- Completion) (Handle, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task sprint.Task, events chan<- Completion) (Handle, error)

// Dispatch calls f(ctx, task, events).
func (f ExecutorFunc) Dispatch(ctx context.Context, task sprint.Task, events chan<- Completion) (Handle, error) {
	return f(ctx, task, events)
}
