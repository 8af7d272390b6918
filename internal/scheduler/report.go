package scheduler

import (
	"time"

	"github.com/Iron-Ham/sprint/internal/sprint"
)

// Report is the final state of a run.
type Report struct {
	RunID      string
	Name       string
	Order      []string // Execution order
	States     map[string]sprint.TaskState
	Gates      map[string]sprint.GateStatus
	StartedAt  time.Time
	FinishedAt time.Time

	// Outcome is nil when every task completed. Otherwise it is the reason
	// the run stopped early, or an execution error naming the first task
	// that did not complete.
	Outcome error
}

// State returns the final state of a task.
func (r *Report) State(id string) (sprint.TaskState, bool) {
	st, ok := r.States[id]
	return st, ok
}

// Count returns how many tasks ended in status.
func (r *Report) Count(status sprint.TaskStatus) int {
	n := 0
	for _, st := range r.States {
		if st.Status == status {
			n++
		}
	}
	return n
}

// WithStatus returns the ids of tasks that ended in status, in execution
// order.
func (r *Report) WithStatus(status sprint.TaskStatus) []string {
	var ids []string
	for _, id := range r.Order {
		if r.States[id].Status == status {
			ids = append(ids, id)
		}
	}
	return ids
}

// Succeeded reports whether every task completed.
func (r *Report) Succeeded() bool {
	return r.Outcome == nil
}

// Duration returns the wall-clock length of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
