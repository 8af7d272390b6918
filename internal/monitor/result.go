package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/sprint/internal/sprint"
)

// TaskResult is the final record of one task.
type TaskResult struct {
	ID          string             `json:"id"`
	Agent       sprint.AgentKind   `json:"agent"`
	Status      sprint.TaskStatus  `json:"status"`
	Estimate    time.Duration      `json:"estimate"`
	Elapsed     time.Duration      `json:"elapsed"`
	Error       string             `json:"error,omitempty"`
	BlockReason sprint.BlockReason `json:"block_reason,omitempty"`
}

// SprintResult summarizes a finished run. It is a value; its maps and slices
// are not shared with the Monitor that produced it.
type SprintResult struct {
	RunID      string    `json:"run_id"`
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// WallClock runs from sprint start to the last terminal transition.
	WallClock time.Duration `json:"wall_clock"`
	// SequentialEstimate is the sum of all parseable task estimates.
	SequentialEstimate time.Duration `json:"sequential_estimate"`
	// TheoreticalMin is the longest single task estimate.
	TheoreticalMin time.Duration `json:"theoretical_min"`
	// CriticalPath is the longest estimated chain of dependent tasks.
	CriticalPath time.Duration `json:"critical_path"`
	// ParallelEfficiency is 1 - WallClock/SequentialEstimate clamped to
	// [0, 1], or 0 without a baseline.
	ParallelEfficiency float64 `json:"parallel_efficiency"`
	// TimeSaved is SequentialEstimate - WallClock, floored at zero.
	TimeSaved time.Duration `json:"time_saved"`

	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Blocked   int `json:"blocked"`

	Order  []string                     `json:"order"`
	Tasks  map[string]TaskResult        `json:"tasks"`
	Gates  map[string]sprint.GateStatus `json:"gates,omitempty"`
	Errors map[string]string            `json:"errors,omitempty"`

	Outcome error `json:"-"`
}

// Succeeded reports whether every task completed.
func (r SprintResult) Succeeded() bool {
	return r.Outcome == nil && r.Completed == r.Total
}

// Summary renders the result as a short human-readable report.
func (r SprintResult) Summary() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Sprint %q finished in %s\n", r.Name, r.WallClock.Round(time.Millisecond))
	fmt.Fprintf(&sb, "  tasks:       %d/%d completed, %d failed, %d blocked\n",
		r.Completed, r.Total, r.Failed, r.Blocked)
	fmt.Fprintf(&sb, "  estimate:    %s sequential, %s critical path\n",
		sprint.FormatDuration(r.SequentialEstimate), sprint.FormatDuration(r.CriticalPath))
	fmt.Fprintf(&sb, "  efficiency:  %.1f%% (saved %s)\n",
		r.ParallelEfficiency*100, r.TimeSaved.Round(time.Millisecond))

	for _, id := range r.Order {
		if msg, ok := r.Errors[id]; ok {
			fmt.Fprintf(&sb, "  %s %s: %s\n", r.Tasks[id].Status, id, msg)
		}
	}
	if r.Outcome != nil {
		fmt.Fprintf(&sb, "  outcome:     %v\n", r.Outcome)
	}
	return sb.String()
}

// Snapshot is live progress of a run.
type Snapshot struct {
	Elapsed            time.Duration
	Total              int
	Completed          int
	Failed             int
	Blocked            int
	Running            int
	Remaining          int
	EstimatedRemaining time.Duration
}

// Progress returns the fraction of tasks that reached a terminal state.
func (s Snapshot) Progress() float64 {
	if s.Total == 0 {
		return 1
	}
	return float64(s.Total-s.Remaining) / float64(s.Total)
}
