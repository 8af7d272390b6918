package sprint

import "time"

// TaskStatus is the execution state of a task.
type TaskStatus int

const (
	// StatusPending means the task is waiting on dependencies.
	StatusPending TaskStatus = iota
	// StatusReady means every dependency completed.
	StatusReady
	// StatusAssigned means the task was handed to an executor.
	StatusAssigned
	// StatusRunning means the executor acknowledged the task.
	StatusRunning
	// StatusCompleted means the task finished successfully.
	StatusCompleted
	// StatusFailed means the task finished unsuccessfully.
	StatusFailed
	// StatusBlocked means the task cannot proceed.
	StatusBlocked
)

// String returns a human-readable status name.
func (s TaskStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusAssigned:
		return "assigned"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name.
func (s TaskStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTerminal reports whether the status ends a task's lifecycle. Blocked is
// terminal for reporting; a task blocked by an executor signal may still be
// returned to Ready by the scheduler.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusBlocked
}

// IsActive reports whether the task holds an executor slot.
func (s TaskStatus) IsActive() bool {
	return s == StatusAssigned || s == StatusRunning
}

// BlockReason explains why a task is Blocked.
type BlockReason string

// Block reasons.
const (
	BlockNone              BlockReason = ""
	BlockDependencyFailed  BlockReason = "dependency_failed"
	BlockDependencyBlocked BlockReason = "dependency_blocked"
	BlockGateRejected      BlockReason = "gate_rejected"
	BlockGateUnreachable   BlockReason = "gate_unreachable"
	BlockAgentSignal       BlockReason = "agent_signal"
	BlockAborted           BlockReason = "aborted"
	BlockCanceled          BlockReason = "canceled"
	BlockDeadlock          BlockReason = "deadlock"
)

// TaskState is a snapshot of one task's execution state.
type TaskState struct {
	TaskID      string      `json:"task_id"`
	Agent       AgentKind   `json:"agent"`
	Status      TaskStatus  `json:"status"`
	StartTime   time.Time   `json:"start_time,omitempty"`
	EndTime     time.Time   `json:"end_time,omitempty"`
	Error       string      `json:"error,omitempty"`
	BlockReason BlockReason `json:"block_reason,omitempty"`
}

// Elapsed returns how long the task ran. It is zero for tasks that never
// started and measured to now for tasks still running.
func (s TaskState) Elapsed() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// GateStatus is the lifecycle state of an approval gate during a run.
type GateStatus int

const (
	// GateWaiting means some required task has not completed yet.
	GateWaiting GateStatus = iota
	// GateAwaitingApproval means every required task completed and a decision
	// has been requested.
	GateAwaitingApproval
	// GateApproved means the gate is open.
	GateApproved
	// GateRejected means the approver rejected the gate.
	GateRejected
	// GateUnreachable means a required task can no longer complete.
	GateUnreachable
)

// String returns a human-readable gate status name.
func (s GateStatus) String() string {
	switch s {
	case GateWaiting:
		return "waiting"
	case GateAwaitingApproval:
		return "awaiting_approval"
	case GateApproved:
		return "approved"
	case GateRejected:
		return "rejected"
	case GateUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// MarshalText renders the gate status by name.
func (s GateStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
