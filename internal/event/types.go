package event

import (
	"time"

	"github.com/Iron-Ham/sprint/internal/sprint"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "task.transition")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeSprintStarted  = "sprint.started"
	TypeSprintFinished = "sprint.finished"
	TypeTaskTransition = "task.transition"
	TypeGateChanged    = "gate.changed"
)

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string, at time.Time) baseEvent {
	if at.IsZero() {
		at = time.Now()
	}
	return baseEvent{eventType: eventType, timestamp: at}
}

// SprintStartedEvent is emitted once when the scheduler begins a run.
type SprintStartedEvent struct {
	baseEvent
	RunID   string
	Name    string
	TaskIDs []string // Execution order
}

// NewSprintStartedEvent creates a SprintStartedEvent.
func NewSprintStartedEvent(runID, name string, taskIDs []string, at time.Time) SprintStartedEvent {
	return SprintStartedEvent{
		baseEvent: newBaseEvent(TypeSprintStarted, at),
		RunID:     runID,
		Name:      name,
		TaskIDs:   append([]string(nil), taskIDs...),
	}
}

// TaskTransitionEvent is emitted whenever a task changes status.
type TaskTransitionEvent struct {
	baseEvent
	RunID string
	From  sprint.TaskStatus
	State sprint.TaskState // Snapshot after the transition
}

// NewTaskTransitionEvent creates a TaskTransitionEvent. The timestamp is the
// transition time recorded by the scheduler.
func NewTaskTransitionEvent(runID string, from sprint.TaskStatus, state sprint.TaskState, at time.Time) TaskTransitionEvent {
	return TaskTransitionEvent{
		baseEvent: newBaseEvent(TypeTaskTransition, at),
		RunID:     runID,
		From:      from,
		State:     state,
	}
}

// TaskID returns the id of the task that moved.
func (e TaskTransitionEvent) TaskID() string { return e.State.TaskID }

// To returns the status the task moved to.
func (e TaskTransitionEvent) To() sprint.TaskStatus { return e.State.Status }

// GateChangedEvent is emitted whenever an approval gate changes status.
type GateChangedEvent struct {
	baseEvent
	RunID   string
	Stage   string
	Message string
	Status  sprint.GateStatus
	Reason  string
}

// NewGateChangedEvent creates a GateChangedEvent.
func NewGateChangedEvent(runID string, gate sprint.ApprovalGate, status sprint.GateStatus, reason string, at time.Time) GateChangedEvent {
	return GateChangedEvent{
		baseEvent: newBaseEvent(TypeGateChanged, at),
		RunID:     runID,
		Stage:     gate.Stage,
		Message:   gate.Message,
		Status:    status,
		Reason:    reason,
	}
}

// SprintFinishedEvent is emitted once when a run ends.
type SprintFinishedEvent struct {
	baseEvent
	RunID   string
	Outcome error // nil when every task completed
}

// NewSprintFinishedEvent creates a SprintFinishedEvent.
func NewSprintFinishedEvent(runID string, outcome error, at time.Time) SprintFinishedEvent {
	return SprintFinishedEvent{
		baseEvent: newBaseEvent(TypeSprintFinished, at),
		RunID:     runID,
		Outcome:   outcome,
	}
}
