// Package sprint defines the domain model shared by every stage of the
// engine: tasks, agent kinds, approval gates, the sprint plan itself, and
// the task execution states the scheduler moves tasks through.
//
// Values in this package are plain data. A SprintPlan is produced by the
// plan loader, checked by the validator, and then treated as read-only.
package sprint
