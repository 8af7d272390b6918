// Package errors provides centralized error definitions and error handling utilities
// for the sprint engine. It defines the error taxonomy produced while loading,
// validating and executing a sprint plan, plus classification helpers.
//
// # Error Types
//
// Plan-time errors are returned before any task runs:
//   - ParseError: the plan document is malformed or has the wrong shape
//   - ValidationError: a single semantic problem in an otherwise parseable plan
//   - ValidationErrors: the complete list of validation problems for a plan
//
// Execution-time errors are recorded in the sprint report:
//   - ExecutionError: a single task failed (fatal only under fail-fast)
//   - DeadlockError: the scheduler cannot make progress
//   - GateRejectedError: an approval gate was rejected
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewParseError("sprint.tasks[2].agent", "unknown agent kind \"qa\"")
//	err := errors.NewExecutionError("API-001", "agent exited with status 2", cause)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrInvalidPlan) { ... }
//
//	var cycle *errors.ValidationError
//	if errors.As(err, &cycle) && cycle.Kind == errors.KindCycle { ... }
//
//	if errors.IsFatal(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that stop the sprint.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Plan-related sentinel errors
var (
	// ErrParse indicates that a plan document could not be parsed.
	ErrParse = New("plan parse failed")
	// ErrInvalidPlan indicates that a plan failed validation.
	ErrInvalidPlan = New("plan is invalid")
	// ErrDependencyCycle indicates a circular dependency in tasks.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrTaskNotFound indicates that a task id is not part of the plan.
	ErrTaskNotFound = New("task not found")
)

// Execution-related sentinel errors
var (
	// ErrTaskFailed indicates that a task execution failed.
	ErrTaskFailed = New("task failed")
	// ErrDeadlock indicates that the scheduler can no longer make progress.
	ErrDeadlock = New("scheduler deadlock")
	// ErrGateRejected indicates that an approval gate was rejected.
	ErrGateRejected = New("approval gate rejected")
	// ErrAlreadyRunning indicates that a scheduler is already executing a plan.
	ErrAlreadyRunning = New("scheduler already running")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// SprintError is the base interface for all sprint engine errors.
type SprintError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsFatal reports whether the error ends the sprint on its own.
	IsFatal() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message  string
	cause    error
	severity Severity
	fatal    bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsFatal returns whether the error ends the sprint.
func (e *baseError) IsFatal() bool {
	return e.fatal
}

// Message returns the message without any prefix or cause.
func (e *baseError) Message() string {
	return e.message
}

// -----------------------------------------------------------------------------
// Plan Errors
// -----------------------------------------------------------------------------

// ParseError reports a malformed plan document. Field is a dotted path to the
// offending element, for example "sprint.tasks[2].dependencies".
//
// Example:
//
//	err := errors.NewParseError("sprint.name", "required field is missing")
//	fmt.Println(err) // "parse error [field=sprint.name]: required field is missing"
type ParseError struct {
	baseError
	Field string
}

// NewParseError creates a new ParseError.
func NewParseError(field, message string) *ParseError {
	return &ParseError{
		baseError: baseError{
			message:  message,
			severity: SeverityError,
			fatal:    true,
		},
		Field: field,
	}
}

// WithCause adds a cause to the error.
func (e *ParseError) WithCause(cause error) *ParseError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ParseError) Error() string {
	prefix := "parse error"
	if e.Field != "" {
		prefix = fmt.Sprintf("parse error [field=%s]", e.Field)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ParseError) Is(target error) bool {
	if _, ok := target.(*ParseError); ok {
		return true
	}
	if target == ErrParse {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationKind identifies the kind of a ValidationError.
type ValidationKind string

// Validation error kinds.
const (
	KindDuplicateID       ValidationKind = "duplicate_id"
	KindUnknownDependency ValidationKind = "unknown_dependency"
	KindUnknownGateTask   ValidationKind = "unknown_gate_task"
	KindCycle             ValidationKind = "cycle"
	KindGateConflict      ValidationKind = "gate_conflict"
	KindDuplicateGate     ValidationKind = "duplicate_gate"
)

// ValidationError is one semantic problem found in a plan.
//
// Example:
//
//	err := errors.NewUnknownDependencyError("API-001", "DB-404")
//	fmt.Println(err) // "validation error [unknown_dependency, task=API-001, ref=DB-404]: ..."
type ValidationError struct {
	baseError
	Kind   ValidationKind
	TaskID string   // task the problem was found on, if any
	Stage  string   // approval gate stage, if any
	Ref    string   // offending reference, if any
	IDs    []string // cycle members, sorted
}

func newValidationError(kind ValidationKind, message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:  message,
			severity: SeverityError,
			fatal:    true,
		},
		Kind: kind,
	}
}

// NewDuplicateIDError reports a task id declared more than once.
func NewDuplicateIDError(id string, count int) *ValidationError {
	e := newValidationError(KindDuplicateID, fmt.Sprintf("task id %q is declared %d times", id, count))
	e.TaskID = id
	return e
}

// NewUnknownDependencyError reports a dependency on a task that does not exist.
func NewUnknownDependencyError(taskID, ref string) *ValidationError {
	e := newValidationError(KindUnknownDependency,
		fmt.Sprintf("task %q depends on unknown task %q", taskID, ref))
	e.TaskID = taskID
	e.Ref = ref
	return e
}

// NewUnknownGateTaskError reports an approval gate referencing a task that does not exist.
func NewUnknownGateTaskError(stage, ref string) *ValidationError {
	e := newValidationError(KindUnknownGateTask,
		fmt.Sprintf("approval gate %q references unknown task %q", stage, ref))
	e.Stage = stage
	e.Ref = ref
	return e
}

// NewCycleError reports the tasks left over after a topological sort.
func NewCycleError(ids []string) *ValidationError {
	e := newValidationError(KindCycle,
		fmt.Sprintf("dependency cycle among tasks: %s", strings.Join(ids, ", ")))
	e.IDs = append([]string(nil), ids...)
	e.cause = ErrDependencyCycle
	return e
}

// NewGateConflictError reports a gate that holds back one of the tasks it waits for.
func NewGateConflictError(stage, taskID string) *ValidationError {
	e := newValidationError(KindGateConflict,
		fmt.Sprintf("approval gate %q blocks task %q which it requires to complete", stage, taskID))
	e.Stage = stage
	e.TaskID = taskID
	return e
}

// NewDuplicateGateError reports an approval gate stage declared more than once.
func NewDuplicateGateError(stage string) *ValidationError {
	e := newValidationError(KindDuplicateGate, fmt.Sprintf("approval gate stage %q is declared more than once", stage))
	e.Stage = stage
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	parts := []string{string(e.Kind)}
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.Stage != "" {
		parts = append(parts, fmt.Sprintf("gate=%s", e.Stage))
	}
	if e.Ref != "" {
		parts = append(parts, fmt.Sprintf("ref=%s", e.Ref))
	}
	return fmt.Sprintf("validation error [%s]: %s", strings.Join(parts, ", "), e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidPlan {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationErrors is the complete, ordered list of problems found in a plan.
type ValidationErrors []*ValidationError

// Error returns every problem, one per line.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "plan has %d validation errors:", len(ve))
	for _, e := range ve {
		sb.WriteString("\n  - ")
		sb.WriteString(e.Error())
	}
	return sb.String()
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (ve ValidationErrors) Unwrap() []error {
	errs := make([]error, len(ve))
	for i, e := range ve {
		errs[i] = e
	}
	return errs
}

// Is matches ErrInvalidPlan.
func (ve ValidationErrors) Is(target error) bool {
	return target == ErrInvalidPlan
}

// OfKind returns the errors of the given kind.
func (ve ValidationErrors) OfKind(kind ValidationKind) ValidationErrors {
	var out ValidationErrors
	for _, e := range ve {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Execution Errors
// -----------------------------------------------------------------------------

// ExecutionError records why a single task failed.
//
// Example:
//
//	err := errors.NewExecutionError("API-001", "agent reported failure", nil)
//	fmt.Println(err) // "execution error [task=API-001]: agent reported failure"
type ExecutionError struct {
	baseError
	TaskID string
}

// NewExecutionError creates a new ExecutionError.
func NewExecutionError(taskID, message string, cause error) *ExecutionError {
	return &ExecutionError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
		TaskID: taskID,
	}
}

// WithFatal marks the error as one that ended the sprint.
func (e *ExecutionError) WithFatal(fatal bool) *ExecutionError {
	e.fatal = fatal
	return e
}

// Error returns the formatted error message.
func (e *ExecutionError) Error() string {
	prefix := "execution error"
	if e.TaskID != "" {
		prefix = fmt.Sprintf("execution error [task=%s]", e.TaskID)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ExecutionError) Is(target error) bool {
	if _, ok := target.(*ExecutionError); ok {
		return true
	}
	if target == ErrTaskFailed {
		return true
	}
	return e.baseError.Is(target)
}

// DeadlockError reports that no task can run while tasks remain.
type DeadlockError struct {
	baseError
	Pending []string
}

// NewDeadlockError creates a new DeadlockError.
func NewDeadlockError(pending []string) *DeadlockError {
	return &DeadlockError{
		baseError: baseError{
			message:  "no task can make progress",
			severity: SeverityCritical,
			fatal:    true,
		},
		Pending: append([]string(nil), pending...),
	}
}

// Error returns the formatted error message.
func (e *DeadlockError) Error() string {
	return fmt.Sprintf("deadlock: %s (pending: %s)", e.message, strings.Join(e.Pending, ", "))
}

// Is checks if this error matches the target.
func (e *DeadlockError) Is(target error) bool {
	if _, ok := target.(*DeadlockError); ok {
		return true
	}
	return target == ErrDeadlock
}

// GateRejectedError reports that an approval gate was rejected.
type GateRejectedError struct {
	baseError
	Stage  string
	Reason string
}

// NewGateRejectedError creates a new GateRejectedError.
func NewGateRejectedError(stage, reason string) *GateRejectedError {
	return &GateRejectedError{
		baseError: baseError{
			message:  "approval gate rejected",
			severity: SeverityWarning,
			fatal:    true,
		},
		Stage:  stage,
		Reason: reason,
	}
}

// Error returns the formatted error message.
func (e *GateRejectedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("approval gate %q rejected: %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("approval gate %q rejected", e.Stage)
}

// Is checks if this error matches the target.
func (e *GateRejectedError) Is(target error) bool {
	if _, ok := target.(*GateRejectedError); ok {
		return true
	}
	return target == ErrGateRejected
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsFatal reports whether err ends a sprint on its own: parse and validation
// errors, deadlocks, gate rejections, cancellation, and task failures that
// were raised under fail-fast.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ve ValidationErrors
	if As(err, &ve) {
		return len(ve) > 0
	}

	var sprintErr SprintError
	if As(err, &sprintErr) {
		return sprintErr.IsFatal()
	}

	return Is(err, ErrCanceled)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement SprintError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var sprintErr SprintError
	if As(err, &sprintErr) {
		return sprintErr.Severity()
	}

	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
