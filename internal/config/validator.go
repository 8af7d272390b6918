package config

import (
	"fmt"
	"slices"
	"strings"
	"text/template"

	"github.com/Iron-Ham/sprint/internal/scheduler"
	"github.com/Iron-Ham/sprint/internal/sprint"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "scheduler.max_concurrency")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Scheduler config
	errors = append(errors, c.validateScheduler()...)

	// Validate Approval config
	errors = append(errors, c.validateApproval()...)

	// Validate Agents config
	errors = append(errors, c.validateAgents()...)

	// Validate Logging config
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateScheduler validates the SchedulerConfig
func (c *Config) validateScheduler() []ValidationError {
	var errors []ValidationError

	if c.Scheduler.MaxConcurrency < 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.max_concurrency",
			Value:   c.Scheduler.MaxConcurrency,
			Message: "must be non-negative (0 means unbounded)",
		})
	}

	// Sort keys so errors come out in a stable order
	kinds := make([]string, 0, len(c.Scheduler.AgentLimits))
	for kind := range c.Scheduler.AgentLimits {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	for _, kind := range kinds {
		field := "scheduler.agent_limits." + kind
		if !sprint.AgentKind(kind).Valid() {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   kind,
				Message: fmt.Sprintf("unknown agent kind, must be one of: %s", agentKindList()),
			})
			continue
		}
		if n := c.Scheduler.AgentLimits[kind]; n < 0 {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   n,
				Message: "must be non-negative (0 means unbounded)",
			})
		}
	}

	if c.Scheduler.CancelPolicy != "" && !slices.Contains(ValidCancelPolicies(), c.Scheduler.CancelPolicy) {
		errors = append(errors, ValidationError{
			Field:   "scheduler.cancel_policy",
			Value:   c.Scheduler.CancelPolicy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidCancelPolicies(), ", ")),
		})
	}

	if c.Scheduler.DurationPolicy != "" && !slices.Contains(ValidDurationPolicies(), c.Scheduler.DurationPolicy) {
		errors = append(errors, ValidationError{
			Field:   "scheduler.duration_policy",
			Value:   c.Scheduler.DurationPolicy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidDurationPolicies(), ", ")),
		})
	}

	// The scale only matters when estimates become deadlines
	if c.Scheduler.DurationPolicy == string(scheduler.DurationTimeout) && c.Scheduler.TimeoutScale <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.timeout_scale",
			Value:   c.Scheduler.TimeoutScale,
			Message: "must be positive when duration_policy is timeout",
		})
	}

	return errors
}

// validateApproval validates the ApprovalConfig
func (c *Config) validateApproval() []ValidationError {
	var errors []ValidationError

	if c.Approval.Mode != "" && !slices.Contains(ValidApprovalModes(), c.Approval.Mode) {
		errors = append(errors, ValidationError{
			Field:   "approval.mode",
			Value:   c.Approval.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidApprovalModes(), ", ")),
		})
	}

	if strings.ContainsRune(c.Approval.Dir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "approval.dir",
			Value:   c.Approval.Dir,
			Message: "path contains invalid null character",
		})
	}

	return errors
}

// validateAgents validates the AgentsConfig
func (c *Config) validateAgents() []ValidationError {
	var errors []ValidationError

	kinds := make([]string, 0, len(c.Agents.Commands))
	for kind := range c.Agents.Commands {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	for _, kind := range kinds {
		field := "agents.commands." + kind
		if !sprint.AgentKind(kind).Valid() {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   kind,
				Message: fmt.Sprintf("unknown agent kind, must be one of: %s", agentKindList()),
			})
			continue
		}
		if err := checkTemplate(c.Agents.Commands[kind]); err != nil {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   c.Agents.Commands[kind],
				Message: err.Error(),
			})
		}
	}

	if c.Agents.DefaultCommand != "" {
		if err := checkTemplate(c.Agents.DefaultCommand); err != nil {
			errors = append(errors, ValidationError{
				Field:   "agents.default_command",
				Value:   c.Agents.DefaultCommand,
				Message: err.Error(),
			})
		}
	}

	// Exit codes outside 1-255 cannot be produced by a process
	if c.Agents.BlockedExitCode < 1 || c.Agents.BlockedExitCode > 255 {
		errors = append(errors, ValidationError{
			Field:   "agents.blocked_exit_code",
			Value:   c.Agents.BlockedExitCode,
			Message: "must be between 1 and 255",
		})
	}

	if c.Agents.SimulateScale < 0 {
		errors = append(errors, ValidationError{
			Field:   "agents.simulate_scale",
			Value:   c.Agents.SimulateScale,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if strings.ContainsRune(c.Logging.Dir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "logging.dir",
			Value:   c.Logging.Dir,
			Message: "path contains invalid null character",
		})
	}

	return errors
}

func checkTemplate(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("command must not be empty")
	}
	if _, err := template.New("command").Option("missingkey=error").Parse(text); err != nil {
		return fmt.Errorf("invalid command template: %w", err)
	}
	return nil
}

func agentKindList() string {
	kinds := sprint.AgentKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
