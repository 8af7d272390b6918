package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("Default config should be valid, got %d errors: %v", len(errs), errs)
	}
}

// hasField reports whether errs contains an error for field.
func hasField(errs []ValidationError, field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}

func TestConfig_Validate_Scheduler(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
		want   bool
	}{
		{"unbounded concurrency", func(c *Config) { c.Scheduler.MaxConcurrency = 0 }, "scheduler.max_concurrency", false},
		{"bounded concurrency", func(c *Config) { c.Scheduler.MaxConcurrency = 8 }, "scheduler.max_concurrency", false},
		{"negative concurrency", func(c *Config) { c.Scheduler.MaxConcurrency = -1 }, "scheduler.max_concurrency", true},
		{"valid agent limit", func(c *Config) { c.Scheduler.AgentLimits = map[string]int{"ui": 2} }, "scheduler.agent_limits.ui", false},
		{"negative agent limit", func(c *Config) { c.Scheduler.AgentLimits = map[string]int{"ui": -2} }, "scheduler.agent_limits.ui", true},
		{"unknown agent kind", func(c *Config) { c.Scheduler.AgentLimits = map[string]int{"robot": 1} }, "scheduler.agent_limits.robot", true},
		{"hard cancel", func(c *Config) { c.Scheduler.CancelPolicy = "hard" }, "scheduler.cancel_policy", false},
		{"empty cancel policy", func(c *Config) { c.Scheduler.CancelPolicy = "" }, "scheduler.cancel_policy", false},
		{"invalid cancel policy", func(c *Config) { c.Scheduler.CancelPolicy = "HARD" }, "scheduler.cancel_policy", true},
		{"invalid duration policy", func(c *Config) { c.Scheduler.DurationPolicy = "deadline" }, "scheduler.duration_policy", true},
		{
			"zero scale with timeout policy",
			func(c *Config) {
				c.Scheduler.DurationPolicy = "timeout"
				c.Scheduler.TimeoutScale = 0
			},
			"scheduler.timeout_scale",
			true,
		},
		{
			"zero scale with metrics policy",
			func(c *Config) {
				c.Scheduler.DurationPolicy = "metrics"
				c.Scheduler.TimeoutScale = 0
			},
			"scheduler.timeout_scale",
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if got := hasField(cfg.Validate(), tt.field); got != tt.want {
				t.Errorf("Validate() hasError(%s) = %v, want %v", tt.field, got, tt.want)
			}
		})
	}
}

func TestConfig_Validate_Approval(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		hasError bool
	}{
		{"prompt", "prompt", false},
		{"auto-approve", "auto-approve", false},
		{"auto-reject", "auto-reject", false},
		{"file", "file", false},
		{"empty is valid", "", false},
		{"invalid mode", "sometimes", true},
		{"case sensitive", "PROMPT", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Approval.Mode = tt.mode
			if got := hasField(cfg.Validate(), "approval.mode"); got != tt.hasError {
				t.Errorf("Validate() for mode=%q: hasError=%v, want %v", tt.mode, got, tt.hasError)
			}
		})
	}

	cfg := Default()
	cfg.Approval.Dir = "bad\x00dir"
	if !hasField(cfg.Validate(), "approval.dir") {
		t.Error("Validate() should reject a dir containing a null byte")
	}
}

func TestConfig_Validate_Agents(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
		want   bool
	}{
		{"valid command", func(c *Config) { c.Agents.Commands = map[string]string{"api": "run {{.ID}}"} }, "agents.commands.api", false},
		{"empty command", func(c *Config) { c.Agents.Commands = map[string]string{"api": "  "} }, "agents.commands.api", true},
		{"broken template", func(c *Config) { c.Agents.Commands = map[string]string{"api": "run {{.ID"} }, "agents.commands.api", true},
		{"unknown kind", func(c *Config) { c.Agents.Commands = map[string]string{"robot": "run"} }, "agents.commands.robot", true},
		{"valid default", func(c *Config) { c.Agents.DefaultCommand = "agent {{.Agent}}" }, "agents.default_command", false},
		{"broken default", func(c *Config) { c.Agents.DefaultCommand = "agent {{end}}" }, "agents.default_command", true},
		{"zero exit code", func(c *Config) { c.Agents.BlockedExitCode = 0 }, "agents.blocked_exit_code", true},
		{"exit code too large", func(c *Config) { c.Agents.BlockedExitCode = 256 }, "agents.blocked_exit_code", true},
		{"exit code in range", func(c *Config) { c.Agents.BlockedExitCode = 3 }, "agents.blocked_exit_code", false},
		{"negative simulate scale", func(c *Config) { c.Agents.SimulateScale = -1 }, "agents.simulate_scale", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if got := hasField(cfg.Validate(), tt.field); got != tt.want {
				t.Errorf("Validate() hasError(%s) = %v, want %v", tt.field, got, tt.want)
			}
		})
	}
}

func TestConfig_Validate_Logging(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		hasError bool
	}{
		{"debug", "debug", false},
		{"info", "info", false},
		{"warn", "warn", false},
		{"error", "error", false},
		{"empty is valid", "", false},
		{"invalid level", "verbose", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Logging.Level = tt.level
			if got := hasField(cfg.Validate(), "logging.level"); got != tt.hasError {
				t.Errorf("Validate() for level=%q: hasError=%v, want %v", tt.level, got, tt.hasError)
			}
		})
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Scheduler.MaxConcurrency = -1
	cfg.Approval.Mode = "nope"
	cfg.Logging.Level = "loud"

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Fatalf("Validate() returned %d errors, want 3: %v", len(errs), errs)
	}
	if errs[0].Field != "scheduler.max_concurrency" {
		t.Errorf("first error field = %q, want scheduler sections first", errs[0].Field)
	}
}
