package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/sprint/internal/agent"
	"github.com/Iron-Ham/sprint/internal/scheduler"
	"github.com/Iron-Ham/sprint/internal/sprint"
)

// Config represents the complete sprint runner configuration
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// SchedulerConfig controls how tasks are dispatched
type SchedulerConfig struct {
	// MaxConcurrency caps tasks in flight at once (0 = unbounded)
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// AgentLimits caps tasks in flight per agent kind, e.g. {"database": 1}
	AgentLimits map[string]int `mapstructure:"agent_limits"`
	// FailFast aborts the whole sprint on the first task failure
	FailFast bool `mapstructure:"fail_fast"`
	// CancelPolicy is "soft" (let running tasks finish) or "hard" (abort them)
	CancelPolicy string `mapstructure:"cancel_policy"`
	// DurationPolicy is "metrics" (estimates are informational) or "timeout"
	// (tasks overrunning estimate × timeout_scale are aborted)
	DurationPolicy string `mapstructure:"duration_policy"`
	// TimeoutScale multiplies task estimates under the timeout policy
	TimeoutScale float64 `mapstructure:"timeout_scale"`
	// WaitForUnblock keeps the sprint alive while an agent-blocked task
	// waits to be unblocked
	WaitForUnblock bool `mapstructure:"wait_for_unblock"`
}

// ApprovalConfig controls how approval gates are resolved
type ApprovalConfig struct {
	// Mode is one of "prompt", "auto-approve", "auto-reject" or "file"
	Mode string `mapstructure:"mode"`
	// Dir is the directory watched for marker files in "file" mode
	Dir string `mapstructure:"dir"`
}

// AgentsConfig controls how tasks are handed to agents
type AgentsConfig struct {
	// Commands maps an agent kind to a shell command template rendered
	// against the task, e.g. {"docs": "doc-agent --task {{.ID}}"}
	Commands map[string]string `mapstructure:"commands"`
	// DefaultCommand is used for agent kinds without an entry in Commands
	DefaultCommand string `mapstructure:"default_command"`
	// Shell runs each command as `<shell> -c <command>` (default: "sh")
	Shell string `mapstructure:"shell"`
	// BlockedExitCode is the exit status an agent uses to report it is blocked
	BlockedExitCode int `mapstructure:"blocked_exit_code"`
	// WorkDir is the working directory for agent commands (empty = current)
	WorkDir string `mapstructure:"work_dir"`
	// SimulateScale multiplies estimates when simulating a run (--dry-run)
	SimulateScale float64 `mapstructure:"simulate_scale"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is active (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level sets the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// Dir is where sprint.log is written (empty = .sprint)
	Dir string `mapstructure:"dir"`
}

// MetricsConfig controls metrics export
type MetricsConfig struct {
	// Textfile is a path that receives Prometheus metrics after each run
	// (empty = disabled)
	Textfile string `mapstructure:"textfile"`
}

// Approval modes.
const (
	ApprovalPrompt      = "prompt"
	ApprovalAutoApprove = "auto-approve"
	ApprovalAutoReject  = "auto-reject"
	ApprovalFile        = "file"
)

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			MaxConcurrency: 0,
			AgentLimits:    map[string]int{},
			FailFast:       false,
			CancelPolicy:   string(scheduler.CancelSoft),
			DurationPolicy: string(scheduler.DurationMetrics),
			TimeoutScale:   scheduler.DefaultTimeoutScale,
			WaitForUnblock: false,
		},
		Approval: ApprovalConfig{
			Mode: ApprovalPrompt,
			Dir:  "", // Empty means use .sprint/approvals
		},
		Agents: AgentsConfig{
			Commands:        map[string]string{},
			DefaultCommand:  "",
			Shell:           "sh",
			BlockedExitCode: agent.DefaultBlockedExitCode,
			WorkDir:         "",
			SimulateScale:   0.001, // One hour of estimate sleeps 3.6s
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Dir:     "",
		},
		Metrics: MetricsConfig{
			Textfile: "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Scheduler defaults
	viper.SetDefault("scheduler.max_concurrency", defaults.Scheduler.MaxConcurrency)
	viper.SetDefault("scheduler.agent_limits", defaults.Scheduler.AgentLimits)
	viper.SetDefault("scheduler.fail_fast", defaults.Scheduler.FailFast)
	viper.SetDefault("scheduler.cancel_policy", defaults.Scheduler.CancelPolicy)
	viper.SetDefault("scheduler.duration_policy", defaults.Scheduler.DurationPolicy)
	viper.SetDefault("scheduler.timeout_scale", defaults.Scheduler.TimeoutScale)
	viper.SetDefault("scheduler.wait_for_unblock", defaults.Scheduler.WaitForUnblock)

	// Approval defaults
	viper.SetDefault("approval.mode", defaults.Approval.Mode)
	viper.SetDefault("approval.dir", defaults.Approval.Dir)

	// Agent defaults
	viper.SetDefault("agents.commands", defaults.Agents.Commands)
	viper.SetDefault("agents.default_command", defaults.Agents.DefaultCommand)
	viper.SetDefault("agents.shell", defaults.Agents.Shell)
	viper.SetDefault("agents.blocked_exit_code", defaults.Agents.BlockedExitCode)
	viper.SetDefault("agents.work_dir", defaults.Agents.WorkDir)
	viper.SetDefault("agents.simulate_scale", defaults.Agents.SimulateScale)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Metrics defaults
	viper.SetDefault("metrics.textfile", defaults.Metrics.Textfile)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// SchedulerOptions converts the scheduler section into a scheduler.Config.
func (c *Config) SchedulerOptions() scheduler.Config {
	limits := make(map[sprint.AgentKind]int, len(c.Scheduler.AgentLimits))
	for kind, n := range c.Scheduler.AgentLimits {
		limits[sprint.AgentKind(kind)] = n
	}
	return scheduler.Config{
		MaxConcurrency: c.Scheduler.MaxConcurrency,
		AgentLimits:    limits,
		FailFast:       c.Scheduler.FailFast,
		CancelPolicy:   scheduler.CancelPolicy(c.Scheduler.CancelPolicy),
		DurationPolicy: scheduler.DurationPolicy(c.Scheduler.DurationPolicy),
		TimeoutScale:   c.Scheduler.TimeoutScale,
		WaitForUnblock: c.Scheduler.WaitForUnblock,
	}
}

// CommandConfig converts the agents section into an agent.CommandConfig.
func (c *Config) CommandConfig() agent.CommandConfig {
	commands := make(map[sprint.AgentKind]string, len(c.Agents.Commands))
	for kind, cmd := range c.Agents.Commands {
		commands[sprint.AgentKind(kind)] = cmd
	}
	return agent.CommandConfig{
		Commands:        commands,
		DefaultCommand:  c.Agents.DefaultCommand,
		Shell:           c.Agents.Shell,
		BlockedExitCode: c.Agents.BlockedExitCode,
		Dir:             c.Agents.WorkDir,
	}
}

// HasCommands reports whether any agent command is configured.
func (c *Config) HasCommands() bool {
	return c.Agents.DefaultCommand != "" || len(c.Agents.Commands) > 0
}

// ApprovalDir returns the directory watched in file approval mode.
func (c *Config) ApprovalDir() string {
	if c.Approval.Dir != "" {
		return c.Approval.Dir
	}
	return filepath.Join(".sprint", "approvals")
}

// LogDir returns the directory that receives sprint.log.
func (c *Config) LogDir() string {
	if c.Logging.Dir != "" {
		return c.Logging.Dir
	}
	return ".sprint"
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sprint")
	}
	// Fall back to ~/.config/sprint
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sprint"
	}
	return filepath.Join(home, ".config", "sprint")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidApprovalModes returns the list of valid approval mode values
func ValidApprovalModes() []string {
	return []string{ApprovalPrompt, ApprovalAutoApprove, ApprovalAutoReject, ApprovalFile}
}

// ValidCancelPolicies returns the list of valid cancel policy values
func ValidCancelPolicies() []string {
	return []string{string(scheduler.CancelSoft), string(scheduler.CancelHard)}
}

// ValidDurationPolicies returns the list of valid duration policy values
func ValidDurationPolicies() []string {
	return []string{string(scheduler.DurationMetrics), string(scheduler.DurationTimeout)}
}
