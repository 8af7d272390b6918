package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/sprint/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View sprint configuration",
	Long: `View sprint configuration.

Without arguments, displays the current configuration.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/sprint/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// configView mirrors config.Config with yaml tags for display.
type configView struct {
	Scheduler struct {
		MaxConcurrency int            `yaml:"max_concurrency"`
		AgentLimits    map[string]int `yaml:"agent_limits"`
		FailFast       bool           `yaml:"fail_fast"`
		CancelPolicy   string         `yaml:"cancel_policy"`
		DurationPolicy string         `yaml:"duration_policy"`
		TimeoutScale   float64        `yaml:"timeout_scale"`
		WaitForUnblock bool           `yaml:"wait_for_unblock"`
	} `yaml:"scheduler"`
	Approval struct {
		Mode string `yaml:"mode"`
		Dir  string `yaml:"dir"`
	} `yaml:"approval"`
	Agents struct {
		Commands        map[string]string `yaml:"commands"`
		DefaultCommand  string            `yaml:"default_command"`
		Shell           string            `yaml:"shell"`
		BlockedExitCode int               `yaml:"blocked_exit_code"`
		WorkDir         string            `yaml:"work_dir"`
		SimulateScale   float64           `yaml:"simulate_scale"`
	} `yaml:"agents"`
	Logging struct {
		Enabled bool   `yaml:"enabled"`
		Level   string `yaml:"level"`
		Dir     string `yaml:"dir"`
	} `yaml:"logging"`
	Metrics struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
}

func newConfigView(cfg *config.Config) configView {
	var v configView
	v.Scheduler.MaxConcurrency = cfg.Scheduler.MaxConcurrency
	v.Scheduler.AgentLimits = cfg.Scheduler.AgentLimits
	v.Scheduler.FailFast = cfg.Scheduler.FailFast
	v.Scheduler.CancelPolicy = cfg.Scheduler.CancelPolicy
	v.Scheduler.DurationPolicy = cfg.Scheduler.DurationPolicy
	v.Scheduler.TimeoutScale = cfg.Scheduler.TimeoutScale
	v.Scheduler.WaitForUnblock = cfg.Scheduler.WaitForUnblock
	v.Approval.Mode = cfg.Approval.Mode
	v.Approval.Dir = cfg.Approval.Dir
	v.Agents.Commands = cfg.Agents.Commands
	v.Agents.DefaultCommand = cfg.Agents.DefaultCommand
	v.Agents.Shell = cfg.Agents.Shell
	v.Agents.BlockedExitCode = cfg.Agents.BlockedExitCode
	v.Agents.WorkDir = cfg.Agents.WorkDir
	v.Agents.SimulateScale = cfg.Agents.SimulateScale
	v.Logging.Enabled = cfg.Logging.Enabled
	v.Logging.Level = cfg.Logging.Level
	v.Logging.Dir = cfg.Logging.Dir
	v.Metrics.Textfile = cfg.Metrics.Textfile
	return v
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "# Config file: (none - using defaults)\n")
	}

	data, err := yaml.Marshal(newConfigView(cfg))
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// defaultConfigContent is written by config init.
const defaultConfigContent = `# Sprint Configuration

scheduler:
  # Maximum number of tasks in flight at once (0 = unbounded)
  max_concurrency: 0
  # Per agent kind limits, e.g. database: 1
  agent_limits: {}
  # Abort the sprint on the first task failure
  fail_fast: false
  # On interrupt: soft lets running tasks finish, hard aborts them
  cancel_policy: soft
  # metrics: estimates are informational
  # timeout: tasks running longer than estimate * timeout_scale fail
  duration_policy: metrics
  timeout_scale: 1.5
  # Keep the sprint alive while an agent-blocked task waits to be unblocked
  wait_for_unblock: false

approval:
  # Options: prompt, auto-approve, auto-reject, file
  mode: prompt
  # Marker directory for file mode (default: .sprint/approvals)
  dir: ""

agents:
  # Shell command templates per agent kind. Fields: .ID .Title .Agent .Duration
  commands: {}
  # Used for agent kinds without their own command
  default_command: ""
  shell: sh
  # Exit status an agent uses to report it is blocked
  blocked_exit_code: 75
  # Estimate multiplier for run --dry-run
  simulate_scale: 0.001

logging:
  enabled: true
  # Options: debug, info, warn, error
  level: info
  # Directory for sprint.log (default: .sprint)
  dir: ""

metrics:
  # Prometheus text file written after each run (empty = disabled)
  textfile: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", configFile)
	fmt.Fprintf(out, "  2. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: SPRINT_* (e.g., SPRINT_SCHEDULER_MAX_CONCURRENCY)")

	return nil
}
