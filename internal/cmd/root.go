package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/sprint/internal/config"
)

// ErrSprintFailed is returned by commands that already reported why the plan
// or the run did not succeed. Callers should exit non-zero without printing
// it again.
var ErrSprintFailed = errors.New("sprint failed")

var rootCmd = &cobra.Command{
	Use:   "sprint",
	Short: "Dependency-aware sprint execution engine",
	Long: `Sprint loads a sprint plan (YAML, TOML or JSON), validates its task
dependency graph and approval gates, and runs the tasks in parallel through
agent commands, respecting dependencies, concurrency limits and gates.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/sprint/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SPRINT")
	// Replace dots with underscores for nested keys in env vars
	// e.g., SPRINT_SCHEDULER_MAX_CONCURRENCY for scheduler.max_concurrency
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
