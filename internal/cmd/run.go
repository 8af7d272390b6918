package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/sprint/internal/agent"
	"github.com/Iron-Ham/sprint/internal/approval"
	"github.com/Iron-Ham/sprint/internal/config"
	"github.com/Iron-Ham/sprint/internal/engine"
	"github.com/Iron-Ham/sprint/internal/event"
	"github.com/Iron-Ham/sprint/internal/logging"
	"github.com/Iron-Ham/sprint/internal/monitor"
	"github.com/Iron-Ham/sprint/internal/sprint"
	"github.com/Iron-Ham/sprint/internal/util"
)

// maxDetailWidth bounds the error text shown on a progress line.
const maxDetailWidth = 72

var runCmd = &cobra.Command{
	Use:   "run <plan>",
	Short: "Execute a sprint plan",
	Long: `Execute a sprint plan. Tasks are dispatched to the agent command
configured for their agent kind as soon as their dependencies complete,
subject to the concurrency limits and approval gates.

With --dry-run, tasks are simulated: each takes its estimate multiplied by
agents.simulate_scale of wall-clock time.

Interrupting the run (Ctrl-C) stops dispatching new tasks. Running tasks
finish unless scheduler.cancel_policy is "hard".`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runDryRun         bool
	runMaxConcurrency int
	runFailFast       bool
	runApprove        string
	runMetrics        string
	runSimulateFail   []string
	runQuiet          bool
)

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Simulate tasks instead of running agent commands")
	runCmd.Flags().IntVarP(&runMaxConcurrency, "max-concurrency", "j", 0, "Maximum tasks in flight (0 = unbounded)")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "Abort the sprint on the first task failure")
	runCmd.Flags().StringVar(&runApprove, "approve", "", "Approval mode: prompt, auto-approve, auto-reject or file")
	runCmd.Flags().StringVar(&runMetrics, "metrics-textfile", "", "Write Prometheus metrics to this file after the run")
	runCmd.Flags().StringSliceVar(&runSimulateFail, "simulate-fail", nil, "With --dry-run, task ids that fail")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Only print the final summary")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	applyRunFlags(cmd, cfg)
	if errs := cfg.Validate(); len(errs) > 0 {
		return config.ValidationErrors(errs)
	}

	ep, result, err := engine.Load(args[0])
	if err != nil {
		if result != nil {
			printValidation(cmd.ErrOrStderr(), validateOutput{
				Plan:     args[0],
				Errors:   errorStrings(result),
				Warnings: result.Warnings,
			})
			return ErrSprintFailed
		}
		return err
	}
	for _, warn := range result.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", warningStyle.Render("warning:"), warn.String())
	}

	logger := newLogger(cfg, cmd.ErrOrStderr())
	defer func() { _ = logger.Close() }()

	executor, err := newExecutor(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	approver, fileApprover, err := newApprover(cfg, cmd, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	opts := engine.Options{
		Scheduler:       cfg.SchedulerOptions(),
		Executor:        executor,
		Approver:        approver,
		Logger:          logger,
		MetricsTextfile: cfg.Metrics.Textfile,
	}
	if !runQuiet {
		opts.Progress = progressPrinter(out)
	}
	eng, err := engine.New(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Watchers live until the run returns
	watchCtx, stopWatchers := context.WithCancel(ctx)
	var g errgroup.Group
	if fileApprover != nil {
		fmt.Fprintf(out, "Approve gates by creating <stage>%s or <stage>%s in %s\n",
			approval.ApproveSuffix, approval.RejectSuffix, fileApprover.Dir())
		g.Go(func() error { return fileApprover.Run(watchCtx) })
	}
	if cfg.Scheduler.WaitForUnblock {
		dir := cfg.ApprovalDir()
		fmt.Fprintf(out, "Unblock agent-blocked tasks by creating <task-id>%s in %s\n", unblockSuffix, dir)
		g.Go(func() error { return watchUnblocks(watchCtx, dir, eng, logger) })
	}

	fmt.Fprintf(out, "%s %s\n", titleStyle.Render("Running"), ep.Plan().Name)
	res, runErr := eng.Run(ctx, ep)
	stopWatchers()
	if err := g.Wait(); err != nil {
		logger.Warn("watcher stopped with error", "error", err.Error())
	}
	if runErr != nil && res == nil {
		return runErr
	}

	fmt.Fprintln(out)
	printSummary(out, res.Summary)
	if runErr != nil {
		return runErr
	}
	if !res.Summary.Succeeded() {
		return ErrSprintFailed
	}
	return nil
}

// applyRunFlags overrides configuration values with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("max-concurrency") {
		cfg.Scheduler.MaxConcurrency = runMaxConcurrency
	}
	if flags.Changed("fail-fast") {
		cfg.Scheduler.FailFast = runFailFast
	}
	if flags.Changed("approve") {
		cfg.Approval.Mode = runApprove
	}
	if flags.Changed("metrics-textfile") {
		cfg.Metrics.Textfile = runMetrics
	}
}

func newLogger(cfg *config.Config, stderr io.Writer) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NopLogger()
	}
	logger, err := logging.NewLogger(cfg.LogDir(), logging.ParseLevel(cfg.Logging.Level))
	if err != nil {
		// A run without a log file is still useful
		fmt.Fprintf(stderr, "%s logging disabled: %v\n", warningStyle.Render("warning:"), err)
		return logging.NopLogger()
	}
	return logger
}

func newExecutor(cfg *config.Config, output io.Writer) (agent.Executor, error) {
	if runDryRun {
		return agent.NewSimulatedExecutor(cfg.Agents.SimulateScale, agent.WithFailures(runSimulateFail...)), nil
	}
	if !cfg.HasCommands() {
		return nil, fmt.Errorf("no agent commands configured: set agents.default_command or agents.commands, or use --dry-run")
	}
	cc := cfg.CommandConfig()
	cc.Output = output
	exec, err := agent.NewCommandExecutor(cc)
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// newApprover builds the approver for the configured mode. The FileApprover is
// also returned so its watcher can be started.
func newApprover(cfg *config.Config, cmd *cobra.Command, logger *logging.Logger) (approval.Approver, *approval.FileApprover, error) {
	switch cfg.Approval.Mode {
	case config.ApprovalAutoApprove:
		return approval.AutoApprove(), nil, nil
	case config.ApprovalAutoReject:
		return approval.AutoReject("rejected by configuration"), nil, nil
	case config.ApprovalFile:
		fa, err := approval.NewFileApprover(cfg.ApprovalDir(), logger)
		if err != nil {
			return nil, nil, err
		}
		return fa, fa, nil
	default:
		return approval.NewPromptApprover(cmd.InOrStdin(), cmd.OutOrStdout()), nil, nil
	}
}

// progressPrinter prints one line per task transition that matters to an
// operator: start, completion, failure and block.
func progressPrinter(w io.Writer) engine.ProgressFunc {
	return func(e event.TaskTransitionEvent, s monitor.Snapshot) {
		st := e.State
		switch st.Status {
		case sprint.StatusRunning, sprint.StatusCompleted, sprint.StatusFailed, sprint.StatusBlocked:
		default:
			return
		}

		var detail string
		if st.BlockReason != sprint.BlockNone {
			detail = string(st.BlockReason)
		}
		if st.Error != "" {
			if detail != "" {
				detail += ": "
			}
			detail += util.FirstLine(st.Error)
		}
		if detail != "" {
			detail = " " + mutedStyle.Render(util.Truncate(detail, maxDetailWidth))
		}
		counter := mutedStyle.Render(fmt.Sprintf("[%d/%d]", s.Completed, s.Total))
		style := statusStyle(st.Status)
		fmt.Fprintf(w, "%s %s %s %s%s\n", counter, style.Render(statusIcon(st.Status)),
			idStyle.Render(st.TaskID), style.Render(st.Status.String()), detail)
	}
}

func printSummary(w io.Writer, r monitor.SprintResult) {
	if r.Succeeded() {
		fmt.Fprintln(w, successStyle.Render("✓ sprint completed"))
	} else {
		fmt.Fprintln(w, errorStyle.Render("✗ sprint did not complete"))
	}
	fmt.Fprint(w, r.Summary())
}
