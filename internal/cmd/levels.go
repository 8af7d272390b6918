package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/sprint/internal/engine"
	"github.com/Iron-Ham/sprint/internal/sprint"
	"github.com/Iron-Ham/sprint/internal/util"
	"github.com/Iron-Ham/sprint/internal/validation"
)

var levelsCmd = &cobra.Command{
	Use:   "levels <plan>",
	Short: "Show the parallel execution levels of a sprint plan",
	Long: `Show how a sprint plan's tasks group into levels. Every task in a level
depends only on tasks in earlier levels, so a level's tasks can run in
parallel once the previous level is done.`,
	Args: cobra.ExactArgs(1),
	RunE: runLevels,
}

var (
	levelsJSON bool // Output as JSON
)

func init() {
	levelsCmd.Flags().BoolVar(&levelsJSON, "json", false, "Output levels as JSON")
	rootCmd.AddCommand(levelsCmd)
}

// levelOutput describes one parallel level.
type levelOutput struct {
	Level    int      `json:"level"`
	Tasks    []string `json:"tasks"`
	Estimate string   `json:"estimate"` // Longest estimate in the level
}

func runLevels(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

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

	levels := describeLevels(ep)
	if levelsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(levels); err != nil {
			return fmt.Errorf("failed to encode levels: %w", err)
		}
		return nil
	}

	printLevels(out, ep, levels)
	return nil
}

func describeLevels(ep *validation.ExecutablePlan) []levelOutput {
	groups := ep.ParallelGroups()
	levels := make([]levelOutput, len(groups))
	for i, group := range groups {
		levels[i] = levelOutput{
			Level:    i + 1,
			Tasks:    group,
			Estimate: sprint.FormatDuration(longestEstimate(ep, group)),
		}
	}
	return levels
}

func longestEstimate(ep *validation.ExecutablePlan, ids []string) time.Duration {
	var longest time.Duration
	for _, id := range ids {
		task, _ := ep.Task(id)
		if d, ok := task.Estimate(); ok && d > longest {
			longest = d
		}
	}
	return longest
}

func printLevels(w io.Writer, ep *validation.ExecutablePlan, levels []levelOutput) {
	p := ep.Plan()
	fmt.Fprintf(w, "%s %s\n\n", titleStyle.Render(p.Name),
		mutedStyle.Render(fmt.Sprintf("(%d tasks, %d levels)", ep.Len(), len(levels))))

	var total time.Duration
	for _, level := range levels {
		var rows []string
		for _, id := range level.Tasks {
			task, _ := ep.Task(id)
			row := idStyle.Render(id) + agentStyle.Render(string(task.Agent)) + task.Duration
			if gates := ep.GatesFor(id); len(gates) > 0 {
				row += mutedStyle.Render("  gated by " + strings.Join(gates, ", "))
			}
			if task.Title != "" {
				row += "\n" + mutedStyle.Render("  "+util.Truncate(task.Title, maxDetailWidth))
			}
			rows = append(rows, row)
		}
		header := headerStyle.Render(fmt.Sprintf("Level %d", level.Level)) +
			mutedStyle.Render(fmt.Sprintf("  %d tasks, %s", len(level.Tasks), level.Estimate))
		fmt.Fprintln(w, header)
		fmt.Fprintln(w, levelBox.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
		total += longestEstimate(ep, level.Tasks)
	}

	fmt.Fprintf(w, "\nLevel-by-level estimate: %s\n", sprint.FormatDuration(total))
}

func errorStrings(result *validation.Result) []string {
	errs := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		errs[i] = e.Error()
	}
	return errs
}
