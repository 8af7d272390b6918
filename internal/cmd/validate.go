package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/sprint/internal/engine"
	"github.com/Iron-Ham/sprint/internal/validation"
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan>",
	Short: "Validate a sprint plan",
	Long: `Parse a sprint plan and check it for duplicate task ids, unknown
dependencies, dependency cycles and inconsistent approval gates.

Every problem is reported, not just the first. Warnings (such as
unparseable duration estimates) do not make a plan invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var (
	validateJSON bool // Output as JSON
)

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output the validation result as JSON")
	rootCmd.AddCommand(validateCmd)
}

// validateOutput is the JSON shape printed by validate --json.
type validateOutput struct {
	Plan     string               `json:"plan"`
	Valid    bool                 `json:"valid"`
	Tasks    int                  `json:"tasks"`
	Gates    int                  `json:"gates"`
	Levels   [][]string           `json:"levels,omitempty"`
	Errors   []string             `json:"errors,omitempty"`
	Warnings []validation.Warning `json:"warnings,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	out := cmd.OutOrStdout()

	ep, result, err := engine.Load(path)

	report := validateOutput{Plan: path, Valid: err == nil}
	if result != nil {
		report.Warnings = result.Warnings
		report.Errors = errorStrings(result)
	}
	if err != nil && len(report.Errors) == 0 {
		// Parse errors never reach validation
		report.Errors = []string{err.Error()}
	}
	if ep != nil {
		report.Tasks = ep.Len()
		report.Gates = len(ep.Gates())
		report.Levels = ep.ParallelGroups()
	}

	if validateJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			return fmt.Errorf("failed to encode result: %w", encErr)
		}
	} else {
		printValidation(out, report)
	}

	if !report.Valid {
		return ErrSprintFailed
	}
	return nil
}

func printValidation(w io.Writer, r validateOutput) {
	if r.Valid {
		fmt.Fprintf(w, "%s %s is valid: %d tasks, %d gates, %d levels\n",
			successStyle.Render("✓"), r.Plan, r.Tasks, r.Gates, len(r.Levels))
	} else {
		fmt.Fprintf(w, "%s %s is invalid\n", errorStyle.Render("✗"), r.Plan)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s %s\n", errorStyle.Render("error:"), e)
		}
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  %s %s\n", warningStyle.Render("warning:"), warn.String())
	}
}
