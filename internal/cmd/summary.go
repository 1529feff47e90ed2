package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/packflow/packflow/internal/config"
	"github.com/packflow/packflow/internal/integration"
	"github.com/packflow/packflow/internal/orchestrator"
	"github.com/packflow/packflow/internal/plan"
	"github.com/packflow/packflow/internal/result"
)

var summaryJSON bool

var summaryCmd = &cobra.Command{
	Use:   "summary <plan.yaml>",
	Short: "Summarize a feature run from persisted results",
	Long: `Load the result records a previous run persisted and project them
into an execution summary: per-package outcomes and attempts, review
statistics, and the integration gate status.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummary,
}

func init() {
	summaryCmd.Flags().BoolVar(&summaryJSON, "json", false, "emit the summary as JSON")
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fp, err := plan.Load(args[0])
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}

	tracker := integration.NewTracker(fp)
	store := result.NewStore(cfg.Paths.RunDir)
	latest, err := store.Latest(fp.FeatureID)
	if err != nil {
		return err
	}
	for _, r := range latest {
		if r.Status == result.StatusCompleted {
			tracker.RecordResult(r)
		}
	}

	summary := tracker.GenerateExecutionSummary()
	if summaryJSON {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	renderSummary(cmd, summary)
	return nil
}

// renderSummary prints the human-readable summary.
func renderSummary(cmd *cobra.Command, s integration.ExecutionSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "feature: %s\n\n", s.FeatureID)

	fmt.Fprintf(out, "%-16s %-10s %s\n", "PACKAGE", "STATUS", "ATTEMPTS")
	for _, pkg := range s.Packages {
		style := mutedStyle
		switch pkg.Status {
		case result.StatusCompleted:
			style = okStyle
		case result.StatusFailed:
			style = errorStyle
		}
		fmt.Fprintln(out, style.Render(fmt.Sprintf("%-16s %-10s %d", pkg.PackageID, pkg.Status, pkg.Attempts)))
	}

	fmt.Fprintf(out, "\nreviews: %d accept, %d fix, %d regenerate, %d escalate\n",
		s.Reviews.Accept, s.Reviews.Fix, s.Reviews.Regenerate, s.Reviews.Escalate)

	gateStyle := warningStyle
	if s.Gate.Status == integration.GatePass {
		gateStyle = okStyle
	}
	fmt.Fprintf(out, "gate: %s\n", gateStyle.Render(string(s.Gate.Status)))
}

// printSummary renders the end-of-run summary for an in-process run.
func printSummary(cmd *cobra.Command, rt *orchestrator.Runtime) error {
	renderSummary(cmd, rt.Summary())

	status := rt.Queue().Status()
	if status.Failed > 0 || status.Cancelled > 0 {
		return fmt.Errorf("%d package(s) failed, %d cancelled", status.Failed, status.Cancelled)
	}
	return nil
}
