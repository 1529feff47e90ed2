package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/packflow/packflow/internal/plan"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#32CD32")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan.yaml>",
	Short: "Validate a feature plan",
	Long: `Check a feature plan for schema problems, dangling references,
dependency cycles, malformed lock keys, and write-scope overlaps
between packages that could run in parallel. Every problem is
reported, not just the first.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	fp, err := plan.Load(args[0])
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}

	result := plan.Validate(fp)
	for _, msg := range result.Messages {
		prefix := warningStyle.Render("warning")
		if msg.IsError() {
			prefix = errorStyle.Render("error")
		}
		location := ""
		if msg.PackageID != "" {
			location = mutedStyle.Render(fmt.Sprintf(" [%s]", msg.PackageID))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s%s: %s\n", prefix, location, msg.Message)
	}

	if !result.Valid {
		return fmt.Errorf("plan %s has %d error(s)", fp.FeatureID, result.ErrorCount)
	}

	pairs := plan.ParallelPairs(fp)
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d packages, %d parallel pair(s)\n",
		okStyle.Render("valid"), fp.FeatureID, len(fp.Packages), len(pairs))
	for _, p := range pairs {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", mutedStyle.Render(fmt.Sprintf("%s ∥ %s", p.A, p.B)))
	}
	return nil
}
