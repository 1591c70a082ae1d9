package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperengineering/sprout/analytics"
	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <learner-id>",
	Short: "Show a learner's progress dashboard",
	Long: `Display retention over the last 7 and 14 days, mastered items, the
efficiency score and the items that need extra practice.`,
	Example: `  sprout summary maya
  sprout summary maya --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	cfg, err := loadAndValidateConfig()
	if err != nil {
		return err
	}
	client, closeClient, err := openClient(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeClient()

	sum, err := client.GetSummary(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, sum)
	}
	outputSummary(cmd, sum)
	return nil
}

func outputSummary(cmd *cobra.Command, sum analytics.Summary) {
	out := cmd.OutOrStdout()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Retention (7d):   %d%%\n", sum.Retention7Day)
	fmt.Fprintf(&sb, "Retention (14d):  %d%%\n", sum.Retention14Day)
	fmt.Fprintf(&sb, "Mastered:         %d of %d\n", sum.ItemsMastered, sum.TotalItems)
	fmt.Fprintf(&sb, "Due today:        %d\n", sum.DueToday)
	fmt.Fprintf(&sb, "Efficiency:       %d", sum.EfficiencyScore)
	fmt.Fprintln(out, renderPanel("Progress for "+sum.LearnerID, sb.String()))

	if len(sum.WeakItems) == 0 {
		printSuccess(out, "No weak items")
		return
	}

	rows := make([][]string, 0, len(sum.WeakItems))
	for _, w := range sum.WeakItems {
		rows = append(rows, []string{w.ItemID, fmt.Sprintf("%.2f", w.Ease), strconv.Itoa(w.Streak), w.Remediation})
	}
	fmt.Fprintln(out)
	printWarning(out, "Needs practice (%d):", len(sum.WeakItems))
	fmt.Fprintln(out, renderTable([]string{"ITEM", "EASE", "STREAK", "TRY"}, rows))
}
