package main

import (
	"fmt"
	"strings"

	"github.com/hyperengineering/sprout/plan"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <learner-id>",
	Short: "Generate today's activity plan",
	Long: `Generate a session of warm-up, core and cool-down activities.
Core activities favour the items that are due or weak.`,
	Example: `  sprout plan maya --age 6
  sprout plan sam --age 9 --name Sam --json`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

var (
	planAge  int
	planName string
)

func init() {
	planCmd.Flags().IntVar(&planAge, "age", 0, "Learner age in years (required)")
	planCmd.Flags().StringVar(&planName, "name", "", "Learner display name")
	_ = planCmd.MarkFlagRequired("age")

	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	if planAge < 0 {
		return fmt.Errorf("invalid age %d", planAge)
	}

	cfg, err := loadAndValidateConfig()
	if err != nil {
		return err
	}
	client, closeClient, err := openClient(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeClient()

	acts, err := client.GetPlanForToday(cmd.Context(), plan.LearnerProfile{
		LearnerID: args[0],
		Name:      planName,
		Age:       planAge,
	})
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, acts)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderMarkdown(planMarkdown(args[0], acts)))
	return nil
}

// planMarkdown lists activities grouped under their block headings.
func planMarkdown(learnerID string, acts []plan.ActivityInstance) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Today's plan for %s\n", learnerID)
	block := ""
	n := 0
	for _, a := range acts {
		if a.Block != block {
			block = a.Block
			fmt.Fprintf(&sb, "\n## %s\n\n", block)
		}
		n++
		fmt.Fprintf(&sb, "%d. **%s**: %s\n", n, a.Title, plan.Describe(a.Config))
	}
	return sb.String()
}
