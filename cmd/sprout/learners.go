package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var learnersCmd = &cobra.Command{
	Use:   "learners",
	Short: "List learners with local progress",
	RunE:  runLearners,
}

func init() {
	rootCmd.AddCommand(learnersCmd)
}

// LearnerEntry is one row of the learners listing.
type LearnerEntry struct {
	LearnerID string `json:"learner_id"`
	Items     int    `json:"items"`
	DueToday  int    `json:"due_today"`
}

func runLearners(cmd *cobra.Command, args []string) error {
	cfg, err := loadAndValidateConfig()
	if err != nil {
		return err
	}
	client, closeClient, err := openClient(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeClient()

	ids, err := client.Learners(cmd.Context())
	if err != nil {
		return fmt.Errorf("list learners: %w", err)
	}

	entries := make([]LearnerEntry, 0, len(ids))
	for _, id := range ids {
		sum, err := client.GetSummary(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("summary for %s: %w", id, err)
		}
		entries = append(entries, LearnerEntry{LearnerID: id, Items: sum.TotalItems, DueToday: sum.DueToday})
	}

	if outputJSON {
		return outputAsJSON(cmd, entries)
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		printWarning(out, "No learners yet.")
		printMuted(out, "Record some answers with: sprout submit <learner-id> <item=quality>")
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.LearnerID, strconv.Itoa(e.Items), strconv.Itoa(e.DueToday)})
	}
	fmt.Fprintln(out, renderTable([]string{"LEARNER", "ITEMS", "DUE TODAY"}, rows))
	return nil
}
