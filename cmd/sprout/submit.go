package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperengineering/sprout"
	"github.com/hyperengineering/sprout/progress"
	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit <learner-id> <item=quality>...",
	Short: "Record graded answers for a learner",
	Long: `Record the graded answers of one game. Quality is 0-5, where 5 is a
perfect answer and anything below 3 counts as a miss.

The updated schedule is saved locally and queued for sync.`,
	Example: `  sprout submit maya 7x8=5 6x7=3
  sprout submit maya red=1 --json`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
}

// parseResults turns item=quality arguments into results.
func parseResults(args []string) ([]sprout.Result, error) {
	results := make([]sprout.Result, 0, len(args))
	for _, arg := range args {
		item, q, ok := strings.Cut(arg, "=")
		if !ok || item == "" {
			return nil, fmt.Errorf("invalid result %q: want item=quality", arg)
		}
		quality, err := strconv.Atoi(q)
		if err != nil {
			return nil, fmt.Errorf("invalid quality in %q: %w", arg, err)
		}
		results = append(results, sprout.Result{ItemID: item, Quality: quality})
	}
	return results, nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	results, err := parseResults(args[1:])
	if err != nil {
		return err
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

	recs, err := client.SubmitResults(cmd.Context(), args[0], results)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, recs)
	}
	return outputRecords(cmd, recs)
}

func outputRecords(cmd *cobra.Command, recs []progress.Record) error {
	out := cmd.OutOrStdout()
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			r.ItemID,
			strconv.Itoa(r.IntervalDays) + "d",
			fmt.Sprintf("%.2f", r.Ease),
			strconv.Itoa(r.Streak),
			string(r.DueDate),
			string(r.MasteryLevel),
		})
	}
	printSuccess(out, "Recorded %d results", len(recs))
	fmt.Fprintln(out, renderTable([]string{"ITEM", "INTERVAL", "EASE", "STREAK", "DUE", "MASTERY"}, rows))
	return nil
}
