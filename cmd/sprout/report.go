package main

import (
	"fmt"
	"os"

	"github.com/hyperengineering/sprout/report"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report <learner-id>",
	Short: "Write a spreadsheet report for a learner",
	Long: `Write an Excel workbook with the learner's summary, weak items,
practice calendar and every progress record.`,
	Example: `  sprout report maya -o maya.xlsx`,
	Args:    cobra.ExactArgs(1),
	RunE:    runReport,
}

var reportOutputPath string

func init() {
	reportCmd.Flags().StringVarP(&reportOutputPath, "output", "o", "", "Output .xlsx path (required)")
	_ = reportCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	learnerID := args[0]

	cfg, err := loadAndValidateConfig()
	if err != nil {
		return err
	}
	client, closeClient, err := openClient(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeClient()

	sum, err := client.GetSummary(cmd.Context(), learnerID)
	if err != nil {
		return fmt.Errorf("summary: %w", err)
	}
	recs, err := client.Records(cmd.Context(), learnerID)
	if err != nil {
		return fmt.Errorf("records: %w", err)
	}

	if err := ensureParentDir(reportOutputPath); err != nil {
		return err
	}
	f, err := os.Create(reportOutputPath)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.WriteXLSX(f, sum, recs); err != nil {
		f.Close()
		_ = os.Remove(reportOutputPath)
		return fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, map[string]any{
			"learner_id": learnerID,
			"records":    len(recs),
			"file_path":  reportOutputPath,
		})
	}
	printSuccess(cmd.OutOrStdout(), "Report for %s written to %s (%d records)", learnerID, reportOutputPath, len(recs))
	return nil
}
