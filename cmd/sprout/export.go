package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [learner-id]",
	Short: "Export progress to a JSON file",
	Long: `Export progress records to a JSON backup. Without a learner every
record in the profile is exported. Records are streamed, so large
profiles are never held in memory.`,
	Example: `  sprout export -o backup.json
  sprout export maya -o maya.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

var exportOutputPath string

func init() {
	exportCmd.Flags().StringVarP(&exportOutputPath, "output", "o", "", "Output file path (required)")
	_ = exportCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(exportCmd)
}

// ExportOutput for JSON output.
type ExportOutput struct {
	Profile   string `json:"profile"`
	LearnerID string `json:"learner_id,omitempty"`
	FilePath  string `json:"file_path"`
	FileSize  int64  `json:"file_size"`
	Duration  string `json:"duration"`
}

func runExport(cmd *cobra.Command, args []string) error {
	learnerID := ""
	if len(args) == 1 {
		learnerID = args[0]
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

	if err := ensureParentDir(exportOutputPath); err != nil {
		return err
	}
	f, err := os.Create(exportOutputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	start := time.Now()
	if err := client.ExportJSON(cmd.Context(), learnerID, f); err != nil {
		_ = os.Remove(exportOutputPath)
		return fmt.Errorf("export failed: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync file: %w", err)
	}

	res := ExportOutput{
		Profile:   cfg.Profile,
		LearnerID: learnerID,
		FilePath:  exportOutputPath,
		Duration:  time.Since(start).Round(time.Millisecond).String(),
	}
	if fi, err := f.Stat(); err == nil {
		res.FileSize = fi.Size()
	}

	if outputJSON {
		return outputAsJSON(cmd, res)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderPanel("Export Summary", fmt.Sprintf(
		"Profile:   %s\nFile size: %s\nDuration:  %s\nOutput:    %s",
		res.Profile, formatBytes(res.FileSize), res.Duration, res.FilePath)))
	printSuccess(out, "Export complete")
	return nil
}

// ensureParentDir creates the parent directory of path if it doesn't exist.
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	return nil
}
