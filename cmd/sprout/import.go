package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperengineering/sprout"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import progress from a backup",
	Long: `Import progress from a JSON export or from another Sprout database.
Imported records are queued for sync like any other change.

Strategies:
  newer    Replace a local record only when the imported one is newer (default)
  skip     Keep existing local records
  replace  Overwrite existing local records`,
	Example: `  sprout import backup.json
  sprout import old-tablet.db --strategy replace
  sprout import backup.json --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	importStrategy string
	importDryRun   bool
)

func init() {
	importCmd.Flags().StringVar(&importStrategy, "strategy", string(sprout.ImportNewer), "Conflict strategy: newer, skip, replace")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Report what would change without writing")

	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	strategy := sprout.ImportStrategy(strings.ToLower(importStrategy))
	if !strategy.IsValid() {
		return fmt.Errorf("invalid strategy %q: must be newer, skip or replace", importStrategy)
	}
	inputPath := args[0]
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("input file: %w", err)
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

	r, closeInput, err := openImportSource(cmd.Context(), inputPath)
	if err != nil {
		return err
	}
	defer closeInput()

	result, err := client.ImportJSON(cmd.Context(), r, strategy, importDryRun)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, result)
	}
	outputImportResult(cmd, result)
	return nil
}

// openImportSource returns a JSON export stream for path. Database files
// are exported on the fly through a pipe.
func openImportSource(ctx context.Context, path string) (io.Reader, func(), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		src, err := sprout.NewStore(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open source database: %w", err)
		}
		pr, pw := io.Pipe()
		go func() {
			pw.CloseWithError(src.ExportJSON(ctx, "import", "", pw))
		}()
		return pr, func() {
			_ = pr.Close()
			_ = src.Close()
		}, nil
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open input file: %w", err)
		}
		return f, func() { _ = f.Close() }, nil
	}
}

func outputImportResult(cmd *cobra.Command, result *sprout.ImportResult) {
	out := cmd.OutOrStdout()
	verb := func(done, would string) string {
		if importDryRun {
			return would
		}
		return done
	}

	outputText(cmd, "  Total records: %d\n", result.Total)
	outputText(cmd, "  %s %d\n", verb("Created:", "Would create:"), result.Created)
	outputText(cmd, "  %s %d\n", verb("Replaced:", "Would replace:"), result.Replaced)
	outputText(cmd, "  %s %d\n", verb("Skipped:", "Would skip:"), result.Skipped)
	outputText(cmd, "  Errors: %d\n", len(result.Errors))

	if len(result.Errors) > 0 {
		fmt.Fprintln(out)
		printWarning(out, "Errors encountered:")
		const maxErrors = 10
		for i, e := range result.Errors {
			if i >= maxErrors {
				fmt.Fprintf(out, "  ... and %d more errors\n", len(result.Errors)-maxErrors)
				break
			}
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}

	fmt.Fprintln(out)
	if importDryRun {
		printMuted(out, "Dry-run complete. No changes made.")
	} else {
		printSuccess(out, "Import complete.")
	}
}
