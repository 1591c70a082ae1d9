package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/sprout"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [learner-id]",
	Short: "Synchronize with the remote",
	Long: `Push queued progress to the remote, then pull the learner's changes
from other devices. Without a learner only the push runs.`,
	Example: `  sprout sync maya           # push + pull
  sprout sync --push         # push queued jobs only
  sprout sync maya --pull    # pull only`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

var (
	syncPush    bool
	syncPull    bool
	syncTimeout time.Duration
)

func init() {
	syncCmd.Flags().BoolVar(&syncPush, "push", false, "Push queued jobs only")
	syncCmd.Flags().BoolVar(&syncPull, "pull", false, "Pull remote changes only")
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 60*time.Second, "Overall sync timeout")

	rootCmd.AddCommand(syncCmd)
}

// SyncOutput for JSON output.
type SyncOutput struct {
	Pushed     int   `json:"pushed"`
	Delivered  int   `json:"delivered"`
	Requeued   int   `json:"requeued"`
	Pulled     int   `json:"pulled"`
	DurationMs int64 `json:"duration_ms"`
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadAndValidateConfig()
	if err != nil {
		return err
	}
	if cfg.IsOffline() {
		return errors.New("no remote configured: set --remote or SPROUT_REMOTE")
	}

	learnerID := ""
	if len(args) == 1 {
		learnerID = args[0]
	}
	if syncPull && !syncPush && learnerID == "" {
		return errors.New("--pull requires a learner id")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), syncTimeout)
	defer cancel()

	client, closeClient, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeClient()

	start := time.Now()
	var res SyncOutput
	out := cmd.ErrOrStderr()

	err = runWithSpinner(out, "Synchronizing", func() error {
		switch {
		case syncPush && !syncPull:
			d, err := client.Drain(ctx)
			res.Pushed, res.Delivered, res.Requeued = d.Pushed, d.Delivered, d.Reverted
			return err
		case syncPull && !syncPush:
			n, err := client.Pull(ctx, learnerID)
			res.Pulled = n
			return err
		default:
			stats, err := client.Sync(ctx, learnerID)
			if stats != nil {
				res.Pushed, res.Delivered, res.Requeued = stats.Drain.Pushed, stats.Drain.Delivered, stats.Drain.Reverted
				res.Pulled = stats.Pulled
			}
			return err
		}
	})
	res.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		if errors.Is(err, sprout.ErrSyncFailed) && res.Requeued > 0 {
			printWarning(out, "%d jobs requeued for the next sync", res.Requeued)
		}
		return fmt.Errorf("sync: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, res)
	}
	w := cmd.OutOrStdout()
	printSuccess(w, "Sync complete (took %s)", time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(w, "  Pushed records:   %d\n", res.Pushed)
	fmt.Fprintf(w, "  Delivered events: %d\n", res.Delivered)
	if learnerID != "" {
		fmt.Fprintf(w, "  Pulled records:   %d\n", res.Pulled)
	}
	return nil
}
