package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperengineering/sprout"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	Long:  `Display statistics about the local store and its sync queue.`,
	Example: `  sprout stats
  sprout stats --health`,
	RunE: runStats,
}

var statsHealth bool

func init() {
	statsCmd.Flags().BoolVar(&statsHealth, "health", false, "Include health check")
	rootCmd.AddCommand(statsCmd)
}

// StatsOutput for JSON output.
type StatsOutput struct {
	*sprout.StoreStats
	Profile string               `json:"profile"`
	Path    string               `json:"path"`
	Health  *sprout.HealthStatus `json:"health,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadAndValidateConfig()
	if err != nil {
		return err
	}
	client, closeClient, err := openClient(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeClient()

	stats, err := client.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	res := StatsOutput{StoreStats: stats, Profile: cfg.Profile, Path: cfg.LocalPath}
	if statsHealth {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		h := client.HealthCheck(ctx)
		res.Health = &h
	}

	if outputJSON {
		return outputAsJSON(cmd, res)
	}

	out := cmd.OutOrStdout()
	const w = 16
	printField(out, "Profile:", w, "%s", cfg.Profile)
	printField(out, "Database:", w, "%s", cfg.LocalPath)
	printField(out, "Records:", w, "%d", stats.RecordCount)
	printField(out, "Learners:", w, "%d", stats.LearnerCount)
	printField(out, "Pending jobs:", w, "%d", stats.PendingJobs)
	printField(out, "In flight:", w, "%d", stats.InFlightJobs)
	printField(out, "Schema version:", w, "%s", stats.SchemaVersion)
	if stats.LastSync.IsZero() {
		printField(out, "Last sync:", w, "never")
	} else {
		printField(out, "Last sync:", w, "%s (%s)", stats.LastSync.Format(time.RFC3339), formatRelativeTime(stats.LastSync))
	}

	if res.Health != nil {
		h := res.Health
		fmt.Fprintln(out)
		if h.Healthy {
			printSuccess(out, "Healthy")
		} else {
			printError(out, "Unhealthy")
		}
		printField(out, "Store OK:", w, "%v", h.StoreOK)
		printField(out, "Online:", w, "%v", h.Online)
		printField(out, "Remote reachable:", w, "%v", h.RemoteReachable)
		if h.Error != "" {
			printField(out, "Error:", w, "%s", h.Error)
		}
	}
	return nil
}

// formatRelativeTime renders t as a coarse "N units ago".
func formatRelativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
