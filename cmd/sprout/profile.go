package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hyperengineering/sprout"
	"github.com/hyperengineering/sprout/internal/store"
	"github.com/spf13/cobra"
)

const descriptionKey = "profile_description"

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage device profiles",
	Long: `Manage device profiles. Each profile is a separate local database
under ~/.sprout/profiles, so one machine can hold progress for several
devices or households without mixing their sync queues.`,
	Example: `  sprout profile list
  sprout profile create kitchen-tablet --description "Shared tablet"
  sprout profile info kitchen-tablet`,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local profiles",
	RunE:  runProfileList,
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <profile-id>",
	Short: "Create a new profile",
	Long: `Create a new local profile.

Profile ids are lowercase alphanumeric with '-' or '_', 1-64 characters,
starting and ending with a letter or digit.`,
	Args: cobra.ExactArgs(1),
	RunE: runProfileCreate,
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <profile-id>",
	Short: "Delete a profile",
	Long: `Delete a local profile together with its unsynced queue.

Requires --confirm. Use --force to skip the interactive prompt.
The 'default' profile cannot be deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: runProfileDelete,
}

var profileInfoCmd = &cobra.Command{
	Use:   "info [profile-id]",
	Short: "Show profile details",
	Long:  `Show details for a profile, or the resolved one when no id is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProfileInfo,
}

var (
	profileDescription   string
	profileDeleteConfirm bool
	profileDeleteForce   bool
)

func init() {
	profileCreateCmd.Flags().StringVar(&profileDescription, "description", "", "Profile description")
	profileDeleteCmd.Flags().BoolVar(&profileDeleteConfirm, "confirm", false, "Confirm deletion (required)")
	profileDeleteCmd.Flags().BoolVar(&profileDeleteForce, "force", false, "Skip interactive prompt")

	profileCmd.AddCommand(profileListCmd, profileCreateCmd, profileDeleteCmd, profileInfoCmd)
	rootCmd.AddCommand(profileCmd)
}

// ProfileEntry describes one profile.
type ProfileEntry struct {
	ID           string    `json:"id"`
	Description  string    `json:"description,omitempty"`
	Location     string    `json:"location"`
	RecordCount  int       `json:"record_count"`
	LearnerCount int       `json:"learner_count"`
	PendingJobs  int       `json:"pending_jobs"`
	LastSync     time.Time `json:"last_sync,omitempty"`
	Resolved     bool      `json:"resolved,omitempty"`
}

// ProfileListResult for JSON output.
type ProfileListResult struct {
	Profiles []ProfileEntry `json:"profiles"`
	Total    int            `json:"total"`
}

// describeProfile opens a profile database and collects its stats.
func describeProfile(ctx context.Context, id string) (ProfileEntry, error) {
	dbPath := store.ProfileDBPath(id)
	entry := ProfileEntry{ID: id, Location: filepath.Dir(dbPath)}

	s, err := sprout.NewStore(dbPath)
	if err != nil {
		return entry, err
	}
	defer s.Close()

	if desc, err := s.GetMetadata(ctx, descriptionKey); err == nil {
		entry.Description = desc
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return entry, err
	}
	entry.RecordCount = stats.RecordCount
	entry.LearnerCount = stats.LearnerCount
	entry.PendingJobs = stats.PendingJobs + stats.InFlightJobs
	entry.LastSync = stats.LastSync
	return entry, nil
}

func profileExists(id string) bool {
	_, err := os.Stat(store.ProfileDBPath(id))
	return err == nil
}

func runProfileList(cmd *cobra.Command, args []string) error {
	ids, err := store.ListProfiles(store.DefaultProfileRoot())
	if err != nil {
		return fmt.Errorf("read profiles directory: %w", err)
	}

	profiles := make([]ProfileEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := describeProfile(cmd.Context(), id)
		if err != nil {
			continue
		}
		profiles = append(profiles, entry)
	}

	if outputJSON {
		return outputAsJSON(cmd, ProfileListResult{Profiles: profiles, Total: len(profiles)})
	}

	out := cmd.OutOrStdout()
	if len(profiles) == 0 {
		printWarning(out, "No profiles found.")
		printMuted(out, "Create one with: sprout profile create <profile-id>")
		return nil
	}

	rows := make([][]string, 0, len(profiles))
	for _, p := range profiles {
		desc := p.Description
		if len(desc) > 35 {
			desc = desc[:32] + "..."
		}
		synced := "never"
		if !p.LastSync.IsZero() {
			synced = formatRelativeTime(p.LastSync)
		}
		rows = append(rows, []string{p.ID, desc, strconv.Itoa(p.RecordCount), strconv.Itoa(p.PendingJobs), synced})
	}
	printInfo(out, "Local Profiles (%d):", len(profiles))
	fmt.Fprintln(out, renderTable([]string{"PROFILE", "DESCRIPTION", "RECORDS", "QUEUED", "SYNCED"}, rows))
	return nil
}

func runProfileCreate(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := store.ValidateIDForCreation(id); err != nil {
		return fmt.Errorf("invalid profile id %q: %w", id, err)
	}
	if profileExists(id) {
		return fmt.Errorf("profile %q already exists", id)
	}

	dbPath := store.ProfileDBPath(id)
	dir := filepath.Dir(dbPath)
	if err := store.EnsureDir(dbPath); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}

	s, err := sprout.NewStore(dbPath)
	if err != nil {
		_ = os.RemoveAll(dir)
		return fmt.Errorf("initialize profile: %w", err)
	}
	if profileDescription != "" {
		if err := s.SetMetadata(cmd.Context(), descriptionKey, profileDescription); err != nil {
			_ = s.Close()
			_ = os.RemoveAll(dir)
			return fmt.Errorf("set description: %w", err)
		}
	}
	if err := s.Close(); err != nil {
		_ = os.RemoveAll(dir)
		return fmt.Errorf("close profile: %w", err)
	}

	entry := ProfileEntry{ID: id, Description: profileDescription, Location: dir}
	if outputJSON {
		return outputAsJSON(cmd, entry)
	}
	out := cmd.OutOrStdout()
	printSuccess(out, "Profile created: %s", id)
	if profileDescription != "" {
		fmt.Fprintf(out, "  Description: %s\n", profileDescription)
	}
	fmt.Fprintf(out, "  Location: %s\n", dir)
	return nil
}

func runProfileDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := store.ValidateID(id); err != nil {
		return fmt.Errorf("invalid profile id %q: %w", id, err)
	}
	if !profileDeleteConfirm {
		return errors.New("--confirm flag is required for delete\n\nUsage: sprout profile delete <profile-id> --confirm [--force]")
	}
	if id == "default" {
		return errors.New("cannot delete protected profile 'default'")
	}
	if !profileExists(id) {
		return fmt.Errorf("profile %q not found", id)
	}

	entry, _ := describeProfile(cmd.Context(), id)
	out := cmd.OutOrStdout()

	if !profileDeleteForce {
		printWarning(out, "This will permanently delete profile '%s' with %d records and %d unsynced jobs.",
			id, entry.RecordCount, entry.PendingJobs)
		fmt.Fprintf(out, "Type '%s' to confirm: ", id)

		response, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if strings.TrimSpace(response) != id {
			printMuted(out, "Aborted.")
			return nil
		}
	}

	if err := os.RemoveAll(entry.Location); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, entry)
	}
	printSuccess(out, "Profile deleted: %s", id)
	if entry.PendingJobs > 0 {
		printWarning(out, "%d unsynced jobs were discarded", entry.PendingJobs)
	}
	return nil
}

func runProfileInfo(cmd *cobra.Command, args []string) error {
	var id string
	resolved := false
	if len(args) > 0 {
		id = args[0]
		if err := store.ValidateID(id); err != nil {
			return fmt.Errorf("invalid profile id %q: %w", id, err)
		}
	} else {
		var err error
		id, err = store.ResolveProfile(cfgProfile)
		if err != nil {
			return fmt.Errorf("resolve profile: %w", err)
		}
		resolved = cfgProfile == ""
	}

	if !profileExists(id) {
		return fmt.Errorf("profile %q not found", id)
	}
	entry, err := describeProfile(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("open profile: %w", err)
	}
	entry.Resolved = resolved

	if outputJSON {
		return outputAsJSON(cmd, entry)
	}

	out := cmd.OutOrStdout()
	if resolved {
		printInfo(out, "Profile: %s (resolved from environment)", id)
	} else {
		printInfo(out, "Profile: %s", id)
	}
	const w = 14
	if entry.Description != "" {
		printField(out, "  Description:", w, "%s", entry.Description)
	}
	printField(out, "  Location:", w, "%s", entry.Location)
	printField(out, "  Records:", w, "%d", entry.RecordCount)
	printField(out, "  Learners:", w, "%d", entry.LearnerCount)
	printField(out, "  Queued jobs:", w, "%d", entry.PendingJobs)
	if entry.LastSync.IsZero() {
		printField(out, "  Last sync:", w, "never")
	} else {
		printField(out, "  Last sync:", w, "%s", entry.LastSync.Format("2006-01-02 15:04:05 MST"))
	}
	return nil
}
