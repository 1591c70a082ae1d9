package main

import (
	"context"
	"fmt"
	"io"

	"github.com/hyperengineering/sprout"
	"github.com/hyperengineering/sprout/remote"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgDBPath      string
	cfgProfile     string
	cfgRemote      string
	cfgRemoteURL   string
	cfgAPIKey      string
	cfgDatabaseURL string
	cfgSourceID    string
	cfgMerge       string
	cfgDebug       bool
	outputJSON     bool
)

var rootCmd = &cobra.Command{
	Use:   "sprout",
	Short: "Sprout - offline-first learning progress",
	Long: `Sprout tracks spaced-repetition progress for young learners.

Every answer is stored locally first and queued for delivery, so the
app keeps working without a network. When a remote is configured,
queued progress is pushed and other devices' changes are pulled.`,
	RunE:          runRoot,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Existing environment variables take precedence over .env.
		_ = godotenv.Load()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgDBPath, "db", "", "Path to the local database (default: profile database)")
	pf.StringVar(&cfgProfile, "profile", "", "Device profile (default: $SPROUT_PROFILE or 'default')")
	pf.StringVar(&cfgRemote, "remote", "", "Remote backend: none, memory, http, postgres")
	pf.StringVar(&cfgRemoteURL, "remote-url", "", "Base URL of the HTTP remote")
	pf.StringVar(&cfgAPIKey, "api-key", "", "API key for the HTTP remote")
	pf.StringVar(&cfgDatabaseURL, "database-url", "", "Postgres connection string")
	pf.StringVar(&cfgSourceID, "source-id", "", "Device identifier sent with pushes (default: hostname)")
	pf.StringVar(&cfgMerge, "merge", "", "Pull merge policy: remote_wins, last_write_wins")
	pf.BoolVar(&cfgDebug, "debug", false, "Log remote traffic to stderr")
	pf.BoolVar(&outputJSON, "json", false, "Output as JSON")
}

// loadConfig merges flags over SPROUT_* environment variables.
func loadConfig() sprout.Config {
	cfg := sprout.ConfigFromEnv()

	if cfgDBPath != "" {
		cfg.LocalPath = cfgDBPath
	}
	if cfgProfile != "" {
		cfg.Profile = cfgProfile
	}
	if cfgRemote != "" {
		cfg.RemoteKind = sprout.RemoteKind(cfgRemote)
	}
	if cfgRemoteURL != "" {
		cfg.RemoteURL = cfgRemoteURL
	}
	if cfgAPIKey != "" {
		cfg.APIKey = cfgAPIKey
	}
	if cfgDatabaseURL != "" {
		cfg.DatabaseURL = cfgDatabaseURL
	}
	if cfgSourceID != "" {
		cfg.SourceID = cfgSourceID
	}
	if cfgMerge != "" {
		cfg.MergePolicy = sprout.MergePolicy(cfgMerge)
	}
	if cfgDebug {
		cfg.Debug = true
	}
	if cfg.RemoteKind == "" {
		cfg.RemoteKind = inferRemoteKind(cfg)
	}

	return cfg.WithDefaults()
}

// inferRemoteKind picks a backend from whichever connection setting is present.
func inferRemoteKind(cfg sprout.Config) sprout.RemoteKind {
	switch {
	case cfg.DatabaseURL != "":
		return sprout.RemotePostgres
	case cfg.RemoteURL != "":
		return sprout.RemoteHTTP
	default:
		return sprout.RemoteNone
	}
}

// loadAndValidateConfig loads configuration and validates it.
func loadAndValidateConfig() (sprout.Config, error) {
	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// openClient builds the configured remote and a client on top of it.
// The returned close func releases both.
func openClient(ctx context.Context, cfg sprout.Config) (*sprout.Client, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	debug, err := sprout.NewDebugLogger(cfg.Debug, cfg.DebugLogPath)
	if err != nil {
		return nil, nil, err
	}

	r, closer, err := remote.FromConfig(ctx, cfg, debug)
	if err != nil {
		_ = debug.Close()
		return nil, nil, fmt.Errorf("connect remote: %w", err)
	}

	var opts []sprout.Option
	if r != nil {
		opts = append(opts, sprout.WithRemote(r))
	}
	client, err := sprout.New(cfg, opts...)
	if err != nil {
		closeAll(closer, debug)
		return nil, nil, fmt.Errorf("initialize client: %w", err)
	}

	return client, func() {
		_ = client.Close()
		closeAll(closer, debug)
	}, nil
}

func closeAll(closers ...io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}
