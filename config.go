package sprout

import (
	"os"
	"time"

	"github.com/hyperengineering/sprout/internal/store"
	"github.com/hyperengineering/sprout/plan"
)

// RemoteKind selects the remote backend.
type RemoteKind string

const (
	RemoteNone     RemoteKind = "none"
	RemoteMemory   RemoteKind = "memory"
	RemoteHTTP     RemoteKind = "http"
	RemotePostgres RemoteKind = "postgres"
)

// IsValid checks if k is a known remote kind.
func (k RemoteKind) IsValid() bool {
	switch k {
	case RemoteNone, RemoteMemory, RemoteHTTP, RemotePostgres:
		return true
	}
	return false
}

// Config configures the sprout client.
type Config struct {
	// LocalPath is the path to the local SQLite database.
	// If empty, it is derived from Profile.
	LocalPath string

	// Profile is the device profile to operate against.
	// If empty, resolved as explicit > SPROUT_PROFILE env > "default".
	Profile string

	// RemoteKind selects the remote backend. Empty means offline only.
	RemoteKind RemoteKind

	// RemoteURL is the base URL of a PostgREST-style endpoint (RemoteHTTP).
	RemoteURL string

	// APIKey authenticates with the HTTP remote.
	APIKey string

	// DatabaseURL is the Postgres connection string (RemotePostgres).
	DatabaseURL string

	// SourceID identifies this device. Defaults to the hostname.
	SourceID string

	// SyncInterval is how often the background sync runs. Defaults to 5 minutes.
	SyncInterval time.Duration

	// ProbeInterval is how often connectivity is probed. Defaults to 30 seconds.
	ProbeInterval time.Duration

	// RemoteTimeout bounds each remote call. Defaults to 15 seconds.
	RemoteTimeout time.Duration

	// AutoSync enables the background sync loop.
	AutoSync bool

	// MergePolicy decides how pulls treat newer local records.
	// Defaults to MergeRemoteWins.
	MergePolicy MergePolicy

	// PlanAgeThreshold is the age above which plans include harder templates.
	PlanAgeThreshold int

	// Debug enables verbose logging of remote traffic and sync cycles.
	Debug bool

	// DebugLogPath is where debug logs go. Defaults to stderr.
	DebugLogPath string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	hostname, _ := os.Hostname()
	return Config{
		Profile:          "default",
		LocalPath:        store.ProfileDBPath("default"),
		RemoteKind:       RemoteNone,
		SourceID:         hostname,
		SyncInterval:     5 * time.Minute,
		ProbeInterval:    DefaultProbeInterval,
		RemoteTimeout:    DefaultRemoteTimeout,
		AutoSync:         true,
		MergePolicy:      MergeRemoteWins,
		PlanAgeThreshold: plan.DefaultAgeThreshold,
	}
}

// ConfigFromEnv reads configuration from environment variables.
//
//	SPROUT_DB_PATH       → LocalPath
//	SPROUT_PROFILE       → Profile
//	SPROUT_REMOTE        → RemoteKind
//	SPROUT_REMOTE_URL    → RemoteURL
//	SPROUT_API_KEY       → APIKey
//	SPROUT_DATABASE_URL  → DatabaseURL
//	SPROUT_SOURCE_ID     → SourceID
//	SPROUT_MERGE_POLICY  → MergePolicy
//	SPROUT_DEBUG         → Debug (any non-empty value enables)
//	SPROUT_DEBUG_LOG     → DebugLogPath
func ConfigFromEnv() Config {
	return Config{
		LocalPath:    os.Getenv("SPROUT_DB_PATH"),
		Profile:      os.Getenv(store.ProfileEnv),
		RemoteKind:   RemoteKind(os.Getenv("SPROUT_REMOTE")),
		RemoteURL:    os.Getenv("SPROUT_REMOTE_URL"),
		APIKey:       os.Getenv("SPROUT_API_KEY"),
		DatabaseURL:  os.Getenv("SPROUT_DATABASE_URL"),
		SourceID:     os.Getenv("SPROUT_SOURCE_ID"),
		MergePolicy:  MergePolicy(os.Getenv("SPROUT_MERGE_POLICY")),
		Debug:        os.Getenv("SPROUT_DEBUG") != "",
		DebugLogPath: os.Getenv("SPROUT_DEBUG_LOG"),
	}
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.LocalPath == "" {
		return &ValidationError{Field: "LocalPath", Message: "required: path to SQLite database"}
	}

	if c.Profile != "" {
		if err := store.ValidateID(c.Profile); err != nil {
			return &ValidationError{Field: "Profile", Message: err.Error()}
		}
	}

	if c.RemoteKind != "" && !c.RemoteKind.IsValid() {
		return &ValidationError{Field: "RemoteKind", Message: "must be one of none, memory, http, postgres"}
	}
	switch c.RemoteKind {
	case RemoteHTTP:
		if c.RemoteURL == "" {
			return &ValidationError{Field: "RemoteURL", Message: "required when RemoteKind is http"}
		}
		if c.APIKey == "" {
			return &ValidationError{Field: "APIKey", Message: "required when RemoteKind is http"}
		}
	case RemotePostgres:
		if c.DatabaseURL == "" {
			return &ValidationError{Field: "DatabaseURL", Message: "required when RemoteKind is postgres"}
		}
	}

	if c.MergePolicy != "" && !c.MergePolicy.IsValid() {
		return &ValidationError{Field: "MergePolicy", Message: "must be remote_wins or last_write_wins"}
	}

	if c.SyncInterval < 0 {
		return &ValidationError{Field: "SyncInterval", Message: "must be non-negative"}
	}
	if c.ProbeInterval < 0 {
		return &ValidationError{Field: "ProbeInterval", Message: "must be non-negative"}
	}
	if c.RemoteTimeout < 0 {
		return &ValidationError{Field: "RemoteTimeout", Message: "must be non-negative"}
	}
	if c.PlanAgeThreshold < 0 {
		return &ValidationError{Field: "PlanAgeThreshold", Message: "must be non-negative"}
	}

	return nil
}

// IsOffline returns true if no remote is configured.
func (c *Config) IsOffline() bool {
	return c.RemoteKind == "" || c.RemoteKind == RemoteNone
}

// WithDefaults fills in default values for unset fields.
// LocalPath is derived from the resolved Profile if not explicitly set.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.Profile == "" {
		resolved, err := store.ResolveProfile("")
		if err == nil {
			c.Profile = resolved
		} else {
			c.Profile = defaults.Profile
		}
	}
	if c.LocalPath == "" {
		c.LocalPath = store.ProfileDBPath(c.Profile)
	}
	if c.RemoteKind == "" {
		c.RemoteKind = defaults.RemoteKind
	}
	if c.SourceID == "" {
		c.SourceID = defaults.SourceID
	}
	if c.SyncInterval == 0 {
		c.SyncInterval = defaults.SyncInterval
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = defaults.ProbeInterval
	}
	if c.RemoteTimeout == 0 {
		c.RemoteTimeout = defaults.RemoteTimeout
	}
	if c.MergePolicy == "" {
		c.MergePolicy = defaults.MergePolicy
	}
	if c.PlanAgeThreshold == 0 {
		c.PlanAgeThreshold = defaults.PlanAgeThreshold
	}

	return c
}
