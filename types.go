package sprout

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Result is one graded item from a completed game.
type Result struct {
	ItemID  string `json:"item_id"`
	Quality int    `json:"quality"`
}

// JobKind classifies an outbox entry.
type JobKind string

// JobKindProgress carries progress records and is batched by the drain.
// Any other kind is delivered to the remote unmodified, one job at a time.
const JobKindProgress JobKind = "progress_update"

// JobKindSessionCompleted is the pass-through event emitted at the end of a session.
const JobKindSessionCompleted JobKind = "session_completed"

// JobStatus is the outbox lifecycle state.
type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobInFlight JobStatus = "in_flight"
)

// Job is a pending mutation in the outbox.
type Job struct {
	ID        int64           `json:"id" db:"id"`
	Kind      JobKind         `json:"kind" db:"kind"`
	Payload   types.JSONText  `json:"payload" db:"payload"`
	Status    JobStatus       `json:"status" db:"status"`
	Attempts  int             `json:"attempts" db:"attempts"`
	LastError string          `json:"last_error,omitempty" db:"last_error"`
	CreatedAt Timestamp       `json:"created_at" db:"created_at"`
}

// MergePolicy decides what a pull does when the local copy of a record
// is newer than the remote one.
type MergePolicy string

const (
	// MergeRemoteWins overwrites local records with every pulled record.
	MergeRemoteWins MergePolicy = "remote_wins"
	// MergeLastWriteWins keeps a local record whose UpdatedAt is newer.
	MergeLastWriteWins MergePolicy = "last_write_wins"
)

// IsValid checks if p is a known merge policy.
func (p MergePolicy) IsValid() bool {
	return p == MergeRemoteWins || p == MergeLastWriteWins
}

// DrainResult reports one call to Outbox.Drain.
type DrainResult struct {
	Claimed   int  `json:"claimed"`   // jobs moved to in_flight
	Pushed    int  `json:"pushed"`    // de-duplicated records upserted
	Delivered int  `json:"delivered"` // pass-through jobs delivered
	Completed int  `json:"completed"` // jobs deleted after success
	Reverted  int  `json:"reverted"`  // jobs returned to pending
	Cycles    int  `json:"cycles"`    // claim cycles run, including coalesced reruns
	Coalesced bool `json:"coalesced"` // another drain was running; it will rerun
}

func (r *DrainResult) add(o DrainResult) {
	r.Claimed += o.Claimed
	r.Pushed += o.Pushed
	r.Delivered += o.Delivered
	r.Completed += o.Completed
	r.Reverted += o.Reverted
	r.Cycles += o.Cycles
}

// DrainEvent is published on Outbox.Events after a background drain.
type DrainEvent struct {
	Result DrainResult
	Err    error
	At     time.Time
}

// SyncStats summarizes a full sync (drain then pull).
type SyncStats struct {
	Drain    DrainResult   `json:"drain"`
	Pulled   int           `json:"pulled"`
	Duration time.Duration `json:"duration"`
}

// StoreStats contains statistics about the local store.
type StoreStats struct {
	RecordCount   int       `json:"record_count"`
	LearnerCount  int       `json:"learner_count"`
	PendingJobs   int       `json:"pending_jobs"`
	InFlightJobs  int       `json:"in_flight_jobs"`
	LastSync      time.Time `json:"last_sync"`
	SchemaVersion string    `json:"schema_version"`
}

// HealthStatus represents the health of the client.
type HealthStatus struct {
	Healthy         bool   `json:"healthy"`
	StoreOK         bool   `json:"store_ok"`
	Online          bool   `json:"online"`
	RemoteReachable bool   `json:"remote_reachable"`
	Error           string `json:"error,omitempty"`
}
