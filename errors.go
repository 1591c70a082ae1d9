package sprout

import (
	"errors"
	"fmt"
)

// Common errors returned by the sprout kernel.
var (
	// ErrNotFound is returned when a progress record does not exist.
	ErrNotFound = errors.New("progress record not found")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrOffline is returned when a remote operation is attempted without a remote.
	ErrOffline = errors.New("operation unavailable in offline mode")

	// ErrInvalidLearner is returned when a learner id is empty or malformed.
	ErrInvalidLearner = errors.New("invalid learner id")

	// ErrInvalidItem is returned when an item id is empty.
	ErrInvalidItem = errors.New("invalid item id")

	// ErrInvalidQuality is returned when a quality score is outside 0-5.
	ErrInvalidQuality = errors.New("quality must be between 0 and 5")

	// ErrEmptyResults is returned when SubmitResults receives nothing to apply.
	ErrEmptyResults = errors.New("no results to submit")

	// ErrSyncFailed is returned when a drain or pull could not reach the remote.
	ErrSyncFailed = errors.New("sync operation failed")
)

// ValidationError is returned when configuration validation fails.
// Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// SyncError is returned when a remote operation fails with details.
// Extractable via errors.As(). Supports Unwrap().
type SyncError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *SyncError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("sync: %s failed: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("sync: %s failed (status %d): %v", e.Operation, e.StatusCode, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrSyncFailed) match any SyncError.
func (e *SyncError) Is(target error) bool { return target == ErrSyncFailed }
