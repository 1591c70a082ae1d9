package sprout

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// busyRetries bounds how often a write is retried on lock contention.
const busyRetries = 3

// withBusyRetry runs fn, retrying with exponential backoff while sqlite
// reports the database as busy or locked. Any other error returns at once.
func withBusyRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(busyRetries, retry.NewExponential(50*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && isBusy(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
