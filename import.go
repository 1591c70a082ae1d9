package sprout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hyperengineering/sprout/progress"
)

// importBatchSize is how many records share one outbox job on import.
const importBatchSize = 100

// ImportStrategy defines how to handle records that already exist locally.
type ImportStrategy string

const (
	// ImportSkip leaves existing records untouched.
	ImportSkip ImportStrategy = "skip"
	// ImportReplace overwrites existing records.
	ImportReplace ImportStrategy = "replace"
	// ImportNewer overwrites only when the imported record is newer (default).
	ImportNewer ImportStrategy = "newer"
)

// IsValid checks if s is a known strategy.
func (s ImportStrategy) IsValid() bool {
	switch s {
	case ImportSkip, ImportReplace, ImportNewer:
		return true
	}
	return false
}

// ImportResult summarizes an import.
type ImportResult struct {
	Total    int      `json:"total"`
	Created  int      `json:"created"`
	Replaced int      `json:"replaced"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ImportJSON reads an export stream and persists the accepted records
// through the outbox, so imported progress is pushed on the next drain.
func (s *Store) ImportJSON(ctx context.Context, r io.Reader, strategy ImportStrategy, dryRun bool) (*ImportResult, error) {
	if strategy == "" {
		strategy = ImportNewer
	}
	if !strategy.IsValid() {
		return nil, fmt.Errorf("unknown import strategy %q", strategy)
	}

	dec := json.NewDecoder(r)
	result := &ImportResult{}

	token, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read opening token: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected opening brace, got %v", token)
	}

	var version string
	for dec.More() {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		token, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read field name: %w", err)
		}
		field, ok := token.(string)
		if !ok {
			return nil, fmt.Errorf("expected field name, got %v", token)
		}

		switch field {
		case "version":
			if err := dec.Decode(&version); err != nil {
				return nil, fmt.Errorf("decode version: %w", err)
			}
			if version != ExportVersion {
				return nil, fmt.Errorf("unsupported export version %q (expected %q)", version, ExportVersion)
			}
		case "records":
			if err := s.importRecords(ctx, dec, strategy, dryRun, result); err != nil {
				return result, fmt.Errorf("import records: %w", err)
			}
		default:
			var discard any
			if err := dec.Decode(&discard); err != nil {
				return nil, fmt.Errorf("decode %s: %w", field, err)
			}
		}
	}

	if version == "" {
		return nil, fmt.Errorf("missing version field in export file")
	}
	return result, nil
}

func (s *Store) importRecords(ctx context.Context, dec *json.Decoder, strategy ImportStrategy, dryRun bool, result *ImportResult) error {
	token, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read records array: %w", err)
	}
	if delim, ok := token.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("expected records array, got %v", token)
	}

	var batch []progress.Record
	flush := func() error {
		if dryRun || len(batch) == 0 {
			batch = batch[:0]
			return nil
		}
		if _, err := s.EnqueueAndPersist(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for dec.More() {
		var row ProgressRow
		if err := dec.Decode(&row); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		result.Total++

		rec, err := row.Record()
		if err == nil {
			err = rec.Validate()
		}
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}

		existing, err := s.Get(ctx, rec.Key())
		switch {
		case errors.Is(err, ErrNotFound):
			result.Created++
		case err != nil:
			return err
		case strategy == ImportSkip,
			strategy == ImportNewer && !rec.UpdatedAt.After(existing.UpdatedAt):
			result.Skipped++
			continue
		default:
			result.Replaced++
		}

		batch = append(batch, rec)
		if len(batch) >= importBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read records end: %w", err)
	}
	return flush()
}
