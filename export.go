package sprout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ExportVersion is the current version of the export format.
const ExportVersion = "1.0"

// ExportFormat is the top-level structure of a JSON export.
type ExportFormat struct {
	Version    string        `json:"version"`
	ExportedAt time.Time     `json:"exported_at"`
	Profile    string        `json:"profile"`
	LearnerID  string        `json:"learner_id,omitempty"`
	Records    []ProgressRow `json:"records"`
}

// ExportJSON streams progress rows as JSON to w. An empty learnerID
// exports every learner.
func (s *Store) ExportJSON(ctx context.Context, profile, learnerID string, w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	header := fmt.Sprintf(`{"version":%s,"exported_at":%s,"profile":%s,`,
		jsonString(ExportVersion),
		jsonString(time.Now().UTC().Format(time.RFC3339)),
		jsonString(profile),
	)
	if learnerID != "" {
		header += `"learner_id":` + jsonString(learnerID) + `,`
	}
	header += `"records":[`
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	query := `SELECT ` + progressColumns + ` FROM progress`
	var args []any
	if learnerID != "" {
		query += ` WHERE learner_id = ?`
		args = append(args, learnerID)
	}
	query += ` ORDER BY learner_id, item_id`

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	enc := json.NewEncoder(w)
	first := true
	for rows.Next() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var row ProgressRow
		if err := rows.StructScan(&row); err != nil {
			return fmt.Errorf("scan progress: %w", err)
		}
		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return fmt.Errorf("write separator: %w", err)
			}
		}
		first = false
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encode progress: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate progress: %w", err)
	}

	if _, err := io.WriteString(w, "]}"); err != nil {
		return fmt.Errorf("write footer: %w", err)
	}
	return nil
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
