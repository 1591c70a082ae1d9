package sprout

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/hyperengineering/sprout/progress"
)

// timestampLayout is fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// Timestamp is a UTC instant that scans from and stores as fixed-width
// text, and also accepts native time values from drivers such as lib/pq.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t in UTC.
func NewTimestamp(t time.Time) Timestamp { return Timestamp{t.UTC()} }

// Value implements driver.Valuer.
func (t Timestamp) Value() (driver.Value, error) {
	return t.UTC().Format(timestampLayout), nil
}

// Scan implements sql.Scanner.
func (t *Timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("timestamp: cannot scan %T", src)
	}
}

func (t *Timestamp) parse(s string) error {
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t.Time = parsed.UTC()
	return nil
}

// MarshalJSON renders RFC 3339 with nanoseconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts any RFC 3339 timestamp.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return t.parse(s)
}

// ProgressRow is the storage and wire shape of a progress.Record. The same
// row travels through the local sqlite store and every remote backend.
type ProgressRow struct {
	LearnerID      string         `json:"learner_id" db:"learner_id"`
	ItemID         string         `json:"item_id" db:"item_id"`
	IntervalDays   int            `json:"interval_days" db:"interval_days"`
	Ease           float64        `json:"ease" db:"ease"`
	Repetitions    int            `json:"repetitions" db:"repetitions"`
	DueDate        string         `json:"due_date" db:"due_date"`
	LastReviewDate string         `json:"last_review_date" db:"last_review_date"`
	Streak         int            `json:"streak" db:"streak"`
	MasteryLevel   string         `json:"mastery_level" db:"mastery_level"`
	History        types.JSONText `json:"history" db:"history"`
	UpdatedAt      Timestamp      `json:"updated_at" db:"updated_at"`
}

// RowFromRecord converts a record into its row form.
func RowFromRecord(r progress.Record) (ProgressRow, error) {
	history := r.History
	if history == nil {
		history = []progress.HistoryEntry{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return ProgressRow{}, fmt.Errorf("encode history of %s: %w", r.Key(), err)
	}
	return ProgressRow{
		LearnerID:      r.LearnerID,
		ItemID:         r.ItemID,
		IntervalDays:   r.IntervalDays,
		Ease:           r.Ease,
		Repetitions:    r.Repetitions,
		DueDate:        string(r.DueDate),
		LastReviewDate: string(r.LastReviewDate),
		Streak:         r.Streak,
		MasteryLevel:   string(r.MasteryLevel),
		History:        types.JSONText(raw),
		UpdatedAt:      NewTimestamp(r.UpdatedAt),
	}, nil
}

// Record converts a row back into a record.
func (row ProgressRow) Record() (progress.Record, error) {
	history := []progress.HistoryEntry{}
	if len(row.History) > 0 {
		if err := row.History.Unmarshal(&history); err != nil {
			return progress.Record{}, fmt.Errorf("decode history of %s/%s: %w", row.LearnerID, row.ItemID, err)
		}
	}
	return progress.Record{
		LearnerID:      row.LearnerID,
		ItemID:         row.ItemID,
		IntervalDays:   row.IntervalDays,
		Ease:           row.Ease,
		Repetitions:    row.Repetitions,
		DueDate:        progress.Date(row.DueDate),
		LastReviewDate: progress.Date(row.LastReviewDate),
		Streak:         row.Streak,
		MasteryLevel:   progress.Mastery(row.MasteryLevel),
		History:        history,
		UpdatedAt:      row.UpdatedAt.Time,
	}, nil
}

// RowsFromRecords converts a batch of records.
func RowsFromRecords(records []progress.Record) ([]ProgressRow, error) {
	rows := make([]ProgressRow, 0, len(records))
	for _, r := range records {
		row, err := RowFromRecord(r)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RecordsFromRows converts a batch of rows.
func RecordsFromRows(rows []ProgressRow) ([]progress.Record, error) {
	records := make([]progress.Record, 0, len(rows))
	for _, row := range rows {
		r, err := row.Record()
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
