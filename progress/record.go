// Package progress defines the per-(learner, item) spaced-repetition record
// shared by the scheduler, the plan generator, analytics and the sync kernel.
package progress

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format of a calendar Date.
const DateLayout = "2006-01-02"

// Default values for a fresh record.
const (
	DefaultEase = 2.5
	MinEase     = 1.3
)

// Date is a calendar date in DateLayout. The zero value means "never".
// Dates in DateLayout order lexicographically, so plain string comparison
// is chronological.
type Date string

// DateOf returns the UTC calendar date of t.
func DateOf(t time.Time) Date {
	return Date(t.UTC().Format(DateLayout))
}

// ParseDate validates s as a DateLayout date.
func ParseDate(s string) (Date, error) {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", fmt.Errorf("progress: invalid date %q: %w", s, err)
	}
	return Date(s), nil
}

// Time returns midnight UTC of d. The zero Date yields the zero time.
func (d Date) Time() time.Time {
	t, err := time.Parse(DateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddDays returns d shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// IsZero reports whether d is unset.
func (d Date) IsZero() bool { return d == "" }

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool { return d < other }

func (d Date) String() string { return string(d) }

// Mastery is the coarse learning stage of an item.
type Mastery string

const (
	MasteryNovice Mastery = "NOVICE"
	MasteryFluent Mastery = "FLUENT"
	MasteryRapid  Mastery = "RAPID"
)

// IsValid checks if m is one of the known mastery levels.
func (m Mastery) IsValid() bool {
	switch m {
	case MasteryNovice, MasteryFluent, MasteryRapid:
		return true
	}
	return false
}

// Mastered reports whether m counts as mastered for analytics.
func (m Mastery) Mastered() bool {
	return m == MasteryFluent || m == MasteryRapid
}

// Key identifies a record. LearnerID and ItemID are together unique.
type Key struct {
	LearnerID string `json:"learner_id"`
	ItemID    string `json:"item_id"`
}

func (k Key) String() string { return k.LearnerID + "/" + k.ItemID }

// HistoryEntry is one graded review.
type HistoryEntry struct {
	Date    Date `json:"date"`
	Quality int  `json:"quality"`
}

// Record is the scheduling state of one item for one learner.
type Record struct {
	LearnerID      string         `json:"learner_id"`
	ItemID         string         `json:"item_id"`
	IntervalDays   int            `json:"interval_days"`
	Ease           float64        `json:"ease"`
	Repetitions    int            `json:"repetitions"`
	DueDate        Date           `json:"due_date"`
	LastReviewDate Date           `json:"last_review_date"`
	Streak         int            `json:"streak"`
	MasteryLevel   Mastery        `json:"mastery_level"`
	History        []HistoryEntry `json:"history"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// New returns the initial record for an item the learner has never seen.
func New(learnerID, itemID string) Record {
	return Record{
		LearnerID:    learnerID,
		ItemID:       itemID,
		Ease:         DefaultEase,
		MasteryLevel: MasteryNovice,
		History:      []HistoryEntry{},
	}
}

// Key returns the record's identity.
func (r Record) Key() Key {
	return Key{LearnerID: r.LearnerID, ItemID: r.ItemID}
}

// Clone returns a deep copy of r; the history slice is not shared.
func (r Record) Clone() Record {
	out := r
	out.History = make([]HistoryEntry, len(r.History))
	copy(out.History, r.History)
	return out
}

// IsDue reports whether the item should be reviewed on or before today.
// Items that were never scheduled are always due.
func (r Record) IsDue(today Date) bool {
	return r.DueDate.IsZero() || !today.Before(r.DueDate)
}

// Validate checks the structural invariants of a record.
func (r Record) Validate() error {
	if r.LearnerID == "" || r.ItemID == "" {
		return fmt.Errorf("progress: record key incomplete: %q", r.Key())
	}
	if r.IntervalDays < 0 || r.Repetitions < 0 || r.Streak < 0 {
		return fmt.Errorf("progress: negative counter on %s", r.Key())
	}
	if r.Ease < MinEase {
		return fmt.Errorf("progress: ease %.2f below %.1f on %s", r.Ease, MinEase, r.Key())
	}
	if !r.MasteryLevel.IsValid() {
		return fmt.Errorf("progress: invalid mastery %q on %s", r.MasteryLevel, r.Key())
	}
	for _, h := range r.History {
		if h.Quality < 0 || h.Quality > 5 {
			return fmt.Errorf("progress: history quality %d out of range on %s", h.Quality, r.Key())
		}
	}
	return nil
}
