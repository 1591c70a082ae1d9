// Package analytics derives read-only learning statistics from progress
// records.
package analytics

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hyperengineering/sprout/progress"
)

// Aggregation constants.
const (
	ShortWindowDays   = 7
	LongWindowDays    = 14
	MaxWeakItems      = 5
	WeakEaseThreshold = 2.0
	longTokenRunes    = 3
	easeSpan          = 1.7 // default max ease (3.0) minus progress.MinEase
)

// Remediation tags attached to weak items.
const (
	RemediationNumeracy   = "numeracy drill"
	RemediationVisual     = "visual match"
	RemediationGrid       = "grid memory"
	RemediationFlashCards = "flash cards"
)

// Summary is the learner dashboard.
type Summary struct {
	LearnerID       string        `json:"learner_id"`
	Retention7Day   int           `json:"retention_7_day"`
	Retention14Day  int           `json:"retention_14_day"`
	ItemsMastered   int           `json:"items_mastered"`
	TotalItems      int           `json:"total_items"`
	DueToday        int           `json:"due_today"`
	EfficiencyScore int           `json:"efficiency_score"`
	WeakItems       []WeakItem    `json:"weak_items"`
	CalendarData    []CalendarDay `json:"calendar_data"`
}

// WeakItem is a struggling item with a suggested remediation.
type WeakItem struct {
	ItemID      string  `json:"item_id"`
	Ease        float64 `json:"ease"`
	Streak      int     `json:"streak"`
	Repetitions int     `json:"repetitions"`
	Remediation string  `json:"remediation"`
}

// CalendarDay aggregates all reviews of one calendar date.
type CalendarDay struct {
	Date        progress.Date `json:"date"`
	Attempts    int           `json:"attempts"`
	MeanQuality float64       `json:"mean_quality"`
}

// Summarize aggregates the learner's records as of now. Records belonging
// to other learners are ignored.
func Summarize(records []progress.Record, learnerID string, now time.Time) Summary {
	today := progress.DateOf(now)
	mine := make([]progress.Record, 0, len(records))
	for _, r := range records {
		if r.LearnerID == learnerID {
			mine = append(mine, r)
		}
	}

	s := Summary{
		LearnerID:       learnerID,
		Retention7Day:   Retention(mine, today, ShortWindowDays),
		Retention14Day:  Retention(mine, today, LongWindowDays),
		TotalItems:      len(mine),
		EfficiencyScore: Efficiency(mine),
		WeakItems:       WeakItems(mine),
		CalendarData:    Calendar(mine),
	}
	for _, r := range mine {
		if r.MasteryLevel.Mastered() {
			s.ItemsMastered++
		}
		if r.IsDue(today) {
			s.DueToday++
		}
	}
	return s
}

// Retention returns the percentage of successful reviews (quality >= 3)
// dated at most days calendar days before today. With no attempts in the
// window it returns 100.
func Retention(records []progress.Record, today progress.Date, days int) int {
	start := today.AddDays(-days)
	attempts, successes := 0, 0
	for _, r := range records {
		for _, h := range r.History {
			if h.Date.Before(start) || today.Before(h.Date) {
				continue
			}
			attempts++
			if h.Quality >= 3 {
				successes++
			}
		}
	}
	if attempts == 0 {
		return 100
	}
	return int(math.Round(float64(successes) / float64(attempts) * 100))
}

// Efficiency maps mean ease onto 0-100. No records means the default ease.
func Efficiency(records []progress.Record) int {
	mean := progress.DefaultEase
	if len(records) > 0 {
		sum := 0.0
		for _, r := range records {
			sum += r.Ease
		}
		mean = sum / float64(len(records))
	}
	score := (mean - progress.MinEase) / easeSpan * 100
	return int(math.Round(math.Max(0, math.Min(100, score))))
}

// WeakItems returns up to MaxWeakItems struggling records, weakest first.
func WeakItems(records []progress.Record) []WeakItem {
	var weak []progress.Record
	for _, r := range records {
		if r.Ease < WeakEaseThreshold || (r.Streak < 2 && r.Repetitions > 3) {
			weak = append(weak, r)
		}
	}
	sort.SliceStable(weak, func(i, j int) bool { return weak[i].Ease < weak[j].Ease })
	if len(weak) > MaxWeakItems {
		weak = weak[:MaxWeakItems]
	}

	out := make([]WeakItem, 0, len(weak))
	for _, r := range weak {
		out = append(out, WeakItem{
			ItemID:      r.ItemID,
			Ease:        r.Ease,
			Streak:      r.Streak,
			Repetitions: r.Repetitions,
			Remediation: Remediation(r.ItemID),
		})
	}
	return out
}

// Calendar folds every history entry into per-date attempt counts and mean
// quality, ordered by date.
func Calendar(records []progress.Record) []CalendarDay {
	type acc struct{ attempts, total int }
	days := map[progress.Date]*acc{}
	for _, r := range records {
		for _, h := range r.History {
			a, ok := days[h.Date]
			if !ok {
				a = &acc{}
				days[h.Date] = a
			}
			a.attempts++
			a.total += h.Quality
		}
	}

	out := make([]CalendarDay, 0, len(days))
	for d, a := range days {
		out = append(out, CalendarDay{
			Date:        d,
			Attempts:    a.attempts,
			MeanQuality: float64(a.total) / float64(a.attempts),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Remediation classifies an item id by shape into a practice suggestion:
// any digit means numeracy, a '#' prefix a colour, and an id longer than
// three characters a grid exercise.
func Remediation(itemID string) string {
	switch {
	case strings.ContainsFunc(itemID, unicode.IsDigit):
		return RemediationNumeracy
	case strings.HasPrefix(itemID, "#"):
		return RemediationVisual
	case utf8.RuneCountInString(itemID) > longTokenRunes:
		return RemediationGrid
	default:
		return RemediationFlashCards
	}
}
