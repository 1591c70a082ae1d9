// Package sm2 implements the SuperMemo-2 variant used to schedule item reviews.
//
// Advance is a pure function: it performs no I/O and never fails. The caller
// supplies the clock so schedules are reproducible in tests.
package sm2

import (
	"math"
	"time"

	"github.com/hyperengineering/sprout/progress"
)

// Quality grades a single recall attempt on the 0-5 SM-2 scale.
type Quality int

const (
	QualityBlackout          Quality = 0 // no recall at all
	QualityIncorrect         Quality = 1 // wrong, recognised the answer afterwards
	QualityIncorrectFamiliar Quality = 2 // wrong, answer felt familiar
	QualityCorrectDifficult  Quality = 3 // right with serious effort
	QualityCorrectHesitation Quality = 4 // right after some hesitation
	QualityPerfect           Quality = 5 // right and immediate
)

// PassThreshold is the lowest quality counted as a successful review.
const PassThreshold = QualityCorrectDifficult

// Mastery thresholds in days.
const (
	RapidIntervalDays  = 21
	FluentIntervalDays = 7
	FluentRepetitions  = 3
)

// Clamp limits q to the valid 0-5 range.
func (q Quality) Clamp() Quality {
	if q < QualityBlackout {
		return QualityBlackout
	}
	if q > QualityPerfect {
		return QualityPerfect
	}
	return q
}

// Passed reports whether q counts as a successful review.
func (q Quality) Passed() bool { return q.Clamp() >= PassThreshold }

// Advance applies one graded review to rec and returns the updated record.
// rec itself is left untouched.
func Advance(rec progress.Record, q Quality, now time.Time) progress.Record {
	q = q.Clamp()
	today := progress.DateOf(now)

	next := rec.Clone()
	switch {
	case next.Ease == 0:
		next.Ease = progress.DefaultEase
	case next.Ease < progress.MinEase:
		next.Ease = progress.MinEase
	}
	next.History = append(next.History, progress.HistoryEntry{Date: today, Quality: int(q)})
	next.LastReviewDate = today

	if q >= PassThreshold {
		switch next.Repetitions {
		case 0:
			next.IntervalDays = 1
		case 1:
			next.IntervalDays = 6
		default:
			next.IntervalDays = int(math.Ceil(float64(next.IntervalDays) * next.Ease))
		}
		next.Repetitions++
		next.Streak++
	} else {
		next.IntervalDays = 1
		next.Repetitions = 0
		next.Streak = 0
	}

	next.Ease = UpdateEase(next.Ease, q)
	next.DueDate = today.AddDays(next.IntervalDays)
	next.MasteryLevel = Classify(next.IntervalDays, next.Repetitions)
	next.UpdatedAt = now
	return next
}

// UpdateEase returns the SM-2 ease after a review of quality q, floored at
// progress.MinEase.
func UpdateEase(ease float64, q Quality) float64 {
	miss := float64(QualityPerfect - q.Clamp())
	ease += 0.1 - miss*(0.08+miss*0.02)
	if ease < progress.MinEase {
		return progress.MinEase
	}
	return ease
}

// Classify derives the mastery level from a post-review interval and
// repetition count.
func Classify(intervalDays, repetitions int) progress.Mastery {
	switch {
	case intervalDays > RapidIntervalDays:
		return progress.MasteryRapid
	case repetitions >= FluentRepetitions && intervalDays > FluentIntervalDays:
		return progress.MasteryFluent
	default:
		return progress.MasteryNovice
	}
}
