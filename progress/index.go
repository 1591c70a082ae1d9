package progress

import "sort"

// Index is an in-memory view of records keyed by (learner, item). It is the
// read model handed to the plan generator and analytics.
type Index struct {
	byKey map[Key]Record
}

// NewIndex builds an index from records. Later records replace earlier ones
// with the same key.
func NewIndex(records []Record) Index {
	idx := Index{byKey: make(map[Key]Record, len(records))}
	for _, r := range records {
		idx.byKey[r.Key()] = r
	}
	return idx
}

// Len returns the number of records in the index.
func (idx Index) Len() int { return len(idx.byKey) }

// Get returns the record for key.
func (idx Index) Get(key Key) (Record, bool) {
	r, ok := idx.byKey[key]
	return r, ok
}

// Learner returns the learner's records ordered by item id.
func (idx Index) Learner(learnerID string) []Record {
	var out []Record
	for k, r := range idx.byKey {
		if k.LearnerID == learnerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// Due returns the learner's records due on or before today, most overdue
// first, then lowest ease.
func (idx Index) Due(learnerID string, today Date) []Record {
	var due []Record
	for _, r := range idx.Learner(learnerID) {
		if r.IsDue(today) {
			due = append(due, r)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].DueDate != due[j].DueDate {
			return due[i].DueDate < due[j].DueDate
		}
		return due[i].Ease < due[j].Ease
	})
	return due
}
