// Package remote provides the backends the sprout outbox drains to.
package remote

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hyperengineering/sprout"
	"github.com/hyperengineering/sprout/progress"
)

// Delivery is one pass-through job received by a Memory remote.
type Delivery struct {
	Kind    string
	Payload []byte
}

// Memory is an in-process Remote. It keeps one row per key like the real
// backends and counts calls so tests can assert idempotency.
type Memory struct {
	mu         sync.Mutex
	rows       map[progress.Key]progress.Record
	deliveries []Delivery
	upserts    int
	failNext   int
	failErr    error
	offline    bool

	// UpsertFn, when set, runs before every upsert; a non-nil error fails it.
	UpsertFn func(records []progress.Record) error
}

// NewMemory creates an empty in-memory remote.
func NewMemory() *Memory {
	return &Memory{rows: make(map[progress.Key]progress.Record)}
}

// FailNext makes the next n upsert or deliver calls fail with err.
func (m *Memory) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
	m.failErr = err
}

// SetOffline makes every call, including Ping, fail.
func (m *Memory) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

func (m *Memory) fail(op string) error {
	if m.offline {
		return &sprout.SyncError{Operation: op, Err: sprout.ErrOffline}
	}
	if m.failNext > 0 {
		m.failNext--
		return &sprout.SyncError{Operation: op, StatusCode: 503, Err: m.failErr}
	}
	return nil
}

// UpsertProgress implements sprout.Remote.
func (m *Memory) UpsertProgress(ctx context.Context, records []progress.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("upsert_progress"); err != nil {
		return err
	}
	if m.UpsertFn != nil {
		if err := m.UpsertFn(records); err != nil {
			return &sprout.SyncError{Operation: "upsert_progress", Err: err}
		}
	}
	m.upserts++
	for _, r := range records {
		m.rows[r.Key()] = r.Clone()
	}
	return nil
}

// SelectProgress implements sprout.Remote.
func (m *Memory) SelectProgress(ctx context.Context, learnerID string, since time.Time) ([]progress.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.offline {
		return nil, &sprout.SyncError{Operation: "select_progress", Err: sprout.ErrOffline}
	}
	var out []progress.Record
	for k, r := range m.rows {
		if k.LearnerID != learnerID {
			continue
		}
		if !since.IsZero() && !r.UpdatedAt.After(since) {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// Deliver implements sprout.Remote.
func (m *Memory) Deliver(ctx context.Context, kind string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("deliver"); err != nil {
		return err
	}
	m.deliveries = append(m.deliveries, Delivery{Kind: kind, Payload: append([]byte(nil), payload...)})
	return nil
}

// Ping implements sprout.Remote.
func (m *Memory) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return &sprout.SyncError{Operation: "ping", Err: sprout.ErrOffline}
	}
	return nil
}

// Put seeds a record as if another device had pushed it.
func (m *Memory) Put(r progress.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.Key()] = r.Clone()
}

// Get returns the stored row for key.
func (m *Memory) Get(key progress.Key) (progress.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[key]
	return r.Clone(), ok
}

// Len returns the number of stored rows.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// Upserts returns how many upsert calls succeeded.
func (m *Memory) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// Deliveries returns the pass-through jobs received so far.
func (m *Memory) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.deliveries...)
}
