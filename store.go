package sprout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/hyperengineering/sprout/internal/store/migrations"
	"github.com/hyperengineering/sprout/progress"
)

const schemaVersion = "1"

// Metadata keys.
const (
	metaSchemaVersion = "schema_version"
	metaWatermark     = "sync_watermark"
	metaLastSync      = "last_sync"
)

const upsertProgressSQL = `
	INSERT INTO progress (learner_id, item_id, interval_days, ease, repetitions, due_date,
		last_review_date, streak, mastery_level, history, updated_at)
	VALUES (:learner_id, :item_id, :interval_days, :ease, :repetitions, :due_date,
		:last_review_date, :streak, :mastery_level, :history, :updated_at)
	ON CONFLICT (learner_id, item_id) DO UPDATE SET
		interval_days = excluded.interval_days,
		ease = excluded.ease,
		repetitions = excluded.repetitions,
		due_date = excluded.due_date,
		last_review_date = excluded.last_review_date,
		streak = excluded.streak,
		mastery_level = excluded.mastery_level,
		history = excluded.history,
		updated_at = excluded.updated_at`

const progressColumns = `learner_id, item_id, interval_days, ease, repetitions, due_date,
	last_review_date, streak, mastery_level, history, updated_at`

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Store is the durable local progress database. It owns the progress
// table, the sync_queue outbox table and the metadata table.
type Store struct {
	db     *sqlx.DB
	mu     sync.RWMutex
	closed bool
	path   string
	now    func() time.Time
}

// NewStore opens or creates a local store at path.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; a single connection also keeps pragmas consistent.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: set goose dialect: %w", err)
	}
	if err := goose.Up(s.db.DB, "."); err != nil {
		return fmt.Errorf("store: run migrations: %w", err)
	}

	_, err := s.db.Exec(`INSERT OR IGNORE INTO metadata (key, value) VALUES (?, ?)`,
		metaSchemaVersion, schemaVersion)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Get returns the record for key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key progress.Key) (progress.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return progress.Record{}, ErrStoreClosed
	}

	var row ProgressRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+progressColumns+` FROM progress WHERE learner_id = ? AND item_id = ?`,
		key.LearnerID, key.ItemID)
	if errors.Is(err, sql.ErrNoRows) {
		return progress.Record{}, ErrNotFound
	}
	if err != nil {
		return progress.Record{}, fmt.Errorf("store: get %s: %w", key, err)
	}
	return row.Record()
}

// QueryByLearner returns every record of a learner ordered by item id.
func (s *Store) QueryByLearner(ctx context.Context, learnerID string) ([]progress.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var rows []ProgressRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+progressColumns+` FROM progress WHERE learner_id = ? ORDER BY item_id`,
		learnerID); err != nil {
		return nil, fmt.Errorf("store: query learner %q: %w", learnerID, err)
	}
	return RecordsFromRows(rows)
}

// Learners returns distinct learner ids, most recently updated first.
func (s *Store) Learners(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, `
		SELECT learner_id FROM progress
		GROUP BY learner_id
		ORDER BY MAX(updated_at) DESC, learner_id`); err != nil {
		return nil, fmt.Errorf("store: list learners: %w", err)
	}
	return ids, nil
}

// BulkPut upserts records without touching the outbox. Pull uses it so
// remote data never echoes back as new jobs.
func (s *Store) BulkPut(ctx context.Context, records []progress.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows, err := RowsFromRecords(records)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	return withBusyRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := upsertRows(ctx, tx, rows); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// EnqueueAndPersist upserts records and appends one progress job carrying
// them, in a single transaction. It returns the new job id.
func (s *Store) EnqueueAndPersist(ctx context.Context, records []progress.Record) (int64, error) {
	if len(records) == 0 {
		return 0, ErrEmptyResults
	}
	rows, err := RowsFromRecords(records)
	if err != nil {
		return 0, fmt.Errorf("store: %w", err)
	}
	payload, err := encodeProgressPayload(records)
	if err != nil {
		return 0, fmt.Errorf("store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var id int64
	err = withBusyRetry(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := upsertRows(ctx, tx, rows); err != nil {
			return err
		}
		id, err = insertJob(ctx, tx, JobKindProgress, payload, s.now())
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	return id, err
}

// EnqueueJob appends a job of any kind to the outbox.
func (s *Store) EnqueueJob(ctx context.Context, kind JobKind, payload []byte) (int64, error) {
	if kind == "" {
		return 0, fmt.Errorf("store: enqueue job: empty kind")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var id int64
	err := withBusyRetry(ctx, func(ctx context.Context) error {
		var err error
		id, err = insertJob(ctx, s.db, kind, payload, s.now())
		return err
	})
	return id, err
}

// ClaimPending moves every pending job to in_flight and returns them in
// id order.
func (s *Store) ClaimPending(ctx context.Context) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var jobs []Job
	err := withBusyRetry(ctx, func(ctx context.Context) error {
		jobs = nil
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := tx.SelectContext(ctx, &jobs, `
			SELECT id, kind, payload, status, attempts, last_error, created_at
			FROM sync_queue WHERE status = ? ORDER BY id`, JobPending); err != nil {
			return fmt.Errorf("store: select pending jobs: %w", err)
		}
		if len(jobs) == 0 {
			return nil
		}

		ids := make([]int64, len(jobs))
		for i := range jobs {
			ids[i] = jobs[i].ID
			jobs[i].Status = JobInFlight
		}
		query, args, err := sqlx.In(`UPDATE sync_queue SET status = ? WHERE id IN (?)`, JobInFlight, ids)
		if err != nil {
			return fmt.Errorf("store: build claim: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("store: claim jobs: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// DeleteJobs removes acknowledged jobs.
func (s *Store) DeleteJobs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM sync_queue WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("store: build delete: %w", err)
	}
	return s.execWrite(ctx, "delete jobs", query, args...)
}

// RevertJobs returns jobs to pending, counting the failed attempt.
func (s *Store) RevertJobs(ctx context.Context, ids []int64, cause error) error {
	if len(ids) == 0 {
		return nil
	}
	msg := ""
	if cause != nil {
		msg = truncateForLog(cause.Error(), 500)
	}
	query, args, err := sqlx.In(`
		UPDATE sync_queue SET status = ?, attempts = attempts + 1, last_error = ?
		WHERE id IN (?)`, JobPending, msg, ids)
	if err != nil {
		return fmt.Errorf("store: build revert: %w", err)
	}
	return s.execWrite(ctx, "revert jobs", query, args...)
}

// RequeueInFlight returns jobs stranded in_flight by a process that died
// mid-drain to pending. It reports how many were requeued.
func (s *Store) RequeueInFlight(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var n int64
	err := withBusyRetry(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE sync_queue SET status = ? WHERE status = ?`, JobPending, JobInFlight)
		if err != nil {
			return fmt.Errorf("store: requeue in-flight jobs: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

// Jobs lists every outbox job in id order.
func (s *Store) Jobs(ctx context.Context) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var jobs []Job
	if err := s.db.SelectContext(ctx, &jobs, `
		SELECT id, kind, payload, status, attempts, last_error, created_at
		FROM sync_queue ORDER BY id`); err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	return jobs, nil
}

// GetMetadata returns a metadata value, or ErrNotFound.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM metadata WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: get metadata %q: %w", key, err)
	}
	return value, nil
}

// SetMetadata stores a metadata value.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	return s.execWrite(ctx, "set metadata",
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
}

// Watermark returns the instant of the last successful pull. The zero
// time means no pull has completed.
func (s *Store) Watermark(ctx context.Context) (time.Time, error) {
	return s.getTime(ctx, metaWatermark)
}

// SetWatermark records the instant a successful pull started.
func (s *Store) SetWatermark(ctx context.Context, t time.Time) error {
	return s.setTime(ctx, metaWatermark, t)
}

// LastSync returns when a sync last completed.
func (s *Store) LastSync(ctx context.Context) (time.Time, error) {
	return s.getTime(ctx, metaLastSync)
}

// SetLastSync records when a sync completed.
func (s *Store) SetLastSync(ctx context.Context, t time.Time) error {
	return s.setTime(ctx, metaLastSync, t)
}

func (s *Store) getTime(ctx context.Context, key string) (time.Time, error) {
	v, err := s.GetMetadata(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	var ts Timestamp
	if err := ts.Scan(v); err != nil {
		return time.Time{}, fmt.Errorf("store: metadata %q: %w", key, err)
	}
	return ts.Time, nil
}

func (s *Store) setTime(ctx context.Context, key string, t time.Time) error {
	v, _ := NewTimestamp(t).Value()
	return s.SetMetadata(ctx, key, v.(string))
}

// Stats returns store statistics.
func (s *Store) Stats(ctx context.Context) (*StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var counts struct {
		Records  int `db:"records"`
		Learners int `db:"learners"`
	}
	if err := s.db.GetContext(ctx, &counts,
		`SELECT COUNT(*) AS records, COUNT(DISTINCT learner_id) AS learners FROM progress`); err != nil {
		return nil, fmt.Errorf("store: count progress: %w", err)
	}

	var byStatus []struct {
		Status JobStatus `db:"status"`
		N      int       `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &byStatus,
		`SELECT status, COUNT(*) AS n FROM sync_queue GROUP BY status`); err != nil {
		return nil, fmt.Errorf("store: count jobs: %w", err)
	}

	stats := &StoreStats{
		RecordCount:   counts.Records,
		LearnerCount:  counts.Learners,
		SchemaVersion: schemaVersion,
	}
	for _, b := range byStatus {
		switch b.Status {
		case JobPending:
			stats.PendingJobs = b.N
		case JobInFlight:
			stats.InFlightJobs = b.N
		}
	}

	var lastSync Timestamp
	if err := s.db.GetContext(ctx, &lastSync,
		`SELECT value FROM metadata WHERE key = ?`, metaLastSync); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: read last sync: %w", err)
	}
	stats.LastSync = lastSync.Time
	return stats, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

func (s *Store) execWrite(ctx context.Context, op, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	return withBusyRetry(ctx, func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("store: %s: %w", op, err)
		}
		return nil
	})
}

func upsertRows(ctx context.Context, tx *sqlx.Tx, rows []ProgressRow) error {
	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx, upsertProgressSQL, row); err != nil {
			return fmt.Errorf("store: upsert %s/%s: %w", row.LearnerID, row.ItemID, err)
		}
	}
	return nil
}

func insertJob(ctx context.Context, ex sqlx.ExecerContext, kind JobKind, payload []byte, now time.Time) (int64, error) {
	res, err := ex.ExecContext(ctx, `
		INSERT INTO sync_queue (kind, payload, status, created_at)
		VALUES (?, ?, ?, ?)`, kind, string(payload), JobPending, NewTimestamp(now))
	if err != nil {
		return 0, fmt.Errorf("store: enqueue %s: %w", kind, err)
	}
	return res.LastInsertId()
}
