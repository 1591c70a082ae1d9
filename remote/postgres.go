package remote

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/hyperengineering/sprout"
	"github.com/hyperengineering/sprout/progress"
)

//go:embed migrations/*.sql
var pgMigrations embed.FS

const pgUpsertSQL = `
	INSERT INTO progress (learner_id, item_id, interval_days, ease, repetitions, due_date,
		last_review_date, streak, mastery_level, history, updated_at)
	VALUES (:learner_id, :item_id, :interval_days, :ease, :repetitions, :due_date,
		:last_review_date, :streak, :mastery_level, :history, :updated_at)
	ON CONFLICT (learner_id, item_id) DO UPDATE SET
		interval_days = EXCLUDED.interval_days,
		ease = EXCLUDED.ease,
		repetitions = EXCLUDED.repetitions,
		due_date = EXCLUDED.due_date,
		last_review_date = EXCLUDED.last_review_date,
		streak = EXCLUDED.streak,
		mastery_level = EXCLUDED.mastery_level,
		history = EXCLUDED.history,
		updated_at = EXCLUDED.updated_at`

// Postgres writes directly to a Postgres database through lib/pq.
type Postgres struct {
	db       *sqlx.DB
	sourceID string
}

// OpenPostgres connects to dsn and applies the remote schema.
func OpenPostgres(ctx context.Context, dsn, sourceID string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, &sprout.SyncError{Operation: "connect", Err: err}
	}
	p := &Postgres{db: db, sourceID: sourceID}
	if err := p.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(pgMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, p.db.DB, fsys)
	if err != nil {
		return fmt.Errorf("postgres: goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("postgres: run migrations: %w", err)
	}
	return nil
}

// UpsertProgress implements sprout.Remote.
func (p *Postgres) UpsertProgress(ctx context.Context, records []progress.Record) error {
	rows, err := sprout.RowsFromRecords(records)
	if err != nil {
		return &sprout.SyncError{Operation: "upsert_progress", Err: err}
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return &sprout.SyncError{Operation: "upsert_progress", Err: err}
	}
	defer tx.Rollback()

	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx, pgUpsertSQL, row); err != nil {
			return &sprout.SyncError{Operation: "upsert_progress", Err: fmt.Errorf("%s/%s: %w", row.LearnerID, row.ItemID, err)}
		}
	}
	if err := tx.Commit(); err != nil {
		return &sprout.SyncError{Operation: "upsert_progress", Err: err}
	}
	return nil
}

// SelectProgress implements sprout.Remote.
func (p *Postgres) SelectProgress(ctx context.Context, learnerID string, since time.Time) ([]progress.Record, error) {
	query := `SELECT learner_id, item_id, interval_days, ease, repetitions, due_date,
		last_review_date, streak, mastery_level, history, updated_at
		FROM progress WHERE learner_id = $1`
	args := []any{learnerID}
	if !since.IsZero() {
		query += ` AND updated_at > $2`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY item_id`

	var rows []sprout.ProgressRow
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, &sprout.SyncError{Operation: "select_progress", Err: err}
	}
	records, err := sprout.RecordsFromRows(rows)
	if err != nil {
		return nil, &sprout.SyncError{Operation: "select_progress", Err: err}
	}
	return records, nil
}

// Deliver implements sprout.Remote.
func (p *Postgres) Deliver(ctx context.Context, kind string, payload []byte) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO sync_events (kind, payload, source_id) VALUES ($1, $2, $3)`,
		kind, string(payload), p.sourceID)
	if err != nil {
		return &sprout.SyncError{Operation: "deliver", Err: err}
	}
	return nil
}

// Ping implements sprout.Remote.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return &sprout.SyncError{Operation: "ping", Err: err}
	}
	return nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}
