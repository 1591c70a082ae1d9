package remote

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/hyperengineering/sprout/progress"
)

// Runs only against a disposable database named by SPROUT_TEST_DATABASE_URL.
func TestPostgres_RoundTrip(t *testing.T) {
	dsn := os.Getenv("SPROUT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SPROUT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pg, err := OpenPostgres(ctx, dsn, "test")
	if err != nil {
		t.Fatalf("OpenPostgres() error = %v", err)
	}
	defer pg.Close()

	learner := "pg-test-" + time.Now().Format("150405.000000")
	rec := sampleRecord(learner, "7x8")
	if err := pg.UpsertProgress(ctx, []progress.Record{rec}); err != nil {
		t.Fatalf("UpsertProgress() error = %v", err)
	}
	rec2 := rec.Clone()
	rec2.Streak = 9
	rec2.UpdatedAt = rec.UpdatedAt.Add(time.Second)
	if err := pg.UpsertProgress(ctx, []progress.Record{rec2}); err != nil {
		t.Fatalf("second UpsertProgress() error = %v", err)
	}

	got, err := pg.SelectProgress(ctx, learner, time.Time{})
	if err != nil {
		t.Fatalf("SelectProgress() error = %v", err)
	}
	if len(got) != 1 || got[0].Streak != 9 {
		t.Fatalf("SelectProgress() = %+v, want one row with streak 9", got)
	}

	got, err = pg.SelectProgress(ctx, learner, rec2.UpdatedAt)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("SelectProgress(since latest) = %d rows, want 0", len(got))
	}

	if err := pg.Deliver(ctx, "session_completed", []byte(`{"learner_id":"`+learner+`"}`)); err != nil {
		t.Errorf("Deliver() error = %v", err)
	}
}
