package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hyperengineering/sprout"
	"github.com/hyperengineering/sprout/progress"
	"github.com/hyperengineering/sprout/sm2"
)

func sampleRecord(learner, item string) progress.Record {
	return sm2.Advance(progress.New(learner, item), 4, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
}

func TestHTTP_UpsertProgress(t *testing.T) {
	var gotRows []sprout.ProgressRow
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/rest/v1/progress" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("on_conflict"); got != "learner_id,item_id" {
			t.Errorf("on_conflict = %q", got)
		}
		if got := r.Header.Get("Prefer"); got != "resolution=merge-duplicates,return=minimal" {
			t.Errorf("Prefer = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("apikey"); got != "test-key" {
			t.Errorf("apikey = %q", got)
		}
		if got := r.Header.Get(SourceIDHeader); got != "tablet-1" {
			t.Errorf("%s = %q", SourceIDHeader, got)
		}
		if _, err := uuid.Parse(r.Header.Get(PushIDHeader)); err != nil {
			t.Errorf("%s is not a UUID: %v", PushIDHeader, err)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotRows); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewHTTP(server.URL+"/", "test-key", "tablet-1")
	recs := []progress.Record{sampleRecord("maya", "7x8"), sampleRecord("maya", "blue")}
	if err := client.UpsertProgress(context.Background(), recs); err != nil {
		t.Fatalf("UpsertProgress() error = %v", err)
	}

	if len(gotRows) != 2 {
		t.Fatalf("server received %d rows, want 2", len(gotRows))
	}
	if gotRows[0].ItemID != "7x8" || gotRows[0].IntervalDays != 1 {
		t.Errorf("row[0] = %+v", gotRows[0])
	}
	if !gotRows[0].UpdatedAt.Equal(recs[0].UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", gotRows[0].UpdatedAt.Time, recs[0].UpdatedAt)
	}
}

func TestHTTP_UpsertProgress_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"message":"overloaded"}`))
	}))
	defer server.Close()

	client := NewHTTP(server.URL, "test-key", "")
	err := client.UpsertProgress(context.Background(), []progress.Record{sampleRecord("maya", "a")})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var syncErr *sprout.SyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("expected SyncError, got %T", err)
	}
	if syncErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", syncErr.StatusCode)
	}
	if syncErr.Operation != "upsert_progress" {
		t.Errorf("Operation = %q, want upsert_progress", syncErr.Operation)
	}
	if !errors.Is(err, sprout.ErrSyncFailed) {
		t.Error("errors.Is(err, ErrSyncFailed) = false")
	}
}

func TestHTTP_SelectProgress(t *testing.T) {
	since := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	rec := sampleRecord("maya", "7x8")
	row, err := sprout.RowFromRecord(rec)
	if err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("learner_id"); got != "eq.maya" {
			t.Errorf("learner_id = %q", got)
		}
		if got := q.Get("updated_at"); got != "gt.2026-03-09T00:00:00Z" {
			t.Errorf("updated_at = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]sprout.ProgressRow{row})
	}))
	defer server.Close()

	client := NewHTTP(server.URL, "test-key", "")
	got, err := client.SelectProgress(context.Background(), "maya", since)
	if err != nil {
		t.Fatalf("SelectProgress() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if got[0].Ease != rec.Ease || got[0].DueDate != rec.DueDate || len(got[0].History) != 1 {
		t.Errorf("record = %+v, want %+v", got[0], rec)
	}
}

func TestHTTP_SelectProgress_NoSince(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("updated_at") {
			t.Errorf("unexpected updated_at filter %q", r.URL.Query().Get("updated_at"))
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	got, err := NewHTTP(server.URL, "k", "").SelectProgress(context.Background(), "maya", time.Time{})
	if err != nil {
		t.Fatalf("SelectProgress() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d records, want 0", len(got))
	}
}

func TestHTTP_SelectProgress_BadBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	_, err := NewHTTP(server.URL, "k", "").SelectProgress(context.Background(), "maya", time.Time{})
	var syncErr *sprout.SyncError
	if !errors.As(err, &syncErr) || syncErr.Operation != "select_progress" {
		t.Fatalf("error = %v, want select_progress SyncError", err)
	}
}

func TestHTTP_Deliver(t *testing.T) {
	var got eventRow
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/sync_events" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	payload := []byte(`{"learner_id":"maya","activities":["a","b"]}`)
	if err := NewHTTP(server.URL, "k", "tablet-1").Deliver(context.Background(), "session_completed", payload); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if got.Kind != "session_completed" || got.SourceID != "tablet-1" {
		t.Errorf("event = %+v", got)
	}
	if string(got.Payload) != string(payload) {
		t.Errorf("payload = %s, want %s", got.Payload, payload)
	}
}

func TestHTTP_Ping_NetworkError(t *testing.T) {
	err := NewHTTP("http://localhost:1", "k", "").Ping(context.Background())
	var syncErr *sprout.SyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("expected SyncError, got %T", err)
	}
	if syncErr.Operation != "ping" {
		t.Errorf("Operation = %q, want ping", syncErr.Operation)
	}
}
