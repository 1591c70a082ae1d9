package sprout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/sprout/progress"
)

// fakeRemote is a Remote whose behaviour is set per test via function fields.
type fakeRemote struct {
	mu        sync.Mutex
	rows      map[progress.Key]progress.Record
	upserts   [][]progress.Record
	delivered []fakeDelivery

	upsertFn  func(ctx context.Context, records []progress.Record) error
	deliverFn func(ctx context.Context, kind string, payload []byte) error
	selectFn  func(ctx context.Context, learnerID string, since time.Time) ([]progress.Record, error)
	pingErr   error
}

type fakeDelivery struct {
	kind    string
	payload string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{rows: make(map[progress.Key]progress.Record)}
}

func (f *fakeRemote) UpsertProgress(ctx context.Context, records []progress.Record) error {
	if f.upsertFn != nil {
		if err := f.upsertFn(ctx, records); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, records)
	for _, r := range records {
		f.rows[r.Key()] = r
	}
	return nil
}

func (f *fakeRemote) SelectProgress(ctx context.Context, learnerID string, since time.Time) ([]progress.Record, error) {
	if f.selectFn != nil {
		return f.selectFn(ctx, learnerID, since)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []progress.Record
	for k, r := range f.rows {
		if k.LearnerID == learnerID && (since.IsZero() || r.UpdatedAt.After(since)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRemote) Deliver(ctx context.Context, kind string, payload []byte) error {
	if f.deliverFn != nil {
		if err := f.deliverFn(ctx, kind, payload); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, fakeDelivery{kind: kind, payload: string(payload)})
	return nil
}

func (f *fakeRemote) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeRemote) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func newTestOutbox(t *testing.T, r Remote, opts ...OutboxOption) (*Outbox, *Store) {
	t.Helper()
	s := newTestStore(t)
	o, err := NewOutbox(context.Background(), s, r, opts...)
	if err != nil {
		t.Fatalf("NewOutbox: %v", err)
	}
	t.Cleanup(o.Close)
	return o, s
}

func pendingJobs(t *testing.T, s *Store) []Job {
	t.Helper()
	jobs, err := s.Jobs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return jobs
}

func TestOutbox_DrainPushesAndDeletes(t *testing.T) {
	remote := newFakeRemote()
	o, s := newTestOutbox(t, remote)
	ctx := context.Background()

	s.EnqueueAndPersist(ctx, []progress.Record{reviewed("maya", "a", 5), reviewed("maya", "b", 4)})

	res, err := o.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if res.Claimed != 1 || res.Pushed != 2 || res.Completed != 1 || res.Reverted != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(remote.rows) != 2 {
		t.Errorf("remote rows = %d, want 2", len(remote.rows))
	}
	if jobs := pendingJobs(t, s); len(jobs) != 0 {
		t.Errorf("jobs left = %d, want 0", len(jobs))
	}
}

func TestOutbox_DrainEmpty(t *testing.T) {
	remote := newFakeRemote()
	o, _ := newTestOutbox(t, remote)

	res, err := o.Drain(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Claimed != 0 || remote.upsertCount() != 0 {
		t.Errorf("empty drain = %+v, upserts = %d", res, remote.upsertCount())
	}
}

func TestOutbox_DedupKeepsLaterValue(t *testing.T) {
	remote := newFakeRemote()
	o, s := newTestOutbox(t, remote)
	ctx := context.Background()

	first := reviewed("maya", "a", 5)
	later := first.Clone()
	later.Streak = 7
	later.UpdatedAt = first.UpdatedAt.Add(time.Second)

	s.EnqueueAndPersist(ctx, []progress.Record{first, reviewed("maya", "b", 3)})
	s.EnqueueAndPersist(ctx, []progress.Record{later})

	if _, err := o.Drain(ctx); err != nil {
		t.Fatal(err)
	}
	if remote.upsertCount() != 1 {
		t.Fatalf("upserts = %d, want 1", remote.upsertCount())
	}
	batch := remote.upserts[0]
	if len(batch) != 2 {
		t.Fatalf("batch = %d records, want 2", len(batch))
	}
	if batch[0].ItemID != "a" || batch[0].Streak != 7 {
		t.Errorf("batch[0] = %+v, want later value of a", batch[0])
	}
}

func TestOutbox_FailureRevertsJobs(t *testing.T) {
	remote := newFakeRemote()
	fail := true
	remote.upsertFn = func(ctx context.Context, records []progress.Record) error {
		if fail {
			return &SyncError{Operation: "upsert_progress", StatusCode: 503, Err: errors.New("unavailable")}
		}
		return nil
	}
	o, s := newTestOutbox(t, remote)
	ctx := context.Background()

	s.EnqueueAndPersist(ctx, []progress.Record{reviewed("maya", "a", 5)})
	s.EnqueueAndPersist(ctx, []progress.Record{reviewed("maya", "b", 5)})

	res, err := o.Drain(ctx)
	if !errors.Is(err, ErrSyncFailed) {
		t.Fatalf("Drain() error = %v, want ErrSyncFailed", err)
	}
	if res.Reverted != 2 || res.Completed != 0 {
		t.Errorf("result = %+v", res)
	}
	jobs := pendingJobs(t, s)
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	for _, j := range jobs {
		if j.Status != JobPending || j.Attempts != 1 || j.LastError == "" {
			t.Errorf("job after failure = %+v", j)
		}
	}

	fail = false
	res, err = o.Drain(ctx)
	if err != nil {
		t.Fatalf("retry Drain() error = %v", err)
	}
	if res.Completed != 2 || len(remote.rows) != 2 {
		t.Errorf("retry result = %+v, remote rows = %d", res, len(remote.rows))
	}
}

// A push whose acknowledgement is lost is retried; the remote ends with
// one row per key either way.
func TestOutbox_RetryAfterLostAckIsIdempotent(t *testing.T) {
	remote := newFakeRemote()
	calls := 0
	remote.upsertFn = func(ctx context.Context, records []progress.Record) error {
		calls++
		if calls == 1 {
			remote.mu.Lock()
			for _, r := range records {
				remote.rows[r.Key()] = r
			}
			remote.mu.Unlock()
			return &SyncError{Operation: "upsert_progress", Err: errors.New("connection reset")}
		}
		return nil
	}
	o, s := newTestOutbox(t, remote)
	ctx := context.Background()

	rec := reviewed("maya", "a", 5)
	s.EnqueueAndPersist(ctx, []progress.Record{rec})

	if _, err := o.Drain(ctx); err == nil {
		t.Fatal("first drain: expected error")
	}
	if _, err := o.Drain(ctx); err != nil {
		t.Fatalf("second drain: %v", err)
	}

	if len(remote.rows) != 1 {
		t.Errorf("remote rows = %d, want 1", len(remote.rows))
	}
	got := remote.rows[rec.Key()]
	if got.Repetitions != rec.Repetitions || !got.UpdatedAt.Equal(rec.UpdatedAt) {
		t.Errorf("remote row = %+v, want %+v", got, rec)
	}
	if len(pendingJobs(t, s)) != 0 {
		t.Error("jobs left after successful retry")
	}
}

func TestOutbox_ConcurrentDrainCoalesces(t *testing.T) {
	remote := newFakeRemote()
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	remote.upsertFn = func(ctx context.Context, records []progress.Record) error {
		entered <- struct{}{}
		<-release
		return nil
	}
	o, s := newTestOutbox(t, remote)
	ctx := context.Background()

	s.EnqueueAndPersist(ctx, []progress.Record{reviewed("maya", "a", 5)})

	type outcome struct {
		res DrainResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := o.Drain(ctx)
		done <- outcome{res, err}
	}()

	<-entered
	s.EnqueueAndPersist(ctx, []progress.Record{reviewed("maya", "b", 5)})

	res, err := o.Drain(ctx)
	if err != nil {
		t.Fatalf("concurrent Drain() error = %v", err)
	}
	if !res.Coalesced {
		t.Fatalf("concurrent Drain() = %+v, want Coalesced", res)
	}

	close(release)
	out := <-done
	if out.err != nil {
		t.Fatalf("running Drain() error = %v", out.err)
	}
	if out.res.Cycles != 2 || out.res.Completed != 2 {
		t.Errorf("running drain = %+v, want 2 cycles and 2 completed jobs", out.res)
	}
	if remote.upsertCount() != 2 {
		t.Errorf("upserts = %d, want 2", remote.upsertCount())
	}
	if len(pendingJobs(t, s)) != 0 {
		t.Error("jobs left after coalesced drain")
	}
}

func TestOutbox_PassThroughKinds(t *testing.T) {
	remote := newFakeRemote()
	o, s := newTestOutbox(t, remote)
	ctx := context.Background()

	payload := []byte(`{"learner_id":"maya","activities":["x"]}`)
	if _, err := s.EnqueueJob(ctx, JobKindSessionCompleted, payload); err != nil {
		t.Fatal(err)
	}
	s.EnqueueAndPersist(ctx, []progress.Record{reviewed("maya", "a", 5)})

	res, err := o.Drain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Delivered != 1 || res.Pushed != 1 || res.Completed != 2 {
		t.Errorf("result = %+v", res)
	}
	if len(remote.delivered) != 1 {
		t.Fatalf("delivered = %d, want 1", len(remote.delivered))
	}
	d := remote.delivered[0]
	if d.kind != string(JobKindSessionCompleted) || d.payload != string(payload) {
		t.Errorf("delivery = %+v", d)
	}
}

func TestOutbox_EnqueueEventValidation(t *testing.T) {
	o, _ := newTestOutbox(t, nil)
	ctx := context.Background()

	if _, err := o.EnqueueEvent(ctx, JobKindProgress, []byte(`[]`)); err == nil {
		t.Error("progress kind accepted as event")
	}
	if _, err := o.EnqueueEvent(ctx, "custom", []byte(`{not json`)); err == nil {
		t.Error("invalid JSON accepted")
	}
	if _, err := o.EnqueueEvent(ctx, "custom", []byte(`{"ok":true}`)); err != nil {
		t.Errorf("valid event rejected: %v", err)
	}
}

func TestOutbox_MalformedPayloadIsRevertedNotDropped(t *testing.T) {
	remote := newFakeRemote()
	o, s := newTestOutbox(t, remote)
	ctx := context.Background()

	bad, _ := s.EnqueueJob(ctx, JobKindProgress, []byte(`[{"learner_id":"","item_id":"x"}]`))
	s.EnqueueAndPersist(ctx, []progress.Record{reviewed("maya", "a", 5)})

	res, err := o.Drain(ctx)
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if res.Pushed != 1 || res.Completed != 1 || res.Reverted != 1 {
		t.Errorf("result = %+v", res)
	}
	jobs := pendingJobs(t, s)
	if len(jobs) != 1 || jobs[0].ID != bad || jobs[0].Attempts != 1 {
		t.Errorf("remaining jobs = %+v, want the malformed one", jobs)
	}
}

func TestOutbox_Offline(t *testing.T) {
	o, s := newTestOutbox(t, nil)
	ctx := context.Background()

	if _, err := o.Enqueue(ctx, []progress.Record{reviewed("maya", "a", 5)}); err != nil {
		t.Fatalf("Enqueue() offline error = %v", err)
	}
	if _, err := o.Drain(ctx); !errors.Is(err, ErrOffline) {
		t.Errorf("Drain() = %v, want ErrOffline", err)
	}
	if len(pendingJobs(t, s)) != 1 {
		t.Error("offline enqueue did not persist a job")
	}
}

func TestOutbox_RecoversInFlightJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.EnqueueAndPersist(ctx, []progress.Record{reviewed("maya", "a", 5)})
	if _, err := s.ClaimPending(ctx); err != nil {
		t.Fatal(err)
	}

	o, err := NewOutbox(ctx, s, newFakeRemote())
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()

	jobs := pendingJobs(t, s)
	if len(jobs) != 1 || jobs[0].Status != JobPending {
		t.Errorf("jobs after recovery = %+v", jobs)
	}
}

func TestOutbox_RemoteTimeoutReverts(t *testing.T) {
	remote := newFakeRemote()
	remote.upsertFn = func(ctx context.Context, records []progress.Record) error {
		<-ctx.Done()
		return ctx.Err()
	}
	o, s := newTestOutbox(t, remote, WithRemoteTimeout(20*time.Millisecond))
	ctx := context.Background()
	s.EnqueueAndPersist(ctx, []progress.Record{reviewed("maya", "a", 5)})

	_, err := o.Drain(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain() = %v, want deadline exceeded", err)
	}
	jobs := pendingJobs(t, s)
	if len(jobs) != 1 || jobs[0].Status != JobPending {
		t.Errorf("jobs = %+v, want one pending", jobs)
	}
}

func TestOutbox_DrainsOnReconnect(t *testing.T) {
	remote := newFakeRemote()
	sig := NewManualSignal(false)
	o, _ := newTestOutbox(t, remote, WithSignal(sig))
	ctx := context.Background()

	if _, err := o.Enqueue(ctx, []progress.Record{reviewed("maya", "a", 5)}); err != nil {
		t.Fatal(err)
	}
	o.Wait()
	if remote.upsertCount() != 0 {
		t.Fatalf("drained while offline")
	}

	sig.Set(true)
	select {
	case ev := <-o.Events():
		if ev.Err != nil || ev.Result.Completed != 1 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no drain after going online")
	}
}

func TestOutbox_WaitIgnoresConnectivityWatcher(t *testing.T) {
	remote := newFakeRemote()
	o, _ := newTestOutbox(t, remote, WithSignal(NewManualSignal(true)))

	if _, err := o.Enqueue(context.Background(), []progress.Record{reviewed("maya", "a", 5)}); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		o.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() blocked on the connectivity watcher")
	}
	if remote.upsertCount() != 1 {
		t.Errorf("upserts = %d, want 1", remote.upsertCount())
	}
}

func TestOutbox_CloseStopsWatcher(t *testing.T) {
	s := newTestStore(t)
	o, err := NewOutbox(context.Background(), s, newFakeRemote(), WithSignal(NewManualSignal(true)))
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		o.Close()
		o.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not return")
	}
}

func TestOutbox_CoalescedRequestRerunsAfterFailedCycle(t *testing.T) {
	remote := newFakeRemote()
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int
	remote.upsertFn = func(ctx context.Context, records []progress.Record) error {
		calls++
		if calls == 1 {
			close(entered)
			<-release
			return errors.New("connection reset")
		}
		return nil
	}
	o, s := newTestOutbox(t, remote)
	ctx := context.Background()

	s.EnqueueAndPersist(ctx, []progress.Record{reviewed("maya", "a", 5)})

	type outcome struct {
		res DrainResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := o.Drain(ctx)
		done <- outcome{res, err}
	}()

	<-entered
	s.EnqueueAndPersist(ctx, []progress.Record{reviewed("maya", "b", 5)})
	if res, err := o.Drain(ctx); err != nil || !res.Coalesced {
		t.Fatalf("concurrent Drain() = %+v, %v, want Coalesced", res, err)
	}

	close(release)
	out := <-done
	if out.err != nil {
		t.Fatalf("running Drain() error = %v, want the rerun to succeed", out.err)
	}
	if out.res.Cycles != 2 || out.res.Reverted != 1 || out.res.Completed != 2 {
		t.Errorf("running drain = %+v, want 2 cycles, 1 reverted, 2 completed", out.res)
	}
	if len(pendingJobs(t, s)) != 0 {
		t.Error("coalesced request left jobs pending after a failed cycle")
	}
}

func TestOutbox_DrainSettledWaitsForRunningDrain(t *testing.T) {
	remote := newFakeRemote()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	remote.upsertFn = func(ctx context.Context, records []progress.Record) error {
		once.Do(func() {
			close(entered)
			<-release
		})
		return nil
	}
	o, s := newTestOutbox(t, remote)
	ctx := context.Background()

	s.EnqueueAndPersist(ctx, []progress.Record{reviewed("maya", "a", 5)})
	go o.Drain(ctx)
	<-entered

	done := make(chan error, 1)
	go func() {
		_, err := o.DrainSettled(ctx)
		done <- err
	}()
	select {
	case err := <-done:
		t.Fatalf("DrainSettled() returned %v while another drain held the jobs", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("DrainSettled() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("DrainSettled() did not return")
	}
	if remote.upsertCount() != 1 {
		t.Errorf("upserts = %d, want 1", remote.upsertCount())
	}
	if len(pendingJobs(t, s)) != 0 {
		t.Error("jobs pending after DrainSettled")
	}
}

func TestDedupe(t *testing.T) {
	a1 := reviewed("m", "a", 1)
	b := reviewed("m", "b", 1)
	a2 := reviewed("m", "a", 5)
	c := reviewed("n", "a", 1)

	got := dedupe([][]progress.Record{{a1, b}, {a2, c}})
	if len(got) != 3 {
		t.Fatalf("dedupe() = %d records, want 3", len(got))
	}
	if got[0].ItemID != "a" || got[0].History[0].Quality != 5 {
		t.Errorf("got[0] = %+v, want later a", got[0])
	}
	if got[1].ItemID != "b" || got[2].LearnerID != "n" {
		t.Errorf("order = %v", got)
	}
}
