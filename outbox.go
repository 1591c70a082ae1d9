package sprout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hyperengineering/sprout/progress"
)

// DefaultRemoteTimeout bounds every remote call made by a drain or pull.
const DefaultRemoteTimeout = 15 * time.Second

// Remote is the cloud store progress drains to and pulls from.
type Remote interface {
	// UpsertProgress inserts or replaces records keyed on (learner_id, item_id).
	UpsertProgress(ctx context.Context, records []progress.Record) error
	// SelectProgress returns a learner's records with updated_at after since.
	// A zero since selects everything.
	SelectProgress(ctx context.Context, learnerID string, since time.Time) ([]progress.Record, error)
	// Deliver hands a pass-through job to the remote unmodified.
	Deliver(ctx context.Context, kind string, payload []byte) error
	// Ping checks reachability.
	Ping(ctx context.Context) error
}

// Outbox drains queued jobs to a Remote. At most one drain runs at a
// time; a drain requested while one runs is folded into it.
type Outbox struct {
	store   *Store
	remote  Remote
	signal  Signal
	timeout time.Duration
	debug   *DebugLogger
	now     func() time.Time

	mu      sync.Mutex
	running bool
	rerun   bool
	idle    chan struct{} // closed when the running drain returns

	drains    sync.WaitGroup
	events    chan DrainEvent
	stop      chan struct{}
	watchDone chan struct{}
	once      sync.Once
}

// OutboxOption configures an Outbox.
type OutboxOption func(*Outbox)

// WithSignal makes the outbox consult sig before triggering drains and
// drain on every offline to online transition.
func WithSignal(sig Signal) OutboxOption {
	return func(o *Outbox) { o.signal = sig }
}

// WithRemoteTimeout overrides DefaultRemoteTimeout.
func WithRemoteTimeout(d time.Duration) OutboxOption {
	return func(o *Outbox) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithDebugLogger attaches a debug logger.
func WithDebugLogger(l *DebugLogger) OutboxOption {
	return func(o *Outbox) { o.debug = l }
}

// NewOutbox creates an outbox over store. A nil remote means offline
// only: jobs accumulate and Drain returns ErrOffline.
//
// Jobs left in_flight by a previous process are requeued first.
func NewOutbox(ctx context.Context, store *Store, remote Remote, opts ...OutboxOption) (*Outbox, error) {
	o := &Outbox{
		store:   store,
		remote:  remote,
		timeout: DefaultRemoteTimeout,
		now:     time.Now,
		events:  make(chan DrainEvent, 16),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}

	n, err := store.RequeueInFlight(ctx)
	if err != nil {
		return nil, fmt.Errorf("outbox: recover: %w", err)
	}
	if n > 0 {
		o.debug.LogSync("recover", fmt.Sprintf("requeued %d in-flight jobs", n))
	}

	if o.signal != nil && o.remote != nil {
		o.watchDone = make(chan struct{})
		go o.watch()
	}
	return o, nil
}

// Enqueue persists records and their progress job atomically, then
// starts a background drain when online.
func (o *Outbox) Enqueue(ctx context.Context, records []progress.Record) (int64, error) {
	id, err := o.store.EnqueueAndPersist(ctx, records)
	if err != nil {
		return 0, err
	}
	o.Trigger()
	return id, nil
}

// EnqueueEvent appends a pass-through job. payload must be valid JSON.
func (o *Outbox) EnqueueEvent(ctx context.Context, kind JobKind, payload []byte) (int64, error) {
	if kind == JobKindProgress {
		return 0, fmt.Errorf("outbox: %s jobs must go through Enqueue", kind)
	}
	if !json.Valid(payload) {
		return 0, fmt.Errorf("outbox: %s payload is not valid JSON", kind)
	}
	id, err := o.store.EnqueueJob(ctx, kind, payload)
	if err != nil {
		return 0, err
	}
	o.Trigger()
	return id, nil
}

// Online reports whether drains may run now.
func (o *Outbox) Online() bool {
	if o.remote == nil {
		return false
	}
	return o.signal == nil || o.signal.Online()
}

// Trigger starts a drain in the background if online. Completion is
// published on Events.
func (o *Outbox) Trigger() {
	if !o.Online() {
		return
	}
	o.drains.Add(1)
	go func() {
		defer o.drains.Done()
		res, err := o.Drain(context.Background())
		if res.Coalesced {
			return
		}
		o.publish(DrainEvent{Result: res, Err: err, At: o.now()})
	}()
}

// Events delivers the outcome of background drains. Events are dropped
// when nobody reads them.
func (o *Outbox) Events() <-chan DrainEvent {
	return o.events
}

// Wait blocks until every background drain started so far has finished.
// It does not wait for the connectivity watcher.
func (o *Outbox) Wait() {
	o.drains.Wait()
}

// Close stops watching connectivity and waits for background drains.
func (o *Outbox) Close() {
	o.once.Do(func() { close(o.stop) })
	if o.watchDone != nil {
		<-o.watchDone
	}
	o.drains.Wait()
}

// DrainSettled is Drain for callers that need the queue pushed before
// they continue. When another drain is running it waits for that drain
// and then drains again, so jobs claimed by the other drain have been
// pushed or reverted by the time it returns.
func (o *Outbox) DrainSettled(ctx context.Context) (DrainResult, error) {
	for {
		res, err := o.Drain(ctx)
		if err != nil || !res.Coalesced {
			return res, err
		}
		if err := o.waitIdle(ctx); err != nil {
			return DrainResult{}, err
		}
	}
}

func (o *Outbox) waitIdle(ctx context.Context) error {
	o.mu.Lock()
	idle := o.idle
	o.mu.Unlock()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain pushes every pending job. Progress jobs are flattened,
// de-duplicated by key (the later value wins) and sent in one upsert;
// other kinds are delivered one at a time. Succeeded jobs are deleted
// and failed ones return to pending. When cycles were folded in, the
// error is the last cycle's.
func (o *Outbox) Drain(ctx context.Context) (DrainResult, error) {
	if o.remote == nil {
		return DrainResult{}, ErrOffline
	}

	o.mu.Lock()
	if o.running {
		o.rerun = true
		o.mu.Unlock()
		o.debug.LogDrain(DrainResult{Coalesced: true}, nil)
		return DrainResult{Coalesced: true}, nil
	}
	o.running = true
	o.idle = make(chan struct{})
	o.mu.Unlock()

	var total DrainResult
	for {
		res, err := o.drainOnce(ctx)
		total.add(res)

		o.mu.Lock()
		// A request folded into this drain still gets its cycle after a
		// failed one; the failed jobs are back in pending by now.
		again := o.rerun && ctx.Err() == nil
		o.rerun = false
		if !again {
			o.running = false
			close(o.idle)
			o.idle = nil
		}
		o.mu.Unlock()

		if !again {
			o.debug.LogDrain(total, err)
			return total, err
		}
	}
}

func (o *Outbox) drainOnce(ctx context.Context) (DrainResult, error) {
	res := DrainResult{Cycles: 1}

	jobs, err := o.store.ClaimPending(ctx)
	if err != nil {
		return res, err
	}
	res.Claimed = len(jobs)
	if len(jobs) == 0 {
		return res, nil
	}

	// Bookkeeping must land even if the caller's context is gone, or the
	// claimed jobs stay in_flight until the next restart.
	book := context.WithoutCancel(ctx)

	var progressJobs, otherJobs []Job
	for _, j := range jobs {
		if j.Kind == JobKindProgress {
			progressJobs = append(progressJobs, j)
		} else {
			otherJobs = append(otherJobs, j)
		}
	}

	var errs []error
	if len(progressJobs) > 0 {
		if err := o.pushProgress(ctx, book, progressJobs, &res); err != nil {
			errs = append(errs, err)
		}
	}
	for _, j := range otherJobs {
		if err := o.deliver(ctx, book, j, &res); err != nil {
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}

func (o *Outbox) pushProgress(ctx, book context.Context, jobs []Job, res *DrainResult) error {
	var (
		good    []int64
		batches [][]progress.Record
		errs    []error
	)
	for _, j := range jobs {
		recs, err := decodeProgressPayload(j.Payload)
		if err != nil {
			err = fmt.Errorf("outbox: job %d: %w", j.ID, err)
			errs = append(errs, o.revert(book, []int64{j.ID}, err, res), err)
			continue
		}
		good = append(good, j.ID)
		batches = append(batches, recs)
	}
	if len(good) == 0 {
		return errors.Join(errs...)
	}

	merged := dedupe(batches)

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	err := o.remote.UpsertProgress(callCtx, merged)
	cancel()
	if err != nil {
		err = fmt.Errorf("outbox: push %d records: %w", len(merged), err)
		errs = append(errs, o.revert(book, good, err, res), err)
		return errors.Join(errs...)
	}

	res.Pushed += len(merged)
	if err := o.store.DeleteJobs(book, good); err != nil {
		errs = append(errs, err)
	} else {
		res.Completed += len(good)
	}
	return errors.Join(errs...)
}

func (o *Outbox) deliver(ctx, book context.Context, j Job, res *DrainResult) error {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	err := o.remote.Deliver(callCtx, string(j.Kind), j.Payload)
	cancel()
	if err != nil {
		err = fmt.Errorf("outbox: deliver job %d (%s): %w", j.ID, j.Kind, err)
		return errors.Join(o.revert(book, []int64{j.ID}, err, res), err)
	}
	res.Delivered++
	if err := o.store.DeleteJobs(book, []int64{j.ID}); err != nil {
		return err
	}
	res.Completed++
	return nil
}

func (o *Outbox) revert(ctx context.Context, ids []int64, cause error, res *DrainResult) error {
	if err := o.store.RevertJobs(ctx, ids, cause); err != nil {
		return err
	}
	res.Reverted += len(ids)
	return nil
}

func (o *Outbox) publish(ev DrainEvent) {
	select {
	case o.events <- ev:
	default:
	}
}

func (o *Outbox) watch() {
	defer close(o.watchDone)
	transitions := o.signal.Transitions()
	for {
		select {
		case <-o.stop:
			return
		case online, ok := <-transitions:
			if !ok {
				return
			}
			if online {
				o.debug.LogSync("connectivity", "online, draining")
				o.Trigger()
			}
		}
	}
}

// dedupe flattens batches keeping, for each key, the record seen last.
// Keys keep the position of their first appearance.
func dedupe(batches [][]progress.Record) []progress.Record {
	pos := make(map[progress.Key]int)
	var out []progress.Record
	for _, batch := range batches {
		for _, r := range batch {
			if i, ok := pos[r.Key()]; ok {
				out[i] = r
				continue
			}
			pos[r.Key()] = len(out)
			out = append(out, r)
		}
	}
	return out
}

func encodeProgressPayload(records []progress.Record) ([]byte, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode progress payload: %w", err)
	}
	return data, nil
}

func decodeProgressPayload(payload []byte) ([]progress.Record, error) {
	var records []progress.Record
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("decode progress payload: %w", err)
	}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("decode progress payload: %w", err)
		}
	}
	return records, nil
}
