package sprout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hyperengineering/sprout/analytics"
	"github.com/hyperengineering/sprout/internal/store"
	"github.com/hyperengineering/sprout/plan"
	"github.com/hyperengineering/sprout/progress"
	"github.com/hyperengineering/sprout/sm2"
)

// Client is the kernel facade used by games and screens. It owns the
// local store, the outbox and the puller for one device profile.
type Client struct {
	store   *Store
	outbox  *Outbox
	puller  *Puller
	remote  Remote
	signal  Signal
	probe   *ProbeSignal
	planner *plan.Generator
	debug   *DebugLogger
	config  Config
	now     func() time.Time

	submitMu  sync.Mutex
	lastStamp time.Time

	mu       sync.Mutex
	closed   bool
	stopSync chan struct{}
	syncDone chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithRemote sets the remote backend. Without one the client is offline only.
func WithRemote(r Remote) Option {
	return func(c *Client) { c.remote = r }
}

// WithConnectivity supplies the connectivity signal. When a remote is set
// and no signal is given, a ProbeSignal pinging the remote is used.
func WithConnectivity(s Signal) Option {
	return func(c *Client) { c.signal = s }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithPlanner overrides the plan generator.
func WithPlanner(g *plan.Generator) Option {
	return func(c *Client) { c.planner = g }
}

// New creates a sprout client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config:   cfg,
		now:      time.Now,
		stopSync: make(chan struct{}),
		syncDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	debug, err := NewDebugLogger(cfg.Debug, cfg.DebugLogPath)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	c.debug = debug

	st, err := NewStore(cfg.LocalPath)
	if err != nil {
		debug.Close()
		return nil, fmt.Errorf("client: %w", err)
	}
	st.now = c.now
	c.store = st

	if c.planner == nil {
		c.planner, err = plan.NewGenerator(
			plan.WithAgeThreshold(cfg.PlanAgeThreshold),
			plan.WithClock(c.now),
		)
		if err != nil {
			c.closeResources()
			return nil, fmt.Errorf("client: %w", err)
		}
	}

	if c.remote != nil && c.signal == nil {
		c.probe = NewProbeSignal(c.remote, cfg.ProbeInterval, cfg.RemoteTimeout)
		if err := c.probe.Start(); err != nil {
			c.closeResources()
			return nil, fmt.Errorf("client: %w", err)
		}
		c.signal = c.probe
	}

	outboxOpts := []OutboxOption{
		WithRemoteTimeout(cfg.RemoteTimeout),
		WithDebugLogger(debug),
	}
	if c.signal != nil {
		outboxOpts = append(outboxOpts, WithSignal(c.signal))
	}
	c.outbox, err = NewOutbox(context.Background(), st, c.remote, outboxOpts...)
	if err != nil {
		c.closeResources()
		return nil, fmt.Errorf("client: %w", err)
	}
	c.outbox.now = c.now

	c.puller = NewPuller(st, c.remote, cfg.MergePolicy, cfg.RemoteTimeout)
	c.puller.debug = debug
	c.puller.now = c.now

	if c.remote != nil && cfg.AutoSync && cfg.SyncInterval > 0 {
		go c.backgroundSync()
	} else {
		close(c.syncDone)
	}

	return c, nil
}

// SubmitResults applies SM-2 to every graded item of one game and
// persists the updated records together with their outbox job. Results
// for the same item are applied in order. Sync is triggered in the
// background and never affects the outcome.
func (c *Client) SubmitResults(ctx context.Context, learnerID string, results []Result) ([]progress.Record, error) {
	if err := store.ValidateEntityID(learnerID); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLearner, learnerID)
	}
	if len(results) == 0 {
		return nil, ErrEmptyResults
	}
	for _, r := range results {
		if err := store.ValidateEntityID(r.ItemID); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidItem, r.ItemID)
		}
		if r.Quality < int(sm2.QualityBlackout) || r.Quality > int(sm2.QualityPerfect) {
			return nil, fmt.Errorf("%w: %d for item %q", ErrInvalidQuality, r.Quality, r.ItemID)
		}
	}

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	now := c.stamp()
	updated := make(map[progress.Key]progress.Record, len(results))
	var order []progress.Key
	for _, r := range results {
		key := progress.Key{LearnerID: learnerID, ItemID: r.ItemID}
		rec, seen := updated[key]
		if !seen {
			var err error
			rec, err = c.store.Get(ctx, key)
			if errors.Is(err, ErrNotFound) {
				rec = progress.New(learnerID, r.ItemID)
			} else if err != nil {
				return nil, err
			}
			order = append(order, key)
		}
		updated[key] = sm2.Advance(rec, sm2.Quality(r.Quality), now)
	}

	records := make([]progress.Record, 0, len(order))
	for _, key := range order {
		records = append(records, updated[key])
	}
	if _, err := c.outbox.Enqueue(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// stamp returns a strictly increasing UTC instant at microsecond
// precision, so UpdatedAt orders mutations from this client even when
// the wall clock steps back.
func (c *Client) stamp() time.Time {
	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.lastStamp) {
		t = c.lastStamp.Add(time.Microsecond)
	}
	c.lastStamp = t
	return t
}

// GetSummary aggregates a learner's progress for the dashboard.
func (c *Client) GetSummary(ctx context.Context, learnerID string) (analytics.Summary, error) {
	records, err := c.store.QueryByLearner(ctx, learnerID)
	if err != nil {
		return analytics.Summary{}, err
	}
	return analytics.Summarize(records, learnerID, c.now()), nil
}

// GetPlanForToday builds today's activity plan for a learner.
func (c *Client) GetPlanForToday(ctx context.Context, profile plan.LearnerProfile) ([]plan.ActivityInstance, error) {
	if err := store.ValidateEntityID(profile.LearnerID); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLearner, profile.LearnerID)
	}
	records, err := c.store.QueryByLearner(ctx, profile.LearnerID)
	if err != nil {
		return nil, err
	}
	return c.planner.Generate(profile, progress.NewIndex(records)), nil
}

// Records returns every stored record of a learner.
func (c *Client) Records(ctx context.Context, learnerID string) ([]progress.Record, error) {
	return c.store.QueryByLearner(ctx, learnerID)
}

// Learners returns learner ids with local progress, most recent first.
func (c *Client) Learners(ctx context.Context) ([]string, error) {
	return c.store.Learners(ctx)
}

// SessionCompleted is the pass-through event emitted when a daily plan ends.
type SessionCompleted struct {
	LearnerID   string    `json:"learner_id"`
	SourceID    string    `json:"source_id,omitempty"`
	Activities  []string  `json:"activities"`
	CompletedAt time.Time `json:"completed_at"`
}

// CompleteSession queues a session_completed event for delivery.
func (c *Client) CompleteSession(ctx context.Context, ev SessionCompleted) (int64, error) {
	if err := store.ValidateEntityID(ev.LearnerID); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLearner, ev.LearnerID)
	}
	if ev.CompletedAt.IsZero() {
		ev.CompletedAt = c.now().UTC()
	}
	if ev.SourceID == "" {
		ev.SourceID = c.config.SourceID
	}
	if ev.Activities == nil {
		ev.Activities = []string{}
	}
	return c.RecordEvent(ctx, JobKindSessionCompleted, ev)
}

// RecordEvent queues an arbitrary JSON-encodable payload under kind. The
// remote receives it unmodified.
func (c *Client) RecordEvent(ctx context.Context, kind JobKind, payload any) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return c.outbox.EnqueueEvent(ctx, kind, data)
}

// Drain pushes pending jobs now, waiting out a background drain that is
// already running.
func (c *Client) Drain(ctx context.Context) (DrainResult, error) {
	return c.outbox.DrainSettled(ctx)
}

// Pull fetches a learner's remote changes since the stored watermark and
// advances the watermark on success.
func (c *Client) Pull(ctx context.Context, learnerID string) (int, error) {
	if c.remote == nil {
		return 0, ErrOffline
	}
	since, err := c.store.Watermark(ctx)
	if err != nil {
		return 0, err
	}
	watermark, n, err := c.puller.Pull(ctx, learnerID, since)
	if err != nil {
		return 0, err
	}
	if err := c.store.SetWatermark(ctx, watermark); err != nil {
		return n, err
	}
	return n, nil
}

// pullAll pulls every local learner against one watermark read. The
// watermark advances to the first pull's start only when all succeed.
func (c *Client) pullAll(ctx context.Context) (int, error) {
	ids, err := c.store.Learners(ctx)
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	since, err := c.store.Watermark(ctx)
	if err != nil {
		return 0, err
	}
	var next time.Time
	total := 0
	for i, id := range ids {
		w, n, err := c.puller.Pull(ctx, id, since)
		if err != nil {
			return total, err
		}
		if i == 0 {
			next = w
		}
		total += n
	}
	return total, c.store.SetWatermark(ctx, next)
}

// Sync drains the outbox and then pulls learnerID. An empty learnerID
// only drains.
func (c *Client) Sync(ctx context.Context, learnerID string) (*SyncStats, error) {
	if c.remote == nil {
		return nil, ErrOffline
	}
	start := c.now()
	stats := &SyncStats{}

	// The pull must not race a background push of the same records.
	res, err := c.outbox.DrainSettled(ctx)
	stats.Drain = res
	if err != nil {
		return stats, fmt.Errorf("push: %w", err)
	}

	if learnerID != "" {
		n, err := c.Pull(ctx, learnerID)
		stats.Pulled = n
		if err != nil {
			return stats, fmt.Errorf("pull: %w", err)
		}
	}

	if err := c.store.SetLastSync(ctx, c.now()); err != nil {
		return stats, err
	}
	stats.Duration = c.now().Sub(start)
	c.debug.LogSync("sync", fmt.Sprintf("pushed=%d pulled=%d in %s", res.Pushed, stats.Pulled, stats.Duration))
	return stats, nil
}

// Events delivers outcomes of background drains.
func (c *Client) Events() <-chan DrainEvent {
	return c.outbox.Events()
}

// Wait blocks until background drains started so far have finished.
func (c *Client) Wait() {
	c.outbox.Wait()
}

// Online reports whether the client can reach its remote.
func (c *Client) Online() bool {
	return c.outbox.Online()
}

// ExportJSON streams a learner's progress, or every learner's when
// learnerID is empty.
func (c *Client) ExportJSON(ctx context.Context, learnerID string, w io.Writer) error {
	return c.store.ExportJSON(ctx, c.config.Profile, learnerID, w)
}

// ImportJSON loads an export. Accepted records are queued for push.
func (c *Client) ImportJSON(ctx context.Context, r io.Reader, strategy ImportStrategy, dryRun bool) (*ImportResult, error) {
	res, err := c.store.ImportJSON(ctx, r, strategy, dryRun)
	if err == nil && !dryRun && res.Created+res.Replaced > 0 {
		c.outbox.Trigger()
	}
	return res, err
}

// Stats returns store statistics.
func (c *Client) Stats(ctx context.Context) (*StoreStats, error) {
	return c.store.Stats(ctx)
}

// HealthCheck returns the health status of the client.
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		StoreOK: true,
		Online:  c.Online(),
	}

	if _, err := c.store.Stats(ctx); err != nil {
		status.StoreOK = false
		status.Healthy = false
		status.Error = err.Error()
		return status
	}

	if c.remote != nil {
		pingCtx, cancel := context.WithTimeout(ctx, c.config.RemoteTimeout)
		err := c.remote.Ping(pingCtx)
		cancel()
		status.RemoteReachable = err == nil
		if err != nil && status.Error == "" {
			status.Error = err.Error()
		}
	}

	return status
}

// Close stops background work, makes one last drain attempt when online
// and closes the store.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	close(c.stopSync)
	select {
	case <-c.syncDone:
	case <-time.After(5 * time.Second):
	}

	if c.probe != nil {
		c.probe.Stop()
	}
	c.outbox.Close()

	if c.outbox.Online() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, _ = c.outbox.Drain(ctx)
		cancel()
	}

	return c.closeResources()
}

func (c *Client) closeResources() error {
	var err error
	if c.store != nil {
		err = c.store.Close()
	}
	c.debug.Close()
	return err
}

func (c *Client) backgroundSync() {
	defer close(c.syncDone)

	ticker := time.NewTicker(c.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSync:
			return
		case <-ticker.C:
			if !c.Online() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*c.config.RemoteTimeout)
			if _, err := c.Sync(ctx, ""); err != nil {
				c.debug.LogError("background sync", err)
			}
			if _, err := c.pullAll(ctx); err != nil {
				c.debug.LogError("background pull", err)
			}
			cancel()
		}
	}
}
