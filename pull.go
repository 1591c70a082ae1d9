package sprout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/sprout/progress"
)

// Puller copies remote progress into the local store.
type Puller struct {
	store   *Store
	remote  Remote
	policy  MergePolicy
	timeout time.Duration
	debug   *DebugLogger
	now     func() time.Time
}

// NewPuller creates a puller. An empty policy means MergeRemoteWins.
func NewPuller(store *Store, remote Remote, policy MergePolicy, timeout time.Duration) *Puller {
	if policy == "" {
		policy = MergeRemoteWins
	}
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &Puller{
		store:   store,
		remote:  remote,
		policy:  policy,
		timeout: timeout,
		now:     time.Now,
	}
}

// Pull fetches the learner's records updated after since and writes them
// locally without queueing jobs. It returns the new watermark, which is
// the instant the pull started, and how many records were written.
//
// Under MergeLastWriteWins a local record with a newer UpdatedAt is kept.
// Records still waiting in the outbox will push their local value on
// the next drain either way.
func (p *Puller) Pull(ctx context.Context, learnerID string, since time.Time) (time.Time, int, error) {
	if p.remote == nil {
		return since, 0, ErrOffline
	}
	started := p.now()

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	remote, err := p.remote.SelectProgress(callCtx, learnerID, since)
	cancel()
	if err != nil {
		err = fmt.Errorf("pull %s: %w", learnerID, err)
		p.debug.LogPull(learnerID, since, started, 0, err)
		return since, 0, err
	}

	incoming := make([]progress.Record, 0, len(remote))
	for _, r := range remote {
		if r.LearnerID != learnerID {
			continue
		}
		if err := r.Validate(); err != nil {
			err = fmt.Errorf("pull %s: remote record: %w", learnerID, err)
			p.debug.LogPull(learnerID, since, started, 0, err)
			return since, 0, err
		}
		if p.policy == MergeLastWriteWins {
			keep, err := p.localIsNewer(ctx, r)
			if err != nil {
				return since, 0, err
			}
			if keep {
				continue
			}
		}
		incoming = append(incoming, r)
	}

	if err := p.store.BulkPut(ctx, incoming); err != nil {
		p.debug.LogPull(learnerID, since, started, 0, err)
		return since, 0, err
	}

	p.debug.LogPull(learnerID, since, started, len(incoming), nil)
	return started, len(incoming), nil
}

func (p *Puller) localIsNewer(ctx context.Context, r progress.Record) (bool, error) {
	local, err := p.store.Get(ctx, r.Key())
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return local.UpdatedAt.After(r.UpdatedAt), nil
}
