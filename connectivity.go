package sprout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// DefaultProbeInterval is how often a ProbeSignal pings the remote.
const DefaultProbeInterval = 30 * time.Second

// Signal reports network connectivity.
type Signal interface {
	// Online reports the current state.
	Online() bool
	// Transitions delivers the new state after each change. Only the
	// latest state is buffered.
	Transitions() <-chan bool
}

// ManualSignal is a Signal set by the host application, for example from
// the platform's network callbacks.
type ManualSignal struct {
	mu     sync.Mutex
	online bool
	ch     chan bool
}

// NewManualSignal creates a signal in the given state.
func NewManualSignal(online bool) *ManualSignal {
	return &ManualSignal{online: online, ch: make(chan bool, 1)}
}

// Online implements Signal.
func (s *ManualSignal) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Transitions implements Signal.
func (s *ManualSignal) Transitions() <-chan bool {
	return s.ch
}

// Set changes the state. Setting the current state is a no-op.
func (s *ManualSignal) Set(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.online == online {
		return
	}
	s.online = online

	// Replace a stale buffered value so readers see the latest state.
	select {
	case s.ch <- online:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- online:
		default:
		}
	}
}

// Pinger is anything that can check remote reachability. Every Remote is one.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProbeSignal derives connectivity from periodic pings run by a gocron
// scheduler.
type ProbeSignal struct {
	*ManualSignal
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	sched    *gocron.Scheduler
}

// NewProbeSignal creates a probe that starts offline until its first ping.
func NewProbeSignal(p Pinger, interval, timeout time.Duration) *ProbeSignal {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &ProbeSignal{
		ManualSignal: NewManualSignal(false),
		pinger:       p,
		interval:     interval,
		timeout:      timeout,
		sched:        gocron.NewScheduler(time.UTC),
	}
}

// Start pings once synchronously and then on every interval.
func (p *ProbeSignal) Start() error {
	p.Probe()
	if _, err := p.sched.Every(p.interval).WaitForSchedule().SingletonMode().Do(p.Probe); err != nil {
		return fmt.Errorf("schedule connectivity probe: %w", err)
	}
	p.sched.StartAsync()
	return nil
}

// Stop halts probing.
func (p *ProbeSignal) Stop() {
	p.sched.Stop()
}

// Probe pings the remote once and updates the state.
func (p *ProbeSignal) Probe() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	p.Set(p.pinger.Ping(ctx) == nil)
}
