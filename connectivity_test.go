package sprout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestManualSignal(t *testing.T) {
	s := NewManualSignal(false)
	if s.Online() {
		t.Fatal("Online() = true, want false")
	}

	s.Set(false)
	select {
	case v := <-s.Transitions():
		t.Fatalf("unexpected transition %v for unchanged state", v)
	default:
	}

	s.Set(true)
	s.Set(false)
	s.Set(true)
	if !s.Online() {
		t.Error("Online() = false after Set(true)")
	}
	// Only the latest state is buffered.
	select {
	case v := <-s.Transitions():
		if !v {
			t.Errorf("transition = %v, want true", v)
		}
	default:
		t.Fatal("no transition buffered")
	}
	select {
	case v := <-s.Transitions():
		t.Errorf("extra transition %v", v)
	default:
	}
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestProbeSignal(t *testing.T) {
	var up atomic.Bool
	p := NewProbeSignal(pingerFunc(func(ctx context.Context) error {
		if up.Load() {
			return nil
		}
		return errors.New("unreachable")
	}), 10*time.Millisecond, time.Second)

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Stop()

	if p.Online() {
		t.Fatal("Online() = true before remote is reachable")
	}

	up.Store(true)
	select {
	case v := <-p.Transitions():
		if !v {
			t.Errorf("transition = %v, want true", v)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("probe never reported online")
	}
	if !p.Online() {
		t.Error("Online() = false after transition")
	}
}

func TestProbeSignal_ManualProbe(t *testing.T) {
	p := NewProbeSignal(pingerFunc(func(ctx context.Context) error { return nil }), time.Hour, 0)
	p.Probe()
	if !p.Online() {
		t.Error("Online() = false after successful probe")
	}
}
