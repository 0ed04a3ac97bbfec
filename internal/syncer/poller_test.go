package syncer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingSyncer struct {
	calls atomic.Int32
}

func (c *countingSyncer) SyncAll(ctx context.Context) ([]Failure, error) {
	c.calls.Add(1)
	return nil, nil
}

func TestPollerIntervalFloor(t *testing.T) {
	p := newPoller(&countingSyncer{}, PollerConfig{Interval: 5 * time.Second})
	if p.interval != MinSyncInterval {
		t.Errorf("Expected interval raised to %s, got: %s", MinSyncInterval, p.interval)
	}
	p = newPoller(&countingSyncer{}, PollerConfig{Interval: time.Hour})
	if p.interval != time.Hour {
		t.Errorf("Expected 1h interval, got: %s", p.interval)
	}
}

func TestPollerSyncsWhenDue(t *testing.T) {
	cs := &countingSyncer{}
	p := newPoller(cs, PollerConfig{Enabled: true})
	p.interval = 30 * time.Millisecond
	p.cadence = 5 * time.Millisecond

	p.Start(context.Background())
	time.Sleep(200 * time.Millisecond)
	p.Stop()

	if n := cs.calls.Load(); n < 2 {
		t.Errorf("Expected repeated syncs, got: %d", n)
	}
}

func TestPollerDisabledStillSyncsOnStartup(t *testing.T) {
	cs := &countingSyncer{}
	p := newPoller(cs, PollerConfig{Enabled: false, OnStartup: true})
	p.interval = 10 * time.Millisecond
	p.cadence = 5 * time.Millisecond

	p.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	p.Stop()
	p.Stop()

	if n := cs.calls.Load(); n != 1 {
		t.Errorf("Expected only the startup sync, got: %d", n)
	}
}

func TestPollerStopsWithContext(t *testing.T) {
	cs := &countingSyncer{}
	p := newPoller(cs, PollerConfig{Enabled: true})
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	stopped := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Poller did not stop on context cancellation")
	}
}
