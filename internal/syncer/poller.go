package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// CheckInterval is how often the poller checks whether a sync is due.
	CheckInterval = 10 * time.Second
	// MinSyncInterval is the lower bound of the auto-sync interval.
	MinSyncInterval = time.Minute
	// pollTimeout bounds one automatic sync-all.
	pollTimeout = 10 * time.Minute
)

// PollerConfig configures automatic syncing.
type PollerConfig struct {
	Enabled   bool
	Interval  time.Duration
	OnStartup bool
}

type allSyncer interface {
	SyncAll(ctx context.Context) ([]Failure, error)
}

// Poller runs sync-all on a timer.
type Poller struct {
	syncer   allSyncer
	enabled  bool
	onStart  bool
	interval time.Duration
	cadence  time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPoller creates a background poller. The interval is raised to
// MinSyncInterval when lower.
func NewPoller(s *Syncer, cfg PollerConfig) *Poller {
	return newPoller(s, cfg)
}

func newPoller(s allSyncer, cfg PollerConfig) *Poller {
	interval := cfg.Interval
	if interval < MinSyncInterval {
		interval = MinSyncInterval
	}
	return &Poller{
		syncer:   s,
		enabled:  cfg.Enabled,
		onStart:  cfg.OnStartup,
		interval: interval,
		cadence:  CheckInterval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the polling loop. A startup sync runs first when configured,
// whether or not periodic syncing is enabled.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if p.onStart {
			slog.Info("Poller: syncing on startup")
			p.run(ctx)
		}
		last := time.Now()

		ticker := time.NewTicker(p.cadence)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopChan:
				return
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if !p.enabled || now.Sub(last) < p.interval {
					continue
				}
				last = now
				slog.Info("Poller: syncing all subscriptions", "interval", p.interval)
				p.run(ctx)
			}
		}
	}()
}

func (p *Poller) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	failures, err := p.syncer.SyncAll(ctx)
	if err != nil {
		slog.Error("Poller error", "error", err)
		return
	}
	if len(failures) > 0 {
		slog.Warn("Poller: some subscriptions failed", "failed", len(failures), "first", failures[0].Error())
	}
}

// Stop stops the poller gracefully.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()
}
