// Package syncer fans feed fetches out across subscriptions and merges the
// results into the registry as each fetch completes.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bryan-buckman/rssbox/internal/model"
)

// Fetcher retrieves the deduped entries of one subscription.
type Fetcher interface {
	Fetch(ctx context.Context, view model.SyncView) ([]model.Entry, error)
}

// Registry is where fetched entries are merged.
type Registry interface {
	SyncViews(ctx context.Context) ([]model.SyncView, error)
	SyncView(ctx context.Context, id string) (model.SyncView, error)
	Merge(ctx context.Context, id string, entries []model.Entry) (int, error)
}

// Failure is the error of one subscription in a sync batch.
type Failure struct {
	ID  string `json:"id"`
	URL string `json:"url"`
	Err error  `json:"-"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.URL, f.Err)
}

// Notice is a user-facing sync result.
type Notice struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Notice levels.
const (
	LevelInfo  = "info"
	LevelError = "error"
)

// NotifyFunc receives notices of syncs started with show_result.
// It is called from a sync goroutine; implementations hand the notice to
// their owner loop.
type NotifyFunc func(Notice)

// Syncer is the SyncOrchestrator. At most one fetch per subscription id is
// in flight at any time.
type Syncer struct {
	fetcher  Fetcher
	registry Registry
	notify   NotifyFunc

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
}

// New creates a Syncer. notify may be nil.
func New(fetcher Fetcher, registry Registry, notify NotifyFunc) *Syncer {
	return &Syncer{
		fetcher:  fetcher,
		registry: registry,
		notify:   notify,
		inFlight: make(map[string]context.CancelFunc),
	}
}

type fetchResult struct {
	view    model.SyncView
	entries []model.Entry
	err     error
}

type report struct {
	failures []Failure
	added    int
	skipped  int
}

// Sync fetches every view concurrently and merges each result as soon as
// its fetch finishes. Views already being synced are skipped. Failures are
// collected per subscription and never abort the batch.
func (s *Syncer) Sync(ctx context.Context, views []model.SyncView) []Failure {
	return s.sync(ctx, views).failures
}

func (s *Syncer) sync(ctx context.Context, views []model.SyncView) report {
	var rep report
	results := make(chan fetchResult)

	started := 0
	for _, v := range views {
		taskCtx, ok := s.begin(ctx, v.ID)
		if !ok {
			slog.Debug("Sync already in flight, skipping", "subscription", v.ID)
			rep.skipped++
			continue
		}
		started++
		go func(v model.SyncView) {
			entries, err := s.fetcher.Fetch(taskCtx, v)
			results <- fetchResult{view: v, entries: entries, err: err}
		}(v)
	}

	for i := 0; i < started; i++ {
		res := <-results
		if res.err != nil {
			slog.Warn("Sync failed", "subscription", res.view.ID, "url", res.view.URL, "error", res.err)
			rep.failures = append(rep.failures, Failure{ID: res.view.ID, URL: res.view.URL, Err: res.err})
			s.finish(res.view.ID)
			continue
		}
		n, err := s.registry.Merge(ctx, res.view.ID, res.entries)
		s.finish(res.view.ID)
		if err != nil {
			slog.Warn("Merge failed", "subscription", res.view.ID, "error", err)
			rep.failures = append(rep.failures, Failure{ID: res.view.ID, URL: res.view.URL, Err: err})
			continue
		}
		rep.added += n
		slog.Info("Sync completed", "subscription", res.view.ID, "fetched", len(res.entries), "new", n)
	}
	return rep
}

// begin registers id as in flight and returns the context of its fetch.
func (s *Syncer) begin(ctx context.Context, id string) (context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return nil, false
	}
	taskCtx, cancel := context.WithCancel(ctx)
	s.inFlight[id] = cancel
	return taskCtx, true
}

func (s *Syncer) finish(id string) {
	s.mu.Lock()
	cancel := s.inFlight[id]
	delete(s.inFlight, id)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Cancel aborts the in-flight fetch of id, if any. Other fetches are unaffected.
func (s *Syncer) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.inFlight[id]
	if ok {
		cancel()
	}
	return ok
}

// InFlight reports whether id is being synced.
func (s *Syncer) InFlight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[id]
	return ok
}

// SyncAll syncs every known subscription concurrently.
func (s *Syncer) SyncAll(ctx context.Context) ([]Failure, error) {
	views, err := s.registry.SyncViews(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(views) == 0 {
		return nil, nil
	}
	slog.Info("Syncing all subscriptions", "count", len(views))
	return s.Sync(ctx, views), nil
}

// SyncOne syncs a single subscription. With showResult set, the outcome is
// also sent to the notify function.
func (s *Syncer) SyncOne(ctx context.Context, id string, showResult bool) ([]Failure, error) {
	view, err := s.registry.SyncView(ctx, id)
	if err != nil {
		return nil, err
	}
	rep := s.sync(ctx, []model.SyncView{view})
	if showResult && s.notify != nil {
		s.notify(noticeFor(view, rep))
	}
	return rep.failures, nil
}

func noticeFor(view model.SyncView, rep report) Notice {
	n := Notice{Time: time.Now(), Level: LevelInfo}
	switch {
	case len(rep.failures) > 0:
		n.Level = LevelError
		n.Message = rep.failures[0].Error()
	case rep.skipped > 0:
		n.Message = fmt.Sprintf("%s is already syncing", view.URL)
	case rep.added == 0:
		n.Message = fmt.Sprintf("%s: no new entries", view.URL)
	default:
		n.Message = fmt.Sprintf("%s: %d new entries", view.URL, rep.added)
	}
	return n
}
