// Package registry holds the subscriptions and their entries in memory and
// keeps them in step with the database.
//
// The in-memory graph is owned by a dispatch.Loop. Every read and write of
// it happens inside a loop task; persistence runs outside the loop. Writes
// to one subscription are serialized by a per-subscription lock, so a
// snapshot taken before persisting is still valid when it is applied.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/bryan-buckman/rssbox/internal/database"
	"github.com/bryan-buckman/rssbox/internal/dispatch"
	"github.com/bryan-buckman/rssbox/internal/model"
)

var (
	// ErrValidation marks rejected user input, such as a duplicate subscription URL.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned for unknown subscription or entry ids.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyFavorited is returned when an entry is already in favorites.
	ErrAlreadyFavorited = errors.New("already favorited")
)

// FavoritesName is the display name of the favorites collection.
const FavoritesName = "Favorites"

// Store is the persistence the registry needs.
type Store interface {
	Entries(subscriptionID string) database.EntryStore
	ListSubscriptions(ctx context.Context) ([]model.SubscriptionConfig, error)
	InsertSubscription(ctx context.Context, cfg model.SubscriptionConfig) error
	UpdateSubscription(ctx context.Context, cfg model.SubscriptionConfig) error
	DeleteSubscription(ctx context.Context, id string) error
}

// Trash records URLs of removed entries.
type Trash interface {
	AddURLs(ctx context.Context, urls ...string) error
}

// Registry is the SubscriptionRegistry.
type Registry struct {
	loop  *dispatch.Loop
	store Store
	trash Trash
	locks keyedMutex

	// Owned by loop.
	subs      map[string]*model.Subscription
	favorites *model.Subscription
	pending   map[string]struct{} // URLs reserved by in-progress creates and updates
}

// New creates an empty registry. Call Load before use.
func New(loop *dispatch.Loop, store Store, trash Trash) *Registry {
	return &Registry{
		loop:  loop,
		store: store,
		trash: trash,
		locks: keyedMutex{locks: make(map[string]*keyedLock)},
		subs:  make(map[string]*model.Subscription),
		favorites: &model.Subscription{
			SubscriptionConfig: model.SubscriptionConfig{ID: model.FavoritesID, Name: FavoritesName},
		},
		pending: make(map[string]struct{}),
	}
}

// Load rebuilds the in-memory graph from the store.
// Entries are held newest first and unread counts are recomputed.
func (r *Registry) Load(ctx context.Context) error {
	configs, err := r.store.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}

	loaded := make(map[string]*model.Subscription, len(configs))
	for _, cfg := range configs {
		cfg.Format = model.ParseFeedFormat(string(cfg.Format))
		cfg.Proxy = model.ParseProxyKind(string(cfg.Proxy))
		entries, err := r.loadEntries(ctx, cfg.ID)
		if err != nil {
			return err
		}
		loaded[cfg.ID] = &model.Subscription{
			SubscriptionConfig: cfg,
			UnreadCount:        model.CountUnread(entries),
			Entries:            entries,
		}
	}

	favEntries, err := r.loadEntries(ctx, model.FavoritesID)
	if err != nil {
		return err
	}

	err = r.loop.Do(ctx, func() {
		r.subs = loaded
		r.favorites.Entries = favEntries
		r.favorites.UnreadCount = model.CountUnread(favEntries)
	})
	if err != nil {
		return err
	}
	slog.Info("Subscriptions loaded", "count", len(loaded), "favorites", len(favEntries))
	return nil
}

func (r *Registry) loadEntries(ctx context.Context, id string) ([]model.Entry, error) {
	store := r.store.Entries(id)
	if err := store.Create(ctx); err != nil {
		return nil, fmt.Errorf("load entries of %s: %w", id, err)
	}
	entries, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load entries of %s: %w", id, err)
	}
	reverseEntries(entries)
	return entries, nil
}

// get must run on the loop.
func (r *Registry) get(id string) *model.Subscription {
	if id == model.FavoritesID {
		return r.favorites
	}
	return r.subs[id]
}

// apply runs fn on the loop after persistence succeeded. It ignores the
// caller's context so the in-memory view never falls behind the store.
func (r *Registry) apply(fn func()) {
	if err := r.loop.Do(context.Background(), fn); err != nil {
		slog.Error("Failed to apply registry change", "error", err)
	}
}

// Subscriptions returns every subscription without entries, favorites
// first and then by case-insensitive name.
func (r *Registry) Subscriptions(ctx context.Context) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.loop.Do(ctx, func() {
		subs = make([]model.Subscription, 0, len(r.subs))
		for _, s := range r.subs {
			subs = append(subs, model.Subscription{SubscriptionConfig: s.SubscriptionConfig, UnreadCount: s.UnreadCount})
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(subs, func(i, j int) bool {
		a, b := subs[i], subs[j]
		if a.Favorite != b.Favorite {
			return a.Favorite
		}
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		return a.ID < b.ID
	})
	return subs, nil
}

// Subscription returns one subscription (or favorites) without entries.
func (r *Registry) Subscription(ctx context.Context, id string) (model.Subscription, error) {
	var (
		sub   model.Subscription
		found bool
	)
	err := r.loop.Do(ctx, func() {
		if s := r.get(id); s != nil {
			sub = model.Subscription{SubscriptionConfig: s.SubscriptionConfig, UnreadCount: s.UnreadCount}
			found = true
		}
	})
	if err != nil {
		return model.Subscription{}, err
	}
	if !found {
		return model.Subscription{}, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	return sub, nil
}

// Entries returns a copy of the entries of id, newest first.
func (r *Registry) Entries(ctx context.Context, id string) ([]model.Entry, error) {
	var (
		entries []model.Entry
		found   bool
	)
	err := r.loop.Do(ctx, func() {
		if s := r.get(id); s != nil {
			entries = append([]model.Entry(nil), s.Entries...)
			found = true
		}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	return entries, nil
}

// UnreadCount returns the cached unread counter of id.
func (r *Registry) UnreadCount(ctx context.Context, id string) (int, error) {
	s, err := r.Subscription(ctx, id)
	if err != nil {
		return 0, err
	}
	return s.UnreadCount, nil
}

// SyncViews returns the fetch projection of every subscription.
func (r *Registry) SyncViews(ctx context.Context) ([]model.SyncView, error) {
	var views []model.SyncView
	err := r.loop.Do(ctx, func() {
		views = make([]model.SyncView, 0, len(r.subs))
		for _, s := range r.subs {
			views = append(views, s.SyncView())
		}
	})
	return views, err
}

// SyncView returns the fetch projection of one subscription.
func (r *Registry) SyncView(ctx context.Context, id string) (model.SyncView, error) {
	if id == model.FavoritesID {
		return model.SyncView{}, fmt.Errorf("%w: favorites cannot be synced", ErrValidation)
	}
	s, err := r.Subscription(ctx, id)
	if err != nil {
		return model.SyncView{}, err
	}
	return s.SyncView(), nil
}

func reverseEntries(entries []model.Entry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}

func indexOf(entries []model.Entry, id string) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}
