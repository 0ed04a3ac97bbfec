package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/bryan-buckman/rssbox/internal/database"
	"github.com/bryan-buckman/rssbox/internal/model"
	"github.com/google/uuid"
)

// validateConfig normalizes user input in place.
func validateConfig(cfg *model.SubscriptionConfig) error {
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.URL == "" {
		return fmt.Errorf("%w: url is required", ErrValidation)
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not an http(s) url", ErrValidation, cfg.URL)
	}
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		cfg.Name = cfg.URL
	}
	cfg.Format = model.ParseFeedFormat(string(cfg.Format))
	cfg.Proxy = model.ParseProxyKind(string(cfg.Proxy))
	return nil
}

// urlTaken must run on the loop.
func (r *Registry) urlTaken(u, exceptID string) bool {
	if _, ok := r.pending[u]; ok {
		return true
	}
	for id, s := range r.subs {
		if id != exceptID && s.URL == u {
			return true
		}
	}
	return false
}

// reserveURL claims u for a create or update in progress. A cancelled ctx
// fails before anything is reserved; once queued the reservation always
// completes so the caller can release it.
func (r *Registry) reserveURL(ctx context.Context, u, exceptID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var taken bool
	err := r.loop.Do(context.WithoutCancel(ctx), func() {
		taken = r.urlTaken(u, exceptID)
		if !taken {
			r.pending[u] = struct{}{}
		}
	})
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: a subscription for %s already exists", ErrValidation, u)
	}
	return nil
}

func (r *Registry) releaseURL(u string) {
	r.apply(func() { delete(r.pending, u) })
}

// NewSubscription validates cfg, assigns a new id and creates the
// subscription with an empty entry store.
func (r *Registry) NewSubscription(ctx context.Context, cfg model.SubscriptionConfig) (model.Subscription, error) {
	if err := validateConfig(&cfg); err != nil {
		return model.Subscription{}, err
	}
	cfg.ID = uuid.NewString()
	cfg.LastSyncedAt = time.Time{}

	if err := r.reserveURL(ctx, cfg.URL, ""); err != nil {
		return model.Subscription{}, err
	}

	if err := r.store.InsertSubscription(ctx, cfg); err != nil {
		r.releaseURL(cfg.URL)
		return model.Subscription{}, fmt.Errorf("create subscription: %w", err)
	}
	if err := r.store.Entries(cfg.ID).Create(ctx); err != nil {
		if rbErr := r.store.DeleteSubscription(context.WithoutCancel(ctx), cfg.ID); rbErr != nil {
			slog.Error("Failed to roll back subscription", "subscription", cfg.ID, "error", rbErr)
		}
		r.releaseURL(cfg.URL)
		return model.Subscription{}, fmt.Errorf("create entry store: %w", err)
	}

	sub := &model.Subscription{SubscriptionConfig: cfg}
	r.apply(func() {
		delete(r.pending, cfg.URL)
		r.subs[cfg.ID] = sub
	})
	slog.Info("Subscription created", "subscription", cfg.ID, "url", cfg.URL)
	return model.Subscription{SubscriptionConfig: cfg}, nil
}

// UpdateSubscription replaces the mutable fields of id with those of cfg.
// The id and the last sync time are kept.
func (r *Registry) UpdateSubscription(ctx context.Context, id string, cfg model.SubscriptionConfig) (model.Subscription, error) {
	if id == model.FavoritesID {
		return model.Subscription{}, fmt.Errorf("%w: favorites cannot be edited", ErrValidation)
	}
	if err := validateConfig(&cfg); err != nil {
		return model.Subscription{}, err
	}

	unlock := r.locks.lock(id)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return model.Subscription{}, err
	}

	var (
		current model.SubscriptionConfig
		found   bool
		taken   bool
	)
	err := r.loop.Do(context.WithoutCancel(ctx), func() {
		s := r.subs[id]
		if s == nil {
			return
		}
		found = true
		current = s.SubscriptionConfig
		if cfg.URL != current.URL {
			taken = r.urlTaken(cfg.URL, id)
			if !taken {
				r.pending[cfg.URL] = struct{}{}
			}
		}
	})
	if err != nil {
		return model.Subscription{}, err
	}
	if !found {
		return model.Subscription{}, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	if taken {
		return model.Subscription{}, fmt.Errorf("%w: a subscription for %s already exists", ErrValidation, cfg.URL)
	}

	updated := current
	updated.Name = cfg.Name
	updated.URL = cfg.URL
	updated.Format = cfg.Format
	updated.Proxy = cfg.Proxy
	updated.Favorite = cfg.Favorite

	if err := r.store.UpdateSubscription(ctx, updated); err != nil {
		if updated.URL != current.URL {
			r.releaseURL(updated.URL)
		}
		return model.Subscription{}, fmt.Errorf("update subscription: %w", err)
	}

	var result model.Subscription
	r.apply(func() {
		delete(r.pending, updated.URL)
		s := r.subs[id]
		s.SubscriptionConfig = updated
		result = model.Subscription{SubscriptionConfig: updated, UnreadCount: s.UnreadCount}
	})
	return result, nil
}

// RemoveSubscription drops the subscription, its entry store, and
// registers its entry URLs as removed.
func (r *Registry) RemoveSubscription(ctx context.Context, id string) error {
	if id == model.FavoritesID {
		return fmt.Errorf("%w: favorites cannot be removed", ErrValidation)
	}

	unlock := r.locks.lock(id)
	defer unlock()

	var (
		urls  []string
		found bool
	)
	err := r.loop.Do(ctx, func() {
		s := r.subs[id]
		if s == nil {
			return
		}
		found = true
		urls = make([]string, len(s.Entries))
		for i, e := range s.Entries {
			urls[i] = e.URL
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}

	if err := r.store.Entries(id).Drop(ctx); err != nil && !errors.Is(err, database.ErrNoStore) {
		return fmt.Errorf("remove subscription: %w", err)
	}
	if err := r.store.DeleteSubscription(ctx, id); err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("remove subscription: %w", err)
	}
	if err := r.trash.AddURLs(context.WithoutCancel(ctx), urls...); err != nil {
		slog.Warn("Failed to record removed entries", "subscription", id, "error", err)
	}

	r.apply(func() { delete(r.subs, id) })
	slog.Info("Subscription removed", "subscription", id, "entries", len(urls))
	return nil
}
