package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bryan-buckman/rssbox/internal/database"
	"github.com/bryan-buckman/rssbox/internal/model"
	"github.com/google/uuid"
)

// Merge reconciles a fetched, deduped batch into subscription id.
// Candidates are expected oldest first. Entries whose URL is already held
// are skipped; the rest get fresh ids, become the newest entries, and are
// persisted. Store failures are logged and do not undo the in-memory
// change. It returns the number of entries added.
func (r *Registry) Merge(ctx context.Context, id string, candidates []model.Entry) (int, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var (
		added []model.Entry
		cfg   model.SubscriptionConfig
		found bool
	)
	// Once queued the merge must be seen through: Do on a cancelable
	// context can return while the task still runs.
	err := r.loop.Do(context.WithoutCancel(ctx), func() {
		s := r.subs[id]
		if s == nil {
			return
		}
		found = true

		present := make(map[string]struct{}, len(s.Entries)+len(candidates))
		for _, e := range s.Entries {
			present[e.URL] = struct{}{}
		}
		for _, c := range candidates {
			if _, ok := present[c.URL]; ok {
				continue
			}
			present[c.URL] = struct{}{}
			c.ID = uuid.NewString()
			c.SubscriptionID = id
			c.IsRead = false
			added = append(added, c)
		}

		if len(added) > 0 {
			merged := make([]model.Entry, 0, len(added)+len(s.Entries))
			for i := len(added) - 1; i >= 0; i-- {
				merged = append(merged, added[i])
			}
			s.Entries = append(merged, s.Entries...)
			s.UnreadCount += len(added)
		}
		s.LastSyncedAt = time.Now().UTC()
		cfg = s.SubscriptionConfig
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}

	ctx = context.WithoutCancel(ctx)
	store := r.store.Entries(id)
	for _, e := range added {
		if err := store.Insert(ctx, e); err != nil {
			slog.Warn("Failed to persist entry", "subscription", id, "url", e.URL, "error", err)
		}
	}
	if err := r.store.UpdateSubscription(ctx, cfg); err != nil {
		slog.Warn("Failed to persist sync time", "subscription", id, "error", err)
	}
	return len(added), nil
}

// RemoveEntry deletes one entry of subscription id (or favorites) and
// registers its URL as removed.
func (r *Registry) RemoveEntry(ctx context.Context, id, entryID string) error {
	unlock := r.locks.lock(id)
	defer unlock()

	var (
		target model.Entry
		found  bool
	)
	err := r.loop.Do(ctx, func() {
		if s := r.get(id); s != nil {
			if i := indexOf(s.Entries, entryID); i >= 0 {
				target = s.Entries[i]
				found = true
			}
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("entry %s in %s: %w", entryID, id, ErrNotFound)
	}

	if err := r.store.Entries(id).Delete(ctx, entryID); err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("remove entry: %w", err)
	}
	if err := r.trash.AddURLs(context.WithoutCancel(ctx), target.URL); err != nil {
		slog.Warn("Failed to record removed entry", "subscription", id, "url", target.URL, "error", err)
	}

	r.apply(func() {
		s := r.get(id)
		if s == nil {
			return
		}
		i := indexOf(s.Entries, entryID)
		if i < 0 {
			return
		}
		if !s.Entries[i].IsRead && s.UnreadCount > 0 {
			s.UnreadCount--
		}
		s.Entries = append(s.Entries[:i:i], s.Entries[i+1:]...)
	})
	return nil
}

// RemoveAllEntries deletes every entry of subscription id (or favorites)
// and registers their URLs as removed.
func (r *Registry) RemoveAllEntries(ctx context.Context, id string) error {
	unlock := r.locks.lock(id)
	defer unlock()

	var (
		urls  []string
		found bool
	)
	err := r.loop.Do(ctx, func() {
		s := r.get(id)
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

	if err := r.store.Entries(id).DeleteAll(ctx); err != nil {
		return fmt.Errorf("remove all entries: %w", err)
	}
	if err := r.trash.AddURLs(context.WithoutCancel(ctx), urls...); err != nil {
		slog.Warn("Failed to record removed entries", "subscription", id, "error", err)
	}

	r.apply(func() {
		if s := r.get(id); s != nil {
			s.Entries = nil
			s.UnreadCount = 0
		}
	})
	return nil
}

// MarkRead flags one entry as read. Marking a read entry is a no-op.
func (r *Registry) MarkRead(ctx context.Context, id, entryID string) error {
	unlock := r.locks.lock(id)
	defer unlock()

	var (
		target model.Entry
		found  bool
	)
	err := r.loop.Do(ctx, func() {
		if s := r.get(id); s != nil {
			if i := indexOf(s.Entries, entryID); i >= 0 {
				target = s.Entries[i]
				found = true
			}
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("entry %s in %s: %w", entryID, id, ErrNotFound)
	}
	if target.IsRead {
		return nil
	}

	target.IsRead = true
	if err := r.store.Entries(id).Update(ctx, entryID, target); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	r.apply(func() {
		r.markReadOnLoop(id, entryID)
	})
	return nil
}

// MarkAllRead flags every entry of subscription id as read. Entries whose
// update fails stay unread and the first failure is returned.
func (r *Registry) MarkAllRead(ctx context.Context, id string) error {
	unlock := r.locks.lock(id)
	defer unlock()

	var (
		unread []model.Entry
		found  bool
	)
	err := r.loop.Do(ctx, func() {
		s := r.get(id)
		if s == nil {
			return
		}
		found = true
		for _, e := range s.Entries {
			if !e.IsRead {
				unread = append(unread, e)
			}
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}

	var (
		done     []string
		firstErr error
	)
	store := r.store.Entries(id)
	for _, e := range unread {
		e.IsRead = true
		if err := store.Update(ctx, e.ID, e); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("mark all read: %w", err)
			}
			continue
		}
		done = append(done, e.ID)
	}

	r.apply(func() {
		for _, entryID := range done {
			r.markReadOnLoop(id, entryID)
		}
	})
	return firstErr
}

// markReadOnLoop must run on the loop.
func (r *Registry) markReadOnLoop(id, entryID string) {
	s := r.get(id)
	if s == nil {
		return
	}
	i := indexOf(s.Entries, entryID)
	if i < 0 || s.Entries[i].IsRead {
		return
	}
	s.Entries[i].IsRead = true
	if s.UnreadCount > 0 {
		s.UnreadCount--
	}
}

// Favorite copies entry entryID, found in any subscription, into the
// favorites collection under the same id.
func (r *Registry) Favorite(ctx context.Context, entryID string) (model.Entry, error) {
	unlock := r.locks.lock(model.FavoritesID)
	defer unlock()

	var (
		entry   model.Entry
		found   bool
		already bool
	)
	err := r.loop.Do(ctx, func() {
		if indexOf(r.favorites.Entries, entryID) >= 0 {
			already = true
			return
		}
		for _, s := range r.subs {
			if i := indexOf(s.Entries, entryID); i >= 0 {
				entry = s.Entries[i]
				found = true
				return
			}
		}
	})
	if err != nil {
		return model.Entry{}, err
	}
	if already {
		return model.Entry{}, fmt.Errorf("entry %s: %w", entryID, ErrAlreadyFavorited)
	}
	if !found {
		return model.Entry{}, fmt.Errorf("entry %s: %w", entryID, ErrNotFound)
	}

	entry.SubscriptionID = model.FavoritesID
	if err := r.store.Entries(model.FavoritesID).Insert(ctx, entry); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return model.Entry{}, fmt.Errorf("entry %s: %w", entryID, ErrAlreadyFavorited)
		}
		return model.Entry{}, fmt.Errorf("favorite entry: %w", err)
	}

	r.apply(func() {
		r.favorites.Entries = append([]model.Entry{entry}, r.favorites.Entries...)
		if !entry.IsRead {
			r.favorites.UnreadCount++
		}
	})
	return entry, nil
}
