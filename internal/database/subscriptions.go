package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bryan-buckman/rssbox/internal/model"
)

// --- Subscription Methods ---

// ListSubscriptions returns all subscription configs in creation order.
func (db *DB) ListSubscriptions(ctx context.Context) ([]model.SubscriptionConfig, error) {
	var rows []payloadRow
	if err := db.selectRows(ctx, &rows, "SELECT seq, uuid, data FROM subscriptions ORDER BY seq"); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	subs := make([]model.SubscriptionConfig, 0, len(rows))
	for _, r := range rows {
		var cfg model.SubscriptionConfig
		if err := json.Unmarshal([]byte(r.Data), &cfg); err != nil {
			slog.Warn("Skipping undecodable subscription", "subscription", r.ID, "error", err)
			continue
		}
		cfg.ID = r.ID
		subs = append(subs, cfg)
	}
	return subs, nil
}

// InsertSubscription stores a new subscription config.
func (db *DB) InsertSubscription(ctx context.Context, cfg model.SubscriptionConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode subscription: %w", err)
	}
	if _, err := db.exec(ctx, "INSERT INTO subscriptions (uuid, data) VALUES (?, ?)", cfg.ID, string(data)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert subscription %s: %w", cfg.ID, ErrDuplicate)
		}
		return fmt.Errorf("insert subscription %s: %w", cfg.ID, err)
	}
	return nil
}

// UpdateSubscription replaces the stored config of cfg.ID.
func (db *DB) UpdateSubscription(ctx context.Context, cfg model.SubscriptionConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode subscription: %w", err)
	}
	n, err := db.exec(ctx, "UPDATE subscriptions SET data = ? WHERE uuid = ?", string(data), cfg.ID)
	if err != nil {
		return fmt.Errorf("update subscription %s: %w", cfg.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update subscription %s: %w", cfg.ID, ErrNotFound)
	}
	return nil
}

// DeleteSubscription removes the config row. The entry store is dropped separately.
func (db *DB) DeleteSubscription(ctx context.Context, id string) error {
	n, err := db.exec(ctx, "DELETE FROM subscriptions WHERE uuid = ?", id)
	if err != nil {
		return fmt.Errorf("delete subscription %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete subscription %s: %w", id, ErrNotFound)
	}
	return nil
}
