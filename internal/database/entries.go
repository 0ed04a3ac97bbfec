package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bryan-buckman/rssbox/internal/model"
)

type payloadRow struct {
	Seq  int64  `db:"seq"`
	ID   string `db:"uuid"`
	Data string `db:"data"`
}

// EntryTable is the EntryStore of a single subscription.
// All tables share the entries relation, keyed by subscription_id.
type EntryTable struct {
	db             *DB
	subscriptionID string
}

// Entries returns the entry store handle of a subscription.
func (db *DB) Entries(subscriptionID string) EntryStore {
	return &EntryTable{db: db, subscriptionID: subscriptionID}
}

// Create registers the store. Creating an existing store is a no-op.
func (t *EntryTable) Create(ctx context.Context) error {
	_, err := t.db.exec(ctx,
		"INSERT INTO entry_stores (subscription_id) VALUES (?) ON CONFLICT (subscription_id) DO NOTHING",
		t.subscriptionID)
	if err != nil {
		return fmt.Errorf("create entry store %s: %w", t.subscriptionID, err)
	}
	return nil
}

// Insert adds e under its id.
func (t *EntryTable) Insert(ctx context.Context, e model.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	n, err := t.db.exec(ctx, `
		INSERT INTO entries (subscription_id, uuid, data)
		SELECT CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT)
		WHERE EXISTS (SELECT 1 FROM entry_stores WHERE subscription_id = ?)`,
		t.subscriptionID, e.ID, string(data), t.subscriptionID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert entry %s: %w", e.ID, ErrDuplicate)
		}
		return fmt.Errorf("insert entry %s: %w", e.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("insert entry %s into %s: %w", e.ID, t.subscriptionID, ErrNoStore)
	}
	return nil
}

// Update replaces the payload of entry id.
func (t *EntryTable) Update(ctx context.Context, id string, e model.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	n, err := t.db.exec(ctx,
		"UPDATE entries SET data = ? WHERE subscription_id = ? AND uuid = ?",
		string(data), t.subscriptionID, id)
	if err != nil {
		return fmt.Errorf("update entry %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes entry id.
func (t *EntryTable) Delete(ctx context.Context, id string) error {
	n, err := t.db.exec(ctx,
		"DELETE FROM entries WHERE subscription_id = ? AND uuid = ?",
		t.subscriptionID, id)
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteAll removes every entry of the subscription.
func (t *EntryTable) DeleteAll(ctx context.Context) error {
	if _, err := t.db.exec(ctx, "DELETE FROM entries WHERE subscription_id = ?", t.subscriptionID); err != nil {
		return fmt.Errorf("delete entries of %s: %w", t.subscriptionID, err)
	}
	return nil
}

// List returns the stored entries oldest first.
// Rows whose payload cannot be decoded are skipped.
func (t *EntryTable) List(ctx context.Context) ([]model.Entry, error) {
	var rows []payloadRow
	err := t.db.selectRows(ctx, &rows,
		"SELECT seq, uuid, data FROM entries WHERE subscription_id = ? ORDER BY seq",
		t.subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("list entries of %s: %w", t.subscriptionID, err)
	}
	entries := make([]model.Entry, 0, len(rows))
	for _, r := range rows {
		var e model.Entry
		if err := json.Unmarshal([]byte(r.Data), &e); err != nil {
			slog.Warn("Skipping undecodable entry", "subscription", t.subscriptionID, "entry", r.ID, "error", err)
			continue
		}
		e.ID = r.ID
		entries = append(entries, e)
	}
	return entries, nil
}

// Drop destroys the store and its entries.
func (t *EntryTable) Drop(ctx context.Context) error {
	tx, err := t.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin drop: %w", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM entry_stores WHERE subscription_id = ?"), t.subscriptionID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("drop entry store %s: %w", t.subscriptionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tx.Rollback()
		return fmt.Errorf("drop entry store %s: %w", t.subscriptionID, ErrNoStore)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM entries WHERE subscription_id = ?"), t.subscriptionID); err != nil {
		tx.Rollback()
		return fmt.Errorf("drop entries of %s: %w", t.subscriptionID, err)
	}
	return tx.Commit()
}
