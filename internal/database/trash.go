package database

import (
	"context"
	"fmt"
)

// --- Removed Item Methods ---

// AddTrash records URL hashes of removed entries. Known hashes are ignored.
func (db *DB) AddTrash(ctx context.Context, hashes ...string) error {
	if len(hashes) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin trash insert: %w", err)
	}
	stmt, err := tx.PreparexContext(ctx, tx.Rebind("INSERT INTO trash (hash) VALUES (?) ON CONFLICT (hash) DO NOTHING"))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare trash insert: %w", err)
	}
	defer stmt.Close()
	for _, h := range hashes {
		if _, err := stmt.ExecContext(ctx, h); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert trash %s: %w", h, err)
		}
	}
	return tx.Commit()
}

// ListTrash returns every recorded hash.
func (db *DB) ListTrash(ctx context.Context) ([]string, error) {
	var hashes []string
	if err := db.selectRows(ctx, &hashes, "SELECT hash FROM trash ORDER BY seq"); err != nil {
		return nil, fmt.Errorf("list trash: %w", err)
	}
	return hashes, nil
}

// CountTrash returns the number of recorded hashes.
func (db *DB) CountTrash(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.GetContext(ctx, &n, "SELECT COUNT(*) FROM trash"); err != nil {
		return 0, fmt.Errorf("count trash: %w", err)
	}
	return n, nil
}

// ClearTrash deletes every recorded hash.
func (db *DB) ClearTrash(ctx context.Context) error {
	if _, err := db.exec(ctx, "DELETE FROM trash"); err != nil {
		return fmt.Errorf("clear trash: %w", err)
	}
	return nil
}
