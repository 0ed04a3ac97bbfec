// Package database provides storage backends for the feed reader.
package database

import (
	"context"
	"errors"

	"github.com/bryan-buckman/rssbox/internal/model"
)

var (
	// ErrNotFound is returned when an update or delete targets a missing row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert collides with an existing id.
	ErrDuplicate = errors.New("duplicate key")
	// ErrNoStore is returned when an entry store has not been created.
	ErrNoStore = errors.New("entry store does not exist")
)

// EntryStore is the durable entry collection of one subscription
// (or of the favorites collection).
type EntryStore interface {
	// Create creates the backing store if absent. It is a no-op if present.
	Create(ctx context.Context) error
	// Insert adds an entry. It fails with ErrDuplicate if the id exists.
	Insert(ctx context.Context, e model.Entry) error
	// Update replaces the entry with the given id. It fails with ErrNotFound.
	Update(ctx context.Context, id string, e model.Entry) error
	// Delete removes one entry. It fails with ErrNotFound if absent.
	Delete(ctx context.Context, id string) error
	// DeleteAll removes every entry in the store.
	DeleteAll(ctx context.Context) error
	// List returns the entries in insertion order.
	List(ctx context.Context) ([]model.Entry, error)
	// Drop destroys the store. It fails with ErrNoStore if absent.
	Drop(ctx context.Context) error
}

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL backends satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// SupportsHighConcurrency returns true if the database can handle
	// many concurrent write operations (e.g., PostgreSQL).
	SupportsHighConcurrency() bool

	// Entries returns the entry store handle of a subscription.
	Entries(subscriptionID string) EntryStore

	// Subscription operations
	ListSubscriptions(ctx context.Context) ([]model.SubscriptionConfig, error)
	InsertSubscription(ctx context.Context, cfg model.SubscriptionConfig) error
	UpdateSubscription(ctx context.Context, cfg model.SubscriptionConfig) error
	DeleteSubscription(ctx context.Context, id string) error

	// Removed item registry operations
	AddTrash(ctx context.Context, hashes ...string) error
	ListTrash(ctx context.Context) ([]string, error)
	CountTrash(ctx context.Context) (int, error)
	ClearTrash(ctx context.Context) error
}

func isUniqueViolation(err error) bool {
	return isSQLiteUniqueViolation(err) || isPostgresUniqueViolation(err)
}
