package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// migrate applies all pending migrations of the connection's dialect.
//
// The migrate instance is not closed, as the sqlite driver's Close would
// close the shared pool. Postgres runs on a borrowed connection that goes
// back to the pool when migrate returns; the sqlite driver holds none.
func (db *DB) migrate() error {
	var (
		driver database.Driver
		err    error
	)
	switch db.dialect {
	case dialectPostgres:
		ctx := context.Background()
		conn, connErr := db.conn.DB.Conn(ctx)
		if connErr != nil {
			return fmt.Errorf("failed to acquire migration connection: %w", connErr)
		}
		defer conn.Close()
		driver, err = postgres.WithConnection(ctx, conn, &postgres.Config{})
	default:
		driver, err = sqlite.WithInstance(db.conn.DB, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("failed to create %s driver: %w", db.dialect, err)
	}

	source, err := iofs.New(migrationFS, "migrations/"+db.dialect)
	if err != nil {
		return fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, db.dialect, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Debug("Database migrated", "type", db.DatabaseType(), "version", version, "dirty", dirty)
	return nil
}
