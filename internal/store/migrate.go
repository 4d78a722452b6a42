package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// ApplyMigrations brings the schema up to the latest embedded version. It
// runs on a dedicated single-connection pool that is closed on return, so the
// pool serving requests is never handed to migrate.
func ApplyMigrations(ctx context.Context, databaseURL string) error {
	migrationDB, err := Open(ctx, databaseURL, PoolOptions{MaxOpenConns: 1})
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	return applyMigrations(migrationDB)
}

// applyMigrations takes ownership of migrationDB and closes it.
func applyMigrations(migrationDB *sql.DB) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		migrationDB.Close()
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratepgx.WithInstance(migrationDB, &migratepgx.Config{})
	if err != nil {
		source.Close()
		migrationDB.Close()
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		source.Close()
		driver.Close()
		return fmt.Errorf("init migrate: %w", err)
	}

	upErr := m.Up()
	// Closing the driver also closes migrationDB.
	srcErr, dbErr := m.Close()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	if srcErr != nil || dbErr != nil {
		return fmt.Errorf("close migrate: %w", errors.Join(srcErr, dbErr))
	}
	return nil
}
