// Package migrations applies the versioned Postgres schema of the cash drawer.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	sourceName   = "iofs"
	databaseName = "postgres"
	sourceDir    = "sql"
	driverName   = "pgx"
)

//go:embed sql/*.sql
var files embed.FS

// Result reports what Up did.
type Result struct {
	Applied bool
	Version uint
}

// Up applies every pending migration to the database at databaseURL over a dedicated connection.
func Up(databaseURL string) (Result, error) {
	db, err := sql.Open(driverName, databaseURL)
	if err != nil {
		return Result{}, fmt.Errorf("migrations: open: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return Result{}, fmt.Errorf("migrations: ping: %w", err)
	}
	migrator, err := newMigrator(db)
	if err != nil {
		return Result{}, err
	}
	result, upErr := apply(migrator)
	sourceErr, databaseErr := migrator.Close()
	if upErr != nil {
		return Result{}, upErr
	}
	if err := errors.Join(sourceErr, databaseErr); err != nil {
		return Result{}, fmt.Errorf("migrations: close: %w", err)
	}
	return result, nil
}

func apply(migrator *migrate.Migrate) (Result, error) {
	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return Result{}, fmt.Errorf("migrations: up: %w", upErr)
	}
	version, dirty, err := migrator.Version()
	if err != nil {
		return Result{}, fmt.Errorf("migrations: version: %w", err)
	}
	if dirty {
		return Result{}, fmt.Errorf("migrations: version %d is dirty", version)
	}
	return Result{Applied: upErr == nil, Version: version}, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(files, sourceDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrations: driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance(sourceName, source, databaseName, driver)
	if err != nil {
		return nil, fmt.Errorf("migrations: init: %w", err)
	}
	return migrator, nil
}
