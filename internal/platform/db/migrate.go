package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// MigrationStatus is the migration state of one tenant schema.
type MigrationStatus struct {
	Schema  string `json:"schema"`
	Version uint   `json:"version"`
	Dirty   bool   `json:"dirty"`
	Applied bool   `json:"applied"`
}

// Migrator applies the embedded SQL migrations to tenant schemas. Each schema
// keeps its own schema_migrations table.
type Migrator struct {
	databaseURL string
	source      fs.FS
}

func NewMigrator(databaseURL string, source fs.FS) *Migrator {
	return &Migrator{databaseURL: databaseURL, source: source}
}

func (m *Migrator) open(schema string) (*migrate.Migrate, error) {
	connCfg, err := pgx.ParseConfig(m.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	connCfg.RuntimeParams["search_path"] = schema

	sqlDB := stdlib.OpenDB(*connCfg)
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{SchemaName: schema})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migration driver for %s: %w", schema, err)
	}

	src, err := iofs.New(m.source, ".")
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("load migrations: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("init migrator for %s: %w", schema, err)
	}
	return mg, nil
}

// run stops the migration between steps when ctx is cancelled.
func (m *Migrator) run(ctx context.Context, schema string, fn func(mg *migrate.Migrate) error) (MigrationStatus, error) {
	if err := ctx.Err(); err != nil {
		return MigrationStatus{Schema: schema}, err
	}

	mg, err := m.open(schema)
	if err != nil {
		return MigrationStatus{Schema: schema}, err
	}
	defer mg.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mg.GracefulStop <- true
		case <-done:
		}
	}()

	if err := fn(mg); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return MigrationStatus{Schema: schema}, err
	}
	return status(mg, schema)
}

func status(mg *migrate.Migrate, schema string) (MigrationStatus, error) {
	version, dirty, err := mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{Schema: schema}, nil
	}
	if err != nil {
		return MigrationStatus{Schema: schema}, fmt.Errorf("read migration version for %s: %w", schema, err)
	}
	return MigrationStatus{Schema: schema, Version: version, Dirty: dirty, Applied: true}, nil
}

// Up applies every pending migration to schema.
func (m *Migrator) Up(ctx context.Context, schema string) (MigrationStatus, error) {
	st, err := m.run(ctx, schema, func(mg *migrate.Migrate) error { return mg.Up() })
	if err != nil {
		return st, fmt.Errorf("migrate up %s: %w", schema, err)
	}
	return st, nil
}

// Down rolls back the most recent migration of schema.
func (m *Migrator) Down(ctx context.Context, schema string) (MigrationStatus, error) {
	st, err := m.run(ctx, schema, func(mg *migrate.Migrate) error { return mg.Steps(-1) })
	if err != nil {
		return st, fmt.Errorf("migrate down %s: %w", schema, err)
	}
	return st, nil
}

// Status reports the current version of schema without changing it.
func (m *Migrator) Status(ctx context.Context, schema string) (MigrationStatus, error) {
	return m.run(ctx, schema, func(*migrate.Migrate) error { return nil })
}
