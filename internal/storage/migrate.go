package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// MigrationStatus describes the schema version of a database.
type MigrationStatus struct {
	Version uint
	Dirty   bool
}

// Migrator applies the embedded schema migrations for one dialect.
//
// Close releases the migration driver, which for sqlite also closes the
// handle passed to NewMigrator. Give the migrator its own *sql.DB.
type Migrator struct {
	m *migrate.Migrate
}

// NewMigrator creates a migrator backed by db.
func NewMigrator(db *sql.DB, driver string) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	dir := "migrations/postgres"
	name := DriverPostgres
	var instance database.Driver
	switch d {
	case dialectSQLite:
		dir = "migrations/sqlite"
		name = DriverSQLite
		instance, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		instance, err = postgres.WithInstance(db, &postgres.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, name, instance)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Up applies pending migrations. If steps <= 0, apply all.
func (m *Migrator) Up(steps int) error {
	var err error
	if steps > 0 {
		err = m.m.Steps(steps)
	} else {
		err = m.m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back steps migrations. If steps <= 0, roll back everything.
func (m *Migrator) Down(steps int) error {
	var err error
	if steps > 0 {
		err = m.m.Steps(-steps)
	} else {
		err = m.m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// Status reports the current schema version. A fresh database is version 0.
func (m *Migrator) Status() (MigrationStatus, error) {
	version, dirty, err := m.m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return MigrationStatus{}, nil
		}
		return MigrationStatus{}, fmt.Errorf("migration status: %w", err)
	}
	return MigrationStatus{Version: version, Dirty: dirty}, nil
}

// Close releases the source and database drivers.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

// MigrateDSN opens a dedicated connection for driver and applies all pending
// migrations.
func MigrateDSN(driver, dsn string) error {
	db, err := OpenDB(driver, dsn, DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	migrator, err := NewMigrator(db, driver)
	if err != nil {
		return err
	}
	defer migrator.Close() //nolint:errcheck
	return migrator.Up(0)
}
