package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationStatus describes the schema version recorded by golang-migrate.
type MigrationStatus struct {
	Version uint
	Dirty   bool
}

// Migrator applies the SQL migrations shipped under migrations/.
type Migrator struct {
	source string
	dsn    string
}

// NewMigrator builds a migrator. source is a golang-migrate URL such as file://migrations.
func NewMigrator(source, dsn string) *Migrator {
	return &Migrator{source: source, dsn: dsn}
}

func (m *Migrator) open() (*migrate.Migrate, error) {
	if m == nil || m.source == "" || m.dsn == "" {
		return nil, errors.New("platform/db: migrator requires source and dsn")
	}
	instance, err := migrate.New(m.source, m.dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: open migrations: %w", err)
	}
	return instance, nil
}

// Up applies every pending migration. No pending change is not an error.
func (m *Migrator) Up() error {
	instance, err := m.open()
	if err != nil {
		return err
	}
	defer closeMigrate(instance)
	if err := instance.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("platform/db: migrate up: %w", err)
	}
	return nil
}

// Down rolls back the given number of migrations.
func (m *Migrator) Down(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("platform/db: steps must be positive, got %d", steps)
	}
	instance, err := m.open()
	if err != nil {
		return err
	}
	defer closeMigrate(instance)
	if err := instance.Steps(-steps); err != nil {
		return fmt.Errorf("platform/db: migrate down: %w", err)
	}
	return nil
}

// Status reports the current schema version.
func (m *Migrator) Status() (MigrationStatus, error) {
	instance, err := m.open()
	if err != nil {
		return MigrationStatus{}, err
	}
	defer closeMigrate(instance)
	version, dirty, err := instance.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, nil
	}
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("platform/db: migrate version: %w", err)
	}
	return MigrationStatus{Version: version, Dirty: dirty}, nil
}

func closeMigrate(instance *migrate.Migrate) {
	_, _ = instance.Close()
}
