package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	applog "finanzas/internal/log"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

// openMigrator returns a migrator bound to its own connection; closing the
// migrator closes that connection too.
func openMigrator(dsn string) (*migrate.Migrate, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open schema connection: %w", err)
	}
	target, err := sqlite.WithInstance(conn, &sqlite.Config{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite migrate driver: %w", err)
	}
	src, err := iofs.New(schemaFS, "migrations")
	if err != nil {
		target.Close()
		return nil, fmt.Errorf("embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", target)
	if err != nil {
		target.Close()
		return nil, fmt.Errorf("new migrator: %w", err)
	}
	return m, nil
}

// schemaVersion reports the applied version; 0 means a fresh database.
func schemaVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, err
	case dirty:
		return v, fmt.Errorf("schema version %d is dirty", v)
	}
	return v, nil
}

// RunMigrations brings the records schema at dsn up to the latest version.
func RunMigrations(dsn string, logger *applog.Logger) error {
	m, err := openMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	from, err := schemaVersion(m)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("apply migrations from %d: %w", from, err)
	}
	to, _ := schemaVersion(m)
	logger.Info("schema migrated", "from", from, "to", to)
	return nil
}
