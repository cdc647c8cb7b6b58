package sqlstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

const migrationsTable = "schema_migrations"

// Migrate brings the schema at dsn up to date without keeping a handle open.
func Migrate(ctx context.Context, driver, dsn string) error {
	s, err := New(ctx, driver, dsn)
	if err != nil {
		return err
	}
	return s.Close()
}

// migrateUp applies the embedded migrations for the store's driver. SQLite
// migrates through the store's own handle so ":memory:" databases see the
// schema; Postgres uses a separate connection that is closed afterwards.
func (s *Storage) migrateUp(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations/"+s.driver)
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	var m *migrate.Migrate
	switch s.driver {
	case DriverSQLite:
		driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{MigrationsTable: migrationsTable})
		if err != nil {
			_ = src.Close()
			return fmt.Errorf("create sqlite migrate driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite", driver)
		if err != nil {
			_ = src.Close()
			return fmt.Errorf("create migrate instance: %w", err)
		}
		// Closing m would close s.db as well; only release the source.
		defer src.Close()
	default:
		m, err = migrate.NewWithSourceInstance("iofs", src, withMigrationsTable(dsn))
		if err != nil {
			_ = src.Close()
			return fmt.Errorf("create migrate instance: %w", err)
		}
		defer m.Close()
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func withMigrationsTable(dsn string) string {
	sep := "?"
	if strings.ContainsRune(dsn, '?') {
		sep = "&"
	}
	return dsn + sep + "x-migrations-table=" + migrationsTable
}
