package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/voyagen/arematv/internal/store/migrations"
)

// EnsurePgvector attempts to create the pgvector extension. If the current
// user lacks superuser privileges, it checks whether the extension already
// exists so that non-superuser roles can run the app once a DBA has created it.
func EnsurePgvector(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	_, err = db.Exec("CREATE EXTENSION IF NOT EXISTS vector")
	if err == nil {
		return nil
	}

	if strings.Contains(err.Error(), "permission denied") {
		var exists bool
		qErr := db.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&exists)
		if qErr != nil {
			return fmt.Errorf("check pgvector: %w (original: %w)", qErr, err)
		}
		if exists {
			return nil
		}
		return fmt.Errorf("pgvector extension is not installed and the current database user lacks permission to create it; "+
			"ask your database admin to run: CREATE EXTENSION vector; (original: %w)", err)
	}

	return fmt.Errorf("create pgvector extension: %w", err)
}

// RunMigrations applies the embedded PostgreSQL migrations against dsn.
func RunMigrations(dsn string) error {
	src, err := iofs.New(migrations.Postgres, "postgres")
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	return up(m)
}

// RunSQLiteMigrations applies the embedded SQLite migrations to s.
func RunSQLiteMigrations(s *SQLite) error {
	src, err := iofs.New(migrations.SQLite, "sqlite")
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.DB(), &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migrate sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	// Closing m would close the shared *sql.DB, so only the source is released.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate.Up: %w", err)
	}
	return src.Close()
}

func up(m *migrate.Migrate) error {
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate.Up: %w", err)
	}
	return nil
}
