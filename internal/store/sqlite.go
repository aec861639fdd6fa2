package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLite implements Store on an embedded SQLite file. Vector search is not
// available and reports ErrUnsupported.
type SQLite struct {
	sqlStore
	conn *sql.DB
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the database at path with WAL,
// busy_timeout and foreign keys enabled on every pooled connection.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)",
		path, (5 * time.Second).Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &SQLite{sqlStore: sqlStore{db: sqlQuerier{db: db}}, conn: db}, nil
}

// DB exposes the underlying handle for migrations.
func (s *SQLite) DB() *sql.DB {
	return s.conn
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// Ping checks connectivity.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// sqlQuerier adapts database/sql to querier.
type sqlQuerier struct {
	db *sql.DB
}

func (q sqlQuerier) query(ctx context.Context, query string, args ...any) (rowsIter, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteError(err)
	}
	return sqlRows{rows: rows}, nil
}

func (q sqlQuerier) queryRow(ctx context.Context, query string, args ...any) rowScanner {
	return sqlRow{row: q.db.QueryRowContext(ctx, query, args...)}
}

func (q sqlQuerier) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, sqliteError(err)
	}
	return res.RowsAffected()
}

type sqlRows struct {
	rows *sql.Rows
}

func (r sqlRows) Next() bool             { return r.rows.Next() }
func (r sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r sqlRows) Err() error             { return r.rows.Err() }
func (r sqlRows) Close()                 { _ = r.rows.Close() }

type sqlRow struct {
	row *sql.Row
}

func (r sqlRow) Scan(dest ...any) error {
	return sqliteError(r.row.Scan(dest...))
}

// sqliteError maps driver errors onto the package sentinels.
func sqliteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", ErrConflict, err.Error())
	}
	return err
}
