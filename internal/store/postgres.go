package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/voyagen/arematv/internal/models"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Postgres implements Store using PostgreSQL with pgvector for series search.
type Postgres struct {
	sqlStore
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{sqlStore: sqlStore{db: pgQuerier{pool: pool}}, pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// ListSeriesWithoutEmbeddings returns up to limit series with a NULL embedding.
func (p *Postgres) ListSeriesWithoutEmbeddings(ctx context.Context, limit int) ([]models.Series, error) {
	q, args := pageClause(`SELECT `+seriesColumns+` FROM series s WHERE s.embedding IS NULL ORDER BY s.id`, nil, Page{Limit: limit})
	rows, err := p.db.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ListSeriesWithoutEmbeddings: %w", err)
	}
	series, err := collect(rows, scanSeries)
	if err != nil {
		return nil, fmt.Errorf("ListSeriesWithoutEmbeddings: %w", err)
	}
	return series, nil
}

// StoreSeriesEmbeddings writes one vector per series id in a single batch.
func (p *Postgres) StoreSeriesEmbeddings(ctx context.Context, seriesIDs []string, embeddings [][]float32) error {
	if len(seriesIDs) != len(embeddings) {
		return fmt.Errorf("StoreSeriesEmbeddings: %d ids but %d embeddings", len(seriesIDs), len(embeddings))
	}
	batch := &pgx.Batch{}
	for i, id := range seriesIDs {
		batch.Queue(`UPDATE series SET embedding = $1 WHERE id = $2`, pgvector.NewVector(embeddings[i]), id)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("StoreSeriesEmbeddings: %w", err)
	}
	return nil
}

// SearchSeries returns the series closest to query by cosine distance.
func (p *Postgres) SearchSeries(ctx context.Context, query []float32, limit int) ([]SeriesMatch, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.pool.Query(ctx,
		`SELECT `+seriesColumns+`, s.embedding <=> $1 AS distance
		 FROM series s
		 WHERE s.embedding IS NOT NULL
		 ORDER BY distance
		 LIMIT $2`,
		pgvector.NewVector(query), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("SearchSeries: %w", err)
	}
	matches, err := collect(rows, func(r rowScanner) (SeriesMatch, error) {
		var m SeriesMatch
		err := r.Scan(&m.ID, &m.Title, &m.Description, &m.ThumbnailURL, &m.Distance)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("SearchSeries: %w", err)
	}
	return matches, nil
}

// pgQuerier adapts a pgx pool to querier, rebinding '?' to $n.
type pgQuerier struct {
	pool *pgxpool.Pool
}

func (q pgQuerier) query(ctx context.Context, sql string, args ...any) (rowsIter, error) {
	rows, err := q.pool.Query(ctx, rebind(sql), args...)
	if err != nil {
		return nil, pgError(err)
	}
	return rows, nil
}

func (q pgQuerier) queryRow(ctx context.Context, sql string, args ...any) rowScanner {
	return pgRow{row: q.pool.QueryRow(ctx, rebind(sql), args...)}
}

func (q pgQuerier) exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := q.pool.Exec(ctx, rebind(sql), args...)
	if err != nil {
		return 0, pgError(err)
	}
	return tag.RowsAffected(), nil
}

type pgRow struct {
	row pgx.Row
}

func (r pgRow) Scan(dest ...any) error {
	return pgError(r.row.Scan(dest...))
}

// pgError maps driver errors onto the package sentinels.
func pgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// rebind rewrites '?' placeholders as $1, $2, ...
func rebind(q string) string {
	n := strings.Count(q, "?")
	if n == 0 {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + n*2)
	i := 0
	for _, r := range q {
		if r == '?' {
			i++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(i))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
