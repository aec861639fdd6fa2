package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/voyagen/arematv/internal/cache"
	"github.com/voyagen/arematv/internal/embedding"
	"github.com/voyagen/arematv/internal/log"
	"github.com/voyagen/arematv/internal/metrics"
	"github.com/voyagen/arematv/internal/models"
	"github.com/voyagen/arematv/internal/store"
)

// ErrSearchUnavailable is returned when semantic search is not configured.
var ErrSearchUnavailable = errors.New("semantic search is not configured")

const embedPageSize = 128

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string, inputType string) ([][]float32, error)
	EmbedBatch(ctx context.Context, texts []string, inputType string, batchSize int, onProgress ...embedding.ProgressFunc) ([][]float32, error)
}

// seriesText is the document embedded for a series.
func seriesText(s models.Series) string {
	return strings.TrimSpace(s.Title + "\n" + s.Description)
}

// RefreshEmbeddings embeds every series that has no vector yet and returns
// how many were stored.
func RefreshEmbeddings(ctx context.Context, s store.Store, emb Embedder) (int, error) {
	logger := log.WithComponentFromContext(ctx, "embeddings")
	total := 0
	for {
		series, err := s.ListSeriesWithoutEmbeddings(ctx, embedPageSize)
		if err != nil {
			return total, err
		}
		if len(series) == 0 {
			break
		}
		n, err := embedSeries(ctx, s, emb, series)
		if err != nil {
			return total, err
		}
		total += n
		logger.Info().Int("embedded", total).Msg("embedding progress")
	}
	return total, nil
}

// EmbedSeries (re)embeds the given series regardless of existing vectors.
func EmbedSeries(ctx context.Context, s store.Store, emb Embedder, seriesIDs []string) (int, error) {
	series := make([]models.Series, 0, len(seriesIDs))
	for _, id := range lo.Uniq(seriesIDs) {
		d, err := s.GetSeries(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		series = append(series, d.Series)
	}
	return embedSeries(ctx, s, emb, series)
}

func embedSeries(ctx context.Context, s store.Store, emb Embedder, series []models.Series) (int, error) {
	if len(series) == 0 {
		return 0, nil
	}
	texts := lo.Map(series, func(sr models.Series, _ int) string { return seriesText(sr) })
	vecs, err := emb.EmbedBatch(ctx, texts, "document", embedPageSize)
	if err != nil {
		return 0, fmt.Errorf("embed series: %w", err)
	}
	ids := lo.Map(series, func(sr models.Series, _ int) string { return sr.ID })
	if err := s.StoreSeriesEmbeddings(ctx, ids, vecs); err != nil {
		return 0, err
	}
	metrics.AddEmbeddings(len(ids))
	return len(ids), nil
}

// SearchSeries embeds query and returns the nearest series.
func SearchSeries(ctx context.Context, s store.Store, emb Embedder, query string, limit int) ([]store.SeriesMatch, error) {
	if emb == nil {
		return nil, ErrSearchUnavailable
	}
	vecs, err := emb.Embed(ctx, []string{query}, "query")
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, errors.New("embed query: empty embedding")
	}
	matches, err := s.SearchSeries(ctx, vecs[0], limit)
	if errors.Is(err, store.ErrUnsupported) {
		return nil, ErrSearchUnavailable
	}
	return matches, err
}

// RunEmbeddingWorker dequeues embedding jobs until ctx is cancelled.
func RunEmbeddingWorker(ctx context.Context, r *cache.Redis, s store.Store, emb Embedder) {
	logger := log.WithComponentFromContext(ctx, "embedding-worker")
	logger.Info().Msg("embedding worker started")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("embedding worker stopping")
			return
		default:
		}

		job, err := cache.Dequeue(ctx, r, cache.DefaultQueue, 5*time.Second)
		if err != nil {
			logger.Error().Err(err).Msg("dequeue failed")
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		if err := ProcessEmbeddingJob(ctx, s, emb, *job); err != nil {
			logger.Error().Err(err).Str("reason", job.Reason).Msg("embedding job failed")
		}
	}
}

// ProcessEmbeddingJob runs one queued job.
func ProcessEmbeddingJob(ctx context.Context, s store.Store, emb Embedder, job cache.EmbeddingJob) error {
	logger := log.WithComponentFromContext(ctx, "embedding-worker")
	var (
		n   int
		err error
	)
	if len(job.SeriesIDs) > 0 {
		n, err = EmbedSeries(ctx, s, emb, job.SeriesIDs)
	} else {
		n, err = RefreshEmbeddings(ctx, s, emb)
	}
	if err != nil {
		return err
	}
	logger.Info().Int("embedded", n).Str("reason", job.Reason).Msg("embedding job done")
	return nil
}
