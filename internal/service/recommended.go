package service

import (
	"context"
	"strings"
	"time"

	"github.com/voyagen/arematv/internal/batch"
	"github.com/voyagen/arematv/internal/log"
	"github.com/voyagen/arematv/internal/metrics"
	"github.com/voyagen/arematv/internal/models"
	"github.com/voyagen/arematv/internal/store"
)

// RecommendedOptions configures the recommendation batcher.
type RecommendedOptions struct {
	Window         time.Duration
	MaxSize        int
	OptimizeImages bool
}

// Recommended serves recommendation modules per reference id. Lookups
// arriving within one window are answered by a single store query.
type Recommended struct {
	batcher  *batch.Batcher[string, []models.RecommendedModule]
	optimize bool
}

// NewRecommended returns a Recommended reading from s. Call Close to stop
// its batcher.
func NewRecommended(s store.Store, opts RecommendedOptions) *Recommended {
	fetch := func(ctx context.Context, ids []string) (map[string][]models.RecommendedModule, error) {
		logger := log.WithComponentFromContext(ctx, "recommended")
		logger.Debug().Int(log.FieldBatchSize, len(ids)).Msg("fetching batch")
		return s.ListRecommendedModules(ctx, ids)
	}
	return &Recommended{
		batcher: batch.New(fetch, batch.Options{
			Window:  opts.Window,
			MaxSize: opts.MaxSize,
			OnFlush: func(n int) { metrics.ObserveBatch("recommended", n) },
		}),
		optimize: opts.OptimizeImages,
	}
}

// Get returns the modules for referenceID ordered by module order. A
// reference without modules yields an empty slice.
func (r *Recommended) Get(ctx context.Context, referenceID string) ([]models.RecommendedModule, error) {
	modules, err := r.batcher.Load(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if modules == nil {
		return []models.RecommendedModule{}, nil
	}
	if r.optimize {
		modules = optimizeModules(modules)
	}
	return modules, nil
}

// Close stops the batcher; pending lookups fail with batch.ErrClosed.
func (r *Recommended) Close() {
	r.batcher.Close()
}

// optimizeModules rewrites thumbnail URLs on a copy of modules. The batch
// result is shared between callers and must not be mutated.
func optimizeModules(in []models.RecommendedModule) []models.RecommendedModule {
	out := make([]models.RecommendedModule, len(in))
	for i, m := range in {
		items := make([]models.RecommendedItem, len(m.Items))
		for j, it := range m.Items {
			if it.Series != nil {
				s := optimizeSeries(*it.Series)
				it.Series = &s
			}
			if it.Episode != nil {
				e := *it.Episode
				e.ThumbnailURL = OptimizeImageURL(e.ThumbnailURL)
				e.Series = optimizeSeries(e.Series)
				it.Episode = &e
			}
			items[j] = it
		}
		m.Items = items
		out[i] = m
	}
	return out
}

func optimizeSeries(s models.SeriesDetail) models.SeriesDetail {
	s.ThumbnailURL = OptimizeImageURL(s.ThumbnailURL)
	episodes := make([]models.Episode, len(s.Episodes))
	for i, e := range s.Episodes {
		e.ThumbnailURL = OptimizeImageURL(e.ThumbnailURL)
		episodes[i] = e
	}
	s.Episodes = episodes
	return s
}

// OptimizeImageURL points a JPEG thumbnail at its WebP rendition and drops
// any query string.
func OptimizeImageURL(raw string) string {
	path, _, _ := strings.Cut(raw, "?")
	for _, ext := range []string{".jpeg", ".jpg"} {
		if base, ok := strings.CutSuffix(path, ext); ok {
			return base + ".webp"
		}
	}
	return path
}
