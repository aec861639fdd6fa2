package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voyagen/arematv/internal/cache"
	"github.com/voyagen/arematv/internal/log"
	"github.com/voyagen/arematv/internal/models"
	"github.com/voyagen/arematv/internal/store"
	"github.com/voyagen/arematv/internal/timetable"
)

const seedLockTTL = 10 * time.Minute

// Fixture is the YAML seed document.
type Fixture struct {
	Streams     []FixtureStream      `yaml:"streams"`
	Series      []FixtureSeries      `yaml:"series"`
	Episodes    []FixtureEpisode     `yaml:"episodes"`
	Channels    []FixtureChannel     `yaml:"channels"`
	Programs    []models.ProgramSlot `yaml:"programs"`
	Recommended []FixtureModule      `yaml:"recommended"`
}

type FixtureStream struct {
	ID             string `yaml:"id"`
	NumberOfChunks int    `yaml:"numberOfChunks"`
}

type FixtureSeries struct {
	ID           string `yaml:"id"`
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	ThumbnailURL string `yaml:"thumbnailUrl"`
}

type FixtureEpisode struct {
	ID           string `yaml:"id"`
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	ThumbnailURL string `yaml:"thumbnailUrl"`
	Order        int    `yaml:"order"`
	SeriesID     string `yaml:"seriesId"`
	StreamID     string `yaml:"streamId"`
	Premium      bool   `yaml:"premium"`
}

type FixtureChannel struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	LogoURL string `yaml:"logoUrl"`
}

type FixtureModule struct {
	ID          string        `yaml:"id"`
	Order       int           `yaml:"order"`
	Title       string        `yaml:"title"`
	ReferenceID string        `yaml:"referenceId"`
	Type        string        `yaml:"type"`
	Items       []FixtureItem `yaml:"items"`
}

type FixtureItem struct {
	ID        string `yaml:"id"`
	Order     int    `yaml:"order"`
	SeriesID  string `yaml:"seriesId"`
	EpisodeID string `yaml:"episodeId"`
}

// SeedStats counts the rows written by Seed.
type SeedStats struct {
	Streams, Series, Episodes, Channels, Programs, Modules, Items int
}

// LoadFixture reads and validates a YAML fixture.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks clocks, module types and item targets.
func (f *Fixture) Validate() error {
	var errs []error
	for _, p := range f.Programs {
		if _, _, _, err := timetable.ParseClock(p.StartAt); err != nil {
			errs = append(errs, fmt.Errorf("program %s: startAt: %w", p.ID, err))
		}
		if _, _, _, err := timetable.ParseClock(p.EndAt); err != nil {
			errs = append(errs, fmt.Errorf("program %s: endAt: %w", p.ID, err))
		}
	}
	for _, s := range f.Streams {
		if s.NumberOfChunks <= 0 {
			errs = append(errs, fmt.Errorf("stream %s: numberOfChunks must be positive", s.ID))
		}
	}
	for _, m := range f.Recommended {
		if m.Type != models.ModuleTypeCarousel && m.Type != models.ModuleTypeJumbotron {
			errs = append(errs, fmt.Errorf("module %s: unknown type %q", m.ID, m.Type))
		}
		for _, it := range m.Items {
			if (it.SeriesID == "") == (it.EpisodeID == "") {
				errs = append(errs, fmt.Errorf("module %s item %s: exactly one of seriesId and episodeId is required", m.ID, it.ID))
			}
		}
	}
	return errors.Join(errs...)
}

// Seed upserts every fixture row in dependency order. When r is non-nil the
// run holds a Redis lock so concurrent seeders do not interleave, and an
// embedding job is queued afterwards for the new series.
func Seed(ctx context.Context, s store.Store, f *Fixture, r *cache.Redis) (SeedStats, error) {
	var stats SeedStats
	if err := f.Validate(); err != nil {
		return stats, err
	}
	logger := log.WithComponentFromContext(ctx, "seed")

	if r != nil {
		unlock, err := cache.TryLock(ctx, r, "seed", seedLockTTL)
		if err != nil {
			return stats, fmt.Errorf("seed lock: %w", err)
		}
		defer unlock()
	}

	for _, st := range f.Streams {
		if err := s.UpsertStream(ctx, models.Stream{ID: st.ID, NumberOfChunks: st.NumberOfChunks}); err != nil {
			return stats, err
		}
		stats.Streams++
	}
	for _, sr := range f.Series {
		if err := s.UpsertSeries(ctx, models.Series{ID: sr.ID, Title: sr.Title, Description: sr.Description, ThumbnailURL: sr.ThumbnailURL}); err != nil {
			return stats, err
		}
		stats.Series++
	}
	for _, e := range f.Episodes {
		if err := s.UpsertEpisode(ctx, models.Episode{
			ID: e.ID, Title: e.Title, Description: e.Description, ThumbnailURL: e.ThumbnailURL,
			Order: e.Order, SeriesID: e.SeriesID, StreamID: e.StreamID, Premium: e.Premium,
		}); err != nil {
			return stats, err
		}
		stats.Episodes++
	}
	for _, c := range f.Channels {
		if err := s.UpsertChannel(ctx, models.Channel{ID: c.ID, Name: c.Name, LogoURL: c.LogoURL}); err != nil {
			return stats, err
		}
		stats.Channels++
	}
	for _, p := range f.Programs {
		if err := s.UpsertProgram(ctx, p); err != nil {
			return stats, err
		}
		stats.Programs++
	}
	for _, m := range f.Recommended {
		if err := s.UpsertRecommendedModule(ctx, models.RecommendedModule{
			ID: m.ID, Order: m.Order, Title: m.Title, ReferenceID: m.ReferenceID, Type: m.Type,
		}); err != nil {
			return stats, err
		}
		stats.Modules++
		for _, it := range m.Items {
			item := models.RecommendedItem{ID: it.ID, Order: it.Order, ModuleID: m.ID}
			if it.SeriesID != "" {
				item.SeriesID = &it.SeriesID
			} else {
				item.EpisodeID = &it.EpisodeID
			}
			if err := s.UpsertRecommendedItem(ctx, item); err != nil {
				return stats, err
			}
			stats.Items++
		}
	}

	logger.Info().
		Int("streams", stats.Streams).
		Int("series", stats.Series).
		Int("episodes", stats.Episodes).
		Int("channels", stats.Channels).
		Int("programs", stats.Programs).
		Int("modules", stats.Modules).
		Int("items", stats.Items).
		Msg("seed complete")

	if r != nil && stats.Series > 0 {
		if err := cache.Enqueue(ctx, r, cache.DefaultQueue, cache.EmbeddingJob{Reason: "seed"}); err != nil {
			logger.Warn().Err(err).Msg("queue embedding job failed")
		}
	}
	return stats, nil
}
