package store

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/voyagen/arematv/internal/cache"
	"github.com/voyagen/arematv/internal/log"
	"github.com/voyagen/arematv/internal/models"
)

// Cache TTLs for different entity types.
const (
	ttlList        = 1 * time.Minute
	ttlSeries      = 5 * time.Minute
	ttlEpisode     = 5 * time.Minute
	ttlStream      = 10 * time.Minute
	ttlChannels    = 5 * time.Minute
	ttlProgram     = 1 * time.Minute
	ttlTimetable   = 1 * time.Minute
	ttlRecommended = 2 * time.Minute
	ttlSearch      = 2 * time.Minute
)

// CachedStore wraps a Store with a Redis read-through cache. Reads of
// catalog data are served from Redis when possible and concurrent misses
// for the same key share one backend query; writes invalidate the keys they
// may have made stale. Users are never cached.
type CachedStore struct {
	inner Store
	cache *cache.Redis
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis) *CachedStore {
	return &CachedStore{inner: inner, cache: c}
}

// --- cached read operations ---

func (c *CachedStore) ListSeries(ctx context.Context, page Page) ([]models.Series, error) {
	return cache.GetOrLoad(ctx, c.cache, fmt.Sprintf("series:list:%d:%d", page.Limit, page.Offset), ttlList,
		func(ctx context.Context) ([]models.Series, error) {
			return c.inner.ListSeries(ctx, page)
		})
}

func (c *CachedStore) GetSeries(ctx context.Context, seriesID string) (*models.SeriesDetail, error) {
	return cache.GetOrLoad(ctx, c.cache, "series:"+seriesID, ttlSeries,
		func(ctx context.Context) (*models.SeriesDetail, error) {
			return c.inner.GetSeries(ctx, seriesID)
		})
}

func (c *CachedStore) ListEpisodes(ctx context.Context, page Page) ([]models.Episode, error) {
	return cache.GetOrLoad(ctx, c.cache, fmt.Sprintf("episode:list:%d:%d", page.Limit, page.Offset), ttlList,
		func(ctx context.Context) ([]models.Episode, error) {
			return c.inner.ListEpisodes(ctx, page)
		})
}

func (c *CachedStore) GetEpisode(ctx context.Context, episodeID string) (*models.EpisodeDetail, error) {
	return cache.GetOrLoad(ctx, c.cache, "episode:"+episodeID, ttlEpisode,
		func(ctx context.Context) (*models.EpisodeDetail, error) {
			return c.inner.GetEpisode(ctx, episodeID)
		})
}

func (c *CachedStore) GetStream(ctx context.Context, streamID string) (*models.Stream, error) {
	return cache.GetOrLoad(ctx, c.cache, "stream:"+streamID, ttlStream,
		func(ctx context.Context) (*models.Stream, error) {
			return c.inner.GetStream(ctx, streamID)
		})
}

func (c *CachedStore) ListChannels(ctx context.Context) ([]models.Channel, error) {
	return cache.GetOrLoad(ctx, c.cache, "channel:list", ttlChannels, c.inner.ListChannels)
}

func (c *CachedStore) GetChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	return cache.GetOrLoad(ctx, c.cache, "channel:"+channelID, ttlChannels,
		func(ctx context.Context) (*models.Channel, error) {
			return c.inner.GetChannel(ctx, channelID)
		})
}

func (c *CachedStore) ListPrograms(ctx context.Context, page Page) ([]models.ProgramSlot, error) {
	return cache.GetOrLoad(ctx, c.cache, fmt.Sprintf("program:list:%d:%d", page.Limit, page.Offset), ttlList,
		func(ctx context.Context) ([]models.ProgramSlot, error) {
			return c.inner.ListPrograms(ctx, page)
		})
}

func (c *CachedStore) GetProgram(ctx context.Context, programID string) (*models.ProgramSlot, error) {
	return cache.GetOrLoad(ctx, c.cache, "program:"+programID, ttlProgram,
		func(ctx context.Context) (*models.ProgramSlot, error) {
			return c.inner.GetProgram(ctx, programID)
		})
}

func (c *CachedStore) ListProgramsByChannel(ctx context.Context, channelID string) ([]models.ProgramSlot, error) {
	return cache.GetOrLoad(ctx, c.cache, "program:channel:"+channelID, ttlTimetable,
		func(ctx context.Context) ([]models.ProgramSlot, error) {
			return c.inner.ListProgramsByChannel(ctx, channelID)
		})
}

func (c *CachedStore) ListTimetable(ctx context.Context) ([]models.ProgramSlot, error) {
	return cache.GetOrLoad(ctx, c.cache, "program:timetable", ttlTimetable, c.inner.ListTimetable)
}

// ListRecommendedModules caches the combined result of each batch keyed by
// its sorted reference ids.
func (c *CachedStore) ListRecommendedModules(ctx context.Context, referenceIDs []string) (map[string][]models.RecommendedModule, error) {
	ids := slices.Clone(referenceIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	return cache.GetOrLoad(ctx, c.cache, "recommended:"+hashKey(strings.Join(ids, "\x00")), ttlRecommended,
		func(ctx context.Context) (map[string][]models.RecommendedModule, error) {
			return c.inner.ListRecommendedModules(ctx, ids)
		})
}

func (c *CachedStore) SearchSeries(ctx context.Context, query []float32, limit int) ([]SeriesMatch, error) {
	return cache.GetOrLoad(ctx, c.cache, fmt.Sprintf("search:%s:%d", vecHash(query), limit), ttlSearch,
		func(ctx context.Context) ([]SeriesMatch, error) {
			return c.inner.SearchSeries(ctx, query, limit)
		})
}

// --- pass-through operations ---

func (c *CachedStore) CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	return c.inner.CreateUser(ctx, email, passwordHash)
}

func (c *CachedStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return c.inner.GetUserByEmail(ctx, email)
}

func (c *CachedStore) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	return c.inner.GetUserByID(ctx, userID)
}

func (c *CachedStore) ListSeriesWithoutEmbeddings(ctx context.Context, limit int) ([]models.Series, error) {
	return c.inner.ListSeriesWithoutEmbeddings(ctx, limit)
}

func (c *CachedStore) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}

// --- write operations with cache invalidation ---

func (c *CachedStore) UpsertStream(ctx context.Context, s models.Stream) error {
	if err := c.inner.UpsertStream(ctx, s); err != nil {
		return err
	}
	c.invalidate(ctx, "stream:"+s.ID)
	return nil
}

func (c *CachedStore) UpsertSeries(ctx context.Context, s models.Series) error {
	if err := c.inner.UpsertSeries(ctx, s); err != nil {
		return err
	}
	// Series are embedded in episode and recommendation payloads.
	c.invalidatePattern(ctx, "series:*", "episode:*", "recommended:*", "search:*")
	return nil
}

func (c *CachedStore) UpsertEpisode(ctx context.Context, e models.Episode) error {
	if err := c.inner.UpsertEpisode(ctx, e); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "series:*", "episode:*", "recommended:*")
	return nil
}

func (c *CachedStore) UpsertChannel(ctx context.Context, ch models.Channel) error {
	if err := c.inner.UpsertChannel(ctx, ch); err != nil {
		return err
	}
	c.invalidate(ctx, "channel:"+ch.ID, "channel:list")
	return nil
}

func (c *CachedStore) UpsertProgram(ctx context.Context, p models.ProgramSlot) error {
	if err := c.inner.UpsertProgram(ctx, p); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "program:*")
	return nil
}

func (c *CachedStore) UpsertRecommendedModule(ctx context.Context, m models.RecommendedModule) error {
	if err := c.inner.UpsertRecommendedModule(ctx, m); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "recommended:*")
	return nil
}

func (c *CachedStore) UpsertRecommendedItem(ctx context.Context, it models.RecommendedItem) error {
	if err := c.inner.UpsertRecommendedItem(ctx, it); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "recommended:*")
	return nil
}

func (c *CachedStore) StoreSeriesEmbeddings(ctx context.Context, seriesIDs []string, embeddings [][]float32) error {
	if err := c.inner.StoreSeriesEmbeddings(ctx, seriesIDs, embeddings); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "search:*")
	return nil
}

// --- helpers ---

func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := cache.Del(ctx, c.cache, keys...); err != nil {
		logger := log.WithComponentFromContext(ctx, "store")
		logger.Warn().Err(err).Strs("keys", keys).Msg("cache invalidate failed")
	}
}

func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	logger := log.WithComponentFromContext(ctx, "store")
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil {
			logger.Warn().Err(err).Str("pattern", p).Msg("cache invalidate failed")
		}
	}
}

// hashKey returns a short, deterministic digest of s.
func hashKey(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:8])
}

// vecHash returns a short, deterministic hash of a float32 vector.
func vecHash(v []float32) string {
	h := sha256.New()
	buf := make([]byte, 4)
	for _, f := range v {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
		h.Write(buf)
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:8])
}
