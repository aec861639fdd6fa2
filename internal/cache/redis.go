package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/voyagen/arematv/internal/log"
	"github.com/voyagen/arematv/internal/metrics"
)

// DefaultPrefix namespaces every key written through Redis.
const DefaultPrefix = "arematv:"

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache miss")

// Redis wraps a go-redis client with JSON helpers, key namespacing,
// pattern deletion and health checks.
type Redis struct {
	client *redis.Client
	prefix string
	flight singleflight.Group
}

// New parses a Redis URL (e.g. "redis://host:6379/0") and returns a
// client. Call Ping to verify the connection.
func New(rawURL string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewFromClient(redis.NewClient(opts)), nil
}

// NewFromClient wraps an existing client using DefaultPrefix.
func NewFromClient(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: DefaultPrefix}
}

// Ping checks the connection to Redis.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close shuts down the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Client returns the underlying go-redis client for direct access.
func (r *Redis) Client() *redis.Client {
	return r.client
}

// Key returns the namespaced form of key.
func (r *Redis) Key(key string) string {
	return r.prefix + key
}

// Get fetches key and JSON-unmarshals the value. ErrMiss is returned when
// the key does not exist.
func Get[T any](ctx context.Context, r *Redis, key string) (T, error) {
	var zero T
	raw, err := r.client.Get(ctx, r.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, ErrMiss
	}
	if err != nil {
		return zero, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, fmt.Errorf("cache unmarshal %s: %w", key, err)
	}
	return v, nil
}

// Set JSON-marshals v and stores it under key with the given TTL.
func Set(ctx context.Context, r *Redis, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}
	return r.client.Set(ctx, r.Key(key), data, ttl).Err()
}

// GetOrLoad serves key from Redis, otherwise calls load once per key across
// concurrent callers and caches its result for ttl. Redis failures degrade
// to calling load; load errors are returned and never cached.
func GetOrLoad[T any](ctx context.Context, r *Redis, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	logger := log.WithComponentFromContext(ctx, "cache")
	if v, err := Get[T](ctx, r, key); err == nil {
		metrics.RecordCacheLookup(true)
		return v, nil
	} else if !errors.Is(err, ErrMiss) {
		logger.Warn().Err(err).Str("key", key).Msg("cache get failed")
	}
	metrics.RecordCacheLookup(false)

	v, err, _ := r.flight.Do(key, func() (any, error) {
		// The flight is shared; one caller going away must not fail the rest.
		loadCtx := context.WithoutCancel(ctx)
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if err := Set(loadCtx, r, key, v, ttl); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("cache set failed")
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Del deletes one or more exact keys.
func Del(ctx context.Context, r *Redis, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.Key(k)
	}
	return r.client.Del(ctx, full...).Err()
}

// DelPattern deletes all keys matching a glob pattern (e.g. "series:*").
// It walks the keyspace with SCAN rather than KEYS.
func DelPattern(ctx context.Context, r *Redis, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.Key(pattern), 100).Result()
		if err != nil {
			return fmt.Errorf("cache scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache del pattern %s: %w", pattern, err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}
