package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/arematv/internal/log"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("not a url")
	require.Error(t, err)
}

func TestGetSet_RoundTripWithPrefix(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	_, err := Get[payload](ctx, r, "series:1")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, Set(ctx, r, "series:1", payload{Name: "a", Count: 2}, time.Minute))
	assert.True(t, mr.Exists("arematv:series:1"))
	assert.Equal(t, time.Minute, mr.TTL("arematv:series:1"))

	got, err := Get[payload](ctx, r, "series:1")
	require.NoError(t, err)
	assert.Equal(t, payload{Name: "a", Count: 2}, got)
}

func TestGet_CorruptValue(t *testing.T) {
	r, mr := newTestRedis(t)
	require.NoError(t, mr.Set("arematv:bad", "{not json"))

	_, err := Get[payload](context.Background(), r, "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}

func TestGetOrLoad(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()
	var calls atomic.Int32
	load := func(context.Context) (payload, error) {
		calls.Add(1)
		return payload{Name: "loaded"}, nil
	}

	v, err := GetOrLoad(ctx, r, "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v.Name)

	v, err = GetOrLoad(ctx, r, "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "loaded", v.Name)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrLoad_ErrorNotCached(t *testing.T) {
	r, mr := newTestRedis(t)
	boom := errors.New("boom")

	_, err := GetOrLoad(context.Background(), r, "k", time.Minute, func(context.Context) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("arematv:k"))
}

func TestGetOrLoad_CollapsesConcurrentMisses(t *testing.T) {
	r, _ := newTestRedis(t)
	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := GetOrLoad(context.Background(), r, "hot", time.Minute, load)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 42, v)
	}
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestGetOrLoad_CancelledCallerDoesNotFailFlight(t *testing.T) {
	r, mr := newTestRedis(t)
	started := make(chan struct{})
	release := make(chan struct{})
	load := func(ctx context.Context) (int, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 7, nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := GetOrLoad(firstCtx, r, "shared", time.Minute, load)
		first <- err
	}()
	<-started

	second := make(chan int, 1)
	go func() {
		v, err := GetOrLoad(context.Background(), r, "shared", time.Minute, load)
		assert.NoError(t, err)
		second <- v
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(release)

	require.NoError(t, <-first)
	assert.Equal(t, 7, <-second)
	assert.True(t, mr.Exists("arematv:shared"))
}

func TestGetOrLoad_LogsCorruptEntry(t *testing.T) {
	var buf bytes.Buffer
	log.Configure(log.Config{Output: &buf, Level: "debug"})
	t.Cleanup(func() { log.Configure(log.Config{}) })

	r, mr := newTestRedis(t)
	require.NoError(t, mr.Set("arematv:bad", "{not json"))

	v, err := GetOrLoad(context.Background(), r, "bad", time.Minute, func(context.Context) (payload, error) {
		return payload{Name: "fresh"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v.Name)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.SplitN(buf.Bytes(), []byte("\n"), 2)[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "cache", entry[log.FieldComponent])
	assert.Equal(t, "bad", entry["key"])
}

func TestDelAndDelPattern(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()
	for _, k := range []string{"series:1", "series:2", "episode:1"} {
		require.NoError(t, Set(ctx, r, k, 1, time.Minute))
	}

	require.NoError(t, Del(ctx, r))
	require.NoError(t, Del(ctx, r, "episode:1"))
	assert.False(t, mr.Exists("arematv:episode:1"))

	require.NoError(t, DelPattern(ctx, r, "series:*"))
	assert.False(t, mr.Exists("arematv:series:1"))
	assert.False(t, mr.Exists("arematv:series:2"))
}

func TestTryLock(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	unlock, err := TryLock(ctx, r, "seed", time.Minute)
	require.NoError(t, err)
	assert.True(t, IsLocked(ctx, r, "seed"))

	_, err = TryLock(ctx, r, "seed", time.Minute)
	require.ErrorIs(t, err, ErrLocked)

	unlock()
	assert.False(t, IsLocked(ctx, r, "seed"))
	assert.False(t, mr.Exists("arematv:lock:seed"))

	unlock2, err := TryLock(ctx, r, "seed", time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestTryLock_UnlockKeepsForeignToken(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	unlock, err := TryLock(ctx, r, "seed", time.Minute)
	require.NoError(t, err)

	// Lock expired and was taken by someone else.
	require.NoError(t, mr.Set("arematv:lock:seed", "other-holder"))
	unlock()

	got, err := mr.Get("arematv:lock:seed")
	require.NoError(t, err)
	assert.Equal(t, "other-holder", got)
}

func TestQueue_FIFO(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, Enqueue(ctx, r, DefaultQueue, EmbeddingJob{SeriesIDs: []string{"a"}}))
	require.NoError(t, Enqueue(ctx, r, DefaultQueue, EmbeddingJob{Reason: "seed"}))

	n, err := Len(ctx, r, DefaultQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	first, err := Dequeue(ctx, r, DefaultQueue, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, []string{"a"}, first.SeriesIDs)
	assert.False(t, first.QueuedAt.IsZero())

	second, err := Dequeue(ctx, r, DefaultQueue, time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "seed", second.Reason)
	assert.Empty(t, second.SeriesIDs)
}

func TestDequeue_CancelledContext(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job, err := Dequeue(ctx, r, DefaultQueue, time.Second)
	require.NoError(t, err)
	assert.Nil(t, job)
}
