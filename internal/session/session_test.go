package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/arematv/internal/cache"
)

func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	token, err := s.Create(ctx, 42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	id, err := s.Lookup(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	other, err := s.Create(ctx, 42)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)

	require.NoError(t, s.Delete(ctx, token))
	_, err = s.Lookup(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, "never-issued"))
	_, err = s.Lookup(ctx, "never-issued")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore(time.Hour))
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	token, err := s.Create(context.Background(), 1)
	require.NoError(t, err)

	now = now.Add(59 * time.Second)
	_, err = s.Lookup(context.Background(), token)
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = s.Lookup(context.Background(), token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = r.Close() })
	return NewRedisStore(r, ttl), mr
}

func TestRedisStore(t *testing.T) {
	s, _ := newRedisStore(t, time.Hour)
	storeContract(t, s)
}

func TestRedisStore_Expiry(t *testing.T) {
	s, mr := newRedisStore(t, time.Minute)
	token, err := s.Create(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("arematv:session:"+token))

	mr.FastForward(time.Minute + time.Second)
	_, err = s.Lookup(context.Background(), token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCookies(t *testing.T) {
	c := Cookies{TTL: time.Hour}

	rec := httptest.NewRecorder()
	c.Set(rec, "tok")
	set := rec.Result().Cookies()
	require.Len(t, set, 1)
	assert.Equal(t, CookieName, set[0].Name)
	assert.Equal(t, "tok", set[0].Value)
	assert.True(t, set[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, set[0].SameSite)
	assert.Equal(t, 3600, set[0].MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(set[0])
	assert.Equal(t, "tok", c.Token(req))
	assert.Empty(t, c.Token(httptest.NewRequest(http.MethodGet, "/", nil)))

	rec = httptest.NewRecorder()
	c.Clear(rec)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)
}
