// Package session issues and resolves opaque sign-in tokens carried in a
// cookie.
package session

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/voyagen/arematv/internal/cache"
)

// CookieName is the default name of the session cookie.
const CookieName = "wsh-2025-session"

// ErrNotFound is returned by Lookup for unknown or expired tokens.
var ErrNotFound = errors.New("session not found")

// Store maps session tokens to user ids.
type Store interface {
	// Create starts a session for userID and returns its token.
	Create(ctx context.Context, userID int64) (string, error)
	// Lookup returns the user id for token or ErrNotFound.
	Lookup(ctx context.Context, token string) (int64, error)
	// Delete ends the session. Unknown tokens are not an error.
	Delete(ctx context.Context, token string) error
}

// RedisStore keeps sessions as expiring Redis keys.
type RedisStore struct {
	r   *cache.Redis
	ttl time.Duration
}

// NewRedisStore returns a Store whose sessions live for ttl.
func NewRedisStore(r *cache.Redis, ttl time.Duration) *RedisStore {
	return &RedisStore{r: r, ttl: ttl}
}

func (s *RedisStore) key(token string) string {
	return s.r.Key("session:" + token)
}

func (s *RedisStore) Create(ctx context.Context, userID int64) (string, error) {
	token := uuid.NewString()
	if err := s.r.Client().Set(ctx, s.key(token), userID, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisStore) Lookup(ctx context.Context, token string) (int64, error) {
	if _, err := uuid.Parse(token); err != nil {
		return 0, ErrNotFound
	}
	raw, err := s.r.Client().Get(ctx, s.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrNotFound
	}
	return id, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.r.Client().Del(ctx, s.key(token)).Err()
}

// MemoryStore keeps sessions in process. Expired entries are dropped on
// lookup.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]memorySession
}

type memorySession struct {
	userID  int64
	expires time.Time
}

// NewMemoryStore returns an in-process Store whose sessions live for ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, sessions: make(map[string]memorySession)}
}

func (s *MemoryStore) Create(_ context.Context, userID int64) (string, error) {
	token := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = memorySession{userID: userID, expires: s.now().Add(s.ttl)}
	return token, nil
}

func (s *MemoryStore) Lookup(_ context.Context, token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return 0, ErrNotFound
	}
	if !s.now().Before(sess.expires) {
		delete(s.sessions, token)
		return 0, ErrNotFound
	}
	return sess.userID, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// Cookies builds and reads the session cookie.
type Cookies struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// Set writes token as the session cookie.
func (c Cookies) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie.
func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Token returns the session token carried by r, if any.
func (c Cookies) Token(r *http.Request) string {
	ck, err := r.Cookie(c.name())
	if err != nil {
		return ""
	}
	return ck.Value
}

func (c Cookies) name() string {
	if c.Name == "" {
		return CookieName
	}
	return c.Name
}
