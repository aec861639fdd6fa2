package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite:///tmp/arema.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, BackendSQLite, cfg.Backend())
	assert.Equal(t, "/tmp/arema.db", cfg.SQLitePath())
	assert.Equal(t, "Asia/Tokyo", cfg.Location().String())
	assert.Equal(t, 2*time.Second, cfg.SegmentDuration)
	assert.Equal(t, 30, cfg.LiveWindow)
	assert.Equal(t, 100, cfg.BatchMaxSize)
	assert.Equal(t, time.Second, cfg.BatchWindow)
	assert.Equal(t, 250*time.Millisecond, cfg.FollowInterval)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/arema")
	t.Setenv("PORT", "9090")
	t.Setenv("TZ_NAME", "UTC")
	t.Setenv("BATCH_WINDOW", "50ms")
	t.Setenv("BATCH_MAX_SIZE", "7")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("OPTIMIZE_IMAGES", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Backend())
	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, time.UTC.String(), cfg.Location().String())
	assert.Equal(t, 50*time.Millisecond, cfg.BatchWindow)
	assert.Equal(t, 7, cfg.BatchMaxSize)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.OptimizeImages)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"bad duration", "SEGMENT_DURATION", "two seconds"},
		{"bad int", "LIVE_WINDOW", "many"},
		{"bad timezone", "TZ_NAME", "Mars/Olympus"},
		{"zero segment", "SEGMENT_DURATION", "0s"},
		{"sub-millisecond segment", "SEGMENT_DURATION", "500us"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "sqlite://x.db")
			t.Setenv(tt.env, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_url: sqlite://arema.db
server_port: "3000"
timezone: UTC
live_window: 10
segment_duration: 4s
cors_origins:
  - http://localhost:3000
`), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.ServerPort)
	assert.Equal(t, 10, cfg.LiveWindow)
	assert.Equal(t, 4*time.Second, cfg.SegmentDuration)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
}

func TestLoadFromFile_MissingDatabaseURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: \"3000\"\n"), 0o600))

	_, err := LoadFromFile(path)
	assert.ErrorIs(t, err, ErrMissingDatabaseURL)
}

func TestApplyEnvFile(t *testing.T) {
	t.Setenv("AREMA_EXISTING", "keep")
	os.Unsetenv("AREMA_NEW")
	t.Cleanup(func() { os.Unsetenv("AREMA_NEW") })

	applyEnvFile([]byte(`
# comment
export AREMA_NEW="fresh"
AREMA_EXISTING=overwritten
not a pair
`))

	assert.Equal(t, "fresh", os.Getenv("AREMA_NEW"))
	assert.Equal(t, "keep", os.Getenv("AREMA_EXISTING"))
}
