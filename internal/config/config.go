package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // program clock times need zone data even in scratch images
)

// ErrMissingDatabaseURL is returned when no database DSN is configured.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// MinSegmentDuration is the shortest HLS segment the live playlist accepts.
const MinSegmentDuration = time.Millisecond

// Backend identifies the persistence engine selected by the DSN scheme.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL    string
	ServerPort     string
	RedisURL       string
	VoyageAPIKey   string
	VoyageModel    string
	LogLevel       string
	Timezone       string
	PublicDir      string
	StreamsDir     string
	CORSOrigins    []string
	OptimizeImages bool

	SessionTTL      time.Duration
	BatchWindow     time.Duration
	BatchMaxSize    int
	SegmentDuration time.Duration
	LiveWindow      int
	FollowInterval  time.Duration

	location *time.Location
}

func defaults() *Config {
	return &Config{
		ServerPort:      "8080",
		LogLevel:        "info",
		Timezone:        "Asia/Tokyo",
		PublicDir:       "public",
		StreamsDir:      "public/streams",
		SessionTTL:      24 * time.Hour,
		BatchWindow:     time.Second,
		BatchMaxSize:    100,
		SegmentDuration: 2 * time.Second,
		LiveWindow:      30,
		FollowInterval:  250 * time.Millisecond,
	}
}

// Load builds config from environment variables.
// If DATABASE_URL is not set, Load tries to load .env.local and .env first.
func Load() (*Config, error) {
	if os.Getenv("DATABASE_URL") == "" {
		loadEnvFiles()
	}
	c := defaults()
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	setString(&c.ServerPort, "PORT")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.VoyageAPIKey, "VOYAGE_API_KEY")
	setString(&c.VoyageModel, "VOYAGE_MODEL")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Timezone, "TZ_NAME")
	setString(&c.PublicDir, "PUBLIC_DIR")
	setString(&c.StreamsDir, "STREAMS_DIR")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("OPTIMIZE_IMAGES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("OPTIMIZE_IMAGES: %w", err)
		}
		c.OptimizeImages = b
	}
	for _, d := range []struct {
		env string
		dst *time.Duration
	}{
		{"SESSION_TTL", &c.SessionTTL},
		{"BATCH_WINDOW", &c.BatchWindow},
		{"SEGMENT_DURATION", &c.SegmentDuration},
		{"FOLLOW_INTERVAL", &c.FollowInterval},
	} {
		if v := os.Getenv(d.env); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", d.env, err)
			}
			*d.dst = parsed
		}
	}
	for _, n := range []struct {
		env string
		dst *int
	}{
		{"BATCH_MAX_SIZE", &c.BatchMaxSize},
		{"LIVE_WINDOW", &c.LiveWindow},
	} {
		if v := os.Getenv(n.env); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", n.env, err)
			}
			*n.dst = parsed
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Backend reports which store the DSN selects.
func (c *Config) Backend() Backend {
	if strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		return BackendPostgres
	}
	return BackendSQLite
}

// SQLitePath returns the filesystem path of an sqlite:// or file: DSN.
func (c *Config) SQLitePath() string {
	p := strings.TrimPrefix(c.DatabaseURL, "sqlite://")
	return strings.TrimPrefix(p, "file:")
}

// Location is the timezone program clock times are interpreted in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	c.location = loc
	if c.SegmentDuration < MinSegmentDuration {
		return fmt.Errorf("segment duration must be at least %s, got %s", MinSegmentDuration, c.SegmentDuration)
	}
	if c.LiveWindow <= 0 {
		return fmt.Errorf("live window must be positive, got %d", c.LiveWindow)
	}
	if c.BatchMaxSize <= 0 {
		c.BatchMaxSize = 1
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
