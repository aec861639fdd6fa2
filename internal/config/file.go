package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	DatabaseURL     string   `yaml:"database_url"`
	ServerPort      string   `yaml:"server_port"`
	RedisURL        string   `yaml:"redis_url"`
	VoyageAPIKey    string   `yaml:"voyage_api_key"`
	VoyageModel     string   `yaml:"voyage_model"`
	LogLevel        string   `yaml:"log_level"`
	Timezone        string   `yaml:"timezone"`
	PublicDir       string   `yaml:"public_dir"`
	StreamsDir      string   `yaml:"streams_dir"`
	CORSOrigins     []string `yaml:"cors_origins"`
	OptimizeImages  bool     `yaml:"optimize_images"`
	SessionTTL      string   `yaml:"session_ttl"`
	BatchWindow     string   `yaml:"batch_window"`
	BatchMaxSize    int      `yaml:"batch_max_size"`
	SegmentDuration string   `yaml:"segment_duration"`
	LiveWindow      int      `yaml:"live_window"`
	FollowInterval  string   `yaml:"follow_interval"`
}

// LoadFromFile loads config from a YAML file. database_url is required;
// everything else falls back to the same defaults as Load.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	c := defaults()
	c.DatabaseURL = f.DatabaseURL
	c.RedisURL = f.RedisURL
	c.VoyageAPIKey = f.VoyageAPIKey
	c.VoyageModel = f.VoyageModel
	c.CORSOrigins = f.CORSOrigins
	c.OptimizeImages = f.OptimizeImages
	for _, s := range []struct {
		v   string
		dst *string
	}{
		{f.ServerPort, &c.ServerPort},
		{f.LogLevel, &c.LogLevel},
		{f.Timezone, &c.Timezone},
		{f.PublicDir, &c.PublicDir},
		{f.StreamsDir, &c.StreamsDir},
	} {
		if s.v != "" {
			*s.dst = s.v
		}
	}
	for _, d := range []struct {
		name string
		v    string
		dst  *time.Duration
	}{
		{"session_ttl", f.SessionTTL, &c.SessionTTL},
		{"batch_window", f.BatchWindow, &c.BatchWindow},
		{"segment_duration", f.SegmentDuration, &c.SegmentDuration},
		{"follow_interval", f.FollowInterval, &c.FollowInterval},
	} {
		if d.v == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	if f.BatchMaxSize > 0 {
		c.BatchMaxSize = f.BatchMaxSize
	}
	if f.LiveWindow > 0 {
		c.LiveWindow = f.LiveWindow
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}
