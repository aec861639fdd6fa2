package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voyagen/arematv/internal/cache"
	"github.com/voyagen/arematv/internal/config"
	"github.com/voyagen/arematv/internal/embedding"
	"github.com/voyagen/arematv/internal/log"
	"github.com/voyagen/arematv/internal/service"
	"github.com/voyagen/arematv/internal/store"
)

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Optional config file path (YAML); else use env DATABASE_URL")
}

var rootCmd = &cobra.Command{
	Use:           "arematv",
	Short:         "AremaTV catalog, timetable and HLS streaming backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log.Configure(log.Config{Level: cfg.LogLevel})
	return cfg, nil
}

// app holds the process-wide collaborators every command shares.
type app struct {
	cfg   *config.Config
	store store.Store
	redis *cache.Redis // nil when REDIS_URL is not set
	// embedder stays a nil interface when VOYAGE_API_KEY is not set.
	embedder service.Embedder
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openApp loads config, migrates and opens the selected store, and connects
// Redis and VoyageAI when configured.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := log.WithComponent("main")
	a := &app{cfg: cfg}

	base, err := openStore(ctx, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = base

	if cfg.VoyageAPIKey != "" {
		a.embedder = embedding.NewClient(cfg.VoyageAPIKey, cfg.VoyageModel)
		logger.Info().Msg("semantic search enabled (VoyageAI)")
	} else {
		logger.Info().Msg("semantic search disabled (VOYAGE_API_KEY not set)")
	}

	if cfg.RedisURL != "" {
		rds, err := cache.New(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rds.Close() })
		if err := rds.Ping(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.redis = rds
		a.store = store.NewCachedStore(base, rds)
		logger.Info().Msg("redis connected (caching enabled)")
	} else {
		logger.Info().Msg("redis disabled (REDIS_URL not set)")
	}
	return a, nil
}

func openStore(ctx context.Context, a *app) (store.Store, error) {
	cfg := a.cfg
	logger := log.WithComponent("main")
	switch cfg.Backend() {
	case config.BackendPostgres:
		if err := store.EnsurePgvector(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("pgvector: %w", err)
		}
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		logger.Info().Str("backend", string(config.BackendPostgres)).Msg("database ready")
		return pg, nil
	default:
		lite, err := store.NewSQLite(ctx, cfg.SQLitePath())
		if err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
		a.closers = append(a.closers, func() { _ = lite.Close() })
		if err := store.RunSQLiteMigrations(lite); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Str("backend", string(config.BackendSQLite)).Str("path", cfg.SQLitePath()).Msg("database ready")
		return lite, nil
	}
}
