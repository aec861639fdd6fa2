package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/voyagen/arematv/internal/log"
	"github.com/voyagen/arematv/internal/server"
	"github.com/voyagen/arematv/internal/service"
	"github.com/voyagen/arematv/internal/session"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (the default command)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := cmdContext(cmd)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		deps := server.Deps{Store: a.store, Embedder: a.embedder}
		if a.redis != nil {
			deps.Sessions = session.NewRedisStore(a.redis, a.cfg.SessionTTL)
		}
		srv := server.New(a.cfg, deps)
		defer srv.Close()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.ListenAndServe(ctx) })
		if a.redis != nil && a.embedder != nil {
			g.Go(func() error {
				service.RunEmbeddingWorker(ctx, a.redis, a.store, a.embedder)
				return nil
			})
		} else {
			logger := log.WithComponent("main")
			logger.Info().Msg("embedding worker disabled (needs REDIS_URL and VOYAGE_API_KEY)")
		}
		return g.Wait()
	},
}

// cmdContext returns the command context cancelled on SIGINT or SIGTERM.
func cmdContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}
