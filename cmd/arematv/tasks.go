package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voyagen/arematv/internal/cache"
	"github.com/voyagen/arematv/internal/log"
	"github.com/voyagen/arematv/internal/service"
)

var (
	seedFile   string
	streamsDir string
	enqueue    bool
)

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "configs/seed.yaml", "YAML fixture to load")
	importStreamsCmd.Flags().StringVarP(&streamsDir, "dir", "d", "", "Directory of stream folders (default STREAMS_DIR)")
	embedCmd.Flags().BoolVar(&enqueue, "enqueue", false, "Queue the job for the server's embedding worker instead of running it here")

	rootCmd.AddCommand(migrateCmd, seedCmd, importStreamsCmd, embedCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := cmdContext(cmd)
		defer stop()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		a.Close()
		logger := log.WithComponent("main")
		logger.Info().Msg("migrations applied")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a catalog fixture (streams, series, episodes, channels, programs, recommendations)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := cmdContext(cmd)
		defer stop()
		f, err := service.LoadFixture(seedFile)
		if err != nil {
			return err
		}
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		_, err = service.Seed(ctx, a.store, f, a.redis)
		return err
	},
}

var importStreamsCmd = &cobra.Command{
	Use:   "import-streams",
	Short: "Register every stream folder and its chunk count",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := cmdContext(cmd)
		defer stop()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		dir := streamsDir
		if dir == "" {
			dir = a.cfg.StreamsDir
		}
		_, err = service.ImportStreams(ctx, a.store, dir)
		return err
	},
}

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed every series that has no vector yet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := cmdContext(cmd)
		defer stop()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		logger := log.WithComponent("main")

		if enqueue {
			if a.redis == nil {
				return errors.New("--enqueue needs REDIS_URL")
			}
			if err := cache.Enqueue(ctx, a.redis, cache.DefaultQueue, cache.EmbeddingJob{Reason: "cli"}); err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
			logger.Info().Msg("embedding job queued")
			return nil
		}
		if a.embedder == nil {
			return errors.New("VOYAGE_API_KEY is required")
		}
		n, err := service.RefreshEmbeddings(ctx, a.store, a.embedder)
		if err != nil {
			return err
		}
		logger.Info().Int("embedded", n).Msg("embeddings refreshed")
		return nil
	},
}
