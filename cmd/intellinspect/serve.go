// cmd/intellinspect/serve.go
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/FairForge/intellinspect/internal/api"
	"github.com/FairForge/intellinspect/internal/config"
	"github.com/FairForge/intellinspect/internal/dataset"
	"github.com/FairForge/intellinspect/internal/events"
	"github.com/FairForge/intellinspect/internal/logging"
	"github.com/FairForge/intellinspect/internal/oracle"
	"github.com/FairForge/intellinspect/internal/replay"
	"github.com/FairForge/intellinspect/internal/retention"
	"github.com/FairForge/intellinspect/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and replay engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			logger, err := logging.NewLogger(cfg.Server.Logging())
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed to close store", zap.Error(err))
		}
	}()

	catalog, err := newCatalog(ctx, cfg, st, cfg.Datasets.InboxDir, logger)
	if err != nil {
		return err
	}

	client, err := oracle.NewClient(cfg.Oracle, logger)
	if err != nil {
		return err
	}

	bus := events.NewBus(logger)
	defer bus.Close()
	if err := bus.Subscribe("*", events.LogHandler(logger)); err != nil {
		return err
	}
	if cfg.Redis.Addr != "" {
		fwd, rdb, err := events.NewRedisForwarder(cfg.Redis, logger)
		if err != nil {
			logger.Warn("redis forwarding disabled", zap.Error(err))
		} else {
			defer func() { _ = rdb.Close() }()
			if err := bus.Subscribe("*", fwd.Handle); err != nil {
				return err
			}
			logger.Info("forwarding session events to redis", zap.String("addr", cfg.Redis.Addr))
		}
	}

	engine := replay.NewEngine(cfg.Replay, replay.Deps{
		Store:  st,
		Rows:   catalog,
		Oracle: client,
		Events: bus,
	}, logger)

	sweeper := retention.NewSweeper(cfg.Retention, st, logger)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	if cfg.Datasets.Watch {
		watcher := dataset.NewWatcher(cfg.Datasets.InboxDir, catalog, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("inbox watcher stopped", zap.Error(err))
			}
		}()
	}

	server := api.NewServer(fmt.Sprintf(":%d", cfg.Server.Port), api.Deps{
		Catalog:    catalog,
		Partitions: st,
		Engine:     engine,
		Store:      st,
	}, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
	}
	// active sessions are paused so a restart can resume them
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Error("replay shutdown error", zap.Error(err))
	}
	return nil
}

// newCatalog builds the dataset catalog over local files and, when reachable, S3.
// A non-empty root confines local paths to that directory.
func newCatalog(ctx context.Context, cfg *config.Config, st dataset.ProfileStore, root string, logger *zap.Logger) (*dataset.Catalog, error) {
	router := &dataset.Router{Local: dataset.FileSource{Root: root}}
	s3src, err := dataset.NewS3Source(ctx, cfg.Datasets.S3, logger)
	if err != nil {
		logger.Warn("s3 dataset source disabled", zap.Error(err))
	} else {
		router.S3 = s3src
	}

	return dataset.NewCatalog(dataset.CatalogConfig{
		DataDir:   cfg.Datasets.DataDir,
		CacheSize: cfg.Datasets.CacheSize,
		Polarity:  cfg.Datasets.Polarity,
	}, router, st, logger)
}
