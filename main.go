package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sentilab/analyzer"
	"sentilab/config"
	"sentilab/db"
	qhttp "sentilab/http"
	"sentilab/logging"
	"sentilab/monitoring"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("exiting")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Storage.UploadDir, 0o755); err != nil {
		return err
	}

	// 2. Initialize history database
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	// 3. Events and metrics
	hub := monitoring.NewHub(logger)
	go hub.Run()
	defer hub.Stop()
	metrics := monitoring.NewMetrics()

	// 4. Analyzer, restoring any persisted model
	a, err := analyzer.New(analyzer.ConfigFrom(cfg), logger,
		analyzer.WithEvents(hub),
		analyzer.WithMetrics(metrics),
		analyzer.WithRunStore(store))
	if err != nil {
		return err
	}
	if err := a.EnsureLoaded(); err != nil {
		if !errors.Is(err, analyzer.ErrModelNotTrained) {
			logger.Warn("failed to load persisted model", zap.Error(err))
		}
	}
	if cfg.Model.Watch {
		if err := a.Watch(ctx); err != nil {
			logger.Warn("model watcher disabled", zap.Error(err))
		}
	}

	// 5. Start HTTP server
	server := qhttp.NewServer(cfg, qhttp.Deps{
		Analyzer: a,
		History:  store,
		Hub:      hub,
		Metrics:  metrics,
		Log:      logger,
	})
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 6. Handle graceful shutdown
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}
