package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cliniscope/cliniscope/internal/config"
	"github.com/cliniscope/cliniscope/internal/core/pubsub"
	"github.com/cliniscope/cliniscope/internal/fetch"
	"github.com/cliniscope/cliniscope/internal/gateway/rest"
	"github.com/cliniscope/cliniscope/internal/ingest"
	"github.com/cliniscope/cliniscope/internal/logging"
	"github.com/cliniscope/cliniscope/internal/metrics"
	"github.com/cliniscope/cliniscope/internal/query"
	"github.com/cliniscope/cliniscope/internal/schema"
	"github.com/cliniscope/cliniscope/internal/server"
	"github.com/cliniscope/cliniscope/internal/storage/mongo"
)

func main() {
	configDir := flag.String("config", "config", "Path to the configuration directory")
	flag.Parse()

	// 1. Configuration
	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	cfg.Logging.ResolvePaths(*configDir)

	// 2. Logging
	if err := logging.Initialize(cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Shutdown()
	logger := slog.Default()

	// 3. Storage
	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := mongo.Connect(connectCtx, cfg.Storage)
	cancel()
	if err != nil {
		logger.Error("failed to connect to storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store.Close(closeCtx)
	}()

	indexCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.EnsureIndexes(indexCtx)
	cancel()
	if err != nil {
		logger.Error("failed to ensure indexes", "error", err)
		os.Exit(1)
	}

	// 4. Services
	catalog := schema.NewService(store, cfg.Schema, logger)
	engine := query.New(store, catalog, cfg.Query, logger)
	cache := fetch.New(engine, cfg.Fetch, logger)
	defer cache.Close()

	bus, err := pubsub.New(cfg.Pubsub)
	if err != nil {
		logger.Error("failed to create event bus", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	ingestSvc := ingest.New(store, bus, logger)

	// Document change events invalidate the result cache and the field
	// catalog; both rebuild lazily on the next request.
	unsubscribe, err := bus.Subscribe(ingest.SubjectDocuments+".>", func(subject string, data []byte) {
		cache.InvalidateAll()
		catalog.Invalidate()
	})
	if err != nil {
		logger.Error("failed to subscribe to document events", "error", err)
		os.Exit(1)
	}
	defer unsubscribe()

	// 5. HTTP server
	srv := server.New(cfg.Server, logger, metrics.Middleware())
	rest.NewHandler(cache, catalog, ingestSvc, logger).RegisterRoutes(srv.HTTPMux())
	srv.HTTPMux().Handle("GET /metrics", metrics.Handler())

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(runCtx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("stopped")
}
