package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hkzhang08/gradcafe-ingest/internal/api"
	"github.com/hkzhang08/gradcafe-ingest/internal/config"
	"github.com/hkzhang08/gradcafe-ingest/internal/ingest"
	"github.com/hkzhang08/gradcafe-ingest/internal/llm"
	"github.com/hkzhang08/gradcafe-ingest/internal/monitoring"
	"github.com/hkzhang08/gradcafe-ingest/internal/scrape"
	"github.com/hkzhang08/gradcafe-ingest/internal/storage"
	"github.com/hkzhang08/gradcafe-ingest/internal/task"
)

func main() {
	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("could not load config", zap.Error(err))
	}

	// Initialize Storage Layer
	pgStore, err := storage.NewPostgresStore(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pgStore.Close()

	var redisStore *storage.RedisStore
	if cfg.RedisAddr != "" {
		redisStore = storage.NewRedisStore(cfg.RedisAddr)
	}

	// Initialize Monitoring
	metrics := monitoring.NewMetrics()

	// Initialize Scraping Components
	var robotsCache scrape.RobotsCache
	var runLock ingest.RunLocker
	if redisStore != nil {
		robotsCache = redisStore
		runLock = redisStore
	}
	fetcher := scrape.NewFetcher(
		cfg.BaseURL,
		cfg.UserAgent,
		cfg.FetchTimeoutDuration(),
		cfg.FetchRetries,
		robotsCache,
		logger,
	)
	parser := scrape.NewParser(cfg.BaseURL)

	// Initialize LLM Standardizer Client
	var standardizer ingest.Standardizer
	if cfg.LLMServiceURL != "" {
		standardizer = llm.NewClient(cfg.LLMServiceURL, cfg.LLMTimeoutDuration(), logger)
	}

	// Initialize Core Pipeline
	pipeline := ingest.NewPipeline(
		fetcher,
		parser,
		pgStore,
		standardizer,
		runLock,
		metrics,
		logger,
		cfg.TargetRecords,
		cfg.PageDelay(),
	)
	dispatcher := task.NewDispatcher(pipeline, cfg.DataFile, logger)

	// Initialize API Server
	server := api.NewServer(cfg, pipeline, dispatcher, pgStore, redisStore, logger)

	// Graceful Shutdown
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()

	logger.Info("server started", zap.String("port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
