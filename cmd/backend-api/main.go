package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stayops/calsync-backend/internal/api"
	"github.com/stayops/calsync-backend/internal/config"
	"github.com/stayops/calsync-backend/internal/database"
	"github.com/stayops/calsync-backend/internal/feed"
	"github.com/stayops/calsync-backend/internal/metrics"
	"github.com/stayops/calsync-backend/internal/notify"
	"github.com/stayops/calsync-backend/internal/pubsub"
	"github.com/stayops/calsync-backend/internal/sync"
	"github.com/stayops/calsync-backend/internal/utils"
	"go.uber.org/zap"
)

// Build information (set via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	if err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger := utils.NewLogger("main")

	logger.Info("Starting CalSync Backend API",
		zap.String("version", Version),
		zap.String("commit", GitCommit),
		zap.String("build_time", BuildTime),
		zap.String("environment", cfg.Server.Environment),
	)

	// Initialize database connection
	repo, err := database.NewRepository(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer repo.Close()

	// Initialize Pub/Sub service (publisher-only for fan-out architecture)
	pubsubService, err := pubsub.NewService(cfg.PubSub)
	if err != nil {
		logger.Fatal("Failed to initialize Pub/Sub service", zap.Error(err))
	}
	defer pubsubService.Stop()

	// Start Pub/Sub service
	if err := pubsubService.Start(); err != nil {
		logger.Fatal("Failed to start Pub/Sub service", zap.Error(err))
	}

	// Initialize feed fetcher and cancellation notifier
	fetcher := feed.NewHTTPFetcher(cfg.Fetcher)

	var notifier notify.Notifier = notify.Disabled{}
	if cfg.Notifier.Enabled {
		notifier = notify.NewWebhookNotifier(cfg.Notifier)
	}

	// Initialize sync engine with metrics observer
	engine := sync.NewEngine(sync.NewStores(repo), fetcher, notifier, pubsubService, &cfg.Sync)

	monitor := metrics.NewMonitor()
	engine.SetObserver(monitor)
	monitor.RegisterActiveBookingsGauge(func() (int64, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return repo.Bookings.CountActive(ctx)
	})

	// Initialize and start sync scheduler
	scheduler := sync.NewScheduler(engine, &cfg.Sync)

	ctx := context.Background()
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("Failed to start sync scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	// Initialize and start feed change listener (database change-driven syncs)
	listener := sync.NewFeedChangeListener(&cfg.Database, &cfg.Sync, engine)

	if err := listener.Start(ctx); err != nil {
		logger.Warn("Failed to start feed change listener", zap.Error(err))
		// Don't fail startup if the listener fails - it's an enhancement
	} else {
		logger.Info("Feed change listener started successfully")
	}
	defer func() {
		if err := listener.Stop(ctx); err != nil {
			logger.Error("Error stopping feed change listener", zap.Error(err))
		}
	}()

	// Initialize the metrics server
	metricsServer := metrics.NewServer(cfg.Metrics, monitor, func(ctx context.Context) error {
		_, err := repo.Health(ctx)
		return err
	})

	// Initialize the HTTP server
	server := api.NewServer(cfg, repo, engine, pubsubService, monitor)

	// Start servers with context
	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	go func() {
		if err := metricsServer.Start(serverCtx); err != nil {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	go func() {
		if err := server.Start(serverCtx); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started successfully", zap.Int("port", cfg.Server.Port))

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	if err := server.Stop(); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := metricsServer.Stop(); err != nil {
		logger.Error("Metrics server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
