package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stayops/calsync-backend/internal/config"
	"github.com/stayops/calsync-backend/internal/database"
	"github.com/stayops/calsync-backend/internal/metrics"
	"github.com/stayops/calsync-backend/internal/middleware"
	"github.com/stayops/calsync-backend/internal/pubsub"
	"github.com/stayops/calsync-backend/internal/services"
	"github.com/stayops/calsync-backend/internal/utils"
)

// Server represents the HTTP server
type Server struct {
	config         *config.Config
	router         *gin.Engine
	logger         *utils.Logger
	repository     *database.Repository
	pubsub         *pubsub.Service
	listingService *services.ListingService
	httpServer     *http.Server
}

// NewServer creates a new HTTP server. The monitor may be nil, in which case
// no request metrics are recorded.
func NewServer(
	cfg *config.Config,
	repository *database.Repository,
	runner SyncRunner,
	pubsubService *pubsub.Service,
	monitor *metrics.Monitor,
) *Server {
	logger := utils.NewLogger("api_server")

	// Initialize services
	listingService := services.NewListingService(repository, pubsubService)

	// Initialize handlers
	listingHandler := NewListingHandler(listingService)
	syncHandler := NewSyncHandler(runner, repository)
	sessionHandler := NewSessionHandler(repository)

	// Setup router
	router := setupRouter(cfg, logger, monitor, listingHandler, syncHandler, sessionHandler)

	server := &Server{
		config:         cfg,
		router:         router,
		logger:         logger,
		repository:     repository,
		pubsub:         pubsubService,
		listingService: listingService,
	}

	// Create HTTP server
	server.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return server
}

// setupRouter configures the Gin router with all routes and middleware
func setupRouter(
	cfg *config.Config,
	logger *utils.Logger,
	monitor *metrics.Monitor,
	listingHandler *ListingHandler,
	syncHandler *SyncHandler,
	sessionHandler *SessionHandler,
) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.ResponseTime())
	router.Use(LoggingMiddleware(logger))
	router.Use(ErrorHandlingMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server))
	router.Use(SecurityHeadersMiddleware())
	if monitor != nil {
		router.Use(MetricsMiddleware(monitor))
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"service":   "calsync-backend",
		})
	})

	// API versioning
	v1 := router.Group("/api/v1")

	// Register listing routes
	listingHandler.RegisterRoutes(v1)

	// Register sync routes
	syncHandler.RegisterRoutes(v1)

	// Register session routes
	sessionHandler.RegisterRoutes(v1)

	return router
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("address", s.httpServer.Addr),
		zap.String("environment", s.config.Server.Environment),
	)

	// Start server in a goroutine
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	// Graceful shutdown
	return s.Stop()
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server gracefully", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// GetRouter returns the Gin router (useful for testing)
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// GetListingService returns the listing service (useful for testing)
func (s *Server) GetListingService() *services.ListingService {
	return s.listingService
}
