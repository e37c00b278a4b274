package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stayops/calsync-backend/internal/config"
	"github.com/stayops/calsync-backend/internal/utils"
)

// Server serves the ops endpoints: /metrics for Prometheus scrapes and
// /healthz for liveness probes. It listens on its own port, separate from
// the public API.
type Server struct {
	cfg         config.MetricsConfig
	router      *mux.Router
	httpServer  *http.Server
	healthCheck func(ctx context.Context) error
	logger      *utils.Logger
}

// NewServer creates the ops server. healthCheck may be nil, in which case
// /healthz only reports that the process is up.
func NewServer(cfg config.MetricsConfig, monitor *Monitor, healthCheck func(ctx context.Context) error) *Server {
	s := &Server{
		cfg:         cfg,
		healthCheck: healthCheck,
		logger:      utils.NewLogger("metrics_server"),
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(monitor.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router = router

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.healthCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := s.healthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Start runs the ops server until ctx is cancelled. When metrics are
// disabled it returns immediately.
func (s *Server) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Info("Metrics server disabled")
		return nil
	}

	s.logger.Info("Starting metrics server",
		zap.String("address", s.httpServer.Addr),
	)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Failed to start metrics server", zap.Error(err))
		}
	}()

	<-ctx.Done()

	return s.Stop()
}

// Stop gracefully shuts down the ops server.
func (s *Server) Stop() error {
	s.logger.Info("Shutting down metrics server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown metrics server gracefully", zap.Error(err))
		return err
	}

	return nil
}

// GetRouter returns the ops router (useful for testing)
func (s *Server) GetRouter() *mux.Router {
	return s.router
}
