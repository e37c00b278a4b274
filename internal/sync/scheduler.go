package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stayops/calsync-backend/internal/config"
	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/utils"
)

// Scheduler runs periodic full syncs. Runs execute inside the scheduler
// loop, so a sync that outlives the interval simply delays the next tick
// instead of overlapping with itself.
type Scheduler struct {
	engine *Engine
	cfg    *config.SyncConfig
	logger *utils.Logger

	// Internal state
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex

	// Statistics
	statsMu       sync.RWMutex
	runsCompleted int64
	runsFailed    int64
	lastRunAt     time.Time
	lastSessionID string
}

// NewScheduler creates a scheduler over the sync engine
func NewScheduler(engine *Engine, cfg *config.SyncConfig) *Scheduler {
	return &Scheduler{
		engine:   engine,
		cfg:      cfg,
		logger:   utils.NewLogger("sync-scheduler"),
		stopChan: make(chan struct{}),
	}
}

// Start starts the periodic sync loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil // Already running
	}

	if !s.cfg.ScheduleEnabled {
		s.logger.Info("Periodic sync is disabled")
		return nil
	}

	if s.cfg.ScheduleInterval <= 0 {
		return utils.NewValidationError("INVALID_SCHEDULE_INTERVAL", "schedule_interval must be positive", s.cfg.ScheduleInterval)
	}

	s.running = true
	s.logger.Info("Starting sync scheduler",
		zap.Duration("interval", s.cfg.ScheduleInterval),
	)

	s.wg.Add(1)
	go s.syncLoop(ctx)

	return nil
}

// Stop stops the scheduler and waits for the loop to exit. A sync already
// in flight is interrupted through the context passed to Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.logger.Info("Stopping sync scheduler")
	s.running = false
	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("Sync scheduler stopped")
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// syncLoop runs the periodic sync loop
func (s *Scheduler) syncLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ScheduleInterval)
	defer ticker.Stop()

	// Run an initial sync on startup
	s.runScheduledSync(ctx)

	for {
		select {
		case <-ticker.C:
			s.runScheduledSync(ctx)
		case <-s.stopChan:
			s.logger.Info("Sync loop stopping")
			return
		case <-ctx.Done():
			s.logger.Info("Sync loop stopping due to context cancellation")
			return
		}
	}
}

// runScheduledSync runs one full sync and records its outcome
func (s *Scheduler) runScheduledSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	s.logger.Debug("Starting scheduled sync")

	resp, err := s.engine.SyncAll(ctx, models.TriggerCron)

	s.statsMu.Lock()
	s.lastRunAt = start
	if err != nil || !resp.Success {
		s.runsFailed++
	} else {
		s.runsCompleted++
	}
	if resp != nil {
		s.lastSessionID = resp.SessionID.String()
	}
	s.statsMu.Unlock()

	if err != nil {
		s.logger.Error("Scheduled sync failed", zap.Error(err))
		return
	}

	s.logger.Info("Scheduled sync completed",
		zap.String("session_id", resp.SessionID.String()),
		zap.Bool("success", resp.Success),
		zap.Int("listings", resp.Totals.Listings),
		zap.Int("events", resp.Totals.EventsProcessed),
		zap.Int("errors", resp.Totals.Errors),
		zap.Duration("duration", time.Since(start)),
	)
}

// GetStats returns scheduler statistics
func (s *Scheduler) GetStats() map[string]interface{} {
	running := s.IsRunning()

	s.statsMu.RLock()
	defer s.statsMu.RUnlock()

	stats := map[string]interface{}{
		"running":        running,
		"enabled":        s.cfg.ScheduleEnabled,
		"interval":       s.cfg.ScheduleInterval.String(),
		"runs_completed": s.runsCompleted,
		"runs_failed":    s.runsFailed,
	}
	if !s.lastRunAt.IsZero() {
		stats["last_run_at"] = s.lastRunAt
		stats["last_session_id"] = s.lastSessionID
	}
	return stats
}
