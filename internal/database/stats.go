package database

import (
	"context"
	"fmt"

	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/utils"
	"go.uber.org/zap"
)

// StatsRepository aggregates sync activity for reporting
type StatsRepository struct {
	client *Client
	logger *utils.Logger
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(client *Client) *StatsRepository {
	return &StatsRepository{
		client: client,
		logger: utils.NewLogger("stats_repo"),
	}
}

// SyncStats computes aggregate sync statistics across all sessions
func (r *StatsRepository) SyncStats(ctx context.Context) (*models.SyncStats, error) {
	stats := &models.SyncStats{}

	sessionQuery := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'error'),
			COUNT(*) FILTER (WHERE status = 'in_progress'),
			COALESCE(SUM(total_listings), 0),
			COALESCE(SUM(completed_listings), 0),
			COALESCE(SUM(events_processed), 0),
			COALESCE(SUM(feeds_processed), 0),
			COALESCE(SUM(events_added), 0),
			COALESCE(SUM(events_updated), 0),
			COALESCE(SUM(events_deactivated), 0),
			COALESCE(SUM(events_replaced), 0),
			COALESCE(SUM(events_unchanged), 0),
			COALESCE(SUM(errors_count), 0)
		FROM sync_sessions`

	err := r.client.QueryRowContext(ctx, sessionQuery).Scan(
		&stats.TotalSessions,
		&stats.CompletedSessions,
		&stats.ErrorSessions,
		&stats.RunningSessions,
		&stats.Totals.Listings,
		&stats.Totals.CompletedListings,
		&stats.Totals.EventsProcessed,
		&stats.Totals.FeedsProcessed,
		&stats.Totals.Added,
		&stats.Totals.Updated,
		&stats.Totals.Deactivated,
		&stats.Totals.Replaced,
		&stats.Totals.Unchanged,
		&stats.Totals.Errors,
	)
	if err != nil {
		r.logger.Error("Failed to aggregate session stats", zap.Error(err))
		return nil, fmt.Errorf("failed to aggregate session stats: %w", err)
	}

	lastQuery := `
		SELECT completed_at, status
		FROM sync_sessions
		WHERE completed_at IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT 1`

	var lastStatus string
	err = r.client.QueryRowContext(ctx, lastQuery).Scan(&stats.LastSyncAt, &lastStatus)
	if err == nil {
		stats.LastSyncStatus = &lastStatus
	}
	// No completed sessions yet is fine; leave the fields nil

	countsQuery := `
		SELECT
			(SELECT COUNT(*) FROM listings WHERE is_active = TRUE AND deleted_at IS NULL),
			(SELECT COUNT(*) FROM events WHERE is_active = TRUE)`

	err = r.client.QueryRowContext(ctx, countsQuery).Scan(&stats.ActiveListings, &stats.ActiveBookings)
	if err != nil {
		r.logger.Error("Failed to count listings and bookings", zap.Error(err))
		return nil, fmt.Errorf("failed to count listings and bookings: %w", err)
	}

	return stats, nil
}
