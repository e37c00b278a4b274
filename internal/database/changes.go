package database

import (
	"context"
	"fmt"

	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/utils"
	"go.uber.org/zap"
)

// ChangesRepository handles database operations for booking change history
type ChangesRepository struct {
	client *Client
	logger *utils.Logger
}

// NewChangesRepository creates a new changes repository
func NewChangesRepository(client *Client) *ChangesRepository {
	return &ChangesRepository{
		client: client,
		logger: utils.NewLogger("changes_repo"),
	}
}

// Insert stores a change record unless an identical one already exists.
// Returns true when a new row was written.
func (r *ChangesRepository) Insert(ctx context.Context, change *models.BookingChange) (bool, error) {
	existsQuery := `
		SELECT EXISTS (
			SELECT 1 FROM event_changes
			WHERE listing_name = $1
			  AND event_id = $2
			  AND change_type = $3
			  AND old_checkin_date IS NOT DISTINCT FROM $4
			  AND old_checkout_date IS NOT DISTINCT FROM $5
			  AND new_checkin_date IS NOT DISTINCT FROM $6
			  AND new_checkout_date IS NOT DISTINCT FROM $7
			  AND old_event_id IS NOT DISTINCT FROM $8
		)`

	var exists bool
	err := r.client.QueryRowContext(ctx, existsQuery,
		change.ListingName,
		change.EventID,
		change.ChangeType,
		change.OldCheckinDate,
		change.OldCheckoutDate,
		change.NewCheckinDate,
		change.NewCheckoutDate,
		change.OldEventID,
	).Scan(&exists)

	if err != nil {
		r.logger.Error("Failed to check for existing change record",
			zap.String("event_id", change.EventID),
			zap.Error(err),
		)
		return false, fmt.Errorf("failed to check for existing change record: %w", err)
	}

	if exists {
		r.logger.Debug("Skipping duplicate change record",
			zap.String("event_id", change.EventID),
			zap.String("change_type", string(change.ChangeType)),
		)
		return false, nil
	}

	insertQuery := `
		INSERT INTO event_changes (
			listing_name, event_id, change_type,
			old_checkin_date, old_checkout_date,
			new_checkin_date, new_checkout_date,
			old_event_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW()
		)`

	_, err = r.client.ExecContext(ctx, insertQuery,
		change.ListingName,
		change.EventID,
		change.ChangeType,
		change.OldCheckinDate,
		change.OldCheckoutDate,
		change.NewCheckinDate,
		change.NewCheckoutDate,
		change.OldEventID,
	)

	if err != nil {
		r.logger.Error("Failed to insert change record",
			zap.String("event_id", change.EventID),
			zap.String("change_type", string(change.ChangeType)),
			zap.Error(err),
		)
		return false, fmt.Errorf("failed to insert change record: %w", err)
	}

	r.logger.Info("Change record created",
		zap.String("event_id", change.EventID),
		zap.String("listing_name", change.ListingName),
		zap.String("change_type", string(change.ChangeType)),
	)

	return true, nil
}

// ListRecent retrieves the most recent change records
func (r *ChangesRepository) ListRecent(ctx context.Context, limit int) ([]*models.BookingChange, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, listing_name, event_id, change_type,
			   old_checkin_date, old_checkout_date,
			   new_checkin_date, new_checkout_date,
			   old_event_id, created_at
		FROM event_changes
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	rows, err := r.client.QueryContext(ctx, query, limit)
	if err != nil {
		r.logger.Error("Failed to list change records", zap.Error(err))
		return nil, fmt.Errorf("failed to list change records: %w", err)
	}
	defer rows.Close()

	var changes []*models.BookingChange
	for rows.Next() {
		var change models.BookingChange
		err := rows.Scan(
			&change.ID,
			&change.ListingName,
			&change.EventID,
			&change.ChangeType,
			&change.OldCheckinDate,
			&change.OldCheckoutDate,
			&change.NewCheckinDate,
			&change.NewCheckoutDate,
			&change.OldEventID,
			&change.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan change record row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan change record: %w", err)
		}
		changes = append(changes, &change)
	}

	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating change record rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating change records: %w", err)
	}

	return changes, nil
}

// CountForEvent returns the number of change records for an event, mainly
// for tests and diagnostics
func (r *ChangesRepository) CountForEvent(ctx context.Context, eventID string) (int64, error) {
	query := "SELECT COUNT(*) FROM event_changes WHERE event_id = $1"

	var count int64
	err := r.client.QueryRowContext(ctx, query, eventID).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count change records",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		return 0, fmt.Errorf("failed to count change records: %w", err)
	}

	return count, nil
}
