package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/utils"
	"go.uber.org/zap"
)

// AssignmentsRepository handles database operations for cleaner assignments.
// The sync engine only flips is_active as a side effect of booking
// deactivation; assignment creation belongs to the cleaner scheduler.
type AssignmentsRepository struct {
	client *Client
	logger *utils.Logger
}

// NewAssignmentsRepository creates a new assignments repository
func NewAssignmentsRepository(client *Client) *AssignmentsRepository {
	return &AssignmentsRepository{
		client: client,
		logger: utils.NewLogger("assignments_repo"),
	}
}

// DeactivateForBookings cascades booking deactivation to cleaner assignments
func (r *AssignmentsRepository) DeactivateForBookings(ctx context.Context, bookingUUIDs []uuid.UUID) (int64, error) {
	if len(bookingUUIDs) == 0 {
		return 0, nil
	}

	ids := make([]string, len(bookingUUIDs))
	for i, id := range bookingUUIDs {
		ids[i] = id.String()
	}

	query := `
		UPDATE cleaner_assignments
		SET is_active = FALSE, updated_at = NOW()
		WHERE event_uuid = ANY($1) AND is_active = TRUE`

	result, err := r.client.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		r.logger.Error("Failed to deactivate assignments for bookings",
			zap.Int("booking_count", len(bookingUUIDs)),
			zap.Error(err),
		)
		return 0, fmt.Errorf("failed to deactivate assignments: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		r.logger.Info("Assignments deactivated for bookings",
			zap.Int64("count", rowsAffected),
		)
	}

	return rowsAffected, nil
}

// DeactivateOrphaned deactivates assignments whose booking is inactive or
// gone. Used by the repair endpoint to restore consistency after manual
// database surgery.
func (r *AssignmentsRepository) DeactivateOrphaned(ctx context.Context) (int64, error) {
	query := `
		UPDATE cleaner_assignments ca
		SET is_active = FALSE, updated_at = NOW()
		WHERE ca.is_active = TRUE
		  AND NOT EXISTS (
			SELECT 1 FROM events e
			WHERE e.uuid = ca.event_uuid AND e.is_active = TRUE
		  )`

	result, err := r.client.ExecContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to deactivate orphaned assignments", zap.Error(err))
		return 0, fmt.Errorf("failed to deactivate orphaned assignments: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Info("Orphaned assignments deactivated",
		zap.Int64("count", rowsAffected),
	)

	return rowsAffected, nil
}

// ListForBooking retrieves assignments attached to a booking
func (r *AssignmentsRepository) ListForBooking(ctx context.Context, bookingUUID uuid.UUID) ([]*models.CleanerAssignment, error) {
	query := `
		SELECT uuid, event_uuid, cleaner_uuid, hours, is_active, created_at, updated_at
		FROM cleaner_assignments
		WHERE event_uuid = $1
		ORDER BY created_at ASC`

	rows, err := r.client.QueryContext(ctx, query, bookingUUID)
	if err != nil {
		r.logger.Error("Failed to list assignments for booking",
			zap.String("booking_uuid", bookingUUID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*models.CleanerAssignment
	for rows.Next() {
		var assignment models.CleanerAssignment
		err := rows.Scan(
			&assignment.UUID,
			&assignment.EventUUID,
			&assignment.CleanerUUID,
			&assignment.Hours,
			&assignment.IsActive,
			&assignment.CreatedAt,
			&assignment.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan assignment row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, &assignment)
	}

	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating assignment rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}

	return assignments, nil
}
