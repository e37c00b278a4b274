package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/utils"
	"go.uber.org/zap"
)

// BookingsRepository handles database operations for bookings.
//
// Date arguments are calendar-date strings (YYYY-MM-DD); comparisons are
// against the date part of the stored timestamps, which are written in UTC.
type BookingsRepository struct {
	client *Client
	logger *utils.Logger
}

// NewBookingsRepository creates a new bookings repository
func NewBookingsRepository(client *Client) *BookingsRepository {
	return &BookingsRepository{
		client: client,
		logger: utils.NewLogger("bookings_repo"),
	}
}

const bookingColumns = `uuid, event_id, listing_id, listing_name, listing_hours,
	   checkin_date, checkout_date, checkout_type, checkout_time,
	   event_type, is_active, created_at, updated_at`

func scanBooking(row interface{ Scan(...interface{}) error }) (*models.Booking, error) {
	var booking models.Booking
	err := row.Scan(
		&booking.UUID,
		&booking.EventID,
		&booking.ListingID,
		&booking.ListingName,
		&booking.ListingHours,
		&booking.CheckinDate,
		&booking.CheckoutDate,
		&booking.CheckoutType,
		&booking.CheckoutTime,
		&booking.EventType,
		&booking.IsActive,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *BookingsRepository) queryBookings(ctx context.Context, query string, args ...interface{}) ([]*models.Booking, error) {
	rows, err := r.client.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}

	return bookings, nil
}

// Insert creates a new booking row
func (r *BookingsRepository) Insert(ctx context.Context, booking *models.Booking) error {
	booking.BeforeCreate()

	query := `
		INSERT INTO events (
			uuid, event_id, listing_id, listing_name, listing_hours,
			checkin_date, checkout_date, checkout_type, checkout_time,
			event_type, is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)`

	_, err := r.client.ExecContext(ctx, query,
		booking.UUID,
		booking.EventID,
		booking.ListingID,
		booking.ListingName,
		booking.ListingHours,
		booking.CheckinDate,
		booking.CheckoutDate,
		booking.CheckoutType,
		booking.CheckoutTime,
		booking.EventType,
		booking.IsActive,
		booking.CreatedAt,
		booking.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to insert booking",
			zap.String("event_id", booking.EventID),
			zap.String("listing_name", booking.ListingName),
			zap.Error(err),
		)
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	r.logger.Debug("Booking inserted",
		zap.String("booking_uuid", booking.UUID.String()),
		zap.String("event_id", booking.EventID),
	)

	return nil
}

// ListActiveByListingName retrieves all active iCal bookings for a listing
func (r *BookingsRepository) ListActiveByListingName(ctx context.Context, listingName string) ([]*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM events
		WHERE listing_name = $1 AND is_active = TRUE AND event_type = $2
		ORDER BY checkin_date ASC, created_at ASC`

	bookings, err := r.queryBookings(ctx, query, listingName, models.EventTypeICal)
	if err != nil {
		r.logger.Error("Failed to list active bookings",
			zap.String("listing_name", listingName),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to list active bookings: %w", err)
	}

	return bookings, nil
}

// FindActiveByEventID retrieves the active booking carrying an external
// event identifier. At most one exists.
func (r *BookingsRepository) FindActiveByEventID(ctx context.Context, eventID string) (*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM events
		WHERE event_id = $1 AND is_active = TRUE
		LIMIT 1`

	booking, err := scanBooking(r.client.QueryRowContext(ctx, query, eventID))
	if err == sql.ErrNoRows {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		r.logger.Error("Failed to find booking by event ID",
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to find booking by event ID: %w", err)
	}

	return booking, nil
}

// FindActiveByDateRange retrieves the oldest active booking for a listing
// whose checkin/checkout dates match exactly
func (r *BookingsRepository) FindActiveByDateRange(ctx context.Context, listingName, checkinDate, checkoutDate string) (*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM events
		WHERE listing_name = $1 AND is_active = TRUE
		  AND DATE(checkin_date) = $2::date
		  AND DATE(checkout_date) = $3::date
		ORDER BY created_at ASC
		LIMIT 1`

	booking, err := scanBooking(r.client.QueryRowContext(ctx, query, listingName, checkinDate, checkoutDate))
	if err == sql.ErrNoRows {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		r.logger.Error("Failed to find booking by date range",
			zap.String("listing_name", listingName),
			zap.String("checkin_date", checkinDate),
			zap.String("checkout_date", checkoutDate),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to find booking by date range: %w", err)
	}

	return booking, nil
}

// HasActiveSameDayCheckin reports whether any active booking for the listing
// checks in on the given date and checks out on a different date
func (r *BookingsRepository) HasActiveSameDayCheckin(ctx context.Context, listingName, date string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM events
			WHERE listing_name = $1 AND is_active = TRUE
			  AND DATE(checkin_date) = $2::date
			  AND DATE(checkout_date) <> $2::date
		)`

	var exists bool
	err := r.client.QueryRowContext(ctx, query, listingName, date).Scan(&exists)
	if err != nil {
		r.logger.Error("Failed to check same-day checkin",
			zap.String("listing_name", listingName),
			zap.String("date", date),
			zap.Error(err),
		)
		return false, fmt.Errorf("failed to check same-day checkin: %w", err)
	}

	return exists, nil
}

// ListActiveOverlapping retrieves active bookings whose stay overlaps the
// given date range. A booking ending on the range's start day (or starting on
// its end day) does not overlap; same-day turnovers are allowed.
func (r *BookingsRepository) ListActiveOverlapping(ctx context.Context, listingName, checkinDate, checkoutDate string) ([]*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM events
		WHERE listing_name = $1 AND is_active = TRUE
		  AND DATE(checkin_date) < $3::date
		  AND DATE(checkout_date) > $2::date
		ORDER BY checkin_date ASC`

	bookings, err := r.queryBookings(ctx, query, listingName, checkinDate, checkoutDate)
	if err != nil {
		r.logger.Error("Failed to list overlapping bookings",
			zap.String("listing_name", listingName),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to list overlapping bookings: %w", err)
	}

	return bookings, nil
}

// UpdateCheckoutType updates a booking's checkout type in place
func (r *BookingsRepository) UpdateCheckoutType(ctx context.Context, bookingUUID uuid.UUID, checkoutType models.CheckoutType) error {
	query := `
		UPDATE events
		SET checkout_type = $2, updated_at = NOW()
		WHERE uuid = $1 AND is_active = TRUE`

	result, err := r.client.ExecContext(ctx, query, bookingUUID, checkoutType)
	if err != nil {
		r.logger.Error("Failed to update checkout type",
			zap.String("booking_uuid", bookingUUID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to update checkout type: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrBookingNotFound
	}

	return nil
}

// Deactivate marks a batch of bookings inactive in a single statement
func (r *BookingsRepository) Deactivate(ctx context.Context, uuids []uuid.UUID) (int64, error) {
	if len(uuids) == 0 {
		return 0, nil
	}

	ids := make([]string, len(uuids))
	for i, id := range uuids {
		ids[i] = id.String()
	}

	query := `
		UPDATE events
		SET is_active = FALSE, updated_at = NOW()
		WHERE uuid = ANY($1) AND is_active = TRUE`

	result, err := r.client.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		r.logger.Error("Failed to deactivate bookings",
			zap.Int("count", len(uuids)),
			zap.Error(err),
		)
		return 0, fmt.Errorf("failed to deactivate bookings: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Info("Bookings deactivated",
		zap.Int64("count", rowsAffected),
	)

	return rowsAffected, nil
}

// List retrieves active bookings with optional listing filter and pagination
func (r *BookingsRepository) List(ctx context.Context, opts *models.ListOptions) ([]*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM events
		WHERE 1=1`

	var args []interface{}
	argIndex := 1

	// Status narrows on activity: "active" (default), "inactive" or "all".
	status := "active"
	if opts != nil && opts.Status != "" {
		status = opts.Status
	}
	switch status {
	case "inactive":
		query += " AND is_active = FALSE"
	case "all":
	default:
		query += " AND is_active = TRUE"
	}

	if opts != nil && opts.ListingName != "" {
		query += fmt.Sprintf(" AND listing_name = $%d", argIndex)
		args = append(args, opts.ListingName)
		argIndex++
	}

	query += " ORDER BY checkin_date ASC"

	if opts != nil {
		if opts.Limit > 0 {
			query += fmt.Sprintf(" LIMIT $%d", argIndex)
			args = append(args, opts.Limit)
			argIndex++
		}
		if opts.Offset > 0 {
			query += fmt.Sprintf(" OFFSET $%d", argIndex)
			args = append(args, opts.Offset)
			argIndex++
		}
	}

	bookings, err := r.queryBookings(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list bookings", zap.Error(err))
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	return bookings, nil
}

// CountActive returns the number of active bookings
func (r *BookingsRepository) CountActive(ctx context.Context) (int64, error) {
	query := "SELECT COUNT(*) FROM events WHERE is_active = TRUE"

	var count int64
	err := r.client.QueryRowContext(ctx, query).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count active bookings", zap.Error(err))
		return 0, fmt.Errorf("failed to count active bookings: %w", err)
	}

	return count, nil
}
