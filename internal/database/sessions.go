package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/utils"
	"go.uber.org/zap"
)

// SessionsRepository handles database operations for sync sessions and
// their per-entry logs
type SessionsRepository struct {
	client *Client
	logger *utils.Logger
}

// NewSessionsRepository creates a new sessions repository
func NewSessionsRepository(client *Client) *SessionsRepository {
	return &SessionsRepository{
		client: client,
		logger: utils.NewLogger("sessions_repo"),
	}
}

const sessionColumns = `id, sync_type, target_listing_id, target_listing_name,
	   triggered_by, status, started_at, completed_at, duration_seconds,
	   total_listings, completed_listings, events_processed, feeds_processed,
	   events_added, events_updated, events_deactivated, events_replaced,
	   events_unchanged, errors_count, error_message, metadata, created_at`

func scanSession(row interface{ Scan(...interface{}) error }) (*models.SyncSession, error) {
	var session models.SyncSession
	err := row.Scan(
		&session.ID,
		&session.SyncType,
		&session.TargetListingID,
		&session.TargetListingName,
		&session.TriggeredBy,
		&session.Status,
		&session.StartedAt,
		&session.CompletedAt,
		&session.DurationSeconds,
		&session.Totals.Listings,
		&session.Totals.CompletedListings,
		&session.Totals.EventsProcessed,
		&session.Totals.FeedsProcessed,
		&session.Totals.Added,
		&session.Totals.Updated,
		&session.Totals.Deactivated,
		&session.Totals.Replaced,
		&session.Totals.Unchanged,
		&session.Totals.Errors,
		&session.ErrorMessage,
		&session.Metadata,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Create creates a new sync session in pending state
func (r *SessionsRepository) Create(ctx context.Context, session *models.SyncSession) error {
	session.BeforeCreate()

	query := `
		INSERT INTO sync_sessions (
			id, sync_type, target_listing_id, target_listing_name,
			triggered_by, status, metadata, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)`

	_, err := r.client.ExecContext(ctx, query,
		session.ID,
		session.SyncType,
		session.TargetListingID,
		session.TargetListingName,
		session.TriggeredBy,
		session.Status,
		session.Metadata,
		session.CreatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create sync session",
			zap.String("sync_type", string(session.SyncType)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to create sync session: %w", err)
	}

	r.logger.Info("Sync session created",
		zap.String("session_id", session.ID.String()),
		zap.String("sync_type", string(session.SyncType)),
		zap.String("triggered_by", string(session.TriggeredBy)),
	)

	return nil
}

// Start transitions a pending session to in_progress
func (r *SessionsRepository) Start(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE sync_sessions
		SET status = $2, started_at = NOW()
		WHERE id = $1 AND status = $3`

	result, err := r.client.ExecContext(ctx, query, id, models.SessionStatusInProgress, models.SessionStatusPending)
	if err != nil {
		r.logger.Error("Failed to start sync session",
			zap.String("session_id", id.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to start sync session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrSessionNotFound
	}

	return nil
}

// IncrementTotals adds per-listing counters to the session row atomically.
// Concurrent reconcilers sharing one session serialize on this update.
func (r *SessionsRepository) IncrementTotals(ctx context.Context, id uuid.UUID, totals models.SyncTotals) error {
	query := `
		UPDATE sync_sessions
		SET total_listings = total_listings + $2,
			completed_listings = completed_listings + $3,
			events_processed = events_processed + $4,
			feeds_processed = feeds_processed + $5,
			events_added = events_added + $6,
			events_updated = events_updated + $7,
			events_deactivated = events_deactivated + $8,
			events_replaced = events_replaced + $9,
			events_unchanged = events_unchanged + $10,
			errors_count = errors_count + $11
		WHERE id = $1`

	result, err := r.client.ExecContext(ctx, query,
		id,
		totals.Listings,
		totals.CompletedListings,
		totals.EventsProcessed,
		totals.FeedsProcessed,
		totals.Added,
		totals.Updated,
		totals.Deactivated,
		totals.Replaced,
		totals.Unchanged,
		totals.Errors,
	)

	if err != nil {
		r.logger.Error("Failed to increment session totals",
			zap.String("session_id", id.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to increment session totals: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrSessionNotFound
	}

	return nil
}

// Complete closes an in_progress session with a final status
func (r *SessionsRepository) Complete(ctx context.Context, id uuid.UUID, status models.SessionStatus, errorMessage *string) error {
	if status != models.SessionStatusCompleted && status != models.SessionStatusError {
		return fmt.Errorf("invalid final session status: %s", status)
	}

	query := `
		UPDATE sync_sessions
		SET status = $2,
			error_message = $3,
			completed_at = NOW(),
			duration_seconds = EXTRACT(EPOCH FROM (NOW() - started_at))
		WHERE id = $1 AND status = $4`

	result, err := r.client.ExecContext(ctx, query, id, status, errorMessage, models.SessionStatusInProgress)
	if err != nil {
		r.logger.Error("Failed to complete sync session",
			zap.String("session_id", id.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to complete sync session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrSessionNotFound
	}

	r.logger.Info("Sync session completed",
		zap.String("session_id", id.String()),
		zap.String("status", string(status)),
	)

	return nil
}

// GetByID retrieves a sync session by ID
func (r *SessionsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sync_sessions
		WHERE id = $1`

	session, err := scanSession(r.client.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get sync session",
			zap.String("session_id", id.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to get sync session: %w", err)
	}

	return session, nil
}

// List retrieves sync sessions with optional filtering and pagination
func (r *SessionsRepository) List(ctx context.Context, opts *models.ListOptions) ([]*models.SyncSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sync_sessions
		WHERE 1=1`

	var args []interface{}
	argIndex := 1

	if opts != nil {
		if opts.Status != "" {
			query += fmt.Sprintf(" AND status = $%d", argIndex)
			args = append(args, opts.Status)
			argIndex++
		}
		if opts.SyncType != "" {
			query += fmt.Sprintf(" AND sync_type = $%d", argIndex)
			args = append(args, opts.SyncType)
			argIndex++
		}
		if opts.ListingName != "" {
			query += fmt.Sprintf(" AND target_listing_name = $%d", argIndex)
			args = append(args, opts.ListingName)
			argIndex++
		}
	}

	query += " ORDER BY created_at DESC"

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

	rows, err := r.client.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list sync sessions", zap.Error(err))
		return nil, fmt.Errorf("failed to list sync sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.SyncSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			r.logger.Error("Failed to scan sync session row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan sync session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating sync session rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating sync sessions: %w", err)
	}

	return sessions, nil
}

// InsertLogEntries writes a batch of log entries in a single statement
func (r *SessionsRepository) InsertLogEntries(ctx context.Context, entries []*models.SyncLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var builder strings.Builder
	builder.WriteString(`
		INSERT INTO sync_log_entries (
			sync_session_id, operation, event_id, listing_name,
			event_details, reasoning, metadata, created_at
		) VALUES `)

	args := make([]interface{}, 0, len(entries)*8)
	for i, entry := range entries {
		if i > 0 {
			builder.WriteString(", ")
		}
		base := i * 8
		builder.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		args = append(args,
			entry.SyncSessionID,
			entry.Operation,
			entry.EventID,
			entry.ListingName,
			entry.EventDetails,
			entry.Reasoning,
			entry.Metadata,
			entry.CreatedAt,
		)
	}

	_, err := r.client.ExecContext(ctx, builder.String(), args...)
	if err != nil {
		r.logger.Error("Failed to insert log entries",
			zap.Int("count", len(entries)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to insert log entries: %w", err)
	}

	r.logger.Debug("Log entries flushed",
		zap.Int("count", len(entries)),
	)

	return nil
}

// ListLogEntries retrieves log entries for a session in insertion order
func (r *SessionsRepository) ListLogEntries(ctx context.Context, sessionID uuid.UUID, opts *models.ListOptions) ([]*models.SyncLogEntry, error) {
	query := `
		SELECT id, sync_session_id, operation, event_id, listing_name,
			   event_details, reasoning, metadata, created_at
		FROM sync_log_entries
		WHERE sync_session_id = $1
		ORDER BY created_at ASC, id ASC`

	var args []interface{}
	args = append(args, sessionID)
	argIndex := 2

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

	rows, err := r.client.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list log entries",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.SyncLogEntry
	for rows.Next() {
		var entry models.SyncLogEntry
		err := rows.Scan(
			&entry.ID,
			&entry.SyncSessionID,
			&entry.Operation,
			&entry.EventID,
			&entry.ListingName,
			&entry.EventDetails,
			&entry.Reasoning,
			&entry.Metadata,
			&entry.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan log entry row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating log entry rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating log entries: %w", err)
	}

	return entries, nil
}
