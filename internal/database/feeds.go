package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/utils"
	"go.uber.org/zap"
)

// FeedsRepository handles database operations for calendar feeds and
// their listing associations
type FeedsRepository struct {
	client *Client
	logger *utils.Logger
}

// NewFeedsRepository creates a new feeds repository
func NewFeedsRepository(client *Client) *FeedsRepository {
	return &FeedsRepository{
		client: client,
		logger: utils.NewLogger("feeds_repo"),
	}
}

const feedColumns = `id, url, name, is_active, last_synced, created_at, updated_at`

func scanFeed(row interface{ Scan(...interface{}) error }) (*models.Feed, error) {
	var feed models.Feed
	err := row.Scan(
		&feed.ID,
		&feed.URL,
		&feed.Name,
		&feed.IsActive,
		&feed.LastSynced,
		&feed.CreatedAt,
		&feed.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &feed, nil
}

// Create creates a new feed
func (r *FeedsRepository) Create(ctx context.Context, feed *models.Feed) error {
	feed.BeforeCreate()

	query := `
		INSERT INTO feeds (
			id, url, name, is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)`

	_, err := r.client.ExecContext(ctx, query,
		feed.ID,
		feed.URL,
		feed.Name,
		feed.IsActive,
		feed.CreatedAt,
		feed.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create feed",
			zap.String("feed_url", feed.URL),
			zap.Error(err),
		)
		return fmt.Errorf("failed to create feed: %w", err)
	}

	r.logger.Info("Feed created successfully",
		zap.String("feed_id", feed.ID.String()),
		zap.String("feed_url", feed.URL),
	)

	return nil
}

// GetByID retrieves a feed by ID
func (r *FeedsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Feed, error) {
	query := `
		SELECT ` + feedColumns + `
		FROM feeds
		WHERE id = $1`

	feed, err := scanFeed(r.client.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrFeedNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get feed by ID",
			zap.String("feed_id", id.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	return feed, nil
}

// List retrieves feeds with pagination
func (r *FeedsRepository) List(ctx context.Context, opts *models.ListOptions) ([]*models.Feed, error) {
	query := `
		SELECT ` + feedColumns + `
		FROM feeds
		ORDER BY created_at DESC`

	var args []interface{}
	argIndex := 1

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
		r.logger.Error("Failed to list feeds", zap.Error(err))
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*models.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			r.logger.Error("Failed to scan feed row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, feed)
	}

	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating feed rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating feeds: %w", err)
	}

	return feeds, nil
}

// ListActiveForListing retrieves all active feeds attached to a listing
func (r *FeedsRepository) ListActiveForListing(ctx context.Context, listingID uuid.UUID) ([]*models.Feed, error) {
	query := `
		SELECT f.id, f.url, f.name, f.is_active, f.last_synced, f.created_at, f.updated_at
		FROM feeds f
		JOIN listing_feeds lf ON lf.feed_id = f.id
		WHERE lf.listing_id = $1 AND f.is_active = TRUE
		ORDER BY f.created_at ASC`

	rows, err := r.client.QueryContext(ctx, query, listingID)
	if err != nil {
		r.logger.Error("Failed to list feeds for listing",
			zap.String("listing_id", listingID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to list feeds for listing: %w", err)
	}
	defer rows.Close()

	var feeds []*models.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			r.logger.Error("Failed to scan feed row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, feed)
	}

	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating feed rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating feeds: %w", err)
	}

	return feeds, nil
}

// AttachToListing associates a feed with a listing
func (r *FeedsRepository) AttachToListing(ctx context.Context, feedID, listingID uuid.UUID) error {
	query := `
		INSERT INTO listing_feeds (listing_id, feed_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (listing_id, feed_id) DO NOTHING`

	_, err := r.client.ExecContext(ctx, query, listingID, feedID)
	if err != nil {
		r.logger.Error("Failed to attach feed to listing",
			zap.String("feed_id", feedID.String()),
			zap.String("listing_id", listingID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to attach feed to listing: %w", err)
	}

	r.logger.Info("Feed attached to listing",
		zap.String("feed_id", feedID.String()),
		zap.String("listing_id", listingID.String()),
	)

	return nil
}

// DetachFromListing removes a feed/listing association
func (r *FeedsRepository) DetachFromListing(ctx context.Context, feedID, listingID uuid.UUID) error {
	query := `DELETE FROM listing_feeds WHERE listing_id = $1 AND feed_id = $2`

	result, err := r.client.ExecContext(ctx, query, listingID, feedID)
	if err != nil {
		r.logger.Error("Failed to detach feed from listing",
			zap.String("feed_id", feedID.String()),
			zap.String("listing_id", listingID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to detach feed from listing: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrFeedNotFound
	}

	return nil
}

// Update updates a feed's mutable fields
func (r *FeedsRepository) Update(ctx context.Context, feed *models.Feed) error {
	feed.UpdatedAt = time.Now()

	query := `
		UPDATE feeds
		SET url = $2, name = $3, is_active = $4, updated_at = $5
		WHERE id = $1`

	result, err := r.client.ExecContext(ctx, query,
		feed.ID,
		feed.URL,
		feed.Name,
		feed.IsActive,
		feed.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to update feed",
			zap.String("feed_id", feed.ID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to update feed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrFeedNotFound
	}

	return nil
}

// UpdateLastSynced records the time of the most recent fetch attempt.
// The timestamp reflects the attempt, not its success.
func (r *FeedsRepository) UpdateLastSynced(ctx context.Context, feedID uuid.UUID, ts time.Time) error {
	query := `
		UPDATE feeds
		SET last_synced = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.client.ExecContext(ctx, query, feedID, ts)
	if err != nil {
		r.logger.Error("Failed to update feed last_synced",
			zap.String("feed_id", feedID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to update feed last_synced: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrFeedNotFound
	}

	return nil
}

// Delete removes a feed and its listing associations
func (r *FeedsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.client.ExecContext(ctx, `DELETE FROM listing_feeds WHERE feed_id = $1`, id); err != nil {
		r.logger.Error("Failed to delete feed associations",
			zap.String("feed_id", id.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to delete feed associations: %w", err)
	}

	result, err := r.client.ExecContext(ctx, `DELETE FROM feeds WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete feed",
			zap.String("feed_id", id.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to delete feed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrFeedNotFound
	}

	r.logger.Info("Feed deleted successfully",
		zap.String("feed_id", id.String()),
	)

	return nil
}
