package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/utils"
	"go.uber.org/zap"
)

// ListingsRepository handles database operations for listings
type ListingsRepository struct {
	client *Client
	logger *utils.Logger
}

// NewListingsRepository creates a new listings repository
func NewListingsRepository(client *Client) *ListingsRepository {
	return &ListingsRepository{
		client: client,
		logger: utils.NewLogger("listings_repo"),
	}
}

const listingColumns = `id, external_id, name, hours, color, bank_account,
	   is_active, created_at, updated_at, deleted_at`

func scanListing(row interface{ Scan(...interface{}) error }) (*models.Listing, error) {
	var listing models.Listing
	err := row.Scan(
		&listing.ID,
		&listing.ExternalID,
		&listing.Name,
		&listing.Hours,
		&listing.Color,
		&listing.BankAccount,
		&listing.IsActive,
		&listing.CreatedAt,
		&listing.UpdatedAt,
		&listing.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// Create creates a new listing
func (r *ListingsRepository) Create(ctx context.Context, listing *models.Listing) error {
	listing.BeforeCreate()

	query := `
		INSERT INTO listings (
			id, external_id, name, hours, color, bank_account,
			is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err := r.client.ExecContext(ctx, query,
		listing.ID,
		listing.ExternalID,
		listing.Name,
		listing.Hours,
		listing.Color,
		listing.BankAccount,
		listing.IsActive,
		listing.CreatedAt,
		listing.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create listing",
			zap.String("listing_name", listing.Name),
			zap.Error(err),
		)
		return fmt.Errorf("failed to create listing: %w", err)
	}

	r.logger.Info("Listing created successfully",
		zap.String("listing_id", listing.ID.String()),
		zap.String("listing_name", listing.Name),
	)

	return nil
}

// GetByID retrieves a listing by ID
func (r *ListingsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM listings
		WHERE id = $1 AND deleted_at IS NULL`

	listing, err := scanListing(r.client.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrListingNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get listing by ID",
			zap.String("listing_id", id.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	return listing, nil
}

// GetByExternalID retrieves a listing by its external identifier
func (r *ListingsRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM listings
		WHERE external_id = $1 AND deleted_at IS NULL`

	listing, err := scanListing(r.client.QueryRowContext(ctx, query, externalID))
	if err == sql.ErrNoRows {
		return nil, models.ErrListingNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get listing by external ID",
			zap.String("external_id", externalID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	return listing, nil
}

// List retrieves listings with optional filtering and pagination
func (r *ListingsRepository) List(ctx context.Context, opts *models.ListOptions) ([]*models.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM listings
		WHERE deleted_at IS NULL`

	var args []interface{}
	argIndex := 1

	if opts != nil && opts.ListingName != "" {
		query += fmt.Sprintf(" AND name = $%d", argIndex)
		args = append(args, opts.ListingName)
		argIndex++
	}

	// Add ordering
	query += " ORDER BY name ASC"

	// Add pagination
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
		r.logger.Error("Failed to list listings", zap.Error(err))
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			r.logger.Error("Failed to scan listing row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, listing)
	}

	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating listing rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating listings: %w", err)
	}

	return listings, nil
}

// ListActive retrieves all active listings, for sync orchestration
func (r *ListingsRepository) ListActive(ctx context.Context) ([]*models.Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM listings
		WHERE is_active = TRUE AND deleted_at IS NULL
		ORDER BY name ASC`

	rows, err := r.client.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list active listings", zap.Error(err))
		return nil, fmt.Errorf("failed to list active listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			r.logger.Error("Failed to scan listing row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, listing)
	}

	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating listing rows", zap.Error(err))
		return nil, fmt.Errorf("error iterating listings: %w", err)
	}

	return listings, nil
}

// Update updates an existing listing
func (r *ListingsRepository) Update(ctx context.Context, listing *models.Listing) error {
	listing.BeforeUpdate()

	query := `
		UPDATE listings
		SET external_id = $2, name = $3, hours = $4, color = $5,
			bank_account = $6, is_active = $7, updated_at = $8
		WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.client.ExecContext(ctx, query,
		listing.ID,
		listing.ExternalID,
		listing.Name,
		listing.Hours,
		listing.Color,
		listing.BankAccount,
		listing.IsActive,
		listing.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to update listing",
			zap.String("listing_id", listing.ID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to update listing: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrListingNotFound
	}

	r.logger.Info("Listing updated successfully",
		zap.String("listing_id", listing.ID.String()),
		zap.String("listing_name", listing.Name),
	)

	return nil
}

// Delete performs a soft delete of a listing
func (r *ListingsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE listings
		SET deleted_at = NOW(), updated_at = NOW(), is_active = FALSE
		WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.client.ExecContext(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to delete listing",
			zap.String("listing_id", id.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to delete listing: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrListingNotFound
	}

	r.logger.Info("Listing deleted successfully",
		zap.String("listing_id", id.String()),
	)

	return nil
}

// Count returns the total number of listings
func (r *ListingsRepository) Count(ctx context.Context) (int64, error) {
	query := "SELECT COUNT(*) FROM listings WHERE deleted_at IS NULL"

	var count int64
	err := r.client.QueryRowContext(ctx, query).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count listings", zap.Error(err))
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}

	return count, nil
}

// TouchName keeps the denormalized listing name on active bookings in step
// with a listing rename
func (r *ListingsRepository) TouchName(ctx context.Context, id uuid.UUID, name string) error {
	query := `
		UPDATE events
		SET listing_name = $2, updated_at = NOW()
		WHERE listing_id = $1 AND is_active = TRUE`

	_, err := r.client.ExecContext(ctx, query, id, name)
	if err != nil {
		r.logger.Error("Failed to propagate listing name to bookings",
			zap.String("listing_id", id.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to propagate listing name: %w", err)
	}

	return nil
}
