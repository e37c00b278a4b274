package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/stayops/calsync-backend/internal/database"
	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/pubsub"
	"github.com/stayops/calsync-backend/internal/utils"
)

// defaultFeedName is used when a feed is attached without a platform name.
const defaultFeedName = "Airbnb"

// ListingService provides business logic for listing and feed operations
type ListingService struct {
	repository *database.Repository
	pubsub     *pubsub.Service
	logger     *utils.Logger
}

// NewListingService creates a new listing service
func NewListingService(repository *database.Repository, pubsubService *pubsub.Service) *ListingService {
	return &ListingService{
		repository: repository,
		pubsub:     pubsubService,
		logger:     utils.NewLogger("listing_service"),
	}
}

// CreateListing creates a new listing
func (s *ListingService) CreateListing(ctx context.Context, req *models.ListingCreateRequest) (*models.Listing, error) {
	s.logger.Info("Creating listing",
		zap.String("listing_name", req.Name),
		zap.String("external_id", req.ExternalID),
	)

	listing := &models.Listing{
		ExternalID:  req.ExternalID,
		Name:        req.Name,
		Color:       req.Color,
		BankAccount: req.BankAccount,
	}
	if req.Hours != nil {
		listing.Hours = *req.Hours
	} else {
		listing.Hours = decimal.Zero
	}

	err := s.repository.Transaction(ctx, func(txRepo *database.Repository) error {
		if err := txRepo.Listings.Create(ctx, listing); err != nil {
			return err
		}

		if s.pubsub != nil && s.pubsub.IsRunning() {
			if err := s.pubsub.GetPublisher().PublishListingCreated(ctx, listing); err != nil {
				s.logger.Warn("Failed to publish listing created event",
					zap.String("listing_id", listing.ID.String()),
					zap.Error(err),
				)
				// Don't fail the operation for event publishing failure
			}
		}

		return nil
	})

	if err != nil {
		s.logger.Error("Failed to create listing",
			zap.String("listing_name", req.Name),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("Successfully created listing",
		zap.String("listing_id", listing.ID.String()),
		zap.String("listing_name", listing.Name),
	)

	return listing, nil
}

// GetListing gets a listing by ID
func (s *ListingService) GetListing(ctx context.Context, listingID uuid.UUID) (*models.Listing, error) {
	listing, err := s.repository.Listings.GetByID(ctx, listingID)
	if err != nil {
		if err == models.ErrListingNotFound {
			return nil, err
		}
		s.logger.Error("Failed to get listing",
			zap.String("listing_id", listingID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	return listing, nil
}

// ListListings lists listings with pagination
func (s *ListingService) ListListings(ctx context.Context, opts *models.ListOptions) ([]*models.Listing, int64, error) {
	listings, err := s.repository.Listings.List(ctx, opts)
	if err != nil {
		s.logger.Error("Failed to list listings", zap.Error(err))
		return nil, 0, err
	}

	total, err := s.repository.Listings.Count(ctx)
	if err != nil {
		s.logger.Error("Failed to count listings", zap.Error(err))
		return nil, 0, err
	}

	return listings, total, nil
}

// UpdateListing updates an existing listing. A rename is propagated to the
// denormalized listing name on active bookings in the same transaction.
func (s *ListingService) UpdateListing(ctx context.Context, listingID uuid.UUID, req *models.ListingUpdateRequest) (*models.Listing, error) {
	s.logger.Info("Updating listing",
		zap.String("listing_id", listingID.String()),
	)

	listing, err := s.repository.Listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	renamed := false
	if req.Name != nil && *req.Name != listing.Name {
		listing.Name = *req.Name
		renamed = true
	}
	if req.Hours != nil {
		listing.Hours = *req.Hours
	}
	if req.Color != nil {
		listing.Color = req.Color
	}
	if req.BankAccount != nil {
		listing.BankAccount = req.BankAccount
	}
	if req.IsActive != nil {
		listing.IsActive = *req.IsActive
	}

	err = s.repository.Transaction(ctx, func(txRepo *database.Repository) error {
		if err := txRepo.Listings.Update(ctx, listing); err != nil {
			return err
		}

		if renamed {
			if err := txRepo.Listings.TouchName(ctx, listing.ID, listing.Name); err != nil {
				return fmt.Errorf("failed to propagate listing rename: %w", err)
			}
		}

		if s.pubsub != nil && s.pubsub.IsRunning() {
			if err := s.pubsub.GetPublisher().PublishListingUpdated(ctx, listing); err != nil {
				s.logger.Warn("Failed to publish listing updated event",
					zap.String("listing_id", listing.ID.String()),
					zap.Error(err),
				)
			}
		}

		return nil
	})

	if err != nil {
		s.logger.Error("Failed to update listing",
			zap.String("listing_id", listingID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("Successfully updated listing",
		zap.String("listing_id", listing.ID.String()),
		zap.String("listing_name", listing.Name),
		zap.Bool("renamed", renamed),
	)

	return listing, nil
}

// DeleteListing soft-deletes a listing. Its bookings stay untouched; full
// syncs skip inactive listings so they stop being reconciled.
func (s *ListingService) DeleteListing(ctx context.Context, listingID uuid.UUID) error {
	s.logger.Info("Deleting listing",
		zap.String("listing_id", listingID.String()),
	)

	listing, err := s.repository.Listings.GetByID(ctx, listingID)
	if err != nil {
		return err
	}

	err = s.repository.Transaction(ctx, func(txRepo *database.Repository) error {
		if err := txRepo.Listings.Delete(ctx, listingID); err != nil {
			return err
		}

		if s.pubsub != nil && s.pubsub.IsRunning() {
			if err := s.pubsub.GetPublisher().PublishListingDeleted(ctx, listing); err != nil {
				s.logger.Warn("Failed to publish listing deleted event",
					zap.String("listing_id", listing.ID.String()),
					zap.Error(err),
				)
			}
		}

		return nil
	})

	if err != nil {
		s.logger.Error("Failed to delete listing",
			zap.String("listing_id", listingID.String()),
			zap.Error(err),
		)
		return err
	}

	s.logger.Info("Successfully deleted listing",
		zap.String("listing_id", listingID.String()),
		zap.String("listing_name", listing.Name),
	)

	return nil
}

// ListFeeds lists the active feeds attached to a listing
func (s *ListingService) ListFeeds(ctx context.Context, listingID uuid.UUID) ([]*models.Feed, error) {
	if _, err := s.repository.Listings.GetByID(ctx, listingID); err != nil {
		return nil, err
	}
	return s.repository.Feeds.ListActiveForListing(ctx, listingID)
}

// AttachFeed creates a feed and associates it with a listing
func (s *ListingService) AttachFeed(ctx context.Context, listingID uuid.UUID, req *models.FeedCreateRequest) (*models.Feed, error) {
	s.logger.Info("Attaching feed",
		zap.String("listing_id", listingID.String()),
		zap.String("feed_url", req.URL),
	)

	if _, err := s.repository.Listings.GetByID(ctx, listingID); err != nil {
		return nil, err
	}

	feed := &models.Feed{
		URL:  req.URL,
		Name: req.Name,
	}
	if feed.Name == "" {
		feed.Name = defaultFeedName
	}

	err := s.repository.Transaction(ctx, func(txRepo *database.Repository) error {
		if err := txRepo.Feeds.Create(ctx, feed); err != nil {
			return err
		}
		return txRepo.Feeds.AttachToListing(ctx, feed.ID, listingID)
	})

	if err != nil {
		s.logger.Error("Failed to attach feed",
			zap.String("listing_id", listingID.String()),
			zap.String("feed_url", req.URL),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("Successfully attached feed",
		zap.String("feed_id", feed.ID.String()),
		zap.String("listing_id", listingID.String()),
	)

	return feed, nil
}

// DetachFeed removes a feed/listing association. The feed row itself is kept
// so other listings sharing it are unaffected.
func (s *ListingService) DetachFeed(ctx context.Context, listingID, feedID uuid.UUID) error {
	s.logger.Info("Detaching feed",
		zap.String("listing_id", listingID.String()),
		zap.String("feed_id", feedID.String()),
	)

	if _, err := s.repository.Listings.GetByID(ctx, listingID); err != nil {
		return err
	}

	if err := s.repository.Feeds.DetachFromListing(ctx, feedID, listingID); err != nil {
		return err
	}

	s.logger.Info("Successfully detached feed",
		zap.String("listing_id", listingID.String()),
		zap.String("feed_id", feedID.String()),
	)

	return nil
}
