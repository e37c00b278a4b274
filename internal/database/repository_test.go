package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stayops/calsync-backend/internal/config"
	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/utils"
)

func setupTestRepository(t *testing.T) *Repository {
	utils.SkipIfNoTestDB(t)

	testDBURL := utils.SetupTestDB(t)
	cfg := config.DatabaseConfig{
		URL:             testDBURL,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}

	repo, err := NewRepository(cfg)
	utils.AssertError(t, err, false, "Should create repository")

	// Run a minimal migration to create the schema
	ctx := context.Background()
	_, err = repo.GetClient().ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			id UUID PRIMARY KEY,
			external_id VARCHAR(255) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL,
			hours NUMERIC(5,2) NOT NULL DEFAULT 2.0,
			color VARCHAR(32),
			bank_account VARCHAR(64),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMP NULL
		);

		CREATE TABLE IF NOT EXISTS feeds (
			id UUID PRIMARY KEY,
			url TEXT NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			last_synced TIMESTAMP NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS listing_feeds (
			listing_id UUID NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
			feed_id UUID NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			PRIMARY KEY (listing_id, feed_id)
		);

		CREATE TABLE IF NOT EXISTS events (
			uuid UUID PRIMARY KEY,
			event_id VARCHAR(255) NOT NULL,
			listing_id UUID NOT NULL,
			listing_name VARCHAR(255) NOT NULL,
			listing_hours NUMERIC(5,2) NOT NULL DEFAULT 2.0,
			checkin_date TIMESTAMP NOT NULL,
			checkout_date TIMESTAMP NOT NULL,
			checkout_type VARCHAR(20) NOT NULL DEFAULT 'open',
			checkout_time VARCHAR(8) NOT NULL DEFAULT '10:00:00',
			event_type VARCHAR(20) NOT NULL DEFAULT 'ical',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_events_active_event_id
			ON events (event_id) WHERE is_active;
		CREATE INDEX IF NOT EXISTS idx_events_listing_active
			ON events (listing_name, is_active);

		CREATE TABLE IF NOT EXISTS event_changes (
			id BIGSERIAL PRIMARY KEY,
			listing_name VARCHAR(255) NOT NULL,
			event_id VARCHAR(255) NOT NULL,
			change_type VARCHAR(20) NOT NULL,
			old_checkin_date TIMESTAMP NULL,
			old_checkout_date TIMESTAMP NULL,
			new_checkin_date TIMESTAMP NULL,
			new_checkout_date TIMESTAMP NULL,
			old_event_id VARCHAR(255) NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS cleaner_assignments (
			uuid UUID PRIMARY KEY,
			event_uuid UUID NOT NULL,
			cleaner_uuid UUID NOT NULL,
			hours NUMERIC(5,2) NOT NULL DEFAULT 2.0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS sync_sessions (
			id UUID PRIMARY KEY,
			sync_type VARCHAR(20) NOT NULL,
			target_listing_id UUID NULL,
			target_listing_name VARCHAR(255) NULL,
			triggered_by VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			started_at TIMESTAMP NULL,
			completed_at TIMESTAMP NULL,
			duration_seconds DOUBLE PRECISION NULL,
			total_listings INT NOT NULL DEFAULT 0,
			completed_listings INT NOT NULL DEFAULT 0,
			events_processed INT NOT NULL DEFAULT 0,
			feeds_processed INT NOT NULL DEFAULT 0,
			events_added INT NOT NULL DEFAULT 0,
			events_updated INT NOT NULL DEFAULT 0,
			events_deactivated INT NOT NULL DEFAULT 0,
			events_replaced INT NOT NULL DEFAULT 0,
			events_unchanged INT NOT NULL DEFAULT 0,
			errors_count INT NOT NULL DEFAULT 0,
			error_message TEXT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS sync_log_entries (
			id BIGSERIAL PRIMARY KEY,
			sync_session_id UUID NOT NULL,
			operation VARCHAR(30) NOT NULL,
			event_id VARCHAR(255) NOT NULL DEFAULT '',
			listing_name VARCHAR(255) NOT NULL DEFAULT '',
			event_details JSONB NOT NULL DEFAULT '{}',
			reasoning TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
	`)
	utils.AssertError(t, err, false, "Should create test schema")

	return repo
}

func createTestListing(name string) *models.Listing {
	return &models.Listing{
		ID:         uuid.New(),
		ExternalID: "ext-" + uuid.New().String()[:8],
		Name:       name,
		Hours:      decimal.NewFromFloat(2.5),
	}
}

func createTestBooking(listing *models.Listing, eventID, checkin, checkout string) *models.Booking {
	checkinDate, _ := time.Parse("2006-01-02", checkin)
	checkoutDate, _ := time.Parse("2006-01-02", checkout)

	return &models.Booking{
		UUID:         uuid.New(),
		EventID:      eventID,
		ListingID:    listing.ID,
		ListingName:  listing.Name,
		ListingHours: listing.Hours,
		CheckinDate:  checkinDate,
		CheckoutDate: checkoutDate,
		CheckoutType: models.CheckoutTypeOpen,
		CheckoutTime: "10:00:00",
		EventType:    models.EventTypeICal,
		IsActive:     true,
	}
}

func TestRepository_Transaction(t *testing.T) {
	repo := setupTestRepository(t)
	defer repo.Close()

	ctx := context.Background()
	listing := createTestListing("tx-listing")

	// Successful transaction commits both writes
	err := repo.Transaction(ctx, func(txRepo *Repository) error {
		if err := txRepo.Listings.Create(ctx, listing); err != nil {
			return err
		}
		feed := &models.Feed{URL: "https://calendar.example.com/tx.ics", Name: "tx"}
		if err := txRepo.Feeds.Create(ctx, feed); err != nil {
			return err
		}
		return txRepo.Feeds.AttachToListing(ctx, feed.ID, listing.ID)
	})
	utils.AssertError(t, err, false, "Transaction should succeed")

	feeds, err := repo.Feeds.ListActiveForListing(ctx, listing.ID)
	utils.AssertError(t, err, false, "Should list feeds")
	utils.AssertEqual(t, 1, len(feeds), "Feed should be attached")

	// Failed transaction rolls back
	err = repo.Transaction(ctx, func(txRepo *Repository) error {
		other := createTestListing("tx-rollback")
		if err := txRepo.Listings.Create(ctx, other); err != nil {
			return err
		}
		return context.Canceled
	})
	utils.AssertError(t, err, true, "Transaction should fail")

	listings, err := repo.Listings.List(ctx, &models.ListOptions{ListingName: "tx-rollback"})
	utils.AssertError(t, err, false, "Should list listings")
	utils.AssertEqual(t, 0, len(listings), "Rolled back listing should not exist")
}
