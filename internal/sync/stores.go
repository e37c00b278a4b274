// Package sync implements the reconciliation engine that keeps stored
// bookings aligned with the calendar feeds published by booking platforms.
// The Reconciler handles a single listing; the Engine orchestrates runs
// across listings and owns sync session bookkeeping.
package sync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stayops/calsync-backend/internal/database"
	"github.com/stayops/calsync-backend/internal/models"
)

// ListingStore is the listing surface the engine consumes.
type ListingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	ListActive(ctx context.Context) ([]*models.Listing, error)
}

// FeedStore is the feed surface the engine consumes.
type FeedStore interface {
	ListActiveForListing(ctx context.Context, listingID uuid.UUID) ([]*models.Feed, error)
	UpdateLastSynced(ctx context.Context, feedID uuid.UUID, ts time.Time) error
}

// BookingStore is the booking surface the reconciler consumes. All reads
// return fresh state so the per-event pass observes its own earlier writes.
type BookingStore interface {
	Insert(ctx context.Context, booking *models.Booking) error
	ListActiveByListingName(ctx context.Context, listingName string) ([]*models.Booking, error)
	FindActiveByEventID(ctx context.Context, eventID string) (*models.Booking, error)
	FindActiveByDateRange(ctx context.Context, listingName, checkinDate, checkoutDate string) (*models.Booking, error)
	HasActiveSameDayCheckin(ctx context.Context, listingName, date string) (bool, error)
	ListActiveOverlapping(ctx context.Context, listingName, checkinDate, checkoutDate string) ([]*models.Booking, error)
	UpdateCheckoutType(ctx context.Context, bookingUUID uuid.UUID, checkoutType models.CheckoutType) error
	Deactivate(ctx context.Context, uuids []uuid.UUID) (int64, error)
}

// ChangeStore records booking modifications and cancellations.
type ChangeStore interface {
	Insert(ctx context.Context, change *models.BookingChange) (bool, error)
}

// AssignmentStore cascades booking deactivation to cleaner assignments.
type AssignmentStore interface {
	DeactivateForBookings(ctx context.Context, bookingUUIDs []uuid.UUID) (int64, error)
}

// SessionStore persists sync sessions and their log entries.
type SessionStore interface {
	Create(ctx context.Context, session *models.SyncSession) error
	Start(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SyncSession, error)
	IncrementTotals(ctx context.Context, id uuid.UUID, totals models.SyncTotals) error
	Complete(ctx context.Context, id uuid.UUID, status models.SessionStatus, errorMessage *string) error
	InsertLogEntries(ctx context.Context, entries []*models.SyncLogEntry) error
}

// Stores bundles the narrow store interfaces the engine needs. Production
// wiring satisfies every field from a single database.Repository; tests swap
// in fakes per concern.
type Stores struct {
	Listings    ListingStore
	Feeds       FeedStore
	Bookings    BookingStore
	Changes     ChangeStore
	Assignments AssignmentStore
	Sessions    SessionStore
}

// NewStores builds the store bundle from the shared repository
func NewStores(repo *database.Repository) Stores {
	return Stores{
		Listings:    repo.Listings,
		Feeds:       repo.Feeds,
		Bookings:    repo.Bookings,
		Changes:     repo.Changes,
		Assignments: repo.Assignments,
		Sessions:    repo.Sessions,
	}
}
