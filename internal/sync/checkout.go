package sync

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/stayops/calsync-backend/internal/feed"
	"github.com/stayops/calsync-backend/internal/models"
)

// determineCheckoutType classifies a checkout day as a same-day turnover or
// an open checkout. The merged batch is scanned first so events from this
// run participate in the derivation before they reach the store; the store
// query then covers bookings outside the batch, such as manual entries.
func (r *Reconciler) determineCheckoutType(ctx context.Context, listingName, checkoutDay, selfEventID string, merged []feed.RawEvent) (models.CheckoutType, error) {
	for i := range merged {
		m := &merged[i]
		if m.ID == selfEventID {
			continue
		}
		if m.StartDay() == checkoutDay && m.EndDay() != checkoutDay {
			return models.CheckoutTypeSameDay, nil
		}
	}

	sameDay, err := r.stores.Bookings.HasActiveSameDayCheckin(ctx, listingName, checkoutDay)
	if err != nil {
		return "", err
	}
	if sameDay {
		return models.CheckoutTypeSameDay, nil
	}

	return models.CheckoutTypeOpen, nil
}

// newBookingFromEvent builds the booking row for a calendar event. Listing
// hours fall back to the configured default when the listing has none.
func (r *Reconciler) newBookingFromEvent(listing *models.Listing, ev *feed.RawEvent, checkoutType models.CheckoutType) *models.Booking {
	hours := listing.Hours
	if hours.IsZero() {
		hours = decimal.NewFromFloat(r.cfg.DefaultListingHours)
	}

	return &models.Booking{
		EventID:      ev.ID,
		ListingID:    listing.ID,
		ListingName:  listing.Name,
		ListingHours: hours,
		CheckinDate:  ev.Start,
		CheckoutDate: ev.End,
		CheckoutType: checkoutType,
		CheckoutTime: r.cfg.DefaultCheckoutTime,
		EventType:    models.EventTypeICal,
	}
}
