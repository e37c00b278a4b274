package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stayops/calsync-backend/internal/config"
	"github.com/stayops/calsync-backend/internal/feed"
	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/notify"
	"github.com/stayops/calsync-backend/internal/pubsub"
	"github.com/stayops/calsync-backend/internal/utils"
)

// ListingResult reports the outcome of reconciling one listing
type ListingResult struct {
	ListingID   uuid.UUID            `json:"listing_id"`
	ListingName string               `json:"listing_name"`
	Status      models.SessionStatus `json:"status"`
	Error       string               `json:"error,omitempty"`
	Totals      models.SyncTotals    `json:"totals"`
}

// Reconciler aligns the stored bookings of a single listing with the events
// its calendar feeds currently publish. One reconcile runs the passes in a
// fixed order: cancellation sweep, per-event dispatch, checkout-type
// re-evaluation. The per-event pass is single-threaded for the listing and
// re-reads the store per event so it observes its own earlier writes.
type Reconciler struct {
	stores   Stores
	fetcher  feed.Fetcher
	notifier notify.Notifier
	events   *pubsub.Service
	cfg      *config.SyncConfig
	logger   *utils.Logger

	// now is the single time basis for a run: fetch window, feed
	// last_synced stamps and the past-booking cutoff all derive from it
	now func() time.Time
}

// NewReconciler creates a reconciler over the given collaborators. The
// events service may be nil when pubsub fan-out is disabled.
func NewReconciler(stores Stores, fetcher feed.Fetcher, notifier notify.Notifier, events *pubsub.Service, cfg *config.SyncConfig) *Reconciler {
	return &Reconciler{
		stores:   stores,
		fetcher:  fetcher,
		notifier: notifier,
		events:   events,
		cfg:      cfg,
		logger:   utils.NewLogger("reconciler"),
		now:      time.Now,
	}
}

// runState carries the per-run working set between reconcile passes
type runState struct {
	listing *models.Listing
	today   string
	merged  []feed.RawEvent
	log     *sessionLog
	result  *ListingResult
	mods    []*models.BookingChange
}

// Reconcile runs one full sync pass for the listing. The returned result is
// never nil; listing-level failures are reported through its Status and
// Error fields so orchestration can aggregate partial runs.
func (r *Reconciler) Reconcile(ctx context.Context, listing *models.Listing, log *sessionLog) *ListingResult {
	start := r.now()
	st := &runState{
		listing: listing,
		today:   models.DateStr(start),
		log:     log,
		result: &ListingResult{
			ListingID:   listing.ID,
			ListingName: listing.Name,
			Status:      models.SessionStatusCompleted,
		},
	}

	r.logger.Info("Reconciling listing",
		zap.String("listing", listing.Name),
		zap.String("listing_id", listing.ID.String()),
	)

	feeds, err := r.stores.Feeds.ListActiveForListing(ctx, listing.ID)
	if err != nil {
		return r.fail(st, "failed to list feeds", err)
	}
	if len(feeds) == 0 {
		r.logger.Debug("Listing has no active feeds, nothing to reconcile",
			zap.String("listing", listing.Name),
		)
		return st.result
	}

	merged, anySucceeded := r.fetchAll(ctx, st, feeds, start)
	if !anySucceeded {
		// No feed could be read. An outage must not look like an empty
		// calendar, so the run ends here instead of cancelling bookings.
		r.logger.Warn("All feed fetches failed, skipping reconcile",
			zap.String("listing", listing.Name),
			zap.Int("feeds", len(feeds)),
		)
		return st.result
	}
	st.merged = merged
	st.result.Totals.EventsProcessed = len(merged)

	if err := r.cancellationPass(ctx, st); err != nil {
		return r.fail(st, "cancellation pass failed", err)
	}

	for i := range st.merged {
		ev := &st.merged[i]
		if ctx.Err() != nil {
			return r.fail(st, "reconcile cancelled", ctx.Err())
		}
		if err := r.processEvent(ctx, st, ev); err != nil {
			st.result.Totals.Errors++
			st.log.Record(models.OpError, ev.ID, listing.Name,
				"Failed to process event: "+err.Error(), nil)
			r.logger.Error("Failed to process event",
				zap.String("listing", listing.Name),
				zap.String("event_id", ev.ID),
				zap.Error(err),
			)
		}
	}

	r.sendModifications(ctx, st)
	r.reevaluateCheckoutTypes(ctx, st)

	r.logger.Info("Listing reconciled",
		zap.String("listing", listing.Name),
		zap.Int("events", st.result.Totals.EventsProcessed),
		zap.Int("added", st.result.Totals.Added),
		zap.Int("updated", st.result.Totals.Updated),
		zap.Int("replaced", st.result.Totals.Replaced),
		zap.Int("deactivated", st.result.Totals.Deactivated),
		zap.Int("unchanged", st.result.Totals.Unchanged),
		zap.Int("errors", st.result.Totals.Errors),
		zap.Duration("duration", r.now().Sub(start)),
	)

	return st.result
}

// fetchAll fetches every feed concurrently, stamps last_synced on each
// regardless of outcome, and merges the surviving events. The second return
// is false only when every fetch failed.
func (r *Reconciler) fetchAll(ctx context.Context, st *runState, feeds []*models.Feed, start time.Time) ([]feed.RawEvent, bool) {
	windowStart, windowEnd := r.cfg.FetchWindow(start)

	type outcome struct {
		result *feed.FetchResult
		err    error
	}
	outcomes := make([]outcome, len(feeds))

	var wg sync.WaitGroup
	for i := range feeds {
		wg.Add(1)
		go func(i int, f *models.Feed) {
			defer wg.Done()
			res, err := r.fetcher.Fetch(ctx, f.URL, st.listing.ID, windowStart, windowEnd)
			outcomes[i] = outcome{result: res, err: err}
		}(i, feeds[i])
	}
	wg.Wait()

	var merged []feed.RawEvent
	succeeded := 0
	for i, f := range feeds {
		st.result.Totals.FeedsProcessed++

		// last_synced records the attempt, not the outcome
		if err := r.stores.Feeds.UpdateLastSynced(ctx, f.ID, start); err != nil {
			r.logger.Warn("Failed to stamp feed last_synced",
				zap.String("feed_id", f.ID.String()),
				zap.Error(err),
			)
		}

		if outcomes[i].err != nil {
			r.logger.Warn("Feed fetch failed, treating as empty",
				zap.String("listing", st.listing.Name),
				zap.String("feed_id", f.ID.String()),
				zap.Error(outcomes[i].err),
			)
			continue
		}
		succeeded++

		res := outcomes[i].result
		if res.DetectedListingName != "" && res.DetectedListingName != st.listing.Name {
			r.logger.Debug("Feed calendar name differs from listing",
				zap.String("listing", st.listing.Name),
				zap.String("calendar_name", res.DetectedListingName),
			)
		}
		for _, ev := range res.Events {
			if ev.Title == feed.PlaceholderTitle {
				continue
			}
			ev.Listing = st.listing.Name
			merged = append(merged, ev)
		}
	}

	return merged, succeeded > 0
}

// cancellationPass deactivates active bookings whose events no longer appear
// in the merged set. Bookings already checked out are left alone, as are
// bookings whose exact dates are claimed by a different event id in the
// batch; those are replacements handled by the per-event pass, not
// cancellations.
func (r *Reconciler) cancellationPass(ctx context.Context, st *runState) error {
	bookings, err := r.stores.Bookings.ListActiveByListingName(ctx, st.listing.Name)
	if err != nil {
		return fmt.Errorf("failed to list active bookings: %w", err)
	}
	if len(bookings) == 0 {
		return nil
	}

	mergedIDs := make(map[string]struct{}, len(st.merged))
	for i := range st.merged {
		mergedIDs[st.merged[i].ID] = struct{}{}
	}

	var (
		cancelled   []*models.Booking
		notifyBatch []*models.Booking
	)
	for _, b := range bookings {
		if b.IsPast(st.today) {
			continue
		}
		if _, ok := mergedIDs[b.EventID]; ok {
			continue
		}
		if r.datesClaimedByOther(st.merged, b) {
			continue
		}

		cancelled = append(cancelled, b)

		inserted, err := r.stores.Changes.Insert(ctx, models.NewCancellationChange(b))
		if err != nil {
			r.logger.Warn("Failed to record cancellation change",
				zap.String("event_id", b.EventID),
				zap.Error(err),
			)
		} else if inserted {
			notifyBatch = append(notifyBatch, b)
		}

		st.log.Record(models.OpDeactivated, b.EventID, st.listing.Name,
			"Event no longer exists in iCal feed", models.JSONB{
				"checkin_date":  b.CheckinDay(),
				"checkout_date": b.CheckoutDay(),
			})
	}

	if len(cancelled) == 0 {
		return nil
	}

	uuids := make([]uuid.UUID, len(cancelled))
	for i, b := range cancelled {
		uuids[i] = b.UUID
	}

	if _, err := r.stores.Bookings.Deactivate(ctx, uuids); err != nil {
		return fmt.Errorf("failed to deactivate cancelled bookings: %w", err)
	}
	if _, err := r.stores.Assignments.DeactivateForBookings(ctx, uuids); err != nil {
		return fmt.Errorf("failed to cascade deactivation to assignments: %w", err)
	}
	st.result.Totals.Deactivated += len(cancelled)

	if r.events != nil && r.events.IsRunning() {
		for _, b := range cancelled {
			if err := r.events.GetPublisher().PublishBookingCancelled(ctx, b); err != nil {
				r.logger.Warn("Failed to publish booking cancelled event",
					zap.String("event_id", b.EventID),
					zap.Error(err),
				)
			}
		}
	}

	if len(notifyBatch) > 0 {
		title, body := notify.FormatCancellations(notifyBatch)
		if err := r.notifier.Send(ctx, title, body); err != nil {
			r.logger.Error("Failed to send cancellation notification",
				zap.String("listing", st.listing.Name),
				zap.Int("bookings", len(notifyBatch)),
				zap.Error(err),
			)
		}
	}

	return nil
}

// datesClaimedByOther reports whether a merged event with a different id
// holds exactly the booking's dates, which marks the booking as a pending
// replacement rather than a cancellation.
func (r *Reconciler) datesClaimedByOther(merged []feed.RawEvent, b *models.Booking) bool {
	checkin := b.CheckinDay()
	checkout := b.CheckoutDay()
	for i := range merged {
		m := &merged[i]
		if m.ID != b.EventID && m.StartDay() == checkin && m.EndDay() == checkout {
			return true
		}
	}
	return false
}

// processEvent dispatches one merged event to exactly one of the four
// reconcile cases. Errors bubble up to be counted per event without
// stopping the pass.
func (r *Reconciler) processEvent(ctx context.Context, st *runState, ev *feed.RawEvent) error {
	checkoutType, err := r.determineCheckoutType(ctx, st.listing.Name, ev.EndDay(), ev.ID, st.merged)
	if err != nil {
		return fmt.Errorf("failed to determine checkout type: %w", err)
	}

	// Both lookups hit the live store so mutations from earlier events in
	// this same pass are visible here.
	byID, err := r.stores.Bookings.FindActiveByEventID(ctx, ev.ID)
	if err != nil && !errors.Is(err, models.ErrBookingNotFound) {
		return fmt.Errorf("failed to look up booking by event id: %w", err)
	}
	byDates, err := r.stores.Bookings.FindActiveByDateRange(ctx, st.listing.Name, ev.StartDay(), ev.EndDay())
	if err != nil && !errors.Is(err, models.ErrBookingNotFound) {
		return fmt.Errorf("failed to look up booking by date range: %w", err)
	}

	// Case 1: another event id holds exactly these dates and this event has
	// no row of its own. The platform reissued the reservation under a new
	// id; swap the rows without emitting a change record. Rows that already
	// checked out are never rewritten and fall through to the overlap skip.
	if byID == nil && byDates != nil && byDates.EventID != ev.ID && !byDates.IsPast(st.today) {
		return r.replaceBooking(ctx, st, ev, byDates, checkoutType,
			"Booking replaced, event ID changed for same dates", models.JSONB{
				"old_event_id": byDates.EventID,
			})
	}

	existing := byID
	if existing == nil && byDates != nil && byDates.EventID == ev.ID {
		existing = byDates
	}

	if existing != nil {
		if existing.IsPast(st.today) {
			st.result.Totals.Unchanged++
			st.log.Record(models.OpUnchanged, ev.ID, st.listing.Name,
				"Booking already checked out", nil)
			return nil
		}

		// Case 2: same event id, moved dates. The old row is closed and a
		// fresh row inserted so history keeps both date ranges.
		if existing.CheckinDay() != ev.StartDay() || existing.CheckoutDay() != ev.EndDay() {
			change := models.NewModificationChange(existing, ev.Start, ev.End)
			inserted, err := r.stores.Changes.Insert(ctx, change)
			if err != nil {
				r.logger.Warn("Failed to record modification change",
					zap.String("event_id", ev.ID),
					zap.Error(err),
				)
			} else if inserted {
				st.mods = append(st.mods, change)
			}

			return r.replaceBooking(ctx, st, ev, existing, checkoutType,
				"Booking dates changed", models.JSONB{
					"old_checkin_date":  existing.CheckinDay(),
					"old_checkout_date": existing.CheckoutDay(),
					"new_checkin_date":  ev.StartDay(),
					"new_checkout_date": ev.EndDay(),
				})
		}

		// Case 3: same booking, same dates. Only the checkout type may move.
		if existing.CheckoutType != checkoutType {
			if err := r.stores.Bookings.UpdateCheckoutType(ctx, existing.UUID, checkoutType); err != nil {
				return fmt.Errorf("failed to update checkout type: %w", err)
			}
			st.result.Totals.Updated++
			st.log.Record(models.OpCheckoutTypeChanged, ev.ID, st.listing.Name,
				fmt.Sprintf("Checkout type changed from %s to %s", existing.CheckoutType, checkoutType),
				models.JSONB{
					"old_checkout_type": string(existing.CheckoutType),
					"new_checkout_type": string(checkoutType),
				})
			return nil
		}

		st.result.Totals.Unchanged++
		st.log.Record(models.OpUnchanged, ev.ID, st.listing.Name,
			"Booking already up to date", nil)
		return nil
	}

	// Case 4: no existing row. Insert unless the dates collide with another
	// active booking; a checkout meeting a checkin on the same day is a
	// turnover, not a collision.
	overlapping, err := r.stores.Bookings.ListActiveOverlapping(ctx, st.listing.Name, ev.StartDay(), ev.EndDay())
	if err != nil {
		return fmt.Errorf("failed to check for overlapping bookings: %w", err)
	}
	if len(overlapping) > 0 {
		st.result.Totals.Unchanged++
		st.log.Record(models.OpUnchanged, ev.ID, st.listing.Name,
			"Dates overlap an existing active booking", models.JSONB{
				"reason":         "overlap",
				"conflicts_with": overlapping[0].EventID,
			})
		return nil
	}

	booking := r.newBookingFromEvent(st.listing, ev, checkoutType)
	if err := r.stores.Bookings.Insert(ctx, booking); err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	st.result.Totals.Added++
	st.log.Record(models.OpAdded, ev.ID, st.listing.Name,
		"New event found in iCal feed", models.JSONB{
			"checkin_date":  ev.StartDay(),
			"checkout_date": ev.EndDay(),
			"checkout_type": string(checkoutType),
		})

	if r.events != nil && r.events.IsRunning() {
		if err := r.events.GetPublisher().PublishBookingCreated(ctx, booking); err != nil {
			r.logger.Warn("Failed to publish booking created event",
				zap.String("event_id", booking.EventID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// replaceBooking closes the old row and inserts a fresh one carrying the
// event's current fields. Assignment cascade keeps cleaner links consistent
// with the deactivated row.
func (r *Reconciler) replaceBooking(ctx context.Context, st *runState, ev *feed.RawEvent, old *models.Booking, checkoutType models.CheckoutType, reasoning string, details models.JSONB) error {
	if _, err := r.stores.Bookings.Deactivate(ctx, []uuid.UUID{old.UUID}); err != nil {
		return fmt.Errorf("failed to deactivate replaced booking: %w", err)
	}
	if _, err := r.stores.Assignments.DeactivateForBookings(ctx, []uuid.UUID{old.UUID}); err != nil {
		return fmt.Errorf("failed to cascade deactivation to assignments: %w", err)
	}

	booking := r.newBookingFromEvent(st.listing, ev, checkoutType)
	if err := r.stores.Bookings.Insert(ctx, booking); err != nil {
		return fmt.Errorf("failed to insert replacement booking: %w", err)
	}

	st.result.Totals.Replaced++
	st.log.Record(models.OpReplaced, ev.ID, st.listing.Name, reasoning, details)

	if r.events != nil && r.events.IsRunning() {
		if err := r.events.GetPublisher().PublishBookingReplaced(ctx, booking); err != nil {
			r.logger.Warn("Failed to publish booking replaced event",
				zap.String("event_id", booking.EventID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// sendModifications delivers the modification notification batch collected
// during the per-event pass. Delivery failures are logged, never fatal.
func (r *Reconciler) sendModifications(ctx context.Context, st *runState) {
	if len(st.mods) == 0 {
		return
	}

	title, body := notify.FormatModifications(st.mods)
	if err := r.notifier.Send(ctx, title, body); err != nil {
		r.logger.Error("Failed to send modification notification",
			zap.String("listing", st.listing.Name),
			zap.Int("changes", len(st.mods)),
			zap.Error(err),
		)
	}
}

// reevaluateCheckoutTypes recomputes every active booking's checkout type
// after the per-event pass. Replacements and cancellations earlier in the
// run can create or remove turnovers for bookings that were not themselves
// touched.
func (r *Reconciler) reevaluateCheckoutTypes(ctx context.Context, st *runState) {
	bookings, err := r.stores.Bookings.ListActiveByListingName(ctx, st.listing.Name)
	if err != nil {
		st.result.Totals.Errors++
		st.log.Record(models.OpError, "", st.listing.Name,
			"Failed to re-evaluate checkout types: "+err.Error(), nil)
		r.logger.Error("Failed to list bookings for checkout re-evaluation",
			zap.String("listing", st.listing.Name),
			zap.Error(err),
		)
		return
	}

	for _, b := range bookings {
		if b.IsPast(st.today) {
			continue
		}

		checkoutType, err := r.determineCheckoutType(ctx, st.listing.Name, b.CheckoutDay(), b.EventID, st.merged)
		if err == nil && checkoutType != b.CheckoutType {
			err = r.stores.Bookings.UpdateCheckoutType(ctx, b.UUID, checkoutType)
			if err == nil {
				st.result.Totals.Updated++
				st.log.Record(models.OpCheckoutTypeChanged, b.EventID, st.listing.Name,
					fmt.Sprintf("Checkout type re-evaluated from %s to %s", b.CheckoutType, checkoutType),
					models.JSONB{
						"old_checkout_type": string(b.CheckoutType),
						"new_checkout_type": string(checkoutType),
					})
			}
		}
		if err != nil {
			st.result.Totals.Errors++
			st.log.Record(models.OpError, b.EventID, st.listing.Name,
				"Failed to re-evaluate checkout type: "+err.Error(), nil)
			r.logger.Error("Failed to re-evaluate checkout type",
				zap.String("event_id", b.EventID),
				zap.Error(err),
			)
		}
	}
}

// fail marks the listing result as errored. The error is also counted so an
// aggregated session shows partial completion.
func (r *Reconciler) fail(st *runState, msg string, err error) *ListingResult {
	st.result.Status = models.SessionStatusError
	st.result.Error = fmt.Sprintf("%s: %v", msg, err)
	st.result.Totals.Errors++

	st.log.Record(models.OpError, "", st.listing.Name, st.result.Error, nil)
	r.logger.Error("Listing reconcile failed",
		zap.String("listing", st.listing.Name),
		zap.String("error", st.result.Error),
	)
	return st.result
}
