package sync

import (
	"context"
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

// SyncListingResponse is the outcome of a single-listing sync run
type SyncListingResponse struct {
	Success   bool           `json:"success"`
	SessionID uuid.UUID      `json:"session_id"`
	Result    *ListingResult `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// SyncAllResponse is the outcome of a full sync run across all listings
type SyncAllResponse struct {
	Success   bool              `json:"success"`
	SessionID uuid.UUID         `json:"session_id"`
	Totals    models.SyncTotals `json:"totals"`
	Results   []*ListingResult  `json:"results"`
	Error     string            `json:"error,omitempty"`
}

// RunObserver receives sync outcomes as they finish. Implementations must be
// safe for concurrent use; listing callbacks fire from worker goroutines.
type RunObserver interface {
	ListingSynced(result *ListingResult)
	RunCompleted(syncType models.SyncType, triggeredBy models.TriggerSource, status models.SessionStatus, duration time.Duration)
}

// Engine orchestrates reconcile runs and owns sync session bookkeeping.
// SyncAll dispatches listings to a bounded worker pool; SyncListing runs a
// single listing, either under its own session or joined to a caller's.
type Engine struct {
	stores     Stores
	reconciler *Reconciler
	events     *pubsub.Service
	cfg        *config.SyncConfig
	observer   RunObserver
	logger     *utils.Logger
}

// NewEngine creates the sync engine. The events service may be nil when
// pubsub fan-out is disabled.
func NewEngine(stores Stores, fetcher feed.Fetcher, notifier notify.Notifier, events *pubsub.Service, cfg *config.SyncConfig) *Engine {
	return &Engine{
		stores:     stores,
		reconciler: NewReconciler(stores, fetcher, notifier, events, cfg),
		events:     events,
		cfg:        cfg,
		logger:     utils.NewLogger("sync-engine"),
	}
}

// SetObserver installs a metrics hook. Call before the engine starts
// serving syncs.
func (e *Engine) SetObserver(obs RunObserver) {
	e.observer = obs
}

// SyncListing reconciles one listing. When sessionID is nil the engine opens
// a single-listing session and completes it; otherwise it joins the given
// session, incrementing its totals but leaving completion to the owner.
func (e *Engine) SyncListing(ctx context.Context, listingID uuid.UUID, sessionID *uuid.UUID, triggeredBy models.TriggerSource) (*SyncListingResponse, error) {
	start := time.Now()

	listing, err := e.stores.Listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}

	ownsSession := sessionID == nil
	var sid uuid.UUID
	if ownsSession {
		session := &models.SyncSession{
			SyncType:          models.SyncTypeSingle,
			TargetListingID:   &listing.ID,
			TargetListingName: &listing.Name,
			TriggeredBy:       triggeredBy,
		}
		if err := e.stores.Sessions.Create(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to create sync session: %w", err)
		}
		if err := e.stores.Sessions.Start(ctx, session.ID); err != nil {
			return nil, fmt.Errorf("failed to start sync session: %w", err)
		}
		sid = session.ID
	} else {
		sid = *sessionID
	}

	log := newSessionLog(sid, e.stores.Sessions)
	result := e.reconciler.Reconcile(ctx, listing, log)
	e.recordListing(ctx, sid, result, log)

	if ownsSession {
		status := models.SessionStatusCompleted
		var errMsg *string
		if ctx.Err() != nil {
			status = models.SessionStatusError
			msg := "cancelled"
			errMsg = &msg
		} else if result.Status == models.SessionStatusError {
			status = models.SessionStatusError
			errMsg = &result.Error
		}
		e.completeSession(ctx, sid, status, errMsg)
		if e.observer != nil {
			e.observer.RunCompleted(models.SyncTypeSingle, triggeredBy, status, time.Since(start))
		}
	}

	return &SyncListingResponse{
		Success:   result.Status == models.SessionStatusCompleted,
		SessionID: sid,
		Result:    result,
		Error:     result.Error,
	}, nil
}

// SyncAll reconciles every active listing except manual ones through a
// bounded worker pool. The session closes as completed even when individual
// listings failed; a nonzero errors counter marks the partial run. Only an
// orchestrator-level failure or caller cancellation closes it as error.
func (e *Engine) SyncAll(ctx context.Context, triggeredBy models.TriggerSource) (*SyncAllResponse, error) {
	start := time.Now()

	session := &models.SyncSession{
		SyncType:    models.SyncTypeAll,
		TriggeredBy: triggeredBy,
	}
	if err := e.stores.Sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create sync session: %w", err)
	}
	if err := e.stores.Sessions.Start(ctx, session.ID); err != nil {
		return nil, fmt.Errorf("failed to start sync session: %w", err)
	}

	listings, err := e.stores.Listings.ListActive(ctx)
	if err != nil {
		msg := fmt.Sprintf("failed to list listings: %v", err)
		e.completeSession(ctx, session.ID, models.SessionStatusError, &msg)
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}

	targets := make([]*models.Listing, 0, len(listings))
	for _, l := range listings {
		if l.IsManual() {
			continue
		}
		targets = append(targets, l)
	}

	e.logger.Info("Starting full sync",
		zap.String("session_id", session.ID.String()),
		zap.String("triggered_by", string(triggeredBy)),
		zap.Int("listings", len(targets)),
		zap.Int("concurrency", e.concurrency()),
	)

	runCtx := ctx
	if e.cfg.RunBudget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.cfg.RunBudget)
		defer cancel()
	}

	results := make([]*ListingResult, len(targets))
	sem := make(chan struct{}, e.concurrency())
	var wg sync.WaitGroup
	for i := range targets {
		wg.Add(1)
		go func(i int, listing *models.Listing) {
			defer wg.Done()

			// Budget exhausted or caller cancelled before this listing was
			// dispatched; record it as errored without running.
			skip := func() {
				result := &ListingResult{
					ListingID:   listing.ID,
					ListingName: listing.Name,
					Status:      models.SessionStatusError,
					Error:       "sync run ended before listing was dispatched",
				}
				result.Totals.Errors = 1
				e.recordListing(ctx, session.ID, result, nil)
				results[i] = result
			}

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-runCtx.Done():
				skip()
				return
			}
			if runCtx.Err() != nil {
				skip()
				return
			}

			log := newSessionLog(session.ID, e.stores.Sessions)
			result := e.reconciler.Reconcile(runCtx, listing, log)
			e.recordListing(ctx, session.ID, result, log)
			results[i] = result
		}(i, targets[i])
	}
	wg.Wait()

	var totals models.SyncTotals
	allOK := true
	for _, result := range results {
		totals.Add(result.Totals)
		if result.Status != models.SessionStatusCompleted {
			allOK = false
		}
	}

	status := models.SessionStatusCompleted
	var errMsg *string
	if ctx.Err() != nil {
		status = models.SessionStatusError
		msg := "cancelled"
		errMsg = &msg
		allOK = false
	}
	e.completeSession(ctx, session.ID, status, errMsg)
	if e.observer != nil {
		e.observer.RunCompleted(models.SyncTypeAll, triggeredBy, status, time.Since(start))
	}

	e.logger.Info("Full sync finished",
		zap.String("session_id", session.ID.String()),
		zap.String("status", string(status)),
		zap.Int("listings", totals.Listings),
		zap.Int("completed_listings", totals.CompletedListings),
		zap.Int("events", totals.EventsProcessed),
		zap.Int("errors", totals.Errors),
	)

	resp := &SyncAllResponse{
		Success:   allOK,
		SessionID: session.ID,
		Totals:    totals,
		Results:   results,
	}
	if errMsg != nil {
		resp.Error = *errMsg
	}
	return resp, nil
}

// recordListing folds one listing result into the session: totals increment
// plus the buffered log entries. A nil log means the listing never ran.
func (e *Engine) recordListing(ctx context.Context, sessionID uuid.UUID, result *ListingResult, log *sessionLog) {
	result.Totals.Listings = 1
	if result.Status == models.SessionStatusCompleted {
		result.Totals.CompletedListings = 1
	}

	bookCtx, cancel := e.bookkeepingContext(ctx)
	defer cancel()
	if err := e.stores.Sessions.IncrementTotals(bookCtx, sessionID, result.Totals); err != nil {
		e.logger.Error("Failed to increment session totals",
			zap.String("session_id", sessionID.String()),
			zap.String("listing", result.ListingName),
			zap.Error(err),
		)
	}
	if log != nil {
		log.Close(bookCtx)
	}

	if e.observer != nil {
		e.observer.ListingSynced(result)
	}
}

// completeSession closes the session row and publishes the completion event
func (e *Engine) completeSession(ctx context.Context, sessionID uuid.UUID, status models.SessionStatus, errMsg *string) {
	bookCtx, cancel := e.bookkeepingContext(ctx)
	defer cancel()
	if err := e.stores.Sessions.Complete(bookCtx, sessionID, status, errMsg); err != nil {
		e.logger.Error("Failed to complete sync session",
			zap.String("session_id", sessionID.String()),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return
	}

	if e.events != nil && e.events.IsRunning() {
		session, err := e.stores.Sessions.GetByID(bookCtx, sessionID)
		if err != nil {
			e.logger.Warn("Failed to load session for completion event",
				zap.String("session_id", sessionID.String()),
				zap.Error(err),
			)
			return
		}
		if err := e.events.GetPublisher().PublishSyncCompleted(bookCtx, session); err != nil {
			e.logger.Warn("Failed to publish sync completed event",
				zap.String("session_id", sessionID.String()),
				zap.Error(err),
			)
		}
	}
}

// bookkeepingContext returns ctx unless it is already cancelled, in which
// case session rows and log entries are still written under a short
// detached deadline so a cancelled run leaves a closed session behind.
func (e *Engine) bookkeepingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func (e *Engine) concurrency() int {
	if e.cfg.Concurrency < 1 {
		return 1
	}
	return e.cfg.Concurrency
}
