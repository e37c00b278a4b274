package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stayops/calsync-backend/internal/database"
	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/sync"
)

// SyncRunner is the slice of the sync engine the API depends on.
type SyncRunner interface {
	SyncListing(ctx context.Context, listingID uuid.UUID, sessionID *uuid.UUID, triggeredBy models.TriggerSource) (*sync.SyncListingResponse, error)
	SyncAll(ctx context.Context, triggeredBy models.TriggerSource) (*sync.SyncAllResponse, error)
}

// SyncAllRequest is the optional body for POST /sync/all
type SyncAllRequest struct {
	TriggeredBy string `json:"triggered_by,omitempty"`
}

// SyncListingRequest is the optional body for POST /listings/:listing_id/sync
type SyncListingRequest struct {
	SessionID *uuid.UUID `json:"session_id,omitempty"`
}

// SyncHandler handles sync triggers, booking browsing and assignment repair
type SyncHandler struct {
	runner     SyncRunner
	repository *database.Repository
	logger     *zap.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(runner SyncRunner, repository *database.Repository) *SyncHandler {
	return &SyncHandler{
		runner:     runner,
		repository: repository,
		logger:     zap.L().Named("sync_handler"),
	}
}

// RegisterRoutes registers sync routes
func (h *SyncHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/sync/all", h.SyncAll)
	router.POST("/listings/:listing_id/sync", h.SyncListing)
	router.GET("/bookings", h.ListBookings)
	router.POST("/assignments/reconcile", h.ReconcileAssignments)
}

// SyncAll triggers a full sync across all listings
func (h *SyncHandler) SyncAll(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Minute)
	defer cancel()

	var req SyncAllRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
			return
		}
	}

	triggeredBy, ok := parseTriggerSource(c, req.TriggeredBy)
	if !ok {
		return
	}

	h.logger.Info("Full sync requested",
		zap.String("triggered_by", string(triggeredBy)),
	)

	resp, err := h.runner.SyncAll(ctx, triggeredBy)
	if err != nil {
		h.logger.Error("Full sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SyncListing triggers a sync for a single listing. An optional session_id
// joins the run to an existing session instead of opening a new one.
func (h *SyncHandler) SyncListing(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Minute)
	defer cancel()

	listingID, ok := parseUUIDParam(c, "listing_id")
	if !ok {
		return
	}

	var req SyncListingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
			return
		}
	}

	h.logger.Info("Listing sync requested",
		zap.String("listing_id", listingID.String()),
	)

	resp, err := h.runner.SyncListing(ctx, listingID, req.SessionID, models.TriggerManual)
	if err != nil {
		if errors.Is(err, models.ErrListingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
			return
		}
		h.logger.Error("Listing sync failed",
			zap.String("listing_id", listingID.String()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListBookings lists bookings, active ones by default
func (h *SyncHandler) ListBookings(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	opts := &models.ListOptions{
		ListingName: c.Query("listing_name"),
		Limit:       parseIntQuery(c, "limit", 50),
		Offset:      parseIntQuery(c, "offset", 0),
	}

	opts.Status = "active"
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid active parameter"})
			return
		}
		if !active {
			opts.Status = "inactive"
		}
	}

	if err := opts.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return
	}

	bookings, err := h.repository.Bookings.List(ctx, opts)
	if err != nil {
		h.logger.Error("Failed to list bookings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list bookings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
		"limit":    opts.Limit,
		"offset":   opts.Offset,
	})
}

// ReconcileAssignments deactivates cleaner assignments that point at
// inactive or deleted bookings
func (h *SyncHandler) ReconcileAssignments(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	deactivated, err := h.repository.Assignments.DeactivateOrphaned(ctx)
	if err != nil {
		h.logger.Error("Failed to reconcile assignments", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reconcile assignments"})
		return
	}

	h.logger.Info("Reconciled orphaned assignments",
		zap.Int64("deactivated", deactivated),
	)

	c.JSON(http.StatusOK, gin.H{"deactivated": deactivated})
}

// parseTriggerSource validates an optional triggered_by value, defaulting to
// manual. Replies 400 on an unknown value.
func parseTriggerSource(c *gin.Context, raw string) (models.TriggerSource, bool) {
	switch models.TriggerSource(raw) {
	case "":
		return models.TriggerManual, true
	case models.TriggerManual, models.TriggerAutomatic, models.TriggerCron:
		return models.TriggerSource(raw), true
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid triggered_by value"})
		return "", false
	}
}
