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

	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/services"
	"github.com/stayops/calsync-backend/internal/utils"
)

// ListingHandler handles listing and feed CRUD operations
type ListingHandler struct {
	listingService *services.ListingService
	logger         *zap.Logger
}

// NewListingHandler creates a new listing handler
func NewListingHandler(listingService *services.ListingService) *ListingHandler {
	return &ListingHandler{
		listingService: listingService,
		logger:         zap.L().Named("listing_handler"),
	}
}

// RegisterRoutes registers listing routes
func (h *ListingHandler) RegisterRoutes(router *gin.RouterGroup) {
	listings := router.Group("/listings")
	{
		listings.GET("", h.ListListings)
		listings.POST("", h.CreateListing)
		listings.GET("/:listing_id", h.GetListing)
		listings.PUT("/:listing_id", h.UpdateListing)
		listings.DELETE("/:listing_id", h.DeleteListing)
		listings.GET("/:listing_id/feeds", h.ListFeeds)
		listings.POST("/:listing_id/feeds", h.AttachFeed)
		listings.DELETE("/:listing_id/feeds/:feed_id", h.DetachFeed)
	}
}

// ListListings lists listings with pagination
func (h *ListingHandler) ListListings(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	opts := &models.ListOptions{
		Limit:  parseIntQuery(c, "limit", 50),
		Offset: parseIntQuery(c, "offset", 0),
	}

	if err := opts.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return
	}

	listings, total, err := h.listingService.ListListings(ctx, opts)
	if err != nil {
		h.logger.Error("Failed to list listings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list listings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"total":    total,
		"limit":    opts.Limit,
		"offset":   opts.Offset,
	})
}

// CreateListing creates a new listing
func (h *ListingHandler) CreateListing(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	var req models.ListingCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}

	listing, err := h.listingService.CreateListing(ctx, &req)
	if err != nil {
		h.logger.Error("Failed to create listing",
			zap.String("listing_name", req.Name),
			zap.Error(err),
		)
		apiErr := utils.ConvertDBError(err)
		c.JSON(apiErr.HTTPStatus(), gin.H{"error": apiErr})
		return
	}

	c.JSON(http.StatusCreated, listing)
}

// GetListing gets a specific listing
func (h *ListingHandler) GetListing(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	listingID, ok := parseUUIDParam(c, "listing_id")
	if !ok {
		return
	}

	listing, err := h.listingService.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, models.ErrListingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
			return
		}
		h.logger.Error("Failed to get listing",
			zap.String("listing_id", listingID.String()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get listing"})
		return
	}

	c.JSON(http.StatusOK, listing)
}

// UpdateListing updates a listing
func (h *ListingHandler) UpdateListing(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	listingID, ok := parseUUIDParam(c, "listing_id")
	if !ok {
		return
	}

	var req models.ListingUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}

	listing, err := h.listingService.UpdateListing(ctx, listingID, &req)
	if err != nil {
		if errors.Is(err, models.ErrListingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
			return
		}
		h.logger.Error("Failed to update listing",
			zap.String("listing_id", listingID.String()),
			zap.Error(err),
		)
		apiErr := utils.ConvertDBError(err)
		c.JSON(apiErr.HTTPStatus(), gin.H{"error": apiErr})
		return
	}

	c.JSON(http.StatusOK, listing)
}

// DeleteListing soft-deletes a listing
func (h *ListingHandler) DeleteListing(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	listingID, ok := parseUUIDParam(c, "listing_id")
	if !ok {
		return
	}

	if err := h.listingService.DeleteListing(ctx, listingID); err != nil {
		if errors.Is(err, models.ErrListingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
			return
		}
		h.logger.Error("Failed to delete listing",
			zap.String("listing_id", listingID.String()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete listing"})
		return
	}

	c.Status(http.StatusNoContent)
}

// ListFeeds lists the feeds attached to a listing
func (h *ListingHandler) ListFeeds(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	listingID, ok := parseUUIDParam(c, "listing_id")
	if !ok {
		return
	}

	feeds, err := h.listingService.ListFeeds(ctx, listingID)
	if err != nil {
		if errors.Is(err, models.ErrListingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
			return
		}
		h.logger.Error("Failed to list feeds",
			zap.String("listing_id", listingID.String()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list feeds"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds": feeds,
		"total": len(feeds),
	})
}

// AttachFeed creates a feed and attaches it to a listing
func (h *ListingHandler) AttachFeed(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	listingID, ok := parseUUIDParam(c, "listing_id")
	if !ok {
		return
	}

	var req models.FeedCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}

	feed, err := h.listingService.AttachFeed(ctx, listingID, &req)
	if err != nil {
		if errors.Is(err, models.ErrListingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
			return
		}
		h.logger.Error("Failed to attach feed",
			zap.String("listing_id", listingID.String()),
			zap.String("feed_url", req.URL),
			zap.Error(err),
		)
		apiErr := utils.ConvertDBError(err)
		c.JSON(apiErr.HTTPStatus(), gin.H{"error": apiErr})
		return
	}

	c.JSON(http.StatusCreated, feed)
}

// DetachFeed removes a feed/listing association
func (h *ListingHandler) DetachFeed(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	listingID, ok := parseUUIDParam(c, "listing_id")
	if !ok {
		return
	}
	feedID, ok := parseUUIDParam(c, "feed_id")
	if !ok {
		return
	}

	if err := h.listingService.DetachFeed(ctx, listingID, feedID); err != nil {
		switch {
		case errors.Is(err, models.ErrListingNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
		case errors.Is(err, models.ErrFeedNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "feed not found"})
		default:
			h.logger.Error("Failed to detach feed",
				zap.String("listing_id", listingID.String()),
				zap.String("feed_id", feedID.String()),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to detach feed"})
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// parseUUIDParam extracts a UUID path parameter, replying 400 on a bad value
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s format", name)})
		return uuid.Nil, false
	}
	return id, true
}

// parseIntQuery reads a non-negative integer query parameter with a default
func parseIntQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
