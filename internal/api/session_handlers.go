package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stayops/calsync-backend/internal/database"
	"github.com/stayops/calsync-backend/internal/models"
)

// SessionHandler serves sync session browsing and statistics
type SessionHandler struct {
	repository *database.Repository
	logger     *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(repository *database.Repository) *SessionHandler {
	return &SessionHandler{
		repository: repository,
		logger:     zap.L().Named("session_handler"),
	}
}

// RegisterRoutes registers session routes
func (h *SessionHandler) RegisterRoutes(router *gin.RouterGroup) {
	sessions := router.Group("/sync/sessions")
	{
		sessions.GET("", h.ListSessions)
		sessions.GET("/:session_id", h.GetSession)
		sessions.GET("/:session_id/entries", h.ListSessionEntries)
	}
	router.GET("/sync/stats", h.GetStats)
}

// ListSessions lists sync sessions, newest first
func (h *SessionHandler) ListSessions(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	opts := &models.ListOptions{
		Status:      c.Query("status"),
		SyncType:    c.Query("sync_type"),
		ListingName: c.Query("listing_name"),
		Limit:       parseIntQuery(c, "limit", 50),
		Offset:      parseIntQuery(c, "offset", 0),
	}

	if err := opts.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return
	}

	sessions, err := h.repository.Sessions.List(ctx, opts)
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
		"limit":    opts.Limit,
		"offset":   opts.Offset,
	})
}

// GetSession gets a specific sync session
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	sessionID, ok := parseUUIDParam(c, "session_id")
	if !ok {
		return
	}

	session, err := h.repository.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "sync session not found"})
			return
		}
		h.logger.Error("Failed to get session",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get session"})
		return
	}

	c.JSON(http.StatusOK, session)
}

// ListSessionEntries lists the log entries recorded under a session
func (h *SessionHandler) ListSessionEntries(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	sessionID, ok := parseUUIDParam(c, "session_id")
	if !ok {
		return
	}

	if _, err := h.repository.Sessions.GetByID(ctx, sessionID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "sync session not found"})
			return
		}
		h.logger.Error("Failed to get session",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get session"})
		return
	}

	opts := &models.ListOptions{
		Limit:  parseIntQuery(c, "limit", 500),
		Offset: parseIntQuery(c, "offset", 0),
	}

	if err := opts.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return
	}

	entries, err := h.repository.Sessions.ListLogEntries(ctx, sessionID, opts)
	if err != nil {
		h.logger.Error("Failed to list session entries",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list session entries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// GetStats serves the sync statistics aggregate
func (h *SessionHandler) GetStats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	stats, err := h.repository.Stats.SyncStats(ctx)
	if err != nil {
		h.logger.Error("Failed to get sync stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get sync stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
