package sync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/utils"
)

// sessionLog buffers log entries for one reconcile and flushes them as a
// batch. Entries that fail to persist move to a fallback buffer retried once
// at close time; entries that still cannot be written are dropped and
// counted rather than failing the sync.
type sessionLog struct {
	sessionID uuid.UUID
	sessions  SessionStore
	logger    *utils.Logger

	mu       sync.Mutex
	entries  []*models.SyncLogEntry
	fallback []*models.SyncLogEntry
	dropped  int64
}

func newSessionLog(sessionID uuid.UUID, sessions SessionStore) *sessionLog {
	return &sessionLog{
		sessionID: sessionID,
		sessions:  sessions,
		logger:    utils.NewLogger("session-log"),
	}
}

// Record buffers one decision entry
func (l *sessionLog) Record(op models.LogOperation, eventID, listingName, reasoning string, details models.JSONB) {
	entry := &models.SyncLogEntry{
		SyncSessionID: l.sessionID,
		Operation:     op,
		EventID:       eventID,
		ListingName:   listingName,
		EventDetails:  details,
		Reasoning:     reasoning,
		CreatedAt:     time.Now(),
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Flush persists the buffered entries as one batch. On store failure the
// batch is parked in the fallback buffer for the close-time retry.
func (l *sessionLog) Flush(ctx context.Context) {
	l.mu.Lock()
	batch := l.entries
	l.entries = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	if err := l.sessions.InsertLogEntries(ctx, batch); err != nil {
		l.logger.Warn("Failed to flush session log entries, parking for retry",
			zap.String("session_id", l.sessionID.String()),
			zap.Int("count", len(batch)),
			zap.Error(err),
		)
		l.mu.Lock()
		l.fallback = append(l.fallback, batch...)
		l.mu.Unlock()
	}
}

// Close flushes any remaining entries and retries the fallback buffer once.
// Entries that still fail are dropped and counted.
func (l *sessionLog) Close(ctx context.Context) {
	l.Flush(ctx)

	l.mu.Lock()
	batch := l.fallback
	l.fallback = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	if err := l.sessions.InsertLogEntries(ctx, batch); err != nil {
		l.mu.Lock()
		l.dropped += int64(len(batch))
		dropped := l.dropped
		l.mu.Unlock()

		l.logger.Error("Dropping session log entries after retry failed",
			zap.String("session_id", l.sessionID.String()),
			zap.Int("count", len(batch)),
			zap.Int64("total_dropped", dropped),
			zap.Error(err),
		)
	}
}

// Dropped returns how many entries were lost after the close-time retry
func (l *sessionLog) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
