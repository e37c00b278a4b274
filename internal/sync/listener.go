package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/stayops/calsync-backend/internal/config"
	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/utils"
)

// feedChangeChannel is the Postgres NOTIFY channel raised by triggers on the
// feeds and listing_feeds tables.
const feedChangeChannel = "feed_change"

// FeedChangeNotification is the payload the database triggers emit when a
// feed or its listing attachment changes.
type FeedChangeNotification struct {
	ListingID string  `json:"listing_id"`
	Reason    string  `json:"reason"` // "feed_attached", "feed_detached", "feed_updated"
	Timestamp float64 `json:"timestamp"`
}

// FeedChangeListener holds a dedicated LISTEN connection and triggers a
// single-listing sync when a feed changes, so edits through the API take
// effect without waiting for the next scheduled run. Rapid-fire changes to
// the same listing are debounced.
type FeedChangeListener struct {
	dbConfig *config.DatabaseConfig
	syncCfg  *config.SyncConfig
	engine   *Engine
	logger   *utils.Logger

	conn     *pgx.Conn
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex

	// Debouncing to prevent rapid-fire syncs per listing
	debounceMu    sync.RWMutex
	lastEventTime map[uuid.UUID]time.Time

	syncsTriggered int64
	syncsDebounced int64
}

// NewFeedChangeListener creates a new feed change listener
func NewFeedChangeListener(dbConfig *config.DatabaseConfig, syncCfg *config.SyncConfig, engine *Engine) *FeedChangeListener {
	return &FeedChangeListener{
		dbConfig:      dbConfig,
		syncCfg:       syncCfg,
		engine:        engine,
		logger:        utils.NewLogger("feed-change-listener"),
		stopChan:      make(chan struct{}),
		lastEventTime: make(map[uuid.UUID]time.Time),
	}
}

// Start opens the dedicated LISTEN connection and starts the loop
func (l *FeedChangeListener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil // Already running
	}

	if !l.syncCfg.ListenerEnabled {
		l.logger.Info("Feed change listener is disabled")
		return nil
	}

	conn, err := pgx.Connect(ctx, l.dbConfig.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database for listening: %w", err)
	}

	l.conn = conn
	l.running = true

	if _, err := l.conn.Exec(ctx, "LISTEN "+feedChangeChannel); err != nil {
		l.conn.Close(ctx)
		l.running = false
		return fmt.Errorf("failed to listen for %s: %w", feedChangeChannel, err)
	}

	l.logger.Info("Feed change listener started",
		zap.String("channel", feedChangeChannel),
		zap.Duration("debounce", l.syncCfg.ListenerDebounce),
	)

	l.wg.Add(1)
	go l.listenLoop(ctx)

	return nil
}

// Stop closes the connection and waits for in-flight work to finish. Syncs
// already triggered are interrupted through the context passed to Start.
func (l *FeedChangeListener) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return nil
	}

	l.logger.Info("Stopping feed change listener")
	l.running = false
	close(l.stopChan)

	if l.conn != nil {
		l.conn.Close(ctx)
	}

	l.wg.Wait()
	l.logger.Info("Feed change listener stopped")

	return nil
}

// IsRunning returns whether the listener is running
func (l *FeedChangeListener) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// listenLoop waits for notifications until stopped
func (l *FeedChangeListener) listenLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			l.logger.Info("Feed change listener loop stopping")
			return
		case <-ctx.Done():
			l.logger.Info("Feed change listener loop stopping due to context cancellation")
			return
		default:
			notification, err := l.conn.WaitForNotification(ctx)
			if err != nil {
				select {
				case <-l.stopChan:
					return
				case <-ctx.Done():
					return
				default:
					l.logger.Error("Error waiting for database notification", zap.Error(err))
					// Brief sleep to prevent a tight loop on persistent errors
					time.Sleep(time.Second)
					continue
				}
			}

			if notification != nil {
				l.handleNotification(ctx, notification)
			}
		}
	}
}

// handleNotification parses one notification and triggers a listing sync
func (l *FeedChangeListener) handleNotification(ctx context.Context, notification *pgconn.Notification) {
	l.logger.Debug("Received feed change notification",
		zap.String("channel", notification.Channel),
		zap.String("payload", notification.Payload),
	)

	var change FeedChangeNotification
	if err := json.Unmarshal([]byte(notification.Payload), &change); err != nil {
		l.logger.Error("Failed to parse feed change notification",
			zap.String("payload", notification.Payload),
			zap.Error(err),
		)
		return
	}

	listingID, err := uuid.Parse(change.ListingID)
	if err != nil {
		l.logger.Error("Invalid listing ID in feed change notification",
			zap.String("listing_id", change.ListingID),
			zap.Error(err),
		)
		return
	}

	if l.shouldDebounce(listingID) {
		l.debounceMu.Lock()
		l.syncsDebounced++
		l.debounceMu.Unlock()
		l.logger.Debug("Debouncing feed change notification",
			zap.String("listing_id", change.ListingID),
			zap.String("reason", change.Reason),
		)
		return
	}
	l.updateDebounceTracking(listingID)

	l.logger.Info("Feed change detected, triggering listing sync",
		zap.String("listing_id", change.ListingID),
		zap.String("reason", change.Reason),
	)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		l.debounceMu.Lock()
		l.syncsTriggered++
		l.debounceMu.Unlock()

		if _, err := l.engine.SyncListing(ctx, listingID, nil, models.TriggerAutomatic); err != nil {
			l.logger.Error("Feed change sync failed",
				zap.String("listing_id", listingID.String()),
				zap.Error(err),
			)
		}
	}()
}

// shouldDebounce checks whether the listing synced too recently
func (l *FeedChangeListener) shouldDebounce(listingID uuid.UUID) bool {
	l.debounceMu.RLock()
	defer l.debounceMu.RUnlock()

	lastTime, exists := l.lastEventTime[listingID]
	if !exists {
		return false
	}
	return time.Since(lastTime) < l.syncCfg.ListenerDebounce
}

// updateDebounceTracking stamps the listing and prunes stale entries
func (l *FeedChangeListener) updateDebounceTracking(listingID uuid.UUID) {
	l.debounceMu.Lock()
	defer l.debounceMu.Unlock()

	l.lastEventTime[listingID] = time.Now()

	cutoff := time.Now().Add(-5 * time.Minute)
	for key, timestamp := range l.lastEventTime {
		if timestamp.Before(cutoff) {
			delete(l.lastEventTime, key)
		}
	}
}

// GetStats returns statistics about the feed change listener
func (l *FeedChangeListener) GetStats() map[string]interface{} {
	running := l.IsRunning()

	l.debounceMu.RLock()
	defer l.debounceMu.RUnlock()

	return map[string]interface{}{
		"running":              running,
		"enabled":              l.syncCfg.ListenerEnabled,
		"debounce":             l.syncCfg.ListenerDebounce.String(),
		"active_debounce_keys": len(l.lastEventTime),
		"syncs_triggered":      l.syncsTriggered,
		"syncs_debounced":      l.syncsDebounced,
	}
}
