package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SyncType distinguishes single-listing sessions from full runs
type SyncType string

// SessionStatus represents the lifecycle state of a sync session
type SessionStatus string

// TriggerSource identifies what started a sync run
type TriggerSource string

// LogOperation enumerates every decision the engine records. The set is
// closed; repositories and dashboards rely on it staying small.
type LogOperation string

// SyncType constants
const (
	SyncTypeSingle SyncType = "single"
	SyncTypeAll    SyncType = "all"
)

// SessionStatus constants. Sessions only ever move forward:
// pending -> in_progress -> (completed | error).
const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusError      SessionStatus = "error"
)

// TriggerSource constants
const (
	TriggerManual    TriggerSource = "manual"
	TriggerAutomatic TriggerSource = "automatic"
	TriggerCron      TriggerSource = "cron"
)

// LogOperation constants
const (
	OpAdded               LogOperation = "added"
	OpUpdated             LogOperation = "updated"
	OpReplaced            LogOperation = "replaced"
	OpDeactivated         LogOperation = "deactivated"
	OpUnchanged           LogOperation = "unchanged"
	OpCheckoutTypeChanged LogOperation = "checkout_type_changed"
	OpError               LogOperation = "error"
)

// SyncTotals aggregates booking-level counters for a sync run
type SyncTotals struct {
	Listings          int `json:"listings" db:"total_listings"`
	CompletedListings int `json:"completed_listings" db:"completed_listings"`
	EventsProcessed   int `json:"events_processed" db:"events_processed"`
	FeedsProcessed    int `json:"feeds_processed" db:"feeds_processed"`
	Added             int `json:"added" db:"events_added"`
	Updated           int `json:"updated" db:"events_updated"`
	Deactivated       int `json:"deactivated" db:"events_deactivated"`
	Replaced          int `json:"replaced" db:"events_replaced"`
	Unchanged         int `json:"unchanged" db:"events_unchanged"`
	Errors            int `json:"errors" db:"errors_count"`
}

// Add accumulates another set of totals into this one
func (t *SyncTotals) Add(other SyncTotals) {
	t.Listings += other.Listings
	t.CompletedListings += other.CompletedListings
	t.EventsProcessed += other.EventsProcessed
	t.FeedsProcessed += other.FeedsProcessed
	t.Added += other.Added
	t.Updated += other.Updated
	t.Deactivated += other.Deactivated
	t.Replaced += other.Replaced
	t.Unchanged += other.Unchanged
	t.Errors += other.Errors
}

// IsZero returns true if no counter has been touched
func (t SyncTotals) IsZero() bool {
	return t == SyncTotals{}
}

// SyncSession represents one logical sync run with aggregate counters
type SyncSession struct {
	ID                uuid.UUID     `json:"id" db:"id"`
	SyncType          SyncType      `json:"sync_type" db:"sync_type"`
	TargetListingID   *uuid.UUID    `json:"target_listing_id,omitempty" db:"target_listing_id"`
	TargetListingName *string       `json:"target_listing_name,omitempty" db:"target_listing_name"`
	TriggeredBy       TriggerSource `json:"triggered_by" db:"triggered_by"`
	Status            SessionStatus `json:"status" db:"status"`
	StartedAt         *time.Time    `json:"started_at,omitempty" db:"started_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	DurationSeconds   *float64      `json:"duration_seconds,omitempty" db:"duration_seconds"`
	Totals            SyncTotals    `json:"totals"`
	ErrorMessage      *string       `json:"error_message,omitempty" db:"error_message"`
	Metadata          JSONB         `json:"metadata,omitempty" db:"metadata"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
}

// SyncLogEntry records a single decision the engine made, with enough
// context to replay what happened
type SyncLogEntry struct {
	ID            int64        `json:"id" db:"id"`
	SyncSessionID uuid.UUID    `json:"sync_session_id" db:"sync_session_id"`
	Operation     LogOperation `json:"operation" db:"operation"`
	EventID       string       `json:"event_id" db:"event_id"`
	ListingName   string       `json:"listing_name" db:"listing_name"`
	EventDetails  JSONB        `json:"event_details,omitempty" db:"event_details"`
	Reasoning     string       `json:"reasoning" db:"reasoning"`
	Metadata      JSONB        `json:"metadata,omitempty" db:"metadata"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the SyncSession model
func (SyncSession) TableName() string {
	return "sync_sessions"
}

// TableName returns the table name for the SyncLogEntry model
func (SyncLogEntry) TableName() string {
	return "sync_log_entries"
}

// BeforeCreate sets default values before creating a session
func (s *SyncSession) BeforeCreate() {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = SessionStatusPending
	}
	if s.TriggeredBy == "" {
		s.TriggeredBy = TriggerManual
	}
	s.CreatedAt = time.Now()
}

// CanTransitionTo enforces forward-only session transitions
func (s *SyncSession) CanTransitionTo(next SessionStatus) bool {
	switch s.Status {
	case SessionStatusPending:
		return next == SessionStatusInProgress || next == SessionStatusError
	case SessionStatusInProgress:
		return next == SessionStatusCompleted || next == SessionStatusError
	default:
		return false
	}
}

// SyncStats summarizes sync activity across all sessions
type SyncStats struct {
	TotalSessions     int64      `json:"total_sessions"`
	CompletedSessions int64      `json:"completed_sessions"`
	ErrorSessions     int64      `json:"error_sessions"`
	RunningSessions   int64      `json:"running_sessions"`
	LastSyncAt        *time.Time `json:"last_sync_at,omitempty"`
	LastSyncStatus    *string    `json:"last_sync_status,omitempty"`
	ActiveListings    int64      `json:"active_listings"`
	ActiveBookings    int64      `json:"active_bookings"`
	Totals            SyncTotals `json:"totals"`
}

// JSONB represents a JSONB field that can be stored in PostgreSQL
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		// Return empty JSON object instead of nil to satisfy NOT NULL constraints
		return []byte("{}"), nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}

	return json.Unmarshal(bytes, j)
}
