package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CheckoutType classifies what happens on a booking's checkout day
type CheckoutType string

// EventType identifies where a booking originated
type EventType string

// ChangeType classifies a booking change record
type ChangeType string

// CheckoutType constants
const (
	CheckoutTypeSameDay CheckoutType = "same_day"
	CheckoutTypeOpen    CheckoutType = "open"
)

// EventType constants
const (
	EventTypeICal   EventType = "ical"
	EventTypeManual EventType = "manual"
)

// ChangeType constants
const (
	ChangeTypeModified  ChangeType = "modified"
	ChangeTypeCancelled ChangeType = "cancelled"
)

// Booking represents a persisted reservation row. The surrogate key is UUID;
// EventID is the platform-assigned identifier, unique only across the set of
// active bookings (replaced bookings keep their event_id on inactive rows).
type Booking struct {
	UUID         uuid.UUID       `json:"uuid" db:"uuid"`
	EventID      string          `json:"event_id" db:"event_id"`
	ListingID    uuid.UUID       `json:"listing_id" db:"listing_id"`
	ListingName  string          `json:"listing_name" db:"listing_name"`
	ListingHours decimal.Decimal `json:"listing_hours" db:"listing_hours"`
	CheckinDate  time.Time       `json:"checkin_date" db:"checkin_date"`
	CheckoutDate time.Time       `json:"checkout_date" db:"checkout_date"`
	CheckoutType CheckoutType    `json:"checkout_type" db:"checkout_type"`
	CheckoutTime string          `json:"checkout_time" db:"checkout_time"`
	EventType    EventType       `json:"event_type" db:"event_type"`
	IsActive     bool            `json:"is_active" db:"is_active"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// BookingChange represents an append-only audit row describing a booking
// modification or cancellation. Rows are deduplicated on the full tuple.
type BookingChange struct {
	ID              int64      `json:"id" db:"id"`
	ListingName     string     `json:"listing_name" db:"listing_name"`
	EventID         string     `json:"event_id" db:"event_id"`
	ChangeType      ChangeType `json:"change_type" db:"change_type"`
	OldCheckinDate  *time.Time `json:"old_checkin_date,omitempty" db:"old_checkin_date"`
	OldCheckoutDate *time.Time `json:"old_checkout_date,omitempty" db:"old_checkout_date"`
	NewCheckinDate  *time.Time `json:"new_checkin_date,omitempty" db:"new_checkin_date"`
	NewCheckoutDate *time.Time `json:"new_checkout_date,omitempty" db:"new_checkout_date"`
	OldEventID      *string    `json:"old_event_id,omitempty" db:"old_event_id"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// CleanerAssignment links a cleaner to a booking. The sync engine only
// touches is_active, as a cascade of booking deactivation.
type CleanerAssignment struct {
	UUID        uuid.UUID       `json:"uuid" db:"uuid"`
	EventUUID   uuid.UUID       `json:"event_uuid" db:"event_uuid"`
	CleanerUUID uuid.UUID       `json:"cleaner_uuid" db:"cleaner_uuid"`
	Hours       decimal.Decimal `json:"hours" db:"hours"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Booking model
func (Booking) TableName() string {
	return "events"
}

// TableName returns the table name for the BookingChange model
func (BookingChange) TableName() string {
	return "event_changes"
}

// TableName returns the table name for the CleanerAssignment model
func (CleanerAssignment) TableName() string {
	return "cleaner_assignments"
}

// DateStr formats a timestamp as its UTC calendar date (YYYY-MM-DD). Every
// date comparison in the sync engine happens on these strings so that feeds
// carrying mixed time zones cannot cause day drift.
func DateStr(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// CheckinDay returns the UTC calendar date of check-in
func (b *Booking) CheckinDay() string {
	return DateStr(b.CheckinDate)
}

// CheckoutDay returns the UTC calendar date of check-out
func (b *Booking) CheckoutDay() string {
	return DateStr(b.CheckoutDate)
}

// IsPast returns true if the booking checked out strictly before the given
// day. Past bookings are frozen: reconciliation never deactivates them.
func (b *Booking) IsPast(today string) bool {
	return b.CheckoutDay() < today
}

// BeforeCreate sets default values before creating a booking
func (b *Booking) BeforeCreate() {
	if b.UUID == uuid.Nil {
		b.UUID = uuid.New()
	}
	if b.CheckoutType == "" {
		b.CheckoutType = CheckoutTypeOpen
	}
	if b.EventType == "" {
		b.EventType = EventTypeICal
	}
	b.IsActive = true
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
}

// BeforeCreate sets default values before creating an assignment
func (a *CleanerAssignment) BeforeCreate() {
	if a.UUID == uuid.Nil {
		a.UUID = uuid.New()
	}
	a.IsActive = true
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
}

// NewCancellationChange builds the change record emitted when a booking
// disappears from its feed
func NewCancellationChange(b *Booking) *BookingChange {
	checkin := b.CheckinDate
	checkout := b.CheckoutDate
	return &BookingChange{
		ListingName:     b.ListingName,
		EventID:         b.EventID,
		ChangeType:      ChangeTypeCancelled,
		OldCheckinDate:  &checkin,
		OldCheckoutDate: &checkout,
	}
}

// NewModificationChange builds the change record emitted when a booking's
// dates move while its event_id stays the same
func NewModificationChange(old *Booking, newCheckin, newCheckout time.Time) *BookingChange {
	oldCheckin := old.CheckinDate
	oldCheckout := old.CheckoutDate
	return &BookingChange{
		ListingName:     old.ListingName,
		EventID:         old.EventID,
		ChangeType:      ChangeTypeModified,
		OldCheckinDate:  &oldCheckin,
		OldCheckoutDate: &oldCheckout,
		NewCheckinDate:  &newCheckin,
		NewCheckoutDate: &newCheckout,
	}
}
