package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ManualListingPrefix marks listings that are managed by hand rather than
// through iCal feeds. Listings whose external id carries this prefix are
// excluded from full syncs.
const ManualListingPrefix = "manual-"

// Listing represents a rental property in the database
type Listing struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	ExternalID  string          `json:"external_id" db:"external_id"`
	Name        string          `json:"name" db:"name"`
	Hours       decimal.Decimal `json:"hours" db:"hours"`
	Color       *string         `json:"color,omitempty" db:"color"`
	BankAccount *string         `json:"bank_account,omitempty" db:"bank_account"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Feed represents a single calendar URL published by a booking platform.
// Feeds are attached to listings through the listing_feeds association table.
type Feed struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	URL        string     `json:"url" db:"url"`
	Name       string     `json:"name" db:"name"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	LastSynced *time.Time `json:"last_synced,omitempty" db:"last_synced"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// ListingCreateRequest represents a request to create a listing
type ListingCreateRequest struct {
	ExternalID  string           `json:"external_id" binding:"required"`
	Name        string           `json:"name" binding:"required"`
	Hours       *decimal.Decimal `json:"hours,omitempty"`
	Color       *string          `json:"color,omitempty"`
	BankAccount *string          `json:"bank_account,omitempty"`
}

// ListingUpdateRequest represents a request to update a listing
type ListingUpdateRequest struct {
	Name        *string          `json:"name,omitempty"`
	Hours       *decimal.Decimal `json:"hours,omitempty"`
	Color       *string          `json:"color,omitempty"`
	BankAccount *string          `json:"bank_account,omitempty"`
	IsActive    *bool            `json:"is_active,omitempty"`
}

// FeedCreateRequest represents a request to attach a feed to a listing
type FeedCreateRequest struct {
	URL  string `json:"url" binding:"required"`
	Name string `json:"name,omitempty"`
}

// TableName returns the table name for the Listing model
func (Listing) TableName() string {
	return "listings"
}

// TableName returns the table name for the Feed model
func (Feed) TableName() string {
	return "feeds"
}

// IsManual returns true if the listing is manually managed and should be
// skipped by full syncs
func (l *Listing) IsManual() bool {
	return strings.HasPrefix(l.ExternalID, ManualListingPrefix)
}

// BeforeCreate sets default values before creating a listing
func (l *Listing) BeforeCreate() {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.IsActive = true
	now := time.Now()
	l.CreatedAt = now
	l.UpdatedAt = now
}

// BeforeUpdate sets values before updating a listing
func (l *Listing) BeforeUpdate() {
	l.UpdatedAt = time.Now()
}

// IsDeleted returns true if the listing is soft deleted
func (l *Listing) IsDeleted() bool {
	return l.DeletedAt != nil
}

// SoftDelete marks the listing as deleted
func (l *Listing) SoftDelete() {
	now := time.Now()
	l.DeletedAt = &now
	l.UpdatedAt = now
}

// BeforeCreate sets default values before creating a feed
func (f *Feed) BeforeCreate() {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.IsActive = true
	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now
}
