package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message represents a Pub/Sub message
type Message struct {
	ID          string            `json:"id"`
	Data        []byte            `json:"data"`
	Attributes  map[string]string `json:"attributes"`
	PublishTime time.Time         `json:"publish_time"`
}

// MessageHandler defines the interface for handling Pub/Sub messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, message *Message) error
}

// Event types published to the booking-events topic. Downstream consumers
// (cleaner scheduler, payroll) filter on the event_type attribute and
// re-read full state through the API; events stay lightweight.
const (
	EventTypeListingCreated = "listing.created"
	EventTypeListingUpdated = "listing.updated"
	EventTypeListingDeleted = "listing.deleted"

	EventTypeBookingCreated   = "booking.created"
	EventTypeBookingReplaced  = "booking.replaced"
	EventTypeBookingCancelled = "booking.cancelled"

	EventTypeSyncCompleted = "sync.completed"
)

// ListingEvent represents a listing lifecycle event (lightweight)
type ListingEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	ListingID  uuid.UUID `json:"listing_id"`
	ExternalID string    `json:"external_id"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
}

// BookingEvent represents a booking lifecycle event (lightweight)
type BookingEvent struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	BookingUUID  uuid.UUID `json:"booking_uuid"`
	EventID      string    `json:"event_id"`
	ListingID    uuid.UUID `json:"listing_id"`
	ListingName  string    `json:"listing_name"`
	CheckinDate  string    `json:"checkin_date"`
	CheckoutDate string    `json:"checkout_date"`
	Timestamp    time.Time `json:"timestamp"`
	Source       string    `json:"source"`
}

// SyncEvent announces a finished sync session. Consumers fetch counters and
// log entries through the sessions API.
type SyncEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	SessionID uuid.UUID `json:"session_id"`
	SyncType  string    `json:"sync_type"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// NewListingEvent creates a new lightweight listing event
func NewListingEvent(eventType string, listingID uuid.UUID, externalID string) *ListingEvent {
	return &ListingEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		ListingID:  listingID,
		ExternalID: externalID,
		Timestamp:  time.Now(),
		Source:     "calsync-backend",
	}
}

// NewBookingEvent creates a new lightweight booking event
func NewBookingEvent(eventType string, bookingUUID uuid.UUID, eventID string, listingID uuid.UUID, listingName, checkinDate, checkoutDate string) *BookingEvent {
	return &BookingEvent{
		ID:           uuid.New().String(),
		Type:         eventType,
		BookingUUID:  bookingUUID,
		EventID:      eventID,
		ListingID:    listingID,
		ListingName:  listingName,
		CheckinDate:  checkinDate,
		CheckoutDate: checkoutDate,
		Timestamp:    time.Now(),
		Source:       "calsync-backend",
	}
}

// NewSyncEvent creates a new sync completion event
func NewSyncEvent(sessionID uuid.UUID, syncType, status string) *SyncEvent {
	return &SyncEvent{
		ID:        uuid.New().String(),
		Type:      EventTypeSyncCompleted,
		SessionID: sessionID,
		SyncType:  syncType,
		Status:    status,
		Timestamp: time.Now(),
		Source:    "calsync-backend",
	}
}

// ToJSON serializes an event to JSON
func (e *ListingEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ToJSON serializes an event to JSON
func (e *BookingEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ToJSON serializes an event to JSON
func (e *SyncEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ListingEventFromJSON deserializes a listing event from JSON
func ListingEventFromJSON(data []byte) (*ListingEvent, error) {
	var event ListingEvent
	err := json.Unmarshal(data, &event)
	return &event, err
}

// BookingEventFromJSON deserializes a booking event from JSON
func BookingEventFromJSON(data []byte) (*BookingEvent, error) {
	var event BookingEvent
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SyncEventFromJSON deserializes a sync event from JSON
func SyncEventFromJSON(data []byte) (*SyncEvent, error) {
	var event SyncEvent
	err := json.Unmarshal(data, &event)
	return &event, err
}

// GetAttributes returns message attributes for the event
func (e *ListingEvent) GetAttributes() map[string]string {
	return map[string]string{
		"event_type": e.Type,
		"listing_id": e.ListingID.String(),
		"source":     e.Source,
		"timestamp":  e.Timestamp.Format(time.RFC3339),
	}
}

// GetAttributes returns message attributes for the event
func (e *BookingEvent) GetAttributes() map[string]string {
	return map[string]string{
		"event_type":   e.Type,
		"booking_uuid": e.BookingUUID.String(),
		"listing_id":   e.ListingID.String(),
		"source":       e.Source,
		"timestamp":    e.Timestamp.Format(time.RFC3339),
	}
}

// GetAttributes returns message attributes for the event
func (e *SyncEvent) GetAttributes() map[string]string {
	return map[string]string{
		"event_type": e.Type,
		"session_id": e.SessionID.String(),
		"sync_type":  e.SyncType,
		"source":     e.Source,
		"timestamp":  e.Timestamp.Format(time.RFC3339),
	}
}
