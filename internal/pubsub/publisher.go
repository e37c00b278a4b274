package pubsub

import (
	"context"
	"fmt"

	"github.com/stayops/calsync-backend/internal/config"
	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/utils"
	"go.uber.org/zap"
)

// Publisher handles publishing events to Pub/Sub topics
type Publisher struct {
	client *Client
	logger *utils.Logger
	config config.PubSubConfig
}

// NewPublisher creates a new publisher
func NewPublisher(client *Client, cfg config.PubSubConfig) *Publisher {
	return &Publisher{
		client: client,
		logger: utils.NewLogger("pubsub_publisher"),
		config: cfg,
	}
}

// PublishListingEvent publishes a lightweight listing lifecycle event
func (p *Publisher) PublishListingEvent(ctx context.Context, eventType string, listing *models.Listing) error {
	event := NewListingEvent(eventType, listing.ID, listing.ExternalID)

	data, err := event.ToJSON()
	if err != nil {
		p.logger.Error("Failed to serialize listing event",
			zap.String("event_type", eventType),
			zap.String("listing_id", listing.ID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to serialize listing event: %w", err)
	}

	err = p.client.Publish(ctx, p.config.BookingEventsTopic, data, event.GetAttributes())
	if err != nil {
		p.logger.Error("Failed to publish listing event",
			zap.String("event_type", eventType),
			zap.String("listing_id", listing.ID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish listing event: %w", err)
	}

	p.logger.Info("Listing event published successfully",
		zap.String("event_type", eventType),
		zap.String("listing_id", listing.ID.String()),
		zap.String("listing_name", listing.Name),
	)

	return nil
}

// PublishBookingEvent publishes a lightweight booking lifecycle event
func (p *Publisher) PublishBookingEvent(ctx context.Context, eventType string, booking *models.Booking) error {
	event := NewBookingEvent(eventType, booking.UUID, booking.EventID,
		booking.ListingID, booking.ListingName,
		booking.CheckinDay(), booking.CheckoutDay())

	data, err := event.ToJSON()
	if err != nil {
		p.logger.Error("Failed to serialize booking event",
			zap.String("event_type", eventType),
			zap.String("booking_uuid", booking.UUID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to serialize booking event: %w", err)
	}

	err = p.client.Publish(ctx, p.config.BookingEventsTopic, data, event.GetAttributes())
	if err != nil {
		p.logger.Error("Failed to publish booking event",
			zap.String("event_type", eventType),
			zap.String("booking_uuid", booking.UUID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish booking event: %w", err)
	}

	p.logger.Info("Booking event published successfully",
		zap.String("event_type", eventType),
		zap.String("booking_uuid", booking.UUID.String()),
		zap.String("event_id", booking.EventID),
		zap.String("listing_name", booking.ListingName),
	)

	return nil
}

// PublishSyncCompleted announces a closed sync session
func (p *Publisher) PublishSyncCompleted(ctx context.Context, session *models.SyncSession) error {
	event := NewSyncEvent(session.ID, string(session.SyncType), string(session.Status))

	data, err := event.ToJSON()
	if err != nil {
		p.logger.Error("Failed to serialize sync event",
			zap.String("session_id", session.ID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to serialize sync event: %w", err)
	}

	err = p.client.Publish(ctx, p.config.BookingEventsTopic, data, event.GetAttributes())
	if err != nil {
		p.logger.Error("Failed to publish sync event",
			zap.String("session_id", session.ID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish sync event: %w", err)
	}

	p.logger.Debug("Sync completion event published",
		zap.String("session_id", session.ID.String()),
		zap.String("status", string(session.Status)),
	)

	return nil
}

// Convenience methods for common events

// PublishListingCreated publishes a listing created event
func (p *Publisher) PublishListingCreated(ctx context.Context, listing *models.Listing) error {
	return p.PublishListingEvent(ctx, EventTypeListingCreated, listing)
}

// PublishListingUpdated publishes a listing updated event
func (p *Publisher) PublishListingUpdated(ctx context.Context, listing *models.Listing) error {
	return p.PublishListingEvent(ctx, EventTypeListingUpdated, listing)
}

// PublishListingDeleted publishes a listing deleted event
func (p *Publisher) PublishListingDeleted(ctx context.Context, listing *models.Listing) error {
	return p.PublishListingEvent(ctx, EventTypeListingDeleted, listing)
}

// PublishBookingCreated publishes a booking created event
func (p *Publisher) PublishBookingCreated(ctx context.Context, booking *models.Booking) error {
	return p.PublishBookingEvent(ctx, EventTypeBookingCreated, booking)
}

// PublishBookingReplaced publishes a booking replaced event
func (p *Publisher) PublishBookingReplaced(ctx context.Context, booking *models.Booking) error {
	return p.PublishBookingEvent(ctx, EventTypeBookingReplaced, booking)
}

// PublishBookingCancelled publishes a booking cancelled event
func (p *Publisher) PublishBookingCancelled(ctx context.Context, booking *models.Booking) error {
	return p.PublishBookingEvent(ctx, EventTypeBookingCancelled, booking)
}
