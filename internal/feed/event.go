package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PlaceholderTitle is the summary Airbnb publishes for blocked-availability
// ranges. These are not bookings and are dropped during the merge.
const PlaceholderTitle = "Airbnb (Not available)"

// RawEvent is a booking as parsed from a feed, before it touches the store.
// Start is check-in and End is check-out. Listing is best-effort (taken from
// the calendar name); the reconciler overwrites it with the owning listing.
type RawEvent struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Listing string    `json:"listing"`
}

// StartDay returns the UTC calendar date of check-in
func (e *RawEvent) StartDay() string {
	return e.Start.UTC().Format("2006-01-02")
}

// EndDay returns the UTC calendar date of check-out
func (e *RawEvent) EndDay() string {
	return e.End.UTC().Format("2006-01-02")
}

// FetchResult is the outcome of one successful feed fetch
type FetchResult struct {
	Events              []RawEvent
	DetectedListingName string
}

// ErrorKind classifies a fetch failure
type ErrorKind string

// ErrorKind constants
const (
	ErrorKindNetwork    ErrorKind = "network"
	ErrorKindHTTPStatus ErrorKind = "http_status"
	ErrorKindParse      ErrorKind = "parse"
)

// FetchError wraps a feed fetch failure with its classification. Callers
// treat any variant as "no events from this feed"; the listing is not failed.
type FetchError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("feed fetch failed (%s): %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves and normalizes the events of a single calendar feed.
// Implementations must not touch the booking store.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string, listingID uuid.UUID, windowStart, windowEnd time.Time) (*FetchResult, error)
}
