package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stayops/calsync-backend/internal/config"
	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/utils"
)

func TestFormatCancellations(t *testing.T) {
	bookings := []*models.Booking{
		{
			ListingName:  "Seaside Cottage",
			CheckinDate:  time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
			CheckoutDate: time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			ListingName:  "Mountain Cabin",
			CheckinDate:  time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
			CheckoutDate: time.Date(2024, 7, 5, 0, 0, 0, 0, time.UTC),
		},
	}

	title, body := FormatCancellations(bookings)
	utils.AssertEqual(t, "Booking cancellations", title, "Title should match")
	utils.AssertContains(t, body, "- Seaside Cottage: check-in Monday, June 10, 2024, check-out Friday, June 14, 2024", "Body should list the first booking")
	utils.AssertContains(t, body, "- Mountain Cabin: check-in Monday, July 1, 2024, check-out Friday, July 5, 2024", "Body should list the second booking")
	utils.AssertContains(t, body, "Please review these changes and take appropriate action.", "Body should close with the review line")
}

func TestFormatModifications(t *testing.T) {
	oldCheckin := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	oldCheckout := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	newCheckin := time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)
	newCheckout := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	changes := []*models.BookingChange{
		{
			ListingName:     "Seaside Cottage",
			EventID:         "e1",
			ChangeType:      models.ChangeTypeModified,
			OldCheckinDate:  &oldCheckin,
			OldCheckoutDate: &oldCheckout,
			NewCheckinDate:  &newCheckin,
			NewCheckoutDate: &newCheckout,
		},
	}

	title, body := FormatModifications(changes)
	utils.AssertEqual(t, "Booking date changes", title, "Title should match")
	utils.AssertContains(t, body, "Event changed: Seaside Cottage, ID: e1", "Body should name the event")
	utils.AssertContains(t, body, "OLD check-in: Monday, June 10, 2024", "Body should show the old check-in")
	utils.AssertContains(t, body, "OLD check-out: Friday, June 14, 2024", "Body should show the old check-out")
	utils.AssertContains(t, body, "NEW check-in: Tuesday, June 11, 2024", "Body should show the new check-in")
	utils.AssertContains(t, body, "NEW check-out: Saturday, June 15, 2024", "Body should show the new check-out")
	utils.AssertContains(t, body, strings.Repeat("-", 40), "Entries should be separated")
}

func TestDisabledNotifier(t *testing.T) {
	var n Notifier = Disabled{}
	err := n.Send(context.Background(), "title", "body")
	utils.AssertError(t, err, false, "Disabled notifier should never fail")
}

func TestWebhookNotifier_Send(t *testing.T) {
	var received atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.AssertEqual(t, "application/json", r.Header.Get("Content-Type"), "Payload should be JSON")
		buf, _ := io.ReadAll(r.Body)
		received.Store(string(buf))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(config.NotifierConfig{
		Enabled:        true,
		WebhookURL:     server.URL,
		TimeoutSeconds: 5,
	})

	err := n.Send(context.Background(), "Booking cancellations", "one booking gone")
	utils.AssertError(t, err, false, "Should deliver notification")

	payload, _ := received.Load().(string)
	utils.AssertContains(t, payload, `"title":"Booking cancellations"`, "Payload should carry the title")
	utils.AssertContains(t, payload, `"body":"one booking gone"`, "Payload should carry the body")
}

func TestWebhookNotifier_RetriesTransientFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(config.NotifierConfig{
		Enabled:        true,
		WebhookURL:     server.URL,
		TimeoutSeconds: 5,
	})
	n.retry.InitialDelay = time.Millisecond
	n.retry.Jitter = false

	err := n.Send(context.Background(), "title", "body")
	utils.AssertError(t, err, false, "Should deliver after retry")
	utils.AssertEqual(t, int32(2), atomic.LoadInt32(&calls), "Second attempt should succeed")
}

func TestWebhookNotifier_PermanentFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "no such hook", http.StatusNotFound)
	}))
	defer server.Close()

	n := NewWebhookNotifier(config.NotifierConfig{
		Enabled:        true,
		WebhookURL:     server.URL,
		TimeoutSeconds: 5,
	})
	n.retry.InitialDelay = time.Millisecond

	err := n.Send(context.Background(), "title", "body")
	utils.AssertError(t, err, true, "Permanent failure should surface")
	utils.AssertEqual(t, int32(1), atomic.LoadInt32(&calls), "Client errors should not be retried")
}
