package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stayops/calsync-backend/internal/models"
)

// longDate is the human-facing date format used in alert bodies
const longDate = "Monday, January 2, 2006"

// Notifier delivers operational alerts to hosts. Delivery is best-effort:
// callers log failures and carry on.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// Disabled drops every message. Used when notifier_enabled is false.
type Disabled struct{}

// Send discards the message
func (Disabled) Send(ctx context.Context, title, body string) error {
	return nil
}

// FormatCancellations builds the alert for bookings that disappeared from
// their feeds. One bullet line per booking.
func FormatCancellations(bookings []*models.Booking) (string, string) {
	var b strings.Builder
	b.WriteString("The following bookings were cancelled:\n\n")

	for _, booking := range bookings {
		fmt.Fprintf(&b, "- %s: check-in %s, check-out %s\n",
			booking.ListingName,
			booking.CheckinDate.UTC().Format(longDate),
			booking.CheckoutDate.UTC().Format(longDate),
		)
	}

	b.WriteString("\nPlease review these changes and take appropriate action.")

	return "Booking cancellations", b.String()
}

// FormatModifications builds the alert for bookings whose dates changed. The
// change records carry both the old and the new date pair.
func FormatModifications(changes []*models.BookingChange) (string, string) {
	var b strings.Builder
	b.WriteString("The following bookings changed dates:\n\n")

	for _, change := range changes {
		fmt.Fprintf(&b, "Event changed: %s, ID: %s\n", change.ListingName, change.EventID)
		writeDateLine(&b, "OLD check-in", change.OldCheckinDate)
		writeDateLine(&b, "OLD check-out", change.OldCheckoutDate)
		writeDateLine(&b, "NEW check-in", change.NewCheckinDate)
		writeDateLine(&b, "NEW check-out", change.NewCheckoutDate)
		b.WriteString(strings.Repeat("-", 40) + "\n")
	}

	b.WriteString("\nPlease review these changes and take appropriate action.")

	return "Booking date changes", b.String()
}

func writeDateLine(b *strings.Builder, label string, ts *time.Time) {
	if ts == nil {
		fmt.Fprintf(b, "%s: (none)\n", label)
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, ts.UTC().Format(longDate))
}
