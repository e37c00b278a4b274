package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stayops/calsync-backend/internal/config"
	"github.com/stayops/calsync-backend/internal/utils"
)

func testFetcher() *HTTPFetcher {
	return NewHTTPFetcher(config.FetcherConfig{
		TimeoutSeconds: 5,
		UserAgent:      "calsync-backend-test",
	})
}

func icsBody(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n"
}

func serveICS(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func testWindow() (time.Time, time.Time) {
	start := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 11, 28, 0, 0, 0, 0, time.UTC)
	return start, end
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	body := icsBody(
		"BEGIN:VCALENDAR",
		"PRODID:-//Airbnb Inc//Hosting Calendar 1.0//EN",
		"VERSION:2.0",
		"X-WR-CALNAME:Seaside Cottage",
		"BEGIN:VEVENT",
		"DTSTAMP:20240601T000000Z",
		"DTSTART;VALUE=DATE:20240610",
		"DTEND;VALUE=DATE:20240614",
		"UID:e1@airbnb.com",
		"SUMMARY:Reserved",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"DTSTAMP:20240601T000000Z",
		"DTSTART;VALUE=DATE:20240620",
		"DTEND;VALUE=DATE:20240625",
		"UID:e2@airbnb.com",
		"SUMMARY:Airbnb (Not available)",
		"END:VEVENT",
		"END:VCALENDAR",
	)
	server := serveICS(t, body)

	windowStart, windowEnd := testWindow()
	result, err := testFetcher().Fetch(context.Background(), server.URL, uuid.New(), windowStart, windowEnd)
	utils.AssertError(t, err, false, "Should fetch feed")
	utils.AssertEqual(t, "Seaside Cottage", result.DetectedListingName, "Calendar name should be detected")
	utils.AssertEqual(t, 2, len(result.Events), "Both events should be returned")

	utils.AssertEqual(t, "e1@airbnb.com", result.Events[0].ID, "UID should become the event ID")
	utils.AssertEqual(t, "Reserved", result.Events[0].Title, "Summary should become the title")
	utils.AssertEqual(t, "2024-06-10", result.Events[0].StartDay(), "Check-in day should match DTSTART")
	utils.AssertEqual(t, "2024-06-14", result.Events[0].EndDay(), "Check-out day should match DTEND")
	utils.AssertEqual(t, "Seaside Cottage", result.Events[0].Listing, "Listing should carry the calendar name")

	// Placeholders pass through; the reconciler drops them during merge
	utils.AssertEqual(t, PlaceholderTitle, result.Events[1].Title, "Placeholder title should be preserved")
}

func TestHTTPFetcher_Fetch_DateTimeValues(t *testing.T) {
	body := icsBody(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Test//EN",
		"BEGIN:VEVENT",
		"UID:utc-event",
		"DTSTART:20240610T150000Z",
		"DTEND:20240614T100000Z",
		"SUMMARY:Reserved",
		"END:VEVENT",
		"END:VCALENDAR",
	)
	server := serveICS(t, body)

	windowStart, windowEnd := testWindow()
	result, err := testFetcher().Fetch(context.Background(), server.URL, uuid.New(), windowStart, windowEnd)
	utils.AssertError(t, err, false, "Should fetch feed")
	utils.AssertEqual(t, 1, len(result.Events), "Event should be returned")
	utils.AssertEqual(t, "2024-06-10", result.Events[0].StartDay(), "UTC timestamp should normalize to its day")
	utils.AssertEqual(t, "2024-06-14", result.Events[0].EndDay(), "UTC timestamp should normalize to its day")
	utils.AssertEqual(t, "", result.DetectedListingName, "No calendar name should yield empty")
}

func TestHTTPFetcher_Fetch_WindowFilter(t *testing.T) {
	body := icsBody(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Test//EN",
		"BEGIN:VEVENT",
		"UID:inside",
		"DTSTART;VALUE=DATE:20240610",
		"DTEND;VALUE=DATE:20240614",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:long-past",
		"DTSTART;VALUE=DATE:20230110",
		"DTEND;VALUE=DATE:20230114",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:far-future",
		"DTSTART;VALUE=DATE:20251210",
		"DTEND;VALUE=DATE:20251214",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:straddles-start",
		"DTSTART;VALUE=DATE:20240301",
		"DTEND;VALUE=DATE:20240305",
		"END:VEVENT",
		"END:VCALENDAR",
	)
	server := serveICS(t, body)

	windowStart, windowEnd := testWindow()
	result, err := testFetcher().Fetch(context.Background(), server.URL, uuid.New(), windowStart, windowEnd)
	utils.AssertError(t, err, false, "Should fetch feed")
	utils.AssertEqual(t, 2, len(result.Events), "Only events touching the window should remain")
	utils.AssertEqual(t, "inside", result.Events[0].ID, "In-window event should remain")
	utils.AssertEqual(t, "straddles-start", result.Events[1].ID, "Boundary-straddling event should remain")
}

func TestHTTPFetcher_Fetch_Recurrence(t *testing.T) {
	body := icsBody(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Test//EN",
		"BEGIN:VEVENT",
		"UID:weekly-block",
		"DTSTART;VALUE=DATE:20240603",
		"DTEND;VALUE=DATE:20240605",
		"RRULE:FREQ=WEEKLY;COUNT=3",
		"SUMMARY:Reserved",
		"END:VEVENT",
		"END:VCALENDAR",
	)
	server := serveICS(t, body)

	windowStart, windowEnd := testWindow()
	result, err := testFetcher().Fetch(context.Background(), server.URL, uuid.New(), windowStart, windowEnd)
	utils.AssertError(t, err, false, "Should fetch feed")
	utils.AssertEqual(t, 3, len(result.Events), "Each occurrence should become an event")

	utils.AssertEqual(t, "weekly-block:2024-06-03", result.Events[0].ID, "Occurrence ID should be UID plus date")
	utils.AssertEqual(t, "weekly-block:2024-06-10", result.Events[1].ID, "Occurrence ID should be UID plus date")
	utils.AssertEqual(t, "weekly-block:2024-06-17", result.Events[2].ID, "Occurrence ID should be UID plus date")
	utils.AssertEqual(t, "2024-06-12", result.Events[1].EndDay(), "Occurrence should keep the original duration")
}

func TestHTTPFetcher_Fetch_SkipsMalformedEvents(t *testing.T) {
	body := icsBody(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Test//EN",
		"BEGIN:VEVENT",
		"DTSTART;VALUE=DATE:20240610",
		"DTEND;VALUE=DATE:20240614",
		"SUMMARY:No UID",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:no-end",
		"DTSTART;VALUE=DATE:20240610",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:backwards",
		"DTSTART;VALUE=DATE:20240614",
		"DTEND;VALUE=DATE:20240610",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:good",
		"DTSTART;VALUE=DATE:20240620",
		"DTEND;VALUE=DATE:20240624",
		"END:VEVENT",
		"END:VCALENDAR",
	)
	server := serveICS(t, body)

	windowStart, windowEnd := testWindow()
	result, err := testFetcher().Fetch(context.Background(), server.URL, uuid.New(), windowStart, windowEnd)
	utils.AssertError(t, err, false, "Should fetch feed")
	utils.AssertEqual(t, 1, len(result.Events), "Only the well-formed event should remain")
	utils.AssertEqual(t, "good", result.Events[0].ID, "Well-formed event should remain")
}

func TestHTTPFetcher_Fetch_HTTPStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	windowStart, windowEnd := testWindow()
	_, err := testFetcher().Fetch(context.Background(), server.URL, uuid.New(), windowStart, windowEnd)
	utils.AssertError(t, err, true, "Non-OK status should fail")

	var fetchErr *FetchError
	utils.AssertTrue(t, errors.As(err, &fetchErr), "Error should be a FetchError")
	utils.AssertEqual(t, ErrorKindHTTPStatus, fetchErr.Kind, "Kind should be http_status")
}

func TestHTTPFetcher_Fetch_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	windowStart, windowEnd := testWindow()
	_, err := testFetcher().Fetch(context.Background(), server.URL, uuid.New(), windowStart, windowEnd)
	utils.AssertError(t, err, true, "Unreachable server should fail")

	var fetchErr *FetchError
	utils.AssertTrue(t, errors.As(err, &fetchErr), "Error should be a FetchError")
	utils.AssertEqual(t, ErrorKindNetwork, fetchErr.Kind, "Kind should be network")
}

func TestHTTPFetcher_Fetch_ParseError(t *testing.T) {
	server := serveICS(t, "<html>definitely not a calendar</html>")

	windowStart, windowEnd := testWindow()
	_, err := testFetcher().Fetch(context.Background(), server.URL, uuid.New(), windowStart, windowEnd)
	utils.AssertError(t, err, true, "Invalid body should fail")

	var fetchErr *FetchError
	utils.AssertTrue(t, errors.As(err, &fetchErr), "Error should be a FetchError")
	utils.AssertEqual(t, ErrorKindParse, fetchErr.Kind, "Kind should be parse")
}

func TestParseDateTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"date only", "20240610", "2024-06-10T00:00:00Z", false},
		{"floating time", "20240610T153000", "2024-06-10T15:30:00Z", false},
		{"utc time", "20240610T153000Z", "2024-06-10T15:30:00Z", false},
		{"rfc3339", "2024-06-10T15:30:00Z", "2024-06-10T15:30:00Z", false},
		{"garbage", "next tuesday", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDateTime(tt.input)
			utils.AssertError(t, err, tt.wantErr, "Parse result should match expectation")
			if !tt.wantErr {
				utils.AssertEqual(t, tt.want, got.UTC().Format(time.RFC3339), "Parsed time should match")
			}
		})
	}
}
