package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/stayops/calsync-backend/internal/config"
	"github.com/stayops/calsync-backend/internal/utils"
)

// maxFeedBytes caps how much of a feed body is read. Platform feeds are a
// few hundred KB at most; anything larger is a misbehaving endpoint.
const maxFeedBytes = 10 << 20

// HTTPFetcher retrieves iCalendar feeds over HTTP and normalizes their
// VEVENTs into RawEvents
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	logger    *utils.Logger
}

// NewHTTPFetcher creates a fetcher with the configured timeout and user agent
func NewHTTPFetcher(cfg config.FetcherConfig) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: cfg.Timeout(),
		},
		userAgent: cfg.UserAgent,
		logger:    utils.NewLogger("feed-fetcher"),
	}
}

// Fetch downloads and parses one feed, returning the events that fall inside
// the requested window. Recurring events are expanded into one RawEvent per
// occurrence. Failures are classified as network, http_status or parse; the
// caller treats all of them as an empty feed.
func (f *HTTPFetcher) Fetch(ctx context.Context, feedURL string, listingID uuid.UUID, windowStart, windowEnd time.Time) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: ErrorKindNetwork, URL: feedURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/calendar")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("Feed request failed",
			zap.String("feed_url", feedURL),
			zap.String("listing_id", listingID.String()),
			zap.Error(err),
		)
		return nil, &FetchError{Kind: ErrorKindNetwork, URL: feedURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("Feed returned non-OK status",
			zap.String("feed_url", feedURL),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &FetchError{
			Kind: ErrorKindHTTPStatus,
			URL:  feedURL,
			Err:  fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, &FetchError{Kind: ErrorKindNetwork, URL: feedURL, Err: err}
	}

	cal, err := ical.NewDecoder(bytes.NewReader(body)).Decode()
	if err != nil {
		f.logger.Warn("Feed body is not valid iCalendar",
			zap.String("feed_url", feedURL),
			zap.Error(err),
		)
		return nil, &FetchError{Kind: ErrorKindParse, URL: feedURL, Err: err}
	}

	result := &FetchResult{
		DetectedListingName: detectListingName(cal),
	}

	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		events, err := f.normalizeEvent(comp, result.DetectedListingName, windowStart, windowEnd)
		if err != nil {
			// One bad VEVENT does not spoil the feed
			f.logger.Debug("Skipping malformed event",
				zap.String("feed_url", feedURL),
				zap.Error(err),
			)
			continue
		}
		result.Events = append(result.Events, events...)
	}

	f.logger.Debug("Feed fetched",
		zap.String("feed_url", feedURL),
		zap.String("listing_id", listingID.String()),
		zap.Int("events", len(result.Events)),
	)

	return result, nil
}

// normalizeEvent turns one VEVENT into zero or more RawEvents. Recurring
// events yield one per occurrence inside the window; the occurrence id is
// the UID suffixed with the occurrence date so re-runs see stable ids.
func (f *HTTPFetcher) normalizeEvent(comp *ical.Component, listingName string, windowStart, windowEnd time.Time) ([]RawEvent, error) {
	uid := comp.Props.Get(ical.PropUID)
	if uid == nil || uid.Value == "" {
		return nil, fmt.Errorf("missing UID")
	}

	title := ""
	if summary := comp.Props.Get(ical.PropSummary); summary != nil {
		title = summary.Value
	}

	dtstart := comp.Props.Get(ical.PropDateTimeStart)
	if dtstart == nil {
		return nil, fmt.Errorf("missing DTSTART")
	}
	start, err := parseDateTime(dtstart.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid DTSTART %q: %w", dtstart.Value, err)
	}

	dtend := comp.Props.Get(ical.PropDateTimeEnd)
	if dtend == nil {
		return nil, fmt.Errorf("missing DTEND")
	}
	end, err := parseDateTime(dtend.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid DTEND %q: %w", dtend.Value, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("DTEND before DTSTART")
	}

	if rule := comp.Props.Get(ical.PropRecurrenceRule); rule != nil {
		return f.expandRecurrence(uid.Value, title, listingName, start, end, rule.Value, windowStart, windowEnd)
	}

	if !overlapsWindow(start, end, windowStart, windowEnd) {
		return nil, nil
	}

	return []RawEvent{{
		ID:      uid.Value,
		Title:   title,
		Start:   start,
		End:     end,
		Listing: listingName,
	}}, nil
}

func (f *HTTPFetcher) expandRecurrence(uid, title, listingName string, start, end time.Time, ruleValue string, windowStart, windowEnd time.Time) ([]RawEvent, error) {
	ruleStr := "DTSTART:" + start.UTC().Format("20060102T150405Z") + "\nRRULE:" + ruleValue
	rule, err := rrule.StrToRRule(ruleStr)
	if err != nil {
		return nil, fmt.Errorf("invalid RRULE %q: %w", ruleValue, err)
	}

	duration := end.Sub(start)
	occurrences := rule.Between(windowStart.Add(-duration), windowEnd, true)

	sort.Slice(occurrences, func(i, j int) bool {
		return occurrences[i].Before(occurrences[j])
	})

	var events []RawEvent
	for _, occ := range occurrences {
		occEnd := occ.Add(duration)
		if !overlapsWindow(occ, occEnd, windowStart, windowEnd) {
			continue
		}
		events = append(events, RawEvent{
			ID:      fmt.Sprintf("%s:%s", uid, occ.UTC().Format("2006-01-02")),
			Title:   title,
			Start:   occ,
			End:     occEnd,
			Listing: listingName,
		})
	}

	return events, nil
}

// detectListingName pulls the calendar display name, if the platform set one
func detectListingName(cal *ical.Calendar) string {
	if prop := cal.Props.Get("X-WR-CALNAME"); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	if prop := cal.Props.Get("NAME"); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

// parseDateTime handles the datetime shapes platform feeds actually emit:
// VALUE=DATE (20060102), floating local time, UTC-suffixed, and RFC3339.
// Date-only values are treated as midnight UTC per the date comparison policy.
func parseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	if len(s) == 8 {
		return time.Parse("20060102", s)
	}
	if len(s) == 15 {
		return time.ParseInLocation("20060102T150405", s, time.UTC)
	}
	if len(s) == 16 && strings.HasSuffix(s, "Z") {
		return time.Parse("20060102T150405Z", s)
	}

	return time.Parse(time.RFC3339, s)
}

func overlapsWindow(start, end, windowStart, windowEnd time.Time) bool {
	if start.Equal(end) {
		// Zero-length events still count if the day falls inside the window
		return !start.Before(windowStart) && start.Before(windowEnd)
	}
	return start.Before(windowEnd) && end.After(windowStart)
}
