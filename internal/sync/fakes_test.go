package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stayops/calsync-backend/internal/config"
	"github.com/stayops/calsync-backend/internal/feed"
	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/utils"
)

// testNow is the fixed clock for reconciler tests: bookings before June 1
// are past, bookings after it are upcoming.
var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(fmt.Sprintf("bad test date %q: %v", s, err))
	}
	return t
}

// fakeStore is an in-memory stand-in for the database repositories. The
// per-entity views returned by stores() replicate the SQL semantics the
// engine depends on: date-part matching, active-only filters and the
// ical-only cancellation scan.
type fakeStore struct {
	mu stdsync.Mutex

	listings    []*models.Listing
	feeds       map[uuid.UUID][]*models.Feed
	bookings    []*models.Booking
	changes     []*models.BookingChange
	assignments []*models.CleanerAssignment
	sessions    map[uuid.UUID]*models.SyncSession
	logEntries  []*models.SyncLogEntry

	// Fault injection
	listFeedsErr       error
	listBookingsErrFor map[string]error
	insertErrFor       map[string]error
	sameDayErr         error
	failLogInserts     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		feeds:              make(map[uuid.UUID][]*models.Feed),
		sessions:           make(map[uuid.UUID]*models.SyncSession),
		listBookingsErrFor: make(map[string]error),
		insertErrFor:       make(map[string]error),
	}
}

type fakeListings struct{ *fakeStore }
type fakeFeeds struct{ *fakeStore }
type fakeBookings struct{ *fakeStore }
type fakeChanges struct{ *fakeStore }
type fakeAssignments struct{ *fakeStore }
type fakeSessions struct{ *fakeStore }

func (f *fakeStore) stores() Stores {
	return Stores{
		Listings:    fakeListings{f},
		Feeds:       fakeFeeds{f},
		Bookings:    fakeBookings{f},
		Changes:     fakeChanges{f},
		Assignments: fakeAssignments{f},
		Sessions:    fakeSessions{f},
	}
}

// ListingStore

func (f fakeListings) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.listings {
		if l.ID == id && l.DeletedAt == nil {
			return l, nil
		}
	}
	return nil, models.ErrListingNotFound
}

func (f fakeListings) ListActive(ctx context.Context) ([]*models.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Listing
	for _, l := range f.listings {
		if l.IsActive && l.DeletedAt == nil {
			out = append(out, l)
		}
	}
	return out, nil
}

// FeedStore

func (f fakeFeeds) ListActiveForListing(ctx context.Context, listingID uuid.UUID) ([]*models.Feed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listFeedsErr != nil {
		return nil, f.listFeedsErr
	}
	var out []*models.Feed
	for _, fd := range f.feeds[listingID] {
		if fd.IsActive {
			out = append(out, fd)
		}
	}
	return out, nil
}

func (f fakeFeeds) UpdateLastSynced(ctx context.Context, feedID uuid.UUID, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, feeds := range f.feeds {
		for _, fd := range feeds {
			if fd.ID == feedID {
				stamp := ts
				fd.LastSynced = &stamp
				return nil
			}
		}
	}
	return models.ErrFeedNotFound
}

// BookingStore

func (f fakeBookings) Insert(ctx context.Context, booking *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.insertErrFor[booking.EventID]; err != nil {
		return err
	}
	booking.BeforeCreate()
	for _, b := range f.bookings {
		if b.IsActive && b.EventID == booking.EventID {
			return fmt.Errorf("duplicate key value violates unique constraint \"idx_events_active_event_id\"")
		}
	}
	f.fakeStore.bookings = append(f.fakeStore.bookings, booking)
	return nil
}

func (f fakeBookings) ListActiveByListingName(ctx context.Context, listingName string) ([]*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listBookingsErrFor[listingName]; err != nil {
		return nil, err
	}
	var out []*models.Booking
	for _, b := range f.bookings {
		if b.IsActive && b.ListingName == listingName && b.EventType == models.EventTypeICal {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f fakeBookings) FindActiveByEventID(ctx context.Context, eventID string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.IsActive && b.EventID == eventID {
			return b, nil
		}
	}
	return nil, models.ErrBookingNotFound
}

func (f fakeBookings) FindActiveByDateRange(ctx context.Context, listingName, checkinDate, checkoutDate string) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var oldest *models.Booking
	for _, b := range f.bookings {
		if !b.IsActive || b.ListingName != listingName {
			continue
		}
		if b.CheckinDay() != checkinDate || b.CheckoutDay() != checkoutDate {
			continue
		}
		if oldest == nil || b.CreatedAt.Before(oldest.CreatedAt) {
			oldest = b
		}
	}
	if oldest == nil {
		return nil, models.ErrBookingNotFound
	}
	return oldest, nil
}

func (f fakeBookings) HasActiveSameDayCheckin(ctx context.Context, listingName, date string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sameDayErr != nil {
		return false, f.sameDayErr
	}
	for _, b := range f.bookings {
		if b.IsActive && b.ListingName == listingName && b.CheckinDay() == date && b.CheckoutDay() != date {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeBookings) ListActiveOverlapping(ctx context.Context, listingName, checkinDate, checkoutDate string) ([]*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Booking
	for _, b := range f.bookings {
		if b.IsActive && b.ListingName == listingName &&
			b.CheckinDay() < checkoutDate && b.CheckoutDay() > checkinDate {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f fakeBookings) UpdateCheckoutType(ctx context.Context, bookingUUID uuid.UUID, checkoutType models.CheckoutType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.UUID == bookingUUID && b.IsActive {
			b.CheckoutType = checkoutType
			b.UpdatedAt = time.Now()
			return nil
		}
	}
	return models.ErrBookingNotFound
}

func (f fakeBookings) Deactivate(ctx context.Context, uuids []uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	targets := make(map[uuid.UUID]struct{}, len(uuids))
	for _, id := range uuids {
		targets[id] = struct{}{}
	}
	var n int64
	for _, b := range f.bookings {
		if _, ok := targets[b.UUID]; ok && b.IsActive {
			b.IsActive = false
			b.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

// ChangeStore

func (f fakeChanges) Insert(ctx context.Context, change *models.BookingChange) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.changes {
		if c.ListingName == change.ListingName &&
			c.EventID == change.EventID &&
			c.ChangeType == change.ChangeType &&
			sameDatePtr(c.OldCheckinDate, change.OldCheckinDate) &&
			sameDatePtr(c.OldCheckoutDate, change.OldCheckoutDate) &&
			sameDatePtr(c.NewCheckinDate, change.NewCheckinDate) &&
			sameDatePtr(c.NewCheckoutDate, change.NewCheckoutDate) &&
			sameStrPtr(c.OldEventID, change.OldEventID) {
			return false, nil
		}
	}
	change.CreatedAt = time.Now()
	f.fakeStore.changes = append(f.fakeStore.changes, change)
	return true, nil
}

// AssignmentStore

func (f fakeAssignments) DeactivateForBookings(ctx context.Context, bookingUUIDs []uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	targets := make(map[uuid.UUID]struct{}, len(bookingUUIDs))
	for _, id := range bookingUUIDs {
		targets[id] = struct{}{}
	}
	var n int64
	for _, a := range f.assignments {
		if _, ok := targets[a.EventUUID]; ok && a.IsActive {
			a.IsActive = false
			a.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

// SessionStore

func (f fakeSessions) Create(ctx context.Context, session *models.SyncSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session.BeforeCreate()
	f.sessions[session.ID] = session
	return nil
}

func (f fakeSessions) Start(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Status != models.SessionStatusPending {
		return models.ErrSessionNotFound
	}
	now := time.Now()
	s.Status = models.SessionStatusInProgress
	s.StartedAt = &now
	return nil
}

func (f fakeSessions) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return s, nil
}

func (f fakeSessions) IncrementTotals(ctx context.Context, id uuid.UUID, totals models.SyncTotals) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return models.ErrSessionNotFound
	}
	s.Totals.Add(totals)
	return nil
}

func (f fakeSessions) Complete(ctx context.Context, id uuid.UUID, status models.SessionStatus, errorMessage *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Status != models.SessionStatusInProgress {
		return models.ErrSessionNotFound
	}
	now := time.Now()
	s.Status = status
	s.CompletedAt = &now
	s.ErrorMessage = errorMessage
	return nil
}

func (f fakeSessions) InsertLogEntries(ctx context.Context, entries []*models.SyncLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLogInserts > 0 {
		f.failLogInserts--
		return fmt.Errorf("log insert failed")
	}
	f.fakeStore.logEntries = append(f.fakeStore.logEntries, entries...)
	return nil
}

// Seed and inspection helpers

func (f *fakeStore) addListing(name string, hours float64) *models.Listing {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &models.Listing{
		ID:         uuid.New(),
		ExternalID: "airbnb-" + name,
		Name:       name,
		Hours:      decimal.NewFromFloat(hours),
		IsActive:   true,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	f.listings = append(f.listings, l)
	return l
}

func (f *fakeStore) addFeed(listingID uuid.UUID, url string) *models.Feed {
	f.mu.Lock()
	defer f.mu.Unlock()
	fd := &models.Feed{
		ID:       uuid.New(),
		URL:      url,
		Name:     "Airbnb",
		IsActive: true,
	}
	f.feeds[listingID] = append(f.feeds[listingID], fd)
	return fd
}

func (f *fakeStore) addBooking(listing *models.Listing, eventID, checkin, checkout string, checkoutType models.CheckoutType) *models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := &models.Booking{
		UUID:         uuid.New(),
		EventID:      eventID,
		ListingID:    listing.ID,
		ListingName:  listing.Name,
		ListingHours: listing.Hours,
		CheckinDate:  day(checkin),
		CheckoutDate: day(checkout),
		CheckoutType: checkoutType,
		CheckoutTime: "10:00:00",
		EventType:    models.EventTypeICal,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	f.bookings = append(f.bookings, b)
	return b
}

func (f *fakeStore) addAssignment(bookingUUID uuid.UUID) *models.CleanerAssignment {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := &models.CleanerAssignment{
		UUID:        uuid.New(),
		EventUUID:   bookingUUID,
		CleanerUUID: uuid.New(),
		Hours:       decimal.NewFromFloat(2),
		IsActive:    true,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	f.assignments = append(f.assignments, a)
	return a
}

func (f *fakeStore) activeBooking(eventID string) *models.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.IsActive && b.EventID == eventID {
			return b
		}
	}
	return nil
}

func (f *fakeStore) countBookings(active bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.bookings {
		if b.IsActive == active {
			n++
		}
	}
	return n
}

func (f *fakeStore) countLogOps(op models.LogOperation) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.logEntries {
		if e.Operation == op {
			n++
		}
	}
	return n
}

func sameDatePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func sameStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// fakeFetcher serves canned results keyed by feed URL and tracks call
// concurrency for the worker pool tests.
type fakeFetcher struct {
	mu      stdsync.Mutex
	results map[string]*feed.FetchResult
	errs    map[string]error
	delay   time.Duration

	calls       int
	inFlight    int
	maxInFlight int
	lastWindow  [2]time.Time
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		results: make(map[string]*feed.FetchResult),
		errs:    make(map[string]error),
	}
}

func (f *fakeFetcher) serve(url string, events ...feed.RawEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[url] = &feed.FetchResult{Events: events}
}

func (f *fakeFetcher) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

func (f *fakeFetcher) Fetch(ctx context.Context, feedURL string, listingID uuid.UUID, windowStart, windowEnd time.Time) (*feed.FetchResult, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.lastWindow = [2]time.Time{windowStart, windowEnd}
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if err := f.errs[feedURL]; err != nil {
		return nil, err
	}
	if res, ok := f.results[feedURL]; ok {
		return res, nil
	}
	return &feed.FetchResult{}, nil
}

func event(id, start, end string) feed.RawEvent {
	return feed.RawEvent{
		ID:    id,
		Title: "Reserved",
		Start: day(start),
		End:   day(end),
	}
}

// fakeNotifier records sent notifications
type fakeNotifier struct {
	mu   stdsync.Mutex
	sent []sentMessage
	err  error
}

type sentMessage struct {
	Title string
	Body  string
}

func (n *fakeNotifier) Send(ctx context.Context, title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{Title: title, Body: body})
	return nil
}

func (n *fakeNotifier) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func testSyncConfig() *config.SyncConfig {
	return &config.SyncConfig{
		Concurrency:           5,
		FetchWindowPastDays:   90,
		FetchWindowFutureDays: 180,
		DefaultListingHours:   2.0,
		DefaultCheckoutTime:   "10:00:00",
	}
}

// newTestReconciler wires a reconciler over fakes with the clock pinned to
// testNow
func newTestReconciler() (*Reconciler, *fakeStore, *fakeFetcher, *fakeNotifier) {
	store := newFakeStore()
	fetcher := newFakeFetcher()
	notifier := &fakeNotifier{}
	rec := NewReconciler(store.stores(), fetcher, notifier, nil, testSyncConfig())
	rec.logger = utils.NewNopLogger()
	rec.now = func() time.Time { return testNow }
	return rec, store, fetcher, notifier
}
