package metrics

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stayops/calsync-backend/internal/models"
	"github.com/stayops/calsync-backend/internal/sync"
)

// Monitor is a collection of Prometheus metrics for the sync backend. It
// owns its registry so tests and the ops server see exactly the collectors
// registered here.
type Monitor struct {
	registry *prometheus.Registry

	// A counter of finished sync runs, by type, trigger and outcome.
	SyncRunsTotal *prometheus.CounterVec
	// A histogram to measure how long each sync run takes.
	SyncRunDuration *prometheus.HistogramVec
	// A counter of per-listing sync outcomes.
	ListingSyncsTotal *prometheus.CounterVec
	// A counter of booking mutations, by operation.
	BookingOperationsTotal *prometheus.CounterVec
	// A counter of calendar feed events processed.
	EventsProcessedTotal prometheus.Counter
	// A counter of calendar feeds fetched.
	FeedsProcessedTotal prometheus.Counter
	// Counters and timings for the HTTP API.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMonitor creates a monitor and registers its collectors.
func NewMonitor() *Monitor {
	syncRunsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calsync_sync_runs_total",
		Help: "Number of finished sync runs",
	}, []string{"sync_type", "triggered_by", "status"})
	syncRunDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calsync_sync_run_duration_seconds",
		Help:    "Duration of sync runs",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~409s
	}, []string{"sync_type"})
	listingSyncsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calsync_listing_syncs_total",
		Help: "Number of per-listing sync outcomes",
	}, []string{"status"})
	bookingOperationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calsync_booking_operations_total",
		Help: "Number of booking operations applied during sync",
	}, []string{"operation"})
	eventsProcessedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "calsync_feed_events_processed_total",
		Help: "Number of calendar events processed",
	})
	feedsProcessedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "calsync_feeds_processed_total",
		Help: "Number of calendar feeds fetched",
	})
	httpRequestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calsync_http_requests_total",
		Help: "Number of HTTP requests served",
	}, []string{"method", "path", "status"})
	httpRequestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calsync_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		syncRunsTotal,
		syncRunDuration,
		listingSyncsTotal,
		bookingOperationsTotal,
		eventsProcessedTotal,
		feedsProcessedTotal,
		httpRequestsTotal,
		httpRequestDuration,
	)

	return &Monitor{
		registry:               registry,
		SyncRunsTotal:          syncRunsTotal,
		SyncRunDuration:        syncRunDuration,
		ListingSyncsTotal:      listingSyncsTotal,
		BookingOperationsTotal: bookingOperationsTotal,
		EventsProcessedTotal:   eventsProcessedTotal,
		FeedsProcessedTotal:    feedsProcessedTotal,
		HTTPRequestsTotal:      httpRequestsTotal,
		HTTPRequestDuration:    httpRequestDuration,
	}
}

// Registry returns the registry holding this monitor's collectors.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterActiveBookingsGauge registers a gauge that reads the active booking
// count at scrape time. A failed read reports NaN.
func (m *Monitor) RegisterActiveBookingsGauge(count func() (int64, error)) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "calsync_active_bookings",
		Help: "Number of active bookings in the database",
	}, func() float64 {
		n, err := count()
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}))
}

// ListingSynced records the outcome of one listing's reconcile.
func (m *Monitor) ListingSynced(result *sync.ListingResult) {
	m.ListingSyncsTotal.WithLabelValues(string(result.Status)).Inc()
	m.EventsProcessedTotal.Add(float64(result.Totals.EventsProcessed))
	m.FeedsProcessedTotal.Add(float64(result.Totals.FeedsProcessed))

	ops := map[string]int{
		string(models.OpAdded):       result.Totals.Added,
		string(models.OpUpdated):     result.Totals.Updated,
		string(models.OpReplaced):    result.Totals.Replaced,
		string(models.OpUnchanged):   result.Totals.Unchanged,
		string(models.OpDeactivated): result.Totals.Deactivated,
		string(models.OpError):       result.Totals.Errors,
	}
	for op, n := range ops {
		if n > 0 {
			m.BookingOperationsTotal.WithLabelValues(op).Add(float64(n))
		}
	}
}

// RunCompleted records a finished sync run.
func (m *Monitor) RunCompleted(syncType models.SyncType, triggeredBy models.TriggerSource, status models.SessionStatus, duration time.Duration) {
	m.SyncRunsTotal.WithLabelValues(string(syncType), string(triggeredBy), string(status)).Inc()
	m.SyncRunDuration.WithLabelValues(string(syncType)).Observe(duration.Seconds())
}
