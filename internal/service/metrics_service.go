package service

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the ingest core.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	eventsIngested  *prometheus.CounterVec
	eventsDuplicate *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	syncDuration    *prometheus.HistogramVec
	jobsProcessed   *prometheus.CounterVec
	queueDepth      *prometheus.GaugeVec
}

// NewMetricsService registers the core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	eventsIngested := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "raw_events_ingested_total",
		Help: "Raw events inserted into the event store",
	}, []string{"device"})

	eventsDuplicate := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "raw_events_duplicate_total",
		Help: "Raw events skipped by the natural-key dedup check",
	}, []string{"device"})

	eventsDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "raw_events_dropped_total",
		Help: "Device records dropped because their punch code had no mapping",
	}, []string{"device"})

	syncDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "device_sync_duration_seconds",
		Help:    "Wall-clock duration of one device sync",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"device", "outcome"})

	jobsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_jobs_processed_total",
		Help: "Jobs reaching a terminal queue transition",
	}, []string{"type", "state"})

	queueDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Jobs currently in each queue state",
	}, []string{"state"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, eventsIngested, eventsDuplicate, eventsDropped, syncDuration, jobsProcessed, queueDepth, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		eventsIngested:  eventsIngested,
		eventsDuplicate: eventsDuplicate,
		eventsDropped:   eventsDropped,
		syncDuration:    syncDuration,
		jobsProcessed:   jobsProcessed,
		queueDepth:      queueDepth,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := http.StatusText(status)
	if code == "" {
		code = "unknown"
	}
	labels := prometheus.Labels{"method": method, "path": path, "status": code}
	m.requestDuration.With(labels).Observe(duration.Seconds())
	m.requestTotal.With(labels).Inc()
}

// ObserveIngest records the outcome of one appendEvents batch.
func (m *MetricsService) ObserveIngest(device string, inserted, duplicates, dropped int) {
	if m == nil {
		return
	}
	m.eventsIngested.WithLabelValues(device).Add(float64(inserted))
	m.eventsDuplicate.WithLabelValues(device).Add(float64(duplicates))
	m.eventsDropped.WithLabelValues(device).Add(float64(dropped))
}

// ObserveSync records one device sync's duration and outcome.
func (m *MetricsService) ObserveSync(device, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.syncDuration.WithLabelValues(device, outcome).Observe(duration.Seconds())
}

// ObserveJob records a terminal queue transition.
func (m *MetricsService) ObserveJob(jobType, state string) {
	if m == nil {
		return
	}
	m.jobsProcessed.WithLabelValues(jobType, state).Inc()
}

// SetQueueDepth publishes the current per-state queue depth.
func (m *MetricsService) SetQueueDepth(state string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(state).Set(float64(depth))
}
