package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/rdc-learning-api/internal/models"
)

// Invoice generation outcomes used as metric labels.
const (
	InvoiceResultCreated  = "created"
	InvoiceResultExisting = "existing"
	InvoiceResultFailed   = "failed"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP, cache and domain events.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	enrollments    *prometheus.CounterVec
	referralAwards prometheus.Counter
	invoices       *prometheus.CounterVec
	prebookings    prometheus.Counter
	invoiceBacklog prometheus.Gauge
}

// NewMetricsService registers core Prometheus collectors.
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

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	enrollments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_total",
		Help: "Committed enrollments by enrollment type",
	}, []string{"type"})

	referralAwards := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "referral_awards_total",
		Help: "Referral awards credited to referrers",
	})

	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoices_total",
		Help: "Invoice generation attempts by result",
	}, []string{"result"})

	prebookings := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "prebookings_total",
		Help: "Recorded prebookings",
	})

	invoiceBacklog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "invoice_outbox_pending",
		Help: "Pending invoices seen by the last reconciliation run",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		enrollments, referralAwards, invoices, prebookings, invoiceBacklog, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		enrollments:     enrollments,
		referralAwards:  referralAwards,
		invoices:        invoices,
		prebookings:     prebookings,
		invoiceBacklog:  invoiceBacklog,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordEnrollment counts a committed enrollment and, when present, its referral award.
func (m *MetricsService) RecordEnrollment(kind models.EnrollmentType, referralAwarded bool) {
	if m == nil {
		return
	}
	m.enrollments.WithLabelValues(string(kind)).Inc()
	if referralAwarded {
		m.referralAwards.Inc()
	}
}

// RecordInvoice counts an invoice generation outcome.
func (m *MetricsService) RecordInvoice(result string) {
	if m == nil {
		return
	}
	m.invoices.WithLabelValues(result).Inc()
}

// RecordPrebooking counts a recorded prebooking.
func (m *MetricsService) RecordPrebooking() {
	if m == nil {
		return
	}
	m.prebookings.Inc()
}

// SetInvoiceBacklog publishes the number of pending invoices.
func (m *MetricsService) SetInvoiceBacklog(n int) {
	if m == nil {
		return
	}
	m.invoiceBacklog.Set(float64(n))
}
