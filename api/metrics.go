/*
metrics.go - Prometheus instrumentation

Exposes request counters, latency histograms and ledger-level counters on
/metrics. Registration happens once in NewMetrics; the middleware wraps the
whole router.
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	inFlight        prometheus.Gauge
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	TransactionsPosted *prometheus.CounterVec
	SubmitsRejected    *prometheus.CounterVec
	AccrualRunDuration prometheus.Histogram
}

// NewMetrics creates and registers the collectors on a fresh registry.
func NewMetrics() (*Metrics, *prometheus.Registry) {
	m := &Metrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		TransactionsPosted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_posted_total",
				Help: "Ledger transactions posted, by kind.",
			},
			[]string{"kind"},
		),
		SubmitsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_submits_rejected_total",
				Help: "Rejected submit attempts, by kind.",
			},
			[]string{"kind"},
		),
		AccrualRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "accrual_run_duration_seconds",
			Help:    "Duration of accrual generator runs.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		m.inFlight, m.requestsTotal, m.requestDuration,
		m.TransactionsPosted, m.SubmitsRejected, m.AccrualRunDuration,
	)
	return m, reg
}

// Handler serves the registry on /metrics.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Instrument wraps a handler with RPS, latency and in-flight measurement.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		// The route pattern keeps label cardinality bounded: one series per
		// route, not one per employee ID in the path.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		m.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
		m.requestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.inFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
