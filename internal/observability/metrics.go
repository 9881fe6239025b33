package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	adjustmentsTotal     *prometheus.CounterVec
	reservationsRejected prometheus.Counter
	lotsConsumedTotal    prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kiln_http_requests_total",
		Help: "HTTP requests partitioned by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kiln_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	adjustments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kiln_inventory_adjustments_total",
		Help: "Posted inventory adjustments partitioned by adjustment type.",
	}, []string{"type"})
	reservationsRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kiln_inventory_reservations_rejected_total",
		Help: "Reservations rejected because available stock was insufficient.",
	})
	lotsConsumed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kiln_inventory_lots_consumed_total",
		Help: "Material lots depleted or partially drawn by FIFO consumption.",
	})
	registry.MustRegister(requests, duration, adjustments, reservationsRejected, lotsConsumed)
	return &Metrics{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:        requests,
		requestDuration:      duration,
		adjustmentsTotal:     adjustments,
		reservationsRejected: reservationsRejected,
		lotsConsumedTotal:    lotsConsumed,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// CountAdjustment records a posted adjustment by type.
func (m *Metrics) CountAdjustment(adjustmentType string) {
	if m == nil {
		return
	}
	m.adjustmentsTotal.WithLabelValues(adjustmentType).Inc()
}

// CountReservationRejected records a reservation refused for lack of stock.
func (m *Metrics) CountReservationRejected() {
	if m == nil {
		return
	}
	m.reservationsRejected.Inc()
}

// CountLotConsumed records one lot drawn down by the consumption engine.
func (m *Metrics) CountLotConsumed() {
	if m == nil {
		return
	}
	m.lotsConsumedTotal.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
