// Package telemetry exposes Prometheus metrics and configures OpenTelemetry
// trace export.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/rolechat/internal/chat"
	"github.com/flemzord/rolechat/internal/provider"
)

const namespace = "rolechat"

// Metrics records conversation and gateway metrics on a private registry.
// It implements chat.Observer.
type Metrics struct {
	registry *prometheus.Registry

	turns         *prometheus.CounterVec
	turnDuration  *prometheus.HistogramVec
	compactions   *prometheus.CounterVec
	conversations prometheus.Gauge
	rateLimited   *prometheus.CounterVec
	requests      *prometheus.CounterVec
	reqDuration   *prometheus.HistogramVec
}

var _ chat.Observer = (*Metrics)(nil)

// NewMetrics creates the metric set, including the Go runtime and process
// collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed conversation turns by provider and outcome.",
		}, []string{"provider", "outcome"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time from send to the last reply fragment.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"provider"}),
		compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compactions_total",
			Help:      "Background history compactions by outcome.",
		}, []string{"outcome"}),
		conversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversations_open",
			Help:      "Conversations with a live session.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Gateway requests rejected by the rate limiter.",
		}, []string{"kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Gateway requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		reqDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Gateway request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.turns, m.turnDuration, m.compactions, m.conversations,
		m.rateLimited, m.requests, m.reqDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TurnCompleted implements chat.Observer.
func (m *Metrics) TurnCompleted(kind provider.Kind, outcome string, elapsed time.Duration) {
	m.turns.WithLabelValues(string(kind), outcome).Inc()
	if outcome == chat.OutcomeOK {
		m.turnDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	}
}

// CompactionCompleted implements chat.Observer.
func (m *Metrics) CompactionCompleted(outcome string) {
	m.compactions.WithLabelValues(outcome).Inc()
}

// ConversationsOpen implements chat.Observer.
func (m *Metrics) ConversationsOpen(n int) {
	m.conversations.Set(float64(n))
}

// RateLimited counts a request rejected for kind.
func (m *Metrics) RateLimited(kind string) {
	m.rateLimited.WithLabelValues(kind).Inc()
}

// Middleware records request count and latency per chi route pattern.
// Unmatched requests are grouped under "unmatched" to bound cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.reqDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
