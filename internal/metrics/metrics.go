// Package metrics holds the prometheus collectors of the web server and the
// lifecycle services.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	operationsTotal     *prometheus.CounterVec
	authDecisionsTotal  *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "plantcare",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "plantcare",
				Name:      "http_request_duration_seconds",
				Help:      "Time taken for HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "plantcare",
				Name:      "operations_total",
				Help:      "Lifecycle write operations by outcome",
			},
			[]string{"entity", "operation", "outcome"}, // outcome: ok, not_found, invalid, conflict
		),
		authDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "plantcare",
				Name:      "access_decisions_total",
				Help:      "Access policy decisions",
			},
			[]string{"entity", "operation", "decision"}, // decision: allowed, unauthenticated, forbidden
		),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.operationsTotal,
		m.authDecisionsTotal,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordOperation satisfies care.Recorder.
func (m *Metrics) RecordOperation(entity, operation, outcome string) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(entity, operation, outcome).Inc()
}

func (m *Metrics) RecordDecision(entity, operation, decision string) {
	if m == nil {
		return
	}
	m.authDecisionsTotal.WithLabelValues(entity, operation, decision).Inc()
}
