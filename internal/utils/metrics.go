// internal/utils/metrics.go
package utils

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects application metrics
type Metrics struct {
	cacheRequests   *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	generations     *prometheus.CounterVec
	activeSockets   prometheus.Gauge
}

// NewMetrics registers the application collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shakescript",
			Name:      "cache_requests_total",
			Help:      "Response cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shakescript",
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of story API calls by operation and outcome.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60, 180},
		}, []string{"op", "outcome"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shakescript",
			Name:      "generations_total",
			Help:      "Story submissions by outcome.",
		}, []string{"outcome"}),
		activeSockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shakescript",
			Name:      "status_websockets",
			Help:      "Open generation status websockets.",
		}),
	}

	reg.MustRegister(m.cacheRequests, m.backendDuration, m.generations, m.activeSockets)
	return m
}

// CacheHit records a lookup served from cache. Safe on a nil receiver.
func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(cache, "hit").Inc()
}

// CacheMiss records a lookup that had to go to the backend
func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(cache, "miss").Inc()
}

// ObserveBackend records the latency of one story API call
func (m *Metrics) ObserveBackend(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.backendDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

// Generation records the outcome of one story submission
func (m *Metrics) Generation(outcome string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(outcome).Inc()
}

// SocketOpened increments the open websocket gauge
func (m *Metrics) SocketOpened() {
	if m == nil {
		return
	}
	m.activeSockets.Inc()
}

// SocketClosed decrements the open websocket gauge
func (m *Metrics) SocketClosed() {
	if m == nil {
		return
	}
	m.activeSockets.Dec()
}
