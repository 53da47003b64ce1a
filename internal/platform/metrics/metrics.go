package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the stream supervisor.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal       *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
	streamsRunning      prometheus.Gauge
	restartsTotal       prometheus.Counter
	spawnFailuresTotal  prometheus.Counter
	cleanupRunsTotal    prometheus.Counter
	bucketsDeletedTotal prometheus.Counter
	bytesReclaimedTotal prometheus.Counter
	healthAlerts        prometheus.Gauge
}

// New creates and registers Prometheus metrics for the supervisor service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cctv_requests_total",
		Help: "Total number of HTTP requests received, by route pattern",
	}, []string{"route"})
	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cctv_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx), by route pattern",
	}, []string{"route"})
	streamsRunning := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cctv_streams_running",
		Help: "Number of camera encoder processes currently running",
	})
	restartsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cctv_stream_restarts_total",
		Help: "Total number of automatic encoder process restarts",
	})
	spawnFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cctv_spawn_failures_total",
		Help: "Total number of encoder process launch failures",
	})
	cleanupRunsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cctv_cleanup_runs_total",
		Help: "Total number of retention cleanup passes executed",
	})
	bucketsDeletedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cctv_cleanup_buckets_deleted_total",
		Help: "Total number of recording hour buckets deleted by cleanup",
	})
	bytesReclaimedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cctv_cleanup_bytes_reclaimed_total",
		Help: "Total bytes reclaimed by retention cleanup",
	})
	healthAlerts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cctv_health_alerts",
		Help: "Number of alerts in the most recent health snapshot",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		streamsRunning,
		restartsTotal,
		spawnFailuresTotal,
		cleanupRunsTotal,
		bucketsDeletedTotal,
		bytesReclaimedTotal,
		healthAlerts,
	)

	return &Metrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		errorsTotal:         errorsTotal,
		streamsRunning:      streamsRunning,
		restartsTotal:       restartsTotal,
		spawnFailuresTotal:  spawnFailuresTotal,
		cleanupRunsTotal:    cleanupRunsTotal,
		bucketsDeletedTotal: bucketsDeletedTotal,
		bytesReclaimedTotal: bytesReclaimedTotal,
		healthAlerts:        healthAlerts,
	}
}

// IncRequests increments the request counter for a route.
func (m *Metrics) IncRequests(route string) {
	m.requestsTotal.WithLabelValues(route).Inc()
}

// IncErrors increments the error counter for a route.
func (m *Metrics) IncErrors(route string) {
	m.errorsTotal.WithLabelValues(route).Inc()
}

// SetStreamsRunning sets the running-streams gauge.
func (m *Metrics) SetStreamsRunning(n int) {
	m.streamsRunning.Set(float64(n))
}

// IncRestarts increments the automatic-restart counter.
func (m *Metrics) IncRestarts() {
	m.restartsTotal.Inc()
}

// IncSpawnFailures increments the spawn-failure counter.
func (m *Metrics) IncSpawnFailures() {
	m.spawnFailuresTotal.Inc()
}

// IncCleanupRuns increments the cleanup pass counter.
func (m *Metrics) IncCleanupRuns() {
	m.cleanupRunsTotal.Inc()
}

// AddBucketsDeleted records buckets removed by a cleanup pass.
func (m *Metrics) AddBucketsDeleted(n int) {
	m.bucketsDeletedTotal.Add(float64(n))
}

// AddBytesReclaimed records bytes freed by a cleanup pass.
func (m *Metrics) AddBytesReclaimed(n int64) {
	m.bytesReclaimedTotal.Add(float64(n))
}

// SetHealthAlerts sets the current alert-count gauge.
func (m *Metrics) SetHealthAlerts(n int) {
	m.healthAlerts.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g.
// running streams).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
