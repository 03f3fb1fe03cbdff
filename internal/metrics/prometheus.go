package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the bridge relayer
type PrometheusMetrics struct {
	// Cycle metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	ScanDuration  prometheus.Histogram

	// Relay metrics
	EventsRelayedTotal *prometheus.CounterVec
	RelayDuration      *prometheus.HistogramVec
	RetriesTotal       prometheus.Counter

	// Chain progress metrics
	CheckpointBlock   prometheus.Gauge
	SourceChainHeight prometheus.Gauge
	BlocksBehind      prometheus.Gauge

	// Connection metrics
	ConnectionErrorsTotal *prometheus.CounterVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		CyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_relayer_cycles_total",
				Help: "Total number of scan/relay cycles by outcome",
			},
			[]string{"status"},
		),

		CycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bridge_relayer_cycle_duration_seconds",
				Help:    "Time spent in one scan/relay cycle",
				Buckets: prometheus.DefBuckets,
			},
		),

		ScanDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bridge_relayer_scan_duration_seconds",
				Help:    "Time spent scanning a block window",
				Buckets: prometheus.DefBuckets,
			},
		),

		EventsRelayedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_relayer_events_relayed_total",
				Help: "Total number of relay attempts by outcome",
			},
			[]string{"status"},
		),

		RelayDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_relayer_relay_duration_seconds",
				Help:    "Time spent relaying one event",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),

		RetriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_relayer_retries_total",
				Help: "Total number of stored failed records retried",
			},
		),

		CheckpointBlock: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_relayer_checkpoint_block",
				Help: "Last block whose event window has been fully processed",
			},
		),

		SourceChainHeight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_relayer_source_chain_height",
				Help: "Latest observed source chain height",
			},
		),

		BlocksBehind: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_relayer_blocks_behind",
				Help: "Distance between the chain height and the checkpoint",
			},
		),

		ConnectionErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_relayer_connection_errors_total",
				Help: "Total number of connection errors by chain",
			},
			[]string{"chain", "error_type"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_relayer_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_relayer_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_relayer_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_relayer_goroutines",
				Help: "Current number of goroutines",
			},
		),
	}
}

// RecordCycle records one completed cycle
func (m *PrometheusMetrics) RecordCycle(status string, duration time.Duration) {
	m.CyclesTotal.WithLabelValues(status).Inc()
	m.CycleDuration.Observe(duration.Seconds())
}

// RecordScan records the duration of one scan
func (m *PrometheusMetrics) RecordScan(duration time.Duration) {
	m.ScanDuration.Observe(duration.Seconds())
}

// RecordEventRelayed records one relay attempt
func (m *PrometheusMetrics) RecordEventRelayed(status string, duration time.Duration) {
	m.EventsRelayedTotal.WithLabelValues(status).Inc()
	m.RelayDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordRetry records stored failures retried in a cycle
func (m *PrometheusMetrics) RecordRetry(count int) {
	m.RetriesTotal.Add(float64(count))
}

// UpdateCheckpoint updates the checkpoint gauge
func (m *PrometheusMetrics) UpdateCheckpoint(block uint64) {
	m.CheckpointBlock.Set(float64(block))
}

// UpdateChainProgress updates the height and lag gauges
func (m *PrometheusMetrics) UpdateChainProgress(height, checkpoint uint64) {
	m.SourceChainHeight.Set(float64(height))
	if height >= checkpoint {
		m.BlocksBehind.Set(float64(height - checkpoint))
	}
}

// RecordConnectionError records a connection failure
func (m *PrometheusMetrics) RecordConnectionError(chain, errorType string) {
	m.ConnectionErrorsTotal.WithLabelValues(chain, errorType).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the uptime gauge
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateGoroutineCount updates the goroutine gauge
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
