package metrics

import (
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/bridge-relayer/pkg/utils"
)

// Manager handles all application metrics
type Manager struct {
	prometheus *PrometheusMetrics
	logger     *logrus.Entry
	startTime  time.Time
}

// NewManager creates a new metrics manager
func NewManager() *Manager {
	return &Manager{
		prometheus: NewPrometheusMetrics(),
		logger:     utils.ComponentLogger("metrics"),
		startTime:  time.Now(),
	}
}

// Prometheus returns the Prometheus metrics instance
func (m *Manager) Prometheus() *PrometheusMetrics {
	return m.prometheus
}

// UpdateSystemMetrics updates system-level metrics
func (m *Manager) UpdateSystemMetrics() {
	m.prometheus.UpdateGoroutineCount(runtime.NumGoroutine())
	m.prometheus.UpdateApplicationUptime(m.startTime)
}
