// Package stats provides Prometheus metrics for the reservation service and
// NVML-backed GPU statistics.
package stats

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpu_dibs_requests_total",
			Help: "Total number of requests received",
		},
		[]string{"method", "path", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpu_dibs_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	requestPayloadSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpu_dibs_request_payload_bytes",
			Help:    "Request payload size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)

	responsePayloadSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpu_dibs_response_payload_bytes",
			Help:    "Response payload size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path", "status"},
	)

	// Session lifecycle metrics
	sessionsReserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpu_dibs_sessions_reserved_total",
			Help: "Total number of session reservations",
		},
		[]string{"profile", "status"},
	)

	sessionsReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpu_dibs_sessions_released_total",
			Help: "Total number of session releases",
		},
		[]string{"reason"},
	)

	reserveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpu_dibs_reserve_duration_seconds",
			Help:    "Time from reservation until the session pod is running",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"profile"},
	)

	// Current state metrics
	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpu_dibs_active_sessions",
			Help: "Current number of active GPU sessions",
		},
	)

	idleTimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpu_dibs_idle_time_seconds",
			Help: "Time since last API activity in seconds",
		},
	)

	reapRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpu_dibs_reap_runs_total",
			Help: "Total number of idle reaper sweeps",
		},
		[]string{"status"},
	)
)

// MetricsRecorder handles recording metrics
type MetricsRecorder struct {
	mu               sync.RWMutex
	lastActivityTime time.Time
	idleTimeUpdater  *time.Ticker
	stopIdleUpdater  chan struct{}
}

// NewMetricsRecorder creates a new metrics recorder
func NewMetricsRecorder() *MetricsRecorder {
	mr := &MetricsRecorder{
		lastActivityTime: time.Now(),
		idleTimeUpdater:  time.NewTicker(10 * time.Second),
		stopIdleUpdater:  make(chan struct{}),
	}

	// Start idle time updater
	go mr.updateIdleTime()

	return mr
}

// Stop stops the metrics recorder
func (mr *MetricsRecorder) Stop() {
	close(mr.stopIdleUpdater)
	mr.idleTimeUpdater.Stop()
}

// RecordRequest records a request with its metrics
func (mr *MetricsRecorder) RecordRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	statusStr := strconv.Itoa(status)

	requestsTotal.WithLabelValues(method, path, statusStr).Inc()
	requestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())

	if requestSize > 0 {
		requestPayloadSize.WithLabelValues(method, path).Observe(float64(requestSize))
	}
	if responseSize > 0 {
		responsePayloadSize.WithLabelValues(method, path, statusStr).Observe(float64(responseSize))
	}
}

// RecordReserve records a session reservation attempt
func (mr *MetricsRecorder) RecordReserve(profile string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}

	sessionsReserved.WithLabelValues(profile, status).Inc()
	if success {
		reserveDuration.WithLabelValues(profile).Observe(duration.Seconds())
	}
}

// RecordRelease records a session release
func (mr *MetricsRecorder) RecordRelease(reason string) {
	sessionsReleased.WithLabelValues(reason).Inc()
}

// RecordReapRun records one idle reaper sweep
func (mr *MetricsRecorder) RecordReapRun(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	reapRuns.WithLabelValues(status).Inc()
}

// UpdateActiveSessions updates the active session count
func (mr *MetricsRecorder) UpdateActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// UpdateActivity updates the last activity time
func (mr *MetricsRecorder) UpdateActivity() {
	mr.mu.Lock()
	mr.lastActivityTime = time.Now()
	mr.mu.Unlock()
}

// updateIdleTime periodically updates the idle time metric
func (mr *MetricsRecorder) updateIdleTime() {
	for {
		select {
		case <-mr.idleTimeUpdater.C:
			mr.mu.RLock()
			idle := time.Since(mr.lastActivityTime).Seconds()
			mr.mu.RUnlock()
			idleTimeSeconds.Set(idle)
		case <-mr.stopIdleUpdater:
			return
		}
	}
}
