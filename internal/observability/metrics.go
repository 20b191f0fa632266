package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signover",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests against the status server.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signover",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	notifyAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signover",
			Subsystem: "transfer",
			Name:      "notify_attempts_total",
			Help:      "Chunk push attempts by transport-accept outcome.",
		},
		[]string{"accepted"},
	)
	controlCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signover",
			Subsystem: "transfer",
			Name:      "control_commands_total",
			Help:      "Control slot commands processed.",
		},
		[]string{"role", "command"},
	)
	sessionOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signover",
			Subsystem: "transfer",
			Name:      "sessions_total",
			Help:      "Finished sessions by role and outcome.",
		},
		[]string{"role", "outcome"},
	)
	transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signover",
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "Payload bytes moved by completed sessions.",
		},
		[]string{"role"},
	)
	transferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "signover",
			Subsystem: "transfer",
			Name:      "duration_seconds",
			Help:      "Completed transfer duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"role"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			notifyAttempts, controlCommands, sessionOutcomes,
			transferBytes, transferDuration,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordNotifyAttempt(accepted bool) {
	RegisterMetrics()
	notifyAttempts.WithLabelValues(strconv.FormatBool(accepted)).Inc()
}

func RecordControlCommand(role, command string) {
	RegisterMetrics()
	controlCommands.WithLabelValues(role, command).Inc()
}

func RecordSessionOutcome(role, outcome string) {
	RegisterMetrics()
	sessionOutcomes.WithLabelValues(role, outcome).Inc()
}

func RecordTransfer(role string, bytes int, duration time.Duration) {
	RegisterMetrics()
	transferBytes.WithLabelValues(role).Add(float64(bytes))
	transferDuration.WithLabelValues(role).Observe(duration.Seconds())
}
