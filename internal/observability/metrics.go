package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Handshake outcomes recorded by RecordHandshake.
const (
	HandshakeAccepted  = "accepted"
	HandshakeNameTaken = "name_taken"
	HandshakeInvalid   = "invalid_name"
	HandshakeFailed    = "failed"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatrelay",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chatrelay",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	activeSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "chatrelay",
			Subsystem: "relay",
			Name:      "sessions_active",
			Help:      "Sessions currently registered.",
		},
		[]string{"node"},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatrelay",
			Subsystem: "relay",
			Name:      "handshakes_total",
			Help:      "Name-claim handshakes by outcome.",
		},
		[]string{"node", "transport", "outcome"},
	)
	routed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatrelay",
			Subsystem: "relay",
			Name:      "messages_routed_total",
			Help:      "Frames delivered to recipients by message kind.",
		},
		[]string{"node", "kind"},
	)
	sendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatrelay",
			Subsystem: "relay",
			Name:      "send_failures_total",
			Help:      "Per-recipient send failures swallowed by the router.",
		},
		[]string{"node", "kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, activeSessions, handshakes, routed, sendFailures)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func SetActiveSessions(node string, n int) {
	RegisterMetrics()
	activeSessions.WithLabelValues(node).Set(float64(n))
}

func RecordHandshake(node, transport, outcome string) {
	RegisterMetrics()
	handshakes.WithLabelValues(node, transport, outcome).Inc()
}

func RecordRouted(node, kind string, delivered int) {
	if delivered <= 0 {
		return
	}
	RegisterMetrics()
	routed.WithLabelValues(node, kind).Add(float64(delivered))
}

func RecordSendFailure(node, kind string) {
	RegisterMetrics()
	sendFailures.WithLabelValues(node, kind).Inc()
}
