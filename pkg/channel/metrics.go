package channel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marionette",
			Subsystem: "connection",
			Name:      "messages_sent_total",
			Help:      "Total number of requests sent to the driver",
		},
		[]string{"method"},
	)

	messagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marionette",
			Subsystem: "connection",
			Name:      "messages_received_total",
			Help:      "Total number of frames received from the driver",
		},
		[]string{"type"}, // "response" or "event"
	)

	pendingCalls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "marionette",
			Subsystem: "connection",
			Name:      "pending_calls",
			Help:      "Number of calls awaiting a response",
		},
	)

	dispatchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marionette",
			Subsystem: "connection",
			Name:      "dispatch_errors_total",
			Help:      "Total number of per-frame dispatch errors",
		},
		[]string{"kind"}, // "decode", "stale_id", "unknown_parent", "disposed_parent", "unknown_object", "factory", "adopt"
	)

	callLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marionette",
			Subsystem: "connection",
			Name:      "call_latency_seconds",
			Help:      "Round-trip latency of driver calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method"},
	)

	objectsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "marionette",
			Subsystem: "objects",
			Name:      "active",
			Help:      "Number of live remote objects mirrored locally",
		},
	)

	objectsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marionette",
			Subsystem: "objects",
			Name:      "created_total",
			Help:      "Total number of remote objects registered",
		},
		[]string{"type"},
	)

	objectsDisposed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marionette",
			Subsystem: "objects",
			Name:      "disposed_total",
			Help:      "Total number of remote objects disposed",
		},
		[]string{"reason"},
	)
)
