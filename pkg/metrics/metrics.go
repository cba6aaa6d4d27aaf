package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsDispatched counts completed dispatches by type and target
	// kind (user|group|broadcast).
	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushrelay_notifications_dispatched_total",
			Help: "Total number of notifications persisted and fanned out",
		},
		[]string{"type", "target"},
	)

	// PushFailures counts individual connection pushes that failed during fan-out.
	PushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushrelay_push_failures_total",
			Help: "Total number of failed per-connection pushes",
		},
	)

	// OfflineDeliveries counts dispatches that resolved to zero live connections
	// and rely on polling catch-up.
	OfflineDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushrelay_offline_deliveries_total",
			Help: "Total number of dispatches with no live connection in the target group",
		},
	)

	// ActiveConnections tracks currently open websocket connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pushrelay_active_connections",
			Help: "Number of open websocket connections",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pushrelay_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
