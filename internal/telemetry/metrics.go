package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequestsTotal counts HTTP requests by method, endpoint and status.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pawmark",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP request latency in seconds.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pawmark",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections tracks in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pawmark",
		Subsystem: "api",
		Name:      "active_connections",
		Help:      "In-flight HTTP requests.",
	})

	// APIWebSocketConnections tracks open queue-feed websockets.
	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pawmark",
		Subsystem: "api",
		Name:      "websocket_connections",
		Help:      "Open websocket connections.",
	})

	// GatingDecisions counts gating evaluations by outcome code.
	GatingDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pawmark",
		Subsystem: "gating",
		Name:      "decisions_total",
		Help:      "Gating decisions by outcome (allowed or blocked-reason code).",
	}, []string{"outcome"})

	// PlacementsRecorded counts successfully recorded placements.
	PlacementsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pawmark",
		Subsystem: "placement",
		Name:      "recorded_total",
		Help:      "Placements recorded.",
	})

	// GeneticsLociSynced counts loci rows written by the sync job.
	GeneticsLociSynced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pawmark",
		Subsystem: "genetics",
		Name:      "loci_synced_total",
		Help:      "Normalized genetics locus rows written.",
	})

	// NotificationsEnqueued counts outbox rows written by type.
	NotificationsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pawmark",
		Subsystem: "notifications",
		Name:      "enqueued_total",
		Help:      "Notification outbox entries written.",
	}, []string{"type"})

	// DatabaseConnectionsActive tracks open connections in the pool.
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pawmark",
		Subsystem: "db",
		Name:      "connections_active",
		Help:      "Open database connections.",
	})

	// LeaderElectionStatus reports whether this instance holds leadership.
	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pawmark",
		Subsystem: "leadership",
		Name:      "is_leader",
		Help:      "1 when this instance is the leader.",
	}, []string{"instance_id"})

	// LeaderElectionChanges counts leadership transitions.
	LeaderElectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pawmark",
		Subsystem: "leadership",
		Name:      "changes_total",
		Help:      "Leadership acquisitions and losses.",
	}, []string{"instance_id", "change"})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
