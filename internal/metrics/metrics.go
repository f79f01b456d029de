// Package metrics provides Prometheus instrumentation for the Kindred chat
// service. It exposes gauges for connection, search-pool and session counts,
// counters for message and match throughput, and histograms for latency
// tracking.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kindred_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// UsersByStatus tracks how many users are in each coordinator status.
	UsersByStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kindred_users_by_status",
		Help: "Current number of users per coordinator status",
	}, []string{"status"})

	// MessagesTotal counts the total number of messages processed, labeled by
	// type: "sent", "delivered", "rejected", or "dropped".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kindred_messages_total",
		Help: "Total number of messages processed",
	}, []string{"type"})

	// MatchOutcomes counts decided ballots by outcome: "confirmed",
	// "rejected", or "expired".
	MatchOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kindred_match_outcomes_total",
		Help: "Total number of decided match ballots by outcome",
	}, []string{"outcome"})

	// OpenBallots tracks the number of match ballots awaiting votes.
	OpenBallots = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kindred_open_ballots",
		Help: "Current number of match ballots awaiting votes",
	})

	// SendQueueDrops counts outbound frames shed under backpressure.
	SendQueueDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kindred_send_queue_drops_total",
		Help: "Total number of outbound frames dropped from full send queues",
	})

	// MessageLatency records message processing latency in seconds.
	MessageLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kindred_message_latency_seconds",
		Help:    "Message processing latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// MatchDuration records the time from start-search to match proposal.
	MatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kindred_match_duration_seconds",
		Help:    "Time from start-search to match proposal",
		Buckets: []float64{1, 2, 5, 10, 15, 20, 25, 30},
	})

	// ActiveSessions tracks the current number of active chat sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kindred_active_sessions",
		Help: "Current number of active chat sessions",
	})

	// SearchPoolSize tracks the current number of users in the search pool.
	SearchPoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kindred_search_pool_size",
		Help: "Current number of users in the search pool",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		UsersByStatus,
		MessagesTotal,
		MatchOutcomes,
		OpenBallots,
		SendQueueDrops,
		MessageLatency,
		MatchDuration,
		ActiveSessions,
		SearchPoolSize,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
