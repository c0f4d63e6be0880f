// Package metrics provides Prometheus instrumentation for the SkillSwap
// realtime service: gauges for connection and subscription counts, counters
// for message throughput, and histograms for latency tracking.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skillswap_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// MessagesTotal counts messages processed, labeled by outcome:
	// "sent", "delivered", "read", "blocked", or "failed".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_messages_total",
		Help: "Total number of messages processed",
	}, []string{"outcome"})

	// SendLatency records the send path latency (validate, insert, fan-out)
	// in seconds.
	SendLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "skillswap_send_latency_seconds",
		Help:    "Message send path latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// OpenPairRooms tracks the current number of open pair room subscriptions.
	OpenPairRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skillswap_open_pair_rooms",
		Help: "Current number of open pair room subscriptions",
	})

	// FeedEventsTotal counts change-feed events published, labeled by feed:
	// "message_insert", "message_update", "typing", "status", "profile".
	FeedEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_feed_events_total",
		Help: "Total number of change feed events published",
	}, []string{"feed"})

	// OnlineUsers tracks the current number of users marked online.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skillswap_online_users",
		Help: "Current number of users marked online",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		MessagesTotal,
		SendLatency,
		OpenPairRooms,
		FeedEventsTotal,
		OnlineUsers,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
