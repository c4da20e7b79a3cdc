package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exported by the relay.
type Metrics struct {
	Connections prometheus.Gauge
	Rooms       prometheus.Gauge
	Messages    *prometheus.CounterVec
	Commits     *prometheus.CounterVec
	Broadcast   prometheus.Histogram
	Exports     *prometheus.CounterVec
}

// Commit results.
const (
	CommitAccepted = "accepted"
	CommitRejected = "rejected"
	CommitFailed   = "failed"
)

// NewMetrics registers the relay collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sheetsync",
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Currently connected clients.",
		}),
		Rooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "sheetsync",
			Subsystem: "relay",
			Name:      "rooms",
			Help:      "Documents with at least one connected client.",
		}),
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sheetsync",
			Subsystem: "relay",
			Name:      "messages_received_total",
			Help:      "Messages received from clients, by type.",
		}, []string{"type"}),
		Commits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sheetsync",
			Subsystem: "relay",
			Name:      "commits_total",
			Help:      "State updates submitted to the store, by result.",
		}, []string{"result"}),
		Broadcast: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sheetsync",
			Subsystem: "relay",
			Name:      "broadcast_duration_seconds",
			Help:      "Time spent delivering one message to the peers of a room.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		Exports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sheetsync",
			Subsystem: "relay",
			Name:      "exports_total",
			Help:      "Committed messages handed to the exporter, by result.",
		}, []string{"result"}),
	}
}
