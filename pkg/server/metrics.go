package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server. It implements
// chat.Metrics so the registry, multiplexer and router can report without
// depending on Prometheus.
type Metrics struct {
	activeConnections prometheus.Gauge
	connectionsOpened prometheus.Counter
	connectionsClosed prometheus.Counter

	broadcastFanout   prometheus.Histogram
	messagesBroadcast *prometheus.CounterVec

	restRequests *prometheus.CounterVec
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		activeConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "hackmatch_active_connections",
				Help: "Current number of live websocket connections",
			},
		),
		connectionsOpened: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "hackmatch_connections_opened_total",
				Help: "Total number of websocket connections opened",
			},
		),
		connectionsClosed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "hackmatch_connections_closed_total",
				Help: "Total number of websocket connections closed",
			},
		),
		broadcastFanout: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hackmatch_broadcast_fanout",
				Help:    "Number of connections that received each broadcast",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		messagesBroadcast: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hackmatch_messages_broadcast_total",
				Help: "Total number of messages persisted and fanned out, by kind",
			},
			[]string{"kind"},
		),
		restRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hackmatch_rest_requests_total",
				Help: "Total REST requests by route and status",
			},
			[]string{"route", "status"},
		),
	}
}

// RecordActiveConnections updates the live connection gauge
func (m *Metrics) RecordActiveConnections(count int) {
	m.activeConnections.Set(float64(count))
}

// RecordConnectionOpened increments the connection open counter
func (m *Metrics) RecordConnectionOpened() {
	m.connectionsOpened.Inc()
}

// RecordConnectionClosed increments the connection close counter
func (m *Metrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

// RecordBroadcastFanout records how many connections received a broadcast
func (m *Metrics) RecordBroadcastFanout(delivered int) {
	m.broadcastFanout.Observe(float64(delivered))
}

// RecordMessageBroadcast increments the broadcast counter for a message kind
func (m *Metrics) RecordMessageBroadcast(kind string) {
	m.messagesBroadcast.WithLabelValues(kind).Inc()
}

// RecordRESTRequest increments the REST request counter
func (m *Metrics) RecordRESTRequest(route, status string) {
	m.restRequests.WithLabelValues(route, status).Inc()
}
