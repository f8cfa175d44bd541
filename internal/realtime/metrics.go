package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	connectionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taskpulse_ws_connections",
		Help: "Number of authenticated WebSocket connections",
	})

	eventsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpulse_ws_events_sent_total",
			Help: "Events queued for delivery, by event name",
		},
		[]string{"event"},
	)

	deliveriesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskpulse_ws_deliveries_dropped_total",
			Help: "Events dropped because a connection's send queue was full",
		},
		[]string{"event"},
	)

	handshakeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskpulse_ws_handshake_failures_total",
		Help: "WebSocket handshakes rejected for failed authentication",
	})
)

func init() {
	prometheus.MustRegister(connectionsGauge, eventsSent, deliveriesDropped, handshakeFailures)
}
