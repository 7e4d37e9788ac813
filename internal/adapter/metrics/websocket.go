package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds Prometheus metrics for WebSocket connections, labelled by transport.
type WebSocketMetrics struct {
	ActiveConnections   *prometheus.GaugeVec
	MessagesSent        *prometheus.CounterVec
	SlowClientsDropped  *prometheus.CounterVec
	ConnectionsRejected *prometheus.CounterVec
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of active WebSocket connections.",
		}, []string{"transport"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_sent_total",
			Help:      "Total number of WebSocket messages sent to clients.",
		}, []string{"transport"}),
		SlowClientsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "slow_clients_dropped_total",
			Help:      "Total number of clients disconnected because their send buffer was full.",
		}, []string{"transport"}),
		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_rejected_total",
			Help:      "Total number of WebSocket connections rejected, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.ActiveConnections, m.MessagesSent, m.SlowClientsDropped, m.ConnectionsRejected)
	return m
}
