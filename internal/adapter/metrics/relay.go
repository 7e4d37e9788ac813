package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics holds Prometheus metrics for event relaying and stream state.
type RelayMetrics struct {
	ConnectedSessions  prometheus.Gauge
	EventsHandled      *prometheus.CounterVec
	ChatMessages       prometheus.Counter
	ChatRateLimited    prometheus.Counter
	BroadcastsStarted  prometheus.Counter
	BroadcastsRejected prometheus.Counter
	StreamActive       prometheus.Gauge
	SignalingMessages  *prometheus.CounterVec
}

// NewRelayMetrics creates and registers relay metrics on the given registry.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		ConnectedSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "connected_sessions",
			Help:      "Number of currently connected sessions.",
		}),
		EventsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_total",
			Help:      "Total number of inbound events, by event and result.",
		}, []string{"event", "result"}),
		ChatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "chat_messages_total",
			Help:      "Total number of chat messages relayed.",
		}),
		ChatRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "chat_rate_limited_total",
			Help:      "Total number of chat messages dropped by the per-session rate limit.",
		}),
		BroadcastsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "broadcasts_started_total",
			Help:      "Total number of broadcasts started.",
		}),
		BroadcastsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "broadcasts_rejected_total",
			Help:      "Total number of broadcast starts rejected because a stream was active.",
		}),
		StreamActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "stream_active",
			Help:      "1 while a broadcaster is live, 0 otherwise.",
		}),
		SignalingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "signaling_messages_total",
			Help:      "Total number of WebRTC signaling messages forwarded, by type.",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.ConnectedSessions,
		m.EventsHandled,
		m.ChatMessages,
		m.ChatRateLimited,
		m.BroadcastsStarted,
		m.BroadcastsRejected,
		m.StreamActive,
		m.SignalingMessages,
	)
	return m
}
