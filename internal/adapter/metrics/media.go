package metrics

import "github.com/prometheus/client_golang/prometheus"

// MediaMetrics holds Prometheus metrics for the video feed and the external media relay.
type MediaMetrics struct {
	VideoFeedClients  prometheus.Gauge
	VideoFeedFrames   prometheus.Counter
	StreamKeysIssued  prometheus.Counter
	RelayLaunches     *prometheus.CounterVec
	RelayProbeFailure prometheus.Counter
	RelayBreakerState prometheus.Gauge
}

// NewMediaMetrics creates and registers media metrics on the given registry.
func NewMediaMetrics(reg prometheus.Registerer) *MediaMetrics {
	m := &MediaMetrics{
		VideoFeedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "video_feed",
			Name:      "clients",
			Help:      "Number of clients currently reading the placeholder video feed.",
		}),
		VideoFeedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "video_feed",
			Name:      "frames_total",
			Help:      "Total number of video feed frames written.",
		}),
		StreamKeysIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media_relay",
			Name:      "stream_keys_issued_total",
			Help:      "Total number of RTMP stream keys issued.",
		}),
		RelayLaunches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media_relay",
			Name:      "launches_total",
			Help:      "Total number of external media relay launch attempts, by result.",
		}, []string{"result"}),
		RelayProbeFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media_relay",
			Name:      "probe_failures_total",
			Help:      "Total number of failed RTMP relay readiness probes.",
		}),
		RelayBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "media_relay",
			Name:      "breaker_state",
			Help:      "RTMP relay probe circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
	}

	reg.MustRegister(m.VideoFeedClients, m.VideoFeedFrames, m.StreamKeysIssued, m.RelayLaunches, m.RelayProbeFailure, m.RelayBreakerState)
	return m
}
