package websocket

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/pscheid92/livechat/internal/adapter/metrics"
)

const reasonOrigin = "origin"

// NewCheckOrigin returns the origin policy shared by both websocket transports.
// Browsers must come from the configured app URL or from the host they
// requested; non-browser clients send no Origin and pass. Development builds
// also accept loopback origins. wsMetrics may be nil.
func NewCheckOrigin(appURL string, isDevelopment bool, wsMetrics *metrics.WebSocketMetrics) func(r *http.Request) bool {
	appOrigin := extractOrigin(appURL)

	return func(r *http.Request) bool {
		raw := r.Header.Get("Origin")
		if raw == "" {
			return true
		}

		origin, err := url.Parse(raw)
		if err == nil && origin.Host != "" {
			switch {
			case origin.Scheme+"://"+origin.Host == appOrigin:
				return true
			case origin.Host == r.Host:
				return true
			case isDevelopment && isLoopback(origin.Hostname()):
				return true
			}
		}

		slog.WarnContext(r.Context(), "WebSocket origin rejected", "origin", raw, "remote_addr", r.RemoteAddr)
		if wsMetrics != nil {
			wsMetrics.ConnectionsRejected.WithLabelValues(reasonOrigin).Inc()
		}
		return false
	}
}

func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
