package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics holds Prometheus metrics for HTTP request tracking.
type HTTPMetrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlightGauge   prometheus.Gauge
}

// NewHTTPMetrics creates and registers HTTP metrics on the given registry.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status_code"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status_code"}),
		InFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of HTTP requests currently being processed.",
		}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.InFlightGauge)
	return m
}

// Middleware records request count, latency and in-flight requests per
// registered route. Streaming and probe endpoints are left out; see skipPath.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if skipPath(route) {
				return next(c)
			}
			if route == "" {
				// Unmatched requests would otherwise create one series per URL.
				route = "unmatched"
			}

			m.InFlightGauge.Inc()
			start := time.Now()
			err := next(c)
			m.InFlightGauge.Dec()

			m.observe(c.Request().Method, route, responseStatus(c, err), time.Since(start))
			return err
		}
	}
}

func (m *HTTPMetrics) observe(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.RequestDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
	m.RequestsTotal.WithLabelValues(method, route, code).Inc()
}

// responseStatus is the status the client will see. Errors returned past this
// middleware are rendered later, so their status comes from the error itself.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return http.StatusInternalServerError
}

// skipPath reports routes whose requests are long-lived streams or probes.
func skipPath(path string) bool {
	switch path {
	case "/metrics", "/ws", "/connection/websocket", "/video_feed":
		return true
	}
	return strings.HasPrefix(path, "/health/")
}
