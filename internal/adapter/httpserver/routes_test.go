package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/livechat/internal/adapter/metrics"
	"github.com/pscheid92/livechat/internal/adapter/websocket"
	"github.com/pscheid92/livechat/internal/platform/config"
	"github.com/stretchr/testify/assert"
)

func TestRoutes_NotFoundIsStructured(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"not_found"`)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestRoutes_SecurityAndCORSHeaders(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/stream/info", nil)
	req.Header.Set(echo.HeaderOrigin, "https://elsewhere.example")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get(echo.HeaderXContentTypeOptions))
	assert.Equal(t, "DENY", rec.Header().Get(echo.HeaderXFrameOptions))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentSecurityPolicy), "https://cdn.jsdelivr.net")
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestRoutes_RealtimeHandlers(t *testing.T) {
	var socketHits int
	socket := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socketHits++
		w.WriteHeader(http.StatusSwitchingProtocols)
	})

	var seenIP string
	realtime := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenIP = websocket.ClientIPFromContext(r.Context())
		w.WriteHeader(http.StatusSwitchingProtocols)
	})

	srv := newTestServer(t, withHandlers(socket, realtime, nil))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	srv.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, 1, socketHits)

	req = httptest.NewRequest(http.MethodGet, "/connection/websocket", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	srv.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.5", seenIP)
}

func TestRoutes_RealtimeHandlersOptional(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutes_MetricsEndpoint(t *testing.T) {
	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)

	srv := newTestServer(t, withHandlers(nil, nil, metrics.Handler(reg)), func(_ *config.Config, d *Dependencies) {
		d.HTTP = httpMetrics
	})

	req := httptest.NewRequest(http.MethodGet, "/stream/info", nil)
	srv.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "livechat_http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/stream/info"`)
}
