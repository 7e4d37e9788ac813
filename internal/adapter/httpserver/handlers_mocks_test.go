package httpserver

import (
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livechat/internal/domain"
	"github.com/pscheid92/livechat/internal/platform/config"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockRelay struct {
	state   domain.StreamState
	viewers int
}

func (m *mockRelay) StreamInfo() domain.StreamState { return m.state }
func (m *mockRelay) ViewerCount() int               { return m.viewers }

type mockKeys struct {
	gotHost      string
	gotConnected int
}

func (m *mockKeys) Issue(requestHost string, connected int) domain.StreamURLs {
	m.gotHost = requestHost
	m.gotConnected = connected
	return domain.StreamURLs{
		RTMPURL:   "rtmp://example.com/live",
		StreamKey: "stream-1-100",
	}
}

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:            "development",
		Port:              "5000",
		ChatMaxLength:     500,
		VideoFeedInterval: time.Second,
		HLSPort:           8000,
		ICEServers:        "stun:stun.l.google.com:19302",
	}
}

func newTestServer(t *testing.T, opts ...func(*config.Config, *Dependencies)) *Server {
	t.Helper()

	cfg := testConfig()
	deps := Dependencies{
		Relay: &mockRelay{},
		Keys:  &mockKeys{},
		Clock: clockwork.NewFakeClock(),
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	srv, err := NewServer(cfg, deps)
	require.NoError(t, err)
	return srv
}

func withRelay(r relayService) func(*config.Config, *Dependencies) {
	return func(_ *config.Config, d *Dependencies) { d.Relay = r }
}

func withKeys(k keyIssuer) func(*config.Config, *Dependencies) {
	return func(_ *config.Config, d *Dependencies) { d.Keys = k }
}

func withClock(c clockwork.Clock) func(*config.Config, *Dependencies) {
	return func(_ *config.Config, d *Dependencies) { d.Clock = c }
}

func withHealthChecks(checks ...HealthCheck) func(*config.Config, *Dependencies) {
	return func(_ *config.Config, d *Dependencies) { d.Health = checks }
}

func withHandlers(socket, realtime, metrics http.Handler) func(*config.Config, *Dependencies) {
	return func(_ *config.Config, d *Dependencies) {
		d.Socket = socket
		d.Realtime = realtime
		d.Metrics = metrics
	}
}

func withConfig(fn func(*config.Config)) func(*config.Config, *Dependencies) {
	return func(c *config.Config, _ *Dependencies) { fn(c) }
}
