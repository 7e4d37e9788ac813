package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, "secret!", cfg.SecretKey)
	assert.Equal(t, time.Second, cfg.VideoFeedInterval)
	assert.Equal(t, 8000, cfg.HLSPort)
	assert.False(t, cfg.Hosted())
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"node", "rtmp_server.js"}, cfg.RTMPArgs())
}

func TestLoad_CustomPortAndHosted(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("WEBSITE_SITE_NAME", "livechat-prod")
	t.Setenv("SECRET_KEY", "s3cr3t")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "s3cr3t", cfg.SecretKey)
	assert.True(t, cfg.Hosted())
}

func TestLoad_ICEServers(t *testing.T) {
	t.Setenv("ICE_SERVERS", "stun:a.example.com:3478, turn:b.example.com ,,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"stun:a.example.com:3478", "turn:b.example.com"}, cfg.ICEServerURLs())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"zero connections", "MAX_WEBSOCKET_CONNECTIONS", "0", "MAX_WEBSOCKET_CONNECTIONS and MAX_CONNECTIONS_PER_IP must be positive"},
		{"zero per ip", "MAX_CONNECTIONS_PER_IP", "0", "MAX_WEBSOCKET_CONNECTIONS and MAX_CONNECTIONS_PER_IP must be positive"},
		{"zero connection rate", "CONNECTIONS_PER_SECOND", "0", "CONNECTIONS_PER_SECOND and CONNECTION_BURST must be positive"},
		{"zero burst", "CHAT_BURST", "0", "CHAT_RATE_PER_SECOND and CHAT_BURST must be positive"},
		{"zero max length", "CHAT_MAX_LENGTH", "-1", "CHAT_MAX_LENGTH must be positive"},
		{"hls port", "HLS_PORT", "70000", "HLS_PORT out of range: 70000"},
		{"ice scheme", "ICE_SERVERS", "http://example.com", `ICE_SERVERS entry "http://example.com" has unsupported scheme "http"`},
		{"ice no scheme", "ICE_SERVERS", "example.com", `ICE_SERVERS entry "example.com" has no scheme`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}
