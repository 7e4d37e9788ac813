package mediarelay

import (
	"fmt"
	"net"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livechat/internal/adapter/metrics"
	"github.com/pscheid92/livechat/internal/domain"
)

const softwareInstructions = "Any RTMP-compatible software can use these settings"

// KeyIssuer builds RTMP ingest settings for the host a request arrived on.
type KeyIssuer struct {
	hlsPort int
	clock   clockwork.Clock
	metrics *metrics.MediaMetrics
}

// NewKeyIssuer creates a key issuer. m may be nil.
func NewKeyIssuer(hlsPort int, clock clockwork.Clock, m *metrics.MediaMetrics) *KeyIssuer {
	return &KeyIssuer{hlsPort: hlsPort, clock: clock, metrics: m}
}

// Issue returns ingest and playback URLs for a fresh stream key. Keys embed the
// number of connected sessions and the current unix time, so they are not
// secret and may repeat within a second.
func (k *KeyIssuer) Issue(requestHost string, connected int) domain.StreamURLs {
	host := hostname(requestHost)
	rtmpURL := "rtmp://" + host + "/live"
	key := fmt.Sprintf("stream-%d-%d", connected, k.clock.Now().Unix())

	if k.metrics != nil {
		k.metrics.StreamKeysIssued.Inc()
	}

	return domain.StreamURLs{
		RTMPURL:     rtmpURL,
		StreamKey:   key,
		HLSPlayback: fmt.Sprintf("http://%s:%d/live/%s/index.m3u8", host, k.hlsPort, key),
		Instructions: domain.Instructions{
			OBS:      "In OBS: Settings → Stream → Service: Custom → Server: " + rtmpURL + " → Stream Key: " + key,
			Software: softwareInstructions,
		},
	}
}

// hostname strips the port from a Host header value, keeping IPv6 literals bracketed.
func hostname(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	if hostport == "" {
		return "localhost"
	}
	return hostport
}
