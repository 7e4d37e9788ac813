package connlimit

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address limits are keyed by. It prefers the first
// X-Forwarded-For hop, since hosted deployments sit behind a proxy.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
