// Package httputil holds request helpers shared by the API and the stream
// handler.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address used for rate limiting and logging.
//
// With trustProxy set, the leftmost X-Forwarded-For entry and then X-Real-IP
// are used when they parse as IP addresses; unparsable header values are
// ignored so a client cannot pick an arbitrary limiter key. Otherwise the
// host part of RemoteAddr is returned.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		xff := r.Header.Get("X-Forwarded-For")
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		if ip := parseIP(xff); ip != "" {
			return ip
		}
		if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseIP returns the canonical form of s, or "" when s is not an address.
func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
