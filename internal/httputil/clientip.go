// Package httputil holds small HTTP helpers shared by the API and the
// tracking stream.
package httputil

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the address used to attribute a request for logging and
// concurrency limits.
//
// With trustProxy set, the leftmost parseable X-Forwarded-For entry wins,
// then X-Real-IP. Unparseable header values are ignored. Only enable
// trustProxy behind a reverse proxy that overwrites these headers.
// IPv4-mapped IPv6 addresses are reported in IPv4 form.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, part := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
			if ip, ok := parseIP(part); ok {
				return ip
			}
		}
		if ip, ok := parseIP(r.Header.Get("X-Real-IP")); ok {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip, ok := parseIP(host); ok {
		return ip
	}
	return host
}

func parseIP(s string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return addr.Unmap().WithZone("").String(), true
}
