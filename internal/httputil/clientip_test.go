package httputil

import (
	"net/http"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{name: "ipv4 with port", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "ipv6 with port", remoteAddr: "[::1]:12345", want: "::1"},
		{name: "bare address", remoteAddr: "192.168.1.1", want: "192.168.1.1"},
		{name: "mapped ipv4", remoteAddr: "[::ffff:10.0.0.7]:80", want: "10.0.0.7"},
		{name: "unparseable remote passes through", remoteAddr: "pipe", want: "pipe"},
		{
			name:       "headers ignored when untrusted",
			remoteAddr: "10.0.0.1:1234",
			xff:        "1.2.3.4",
			xri:        "5.6.7.8",
			want:       "10.0.0.1",
		},
		{
			name:       "forwarded for, first entry",
			trustProxy: true,
			remoteAddr: "10.0.0.3:1234",
			xff:        "1.2.3.4, 10.0.0.1, 10.0.0.2",
			want:       "1.2.3.4",
		},
		{
			name:       "forwarded for skips garbage",
			trustProxy: true,
			remoteAddr: "10.0.0.3:1234",
			xff:        "unknown, 2001:db8::1",
			want:       "2001:db8::1",
		},
		{
			name:       "real ip fallback",
			trustProxy: true,
			remoteAddr: "10.0.0.1:1234",
			xri:        " 5.6.7.8 ",
			want:       "5.6.7.8",
		},
		{
			name:       "forwarded for beats real ip",
			trustProxy: true,
			remoteAddr: "10.0.0.1:1234",
			xff:        "1.2.3.4",
			xri:        "5.6.7.8",
			want:       "1.2.3.4",
		},
		{
			name:       "invalid headers fall back to remote",
			trustProxy: true,
			remoteAddr: "10.0.0.1:1234",
			xff:        "not-an-ip",
			xri:        "also-not",
			want:       "10.0.0.1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr, Header: http.Header{}}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := ClientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
