package server

import (
	"net/http/httptest"
	"testing"
)

func TestTrustedProxiesGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trusted    []string
		remoteAddr string
		xff        string
		xRealIP    string
		want       string
	}{
		{
			name:       "no proxies configured ignores headers",
			trusted:    nil,
			remoteAddr: "203.0.113.7:51234",
			xff:        "198.51.100.1",
			want:       "203.0.113.7",
		},
		{
			name:       "untrusted peer ignores forwarded header",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "203.0.113.7:51234",
			xff:        "198.51.100.1",
			want:       "203.0.113.7",
		},
		{
			name:       "trusted peer honors forwarded header",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:51234",
			xff:        "198.51.100.1",
			want:       "198.51.100.1",
		},
		{
			name:       "first entry of forwarded chain wins",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:51234",
			xff:        "198.51.100.1, 10.1.2.3",
			want:       "198.51.100.1",
		},
		{
			name:       "x-real-ip fallback",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:51234",
			xRealIP:    "198.51.100.2",
			want:       "198.51.100.2",
		},
		{
			name:       "bare ip accepted as trusted range",
			trusted:    []string{"10.1.2.3"},
			remoteAddr: "10.1.2.3:51234",
			xff:        "198.51.100.1",
			want:       "198.51.100.1",
		},
		{
			name:       "garbage forwarded header falls back to peer",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:51234",
			xff:        "not-an-ip",
			want:       "10.1.2.3",
		},
		{
			name:       "ipv6 peer",
			trusted:    []string{"fd00::/8"},
			remoteAddr: "[fd00::1]:51234",
			xff:        "198.51.100.1",
			want:       "198.51.100.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp := NewTrustedProxies(tt.trusted)
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if got := tp.GetClientIPString(req); got != tt.want {
				t.Fatalf("GetClientIPString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewTrustedProxiesSkipsInvalidEntries(t *testing.T) {
	tp := NewTrustedProxies([]string{"10.0.0.0/8", "bogus", ""})
	if len(tp.networks) != 1 {
		t.Fatalf("networks = %d, want 1", len(tp.networks))
	}
}
