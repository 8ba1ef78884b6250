package metrics

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseAllowlist(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		wantLen int
	}{
		{"nil", nil, 0},
		{"single address", []string{"192.168.1.1"}, 1},
		{"cidr ranges", []string{"192.168.0.0/16", "10.0.0.0/8"}, 2},
		{"mixed", []string{"192.168.1.1", "10.0.0.0/8"}, 2},
		{"invalid entries skipped", []string{"192.168.1.1", "not-an-ip", "999.0.0.0/8"}, 1},
		{"ipv6", []string{"::1", "fe80::/10"}, 2},
		{"blank entries skipped", []string{"", "  ", "10.0.0.1"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ParseAllowlist(tt.entries, discardLogger())
			if a.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", a.Len(), tt.wantLen)
			}
		})
	}
}

func TestAllowlistPermits(t *testing.T) {
	a := ParseAllowlist([]string{
		"192.168.1.100",
		"10.0.0.0/8",
		"::1",
		"fe80::/10",
	}, discardLogger())

	tests := []struct {
		ip   string
		want bool
	}{
		{"192.168.1.100", true},
		{"192.168.1.101", false},
		{"10.255.255.255", true},
		{"11.0.0.1", false},
		{"::1", true},
		{"fe80::1", true},
		{"2001:db8::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("bad test address %s", tt.ip)
			}
			if got := a.Permits(ip); got != tt.want {
				t.Errorf("Permits(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "socket peer",
			remoteAddr: "192.168.1.100:12345",
			want:       "192.168.1.100",
		},
		{
			name:       "forwarded-for chain uses the origin",
			remoteAddr: "127.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "10.0.0.1, 192.168.1.1"},
			want:       "10.0.0.1",
		},
		{
			name:       "real-ip",
			remoteAddr: "127.0.0.1:12345",
			headers:    map[string]string{"X-Real-IP": "172.16.0.1"},
			want:       "172.16.0.1",
		},
		{
			name:       "forwarded-for wins over real-ip",
			remoteAddr: "127.0.0.1:12345",
			headers: map[string]string{
				"X-Forwarded-For": "10.0.0.1",
				"X-Real-IP":       "172.16.0.1",
			},
			want: "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/metrics", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			ip := clientIP(req)
			if ip == nil || ip.String() != tt.want {
				t.Errorf("clientIP() = %v, want %s", ip, tt.want)
			}
		})
	}
}

func TestGuard(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	scrape := func(s *Server, remoteAddr string) int {
		req := httptest.NewRequest("GET", "/metrics", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		s.guard(ok).ServeHTTP(rec, req)
		return rec.Code
	}

	m := New()

	t.Run("open when no allowlist", func(t *testing.T) {
		s := NewServerWithAllowedIPs(m, ":9090", "/metrics", nil, discardLogger())
		if code := scrape(s, "1.2.3.4:12345"); code != http.StatusOK {
			t.Errorf("status = %d, want %d", code, http.StatusOK)
		}
	})

	t.Run("allowed network", func(t *testing.T) {
		s := NewServerWithAllowedIPs(m, ":9090", "/metrics", []string{"192.168.1.0/24"}, discardLogger())
		if code := scrape(s, "192.168.1.100:12345"); code != http.StatusOK {
			t.Errorf("status = %d, want %d", code, http.StatusOK)
		}
	})

	t.Run("denied network", func(t *testing.T) {
		s := NewServerWithAllowedIPs(m, ":9090", "/metrics", []string{"192.168.1.0/24"}, discardLogger())
		if code := scrape(s, "10.0.0.1:12345"); code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", code, http.StatusForbidden)
		}
	})
}
