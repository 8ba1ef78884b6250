package metrics

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Allowlist restricts scrape access to known monitoring networks.
// An empty allowlist permits everyone.
type Allowlist struct {
	nets []*net.IPNet
}

// ParseAllowlist parses a mix of single addresses and CIDR ranges.
// Entries that do not parse are logged and skipped rather than
// blocking startup.
func ParseAllowlist(entries []string, logger *slog.Logger) *Allowlist {
	a := &Allowlist{}

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn("invalid CIDR in allowed_ips", "cidr", entry, "error", err)
				continue
			}
			a.nets = append(a.nets, ipNet)
			continue
		}

		ip := net.ParseIP(entry)
		if ip == nil {
			logger.Warn("invalid IP in allowed_ips", "ip", entry)
			continue
		}
		bits := 128
		if ip.To4() != nil {
			bits = 32
		}
		a.nets = append(a.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}

	return a
}

// Empty reports whether no networks are configured.
func (a *Allowlist) Empty() bool {
	return len(a.nets) == 0
}

// Len returns the number of configured networks.
func (a *Allowlist) Len() int {
	return len(a.nets)
}

// Permits reports whether ip belongs to an allowed network.
func (a *Allowlist) Permits(ip net.IP) bool {
	for _, n := range a.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Server exposes the Prometheus registry on its own listener, kept off
// the public API port so the scrape endpoint never needs an API key.
type Server struct {
	httpServer *http.Server
	metrics    *Metrics
	addr       string
	path       string
	allow      *Allowlist
	logger     *slog.Logger
}

// NewServer creates a metrics server open to any scraper.
func NewServer(m *Metrics, addr, path string, logger *slog.Logger) *Server {
	return NewServerWithAllowedIPs(m, addr, path, nil, logger)
}

// NewServerWithAllowedIPs creates a metrics server that only answers
// scrapes from the given addresses or CIDR ranges.
func NewServerWithAllowedIPs(m *Metrics, addr, path string, allowedIPs []string, logger *slog.Logger) *Server {
	if addr == "" {
		addr = ":9090"
	}
	if path == "" {
		path = "/metrics"
	}

	allow := ParseAllowlist(allowedIPs, logger)
	if !allow.Empty() {
		logger.Info("metrics IP filtering enabled", "allowed_networks", allow.Len())
	}

	return &Server{
		metrics: m,
		addr:    addr,
		path:    path,
		allow:   allow,
		logger:  logger,
	}
}

// ListenAndServe starts the metrics listener.
func (s *Server) ListenAndServe() error {
	scrape := promhttp.HandlerFor(
		s.metrics.Registry(),
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)

	mux := http.NewServeMux()
	mux.Handle(s.path, s.guard(scrape))

	// Liveness stays unfiltered so load balancers can probe it.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	s.logger.Info("starting metrics server", "addr", s.addr, "path", s.path)
	return s.httpServer.ListenAndServe()
}

// guard enforces the allowlist in front of the scrape handler.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.allow.Empty() {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if ip == nil || !s.allow.Permits(ip) {
			s.logger.Warn("metrics scrape denied", "remote_addr", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the scraping client's address, trusting proxy
// headers before falling back to the socket peer.
func clientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return net.ParseIP(r.RemoteAddr)
	}
	return net.ParseIP(host)
}

// Shutdown gracefully stops the metrics listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}
