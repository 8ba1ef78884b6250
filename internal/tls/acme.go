package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"

	"golang.org/x/crypto/acme/autocert"
)

// ACMEManager obtains and renews the API listener's certificate from
// Let's Encrypt. Sigil serves a single hostname, so there is no SNI
// fan-out: one host, one cached certificate.
type ACMEManager struct {
	host    string
	manager *autocert.Manager
}

// NewACMEManager creates a manager for the given hostname. Issued
// certificates are cached under cacheDir so restarts do not re-issue.
func NewACMEManager(email, host, cacheDir string) *ACMEManager {
	return &ACMEManager{
		host: host,
		manager: &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Email:      email,
			HostPolicy: autocert.HostWhitelist(host),
			Cache:      autocert.DirCache(cacheDir),
		},
	}
}

// Host returns the hostname the manager issues for.
func (a *ACMEManager) Host() string {
	return a.host
}

// TLSConfig returns the listener configuration backed by the manager.
func (a *ACMEManager) TLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: a.manager.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// HTTPHandler wraps fallback with the HTTP-01 challenge handler.
func (a *ACMEManager) HTTPHandler(fallback http.Handler) http.Handler {
	return a.manager.HTTPHandler(fallback)
}

// Warm fetches the certificate at startup so the first client request
// does not pay the issuance round-trip. The challenge server must
// already be listening. Renewal near expiry is handled by autocert on
// the same call.
func (a *ACMEManager) Warm(ctx context.Context) (*CertStatus, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	cert, err := a.manager.GetCertificate(&tls.ClientHelloInfo{ServerName: a.host})
	if err != nil {
		return nil, fmt.Errorf("failed to obtain certificate for %s: %w", a.host, err)
	}

	leaf := cert.Leaf
	if leaf == nil && len(cert.Certificate) > 0 {
		leaf, err = x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate for %s: %w", a.host, err)
		}
	}
	if leaf == nil {
		return nil, fmt.Errorf("no certificate returned for %s", a.host)
	}

	return statusFromLeaf(a.host, leaf), nil
}

// CachedStatus inspects the cached certificate without contacting the
// CA. Returns nil, nil when nothing is cached yet.
func (a *ACMEManager) CachedStatus(ctx context.Context) (*CertStatus, error) {
	data, err := a.manager.Cache.Get(ctx, a.host)
	if err != nil {
		return nil, nil
	}

	cert, err := tls.X509KeyPair(data, data)
	if err != nil || len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("cached certificate for %s is unreadable", a.host)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("cached certificate for %s is unreadable: %w", a.host, err)
	}

	return statusFromLeaf(a.host, leaf), nil
}
