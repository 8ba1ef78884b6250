// Package tls provides the API listener's certificate sources: manual
// PEM files or ACME-issued certificates for the configured hostname.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"
)

// CertStatus describes one certificate's validity window.
type CertStatus struct {
	Host      string
	Issuer    string
	NotBefore time.Time
	NotAfter  time.Time
	DaysLeft  int
	DNSNames  []string
}

// Expiring reports whether the certificate is within the renewal
// window operators should act on.
func (s *CertStatus) Expiring() bool {
	return s.DaysLeft < 14
}

func statusFromLeaf(host string, leaf *x509.Certificate) *CertStatus {
	if host == "" {
		host = leaf.Subject.CommonName
	}
	return &CertStatus{
		Host:      host,
		Issuer:    leaf.Issuer.CommonName,
		NotBefore: leaf.NotBefore,
		NotAfter:  leaf.NotAfter,
		DaysLeft:  int(time.Until(leaf.NotAfter).Hours() / 24),
		DNSNames:  leaf.DNSNames,
	}
}

// LoadCertificate builds a listener configuration from PEM files.
func LoadCertificate(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Inspect reads a PEM certificate file and reports its validity
// window. Config validation uses it to flag expiring certificates
// before the server is restarted with them.
func Inspect(certFile string) (*CertStatus, error) {
	data, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", certFile)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return statusFromLeaf("", cert), nil
}
