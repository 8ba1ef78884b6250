package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeTestCertificate writes a self-signed certificate and key for
// api.sigil.test into dir and returns their paths.
func writeTestCertificate(t *testing.T, dir string, notAfter time.Time) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "api.sigil.test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"api.sigil.test"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		t.Fatal(err)
	}

	return certFile, keyFile
}

func TestLoadCertificate(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeTestCertificate(t, dir, time.Now().Add(90*24*time.Hour))

	garbage := filepath.Join(dir, "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a certificate"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		certFile string
		keyFile  string
		wantErr  bool
	}{
		{"valid pair", certFile, keyFile, false},
		{"missing files", filepath.Join(dir, "absent.pem"), keyFile, true},
		{"garbage certificate", garbage, keyFile, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadCertificate(tt.certFile, tt.keyFile)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadCertificate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if len(cfg.Certificates) != 1 {
				t.Errorf("Certificates count = %d, want 1", len(cfg.Certificates))
			}
			if cfg.MinVersion < 0x0303 {
				t.Errorf("MinVersion = %x, want TLS 1.2 or later", cfg.MinVersion)
			}
		})
	}
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	certFile, _ := writeTestCertificate(t, dir, time.Now().Add(60*24*time.Hour))

	status, err := Inspect(certFile)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}

	if status.Host != "api.sigil.test" {
		t.Errorf("Host = %q, want %q", status.Host, "api.sigil.test")
	}
	if status.DaysLeft < 58 || status.DaysLeft > 60 {
		t.Errorf("DaysLeft = %d, want about 60", status.DaysLeft)
	}
	if status.Expiring() {
		t.Error("certificate with 60 days left reported as expiring")
	}
	if len(status.DNSNames) != 1 || status.DNSNames[0] != "api.sigil.test" {
		t.Errorf("DNSNames = %v, want [api.sigil.test]", status.DNSNames)
	}

	if _, err := Inspect(filepath.Join(dir, "absent.pem")); err == nil {
		t.Error("Inspect() on a missing file should fail")
	}
}

func TestInspectExpiring(t *testing.T) {
	dir := t.TempDir()
	certFile, _ := writeTestCertificate(t, dir, time.Now().Add(5*24*time.Hour))

	status, err := Inspect(certFile)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if !status.Expiring() {
		t.Errorf("certificate with %d days left should report expiring", status.DaysLeft)
	}
}

func TestACMEManager(t *testing.T) {
	m := NewACMEManager("ops@sigil.test", "api.sigil.test", t.TempDir())

	if m.Host() != "api.sigil.test" {
		t.Errorf("Host() = %q, want %q", m.Host(), "api.sigil.test")
	}

	cfg := m.TLSConfig()
	if cfg.GetCertificate == nil {
		t.Error("TLSConfig() should carry a GetCertificate callback")
	}
	if cfg.MinVersion < 0x0303 {
		t.Errorf("MinVersion = %x, want TLS 1.2 or later", cfg.MinVersion)
	}

	// Nothing cached yet: no status, no error.
	status, err := m.CachedStatus(context.Background())
	if err != nil {
		t.Fatalf("CachedStatus() error = %v", err)
	}
	if status != nil {
		t.Errorf("CachedStatus() = %+v, want nil for empty cache", status)
	}
}
