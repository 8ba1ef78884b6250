package dkim

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	kp, err := GenerateKey("example.com", "sigil", 0)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	if kp.PrivateKey == nil {
		t.Fatal("PrivateKey should not be nil")
	}
	if kp.Domain != "example.com" {
		t.Errorf("Domain = %q, want %q", kp.Domain, "example.com")
	}
	if kp.Selector != "sigil" {
		t.Errorf("Selector = %q, want %q", kp.Selector, "sigil")
	}
	if got := kp.PrivateKey.N.BitLen(); got < MinKeyBits {
		t.Errorf("key size = %d bits, want >= %d", got, MinKeyBits)
	}
}

func TestGenerateKeyRejectsWeakKeys(t *testing.T) {
	if _, err := GenerateKey("example.com", "sigil", 1024); err == nil {
		t.Error("expected error for a 1024-bit key")
	}
}

func TestDNSName(t *testing.T) {
	kp, err := GenerateKey("example.com", "mail", 0)
	if err != nil {
		t.Fatal(err)
	}

	if got, want := kp.DNSName(), "mail._domainkey.example.com"; got != want {
		t.Errorf("DNSName() = %q, want %q", got, want)
	}
}

func TestDNSRecord(t *testing.T) {
	kp, err := GenerateKey("example.com", "sigil", 0)
	if err != nil {
		t.Fatal(err)
	}

	record := kp.DNSRecord()
	if !strings.HasPrefix(record, "v=DKIM1; k=rsa; p=") {
		t.Errorf("DNSRecord() should start with 'v=DKIM1; k=rsa; p=', got %q", record)
	}
	if len(record) < 50 {
		t.Errorf("DNSRecord() too short: %d chars", len(record))
	}
}

func TestSavePrivateKey(t *testing.T) {
	tmpDir := t.TempDir()

	kp, err := GenerateKey("example.com", "sigil", 0)
	if err != nil {
		t.Fatal(err)
	}

	keyPath := filepath.Join(tmpDir, "subdir", "test.key")
	if err := kp.SavePrivateKey(keyPath); err != nil {
		t.Fatalf("SavePrivateKey failed: %v", err)
	}

	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("key file not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("file permissions = %o, want 0600", info.Mode().Perm())
	}

	// The file is PKCS#8.
	data, err := os.ReadFile(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "PRIVATE KEY" {
		t.Fatalf("expected a PRIVATE KEY PEM block, got %v", block)
	}

	loaded, err := LoadPrivateKey(keyPath)
	if err != nil {
		t.Fatalf("LoadPrivateKey failed: %v", err)
	}
	if loaded.N.Cmp(kp.PrivateKey.N) != 0 {
		t.Error("loaded key doesn't match original")
	}
}

func TestLoadPrivateKey(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("non-existent file", func(t *testing.T) {
		_, err := LoadPrivateKey("/nonexistent/key.pem")
		if err == nil {
			t.Error("expected error for non-existent file")
		}
	})

	t.Run("invalid PEM", func(t *testing.T) {
		badFile := filepath.Join(tmpDir, "bad.pem")
		if err := os.WriteFile(badFile, []byte("not a pem"), 0600); err != nil {
			t.Fatal(err)
		}

		if _, err := LoadPrivateKey(badFile); err == nil {
			t.Error("expected error for invalid PEM")
		}
	})

	t.Run("legacy PKCS1 key", func(t *testing.T) {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatal(err)
		}
		keyPath := filepath.Join(tmpDir, "pkcs1.key")
		legacy := pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		})
		if err := os.WriteFile(keyPath, legacy, 0600); err != nil {
			t.Fatal(err)
		}

		loaded, err := LoadPrivateKey(keyPath)
		if err != nil {
			t.Fatalf("LoadPrivateKey failed on PKCS1: %v", err)
		}
		if loaded.N.Cmp(key.N) != 0 {
			t.Error("loaded key doesn't match")
		}
	})
}
