package preview

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewMailer(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Host: "smtp.example.com",
				From: "previews@example.com",
			},
			wantErr: false,
		},
		{
			name: "missing host",
			cfg: Config{
				From: "previews@example.com",
			},
			wantErr: true,
		},
		{
			name: "missing from",
			cfg: Config{
				Host: "smtp.example.com",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMailer(tt.cfg, testLogger())
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMailer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewMailer_DefaultPort(t *testing.T) {
	m, err := NewMailer(Config{
		Host: "smtp.example.com",
		From: "previews@example.com",
	}, testLogger())
	if err != nil {
		t.Fatalf("NewMailer() error = %v", err)
	}
	if m.port != 587 {
		t.Errorf("port = %d, want 587", m.port)
	}
}

func TestMailer_BuildMessage(t *testing.T) {
	m, err := NewMailer(Config{
		Host: "smtp.example.com",
		From: "previews@example.com",
	}, testLogger())
	if err != nil {
		t.Fatalf("NewMailer() error = %v", err)
	}

	msg := string(m.buildMessage("jane@acme.example", "Signature preview", "<table>sig</table>"))

	headers, body, found := strings.Cut(msg, "\r\n\r\n")
	if !found {
		t.Fatal("message has no header/body separator")
	}

	wantHeaders := []string{
		"From: previews@example.com",
		"To: jane@acme.example",
		"Subject: Signature preview",
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=utf-8",
	}
	for _, want := range wantHeaders {
		if !strings.Contains(headers, want) {
			t.Errorf("headers missing %q:\n%s", want, headers)
		}
	}

	if !strings.Contains(headers, "Message-ID: <") || !strings.Contains(headers, "@example.com>") {
		t.Errorf("headers missing message id for sender domain:\n%s", headers)
	}

	if !strings.Contains(body, "<table>sig</table>") {
		t.Errorf("body missing signature HTML:\n%s", body)
	}
	if !strings.Contains(body, "<!DOCTYPE html>") {
		t.Errorf("body should be a full HTML document:\n%s", body)
	}
}
