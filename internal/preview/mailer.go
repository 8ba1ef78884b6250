// Package preview delivers compiled signatures as test emails so
// reviewers can check rendering in a real mail client before rollout.
package preview

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/sigilhq/sigil/internal/dkim"
)

// Config contains SMTP submission settings for preview delivery.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`

	// DKIM signing for the preview sender domain
	DKIM DKIMConfig `yaml:"dkim"`
}

// DKIMConfig contains DKIM settings for preview messages.
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

// Mailer submits preview emails through an authenticated relay.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	signer   *dkim.Signer
	timeout  time.Duration
	logger   *slog.Logger
}

// NewMailer creates a preview mailer. A DKIM signer is loaded when the
// config enables signing.
func NewMailer(cfg Config, logger *slog.Logger) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("preview mailer requires a host")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("preview mailer requires a from address")
	}

	port := cfg.Port
	if port == 0 {
		port = 587
	}

	m := &Mailer{
		host:     cfg.Host,
		port:     port,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		timeout:  30 * time.Second,
		logger:   logger,
	}

	if cfg.DKIM.Enabled {
		signer, err := dkim.NewSignerFromFile(cfg.DKIM.KeyFile, cfg.DKIM.Domain, cfg.DKIM.Selector)
		if err != nil {
			return nil, fmt.Errorf("failed to create DKIM signer: %w", err)
		}
		m.signer = signer
	}

	return m, nil
}

// Send submits one preview email carrying the compiled signature HTML.
func (m *Mailer) Send(ctx context.Context, to, subject, html string) error {
	data := m.buildMessage(to, subject, html)

	if m.signer != nil {
		signed, err := m.signer.Sign(data)
		if err != nil {
			m.logger.Warn("DKIM signing failed, sending unsigned",
				"domain", m.signer.Domain(),
				"error", err,
			)
		} else {
			data = signed
		}
	}

	addr := net.JoinHostPort(m.host, fmt.Sprintf("%d", m.port))

	dialer := &net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(m.timeout))
	}

	client := smtp.NewClient(conn)
	defer client.Close()

	if err := client.Hello("sigil"); err != nil {
		return fmt.Errorf("HELO failed: %w", err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{
			ServerName: m.host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if m.username != "" {
		auth := sasl.NewPlainClient("", m.username, m.password)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := client.Mail(m.from, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(to, nil); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := bytes.NewReader(data).WriteTo(wc); err != nil {
		wc.Close()
		return fmt.Errorf("failed to write message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("DATA close failed: %w", err)
	}

	client.Quit()

	m.logger.Info("preview sent", "to", to, "subject", subject)
	return nil
}

// buildMessage assembles the RFC 5322 message carrying the signature
// as an HTML body.
func (m *Mailer) buildMessage(to, subject, html string) []byte {
	var buf bytes.Buffer

	domain := m.from
	if idx := strings.LastIndex(m.from, "@"); idx >= 0 {
		domain = m.from[idx+1:]
	}

	fmt.Fprintf(&buf, "From: %s\r\n", m.from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", uuid.New().String(), domain)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	buf.WriteString("\r\n")

	buf.WriteString("<!DOCTYPE html>\r\n<html><body>\r\n")
	buf.WriteString(html)
	buf.WriteString("\r\n</body></html>\r\n")

	return buf.Bytes()
}
