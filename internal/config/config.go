package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sigilhq/sigil/internal/deploy"
	"github.com/sigilhq/sigil/internal/preview"
	"github.com/sigilhq/sigil/internal/ratelimit"
)

// Config is the main configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	API        APIConfig        `yaml:"api"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Deploy     DeployConfig     `yaml:"deploy"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Preview    preview.Config   `yaml:"preview"`
	Disclaimer DisclaimerConfig `yaml:"disclaimer"`
}

// ServerConfig contains server-wide settings
type ServerConfig struct {
	Hostname string `yaml:"hostname"` // FQDN of the server
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // HTTP write timeout (default: 30s)
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
	TLS            TLSConfig     `yaml:"tls"`
}

// TLSConfig contains TLS certificate settings
type TLSConfig struct {
	CertFile string     `yaml:"cert_file"`
	KeyFile  string     `yaml:"key_file"`
	ACME     ACMEConfig `yaml:"acme"`
}

// ACMEConfig contains Let's Encrypt ACME settings. The API serves one
// hostname, so ACME issues for exactly that host.
type ACMEConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Email    string `yaml:"email"`
	Host     string `yaml:"host"`
	CacheDir string `yaml:"cache_dir"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	ListenAddr    string        `yaml:"listen_addr"`    // Default: :9090
	Path          string        `yaml:"path"`           // Default: /metrics
	FlushInterval time.Duration `yaml:"flush_interval"` // Default: 10s
	AllowedIPs    []string      `yaml:"allowed_ips"`    // IP addresses/CIDRs allowed to access metrics
}

// DeployConfig contains deployment processor and provider settings
type DeployConfig struct {
	Workers         int           `yaml:"workers"`
	RetryInterval   time.Duration `yaml:"retry_interval"`
	MaxRetries      int           `yaml:"max_retries"`
	ProcessInterval time.Duration `yaml:"process_interval"`
	DryRun          bool          `yaml:"dry_run"`

	// Provider credentials. A nil provider is not configured.
	Google    *deploy.GoogleConfig    `yaml:"google,omitempty"`
	Microsoft *deploy.MicrosoftConfig `yaml:"microsoft,omitempty"`
}

// RateLimitConfig contains deployment rate limiting settings
type RateLimitConfig struct {
	Enabled          bool `yaml:"enabled"`
	ratelimit.Config `yaml:",inline"`
}

// DisclaimerConfig contains disclaimer service client settings
type DisclaimerConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"` // Default: 30s
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides secrets with environment variables so they can be
// kept out of the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("SIGIL_API_KEY"); v != "" {
		c.API.APIKey = v
	}
	if v := os.Getenv("SIGIL_DISCLAIMER_API_KEY"); v != "" {
		c.Disclaimer.APIKey = v
	}
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.Hostname == "" {
		hostname, _ := os.Hostname()
		c.Server.Hostname = hostname
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}
	if c.API.TLS.ACME.CacheDir == "" {
		c.API.TLS.ACME.CacheDir = "/var/lib/sigil/certs"
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/sigil/sigil.db"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	// Metrics defaults
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.FlushInterval == 0 {
		c.Metrics.FlushInterval = 10 * time.Second
	}

	// Deploy processor defaults
	if c.Deploy.Workers == 0 {
		c.Deploy.Workers = 4
	}
	if c.Deploy.RetryInterval == 0 {
		c.Deploy.RetryInterval = 5 * time.Minute
	}
	if c.Deploy.MaxRetries == 0 {
		c.Deploy.MaxRetries = 5
	}
	if c.Deploy.ProcessInterval == 0 {
		c.Deploy.ProcessInterval = 10 * time.Second
	}

	if c.Disclaimer.Timeout == 0 {
		c.Disclaimer.Timeout = 30 * time.Second
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	if err := c.validateTLS(); err != nil {
		return err
	}

	if err := c.validateProviders(); err != nil {
		return err
	}

	if err := c.validatePreview(); err != nil {
		return err
	}

	if c.Disclaimer.Enabled && c.Disclaimer.BaseURL == "" {
		return fmt.Errorf("disclaimer.base_url is required when the disclaimer service is enabled")
	}

	return nil
}

// validateTLS validates TLS configuration
func (c *Config) validateTLS() error {
	tls := c.API.TLS
	hasCerts := tls.CertFile != "" && tls.KeyFile != ""
	hasACME := tls.ACME.Enabled

	if hasCerts && hasACME {
		return fmt.Errorf("cannot use both manual certificates and ACME")
	}

	if (tls.CertFile == "") != (tls.KeyFile == "") {
		return fmt.Errorf("api.tls requires both cert_file and key_file")
	}

	if hasACME {
		if tls.ACME.Email == "" {
			return fmt.Errorf("api.tls.acme.email is required when ACME is enabled")
		}
		if tls.ACME.Host == "" {
			return fmt.Errorf("api.tls.acme.host is required when ACME is enabled")
		}
	}

	return nil
}

// validateProviders validates deployment provider credentials
func (c *Config) validateProviders() error {
	if g := c.Deploy.Google; g != nil {
		if g.ClientID == "" || g.ClientSecret == "" {
			return fmt.Errorf("deploy.google requires client_id and client_secret")
		}
		if g.TokenURL == "" {
			return fmt.Errorf("deploy.google.token_url is required")
		}
	}

	if m := c.Deploy.Microsoft; m != nil {
		if m.TenantID == "" {
			return fmt.Errorf("deploy.microsoft.tenant_id is required")
		}
		if m.ClientID == "" || m.ClientSecret == "" {
			return fmt.Errorf("deploy.microsoft requires client_id and client_secret")
		}
	}

	return nil
}

// validatePreview validates preview mailer configuration
func (c *Config) validatePreview() error {
	if !c.Preview.Enabled {
		return nil
	}

	if c.Preview.Host == "" {
		return fmt.Errorf("preview.host is required when preview is enabled")
	}
	if c.Preview.From == "" {
		return fmt.Errorf("preview.from is required when preview is enabled")
	}

	if c.Preview.DKIM.Enabled {
		if c.Preview.DKIM.Selector == "" {
			return fmt.Errorf("preview.dkim.selector is required when DKIM is enabled")
		}
		if c.Preview.DKIM.KeyFile == "" {
			return fmt.Errorf("preview.dkim.key_file is required when DKIM is enabled")
		}
		if c.Preview.DKIM.Domain == "" {
			return fmt.Errorf("preview.dkim.domain is required when DKIM is enabled")
		}
	}

	return nil
}

// HasTLS returns true if TLS is configured for the API listener
func (c *Config) HasTLS() bool {
	return (c.API.TLS.CertFile != "" && c.API.TLS.KeyFile != "") || c.API.TLS.ACME.Enabled
}
