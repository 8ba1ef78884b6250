package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

const defaultMicrosoftBaseURL = "https://graph.microsoft.com"

// MicrosoftConfig contains Microsoft 365 deployment settings.
type MicrosoftConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	BaseURL      string `yaml:"base_url"` // override for tests
}

// MicrosoftDeployer writes signatures into Microsoft 365 mailbox
// settings through the Graph API.
type MicrosoftDeployer struct {
	baseURL    string
	httpClient *http.Client
}

// NewMicrosoftDeployer creates a Microsoft 365 deployer.
func NewMicrosoftDeployer(cfg MicrosoftConfig) *MicrosoftDeployer {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultMicrosoftBaseURL
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}

	httpClient := cc.Client(context.Background())
	httpClient.Timeout = 30 * time.Second

	return &MicrosoftDeployer{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// mailboxSignature is the settings payload the deployer writes.
type mailboxSignature struct {
	SignatureHTML string `json:"signatureHtml"`
}

// Deploy patches the recipient's mailbox settings with the compiled
// signature.
func (m *MicrosoftDeployer) Deploy(ctx context.Context, d *Deployment) error {
	path := fmt.Sprintf("/v1.0/users/%s/mailboxSettings/signature", url.PathEscape(d.UserEmail))

	body, err := json.Marshal(mailboxSignature{SignatureHTML: d.HTML})
	if err != nil {
		return &DeployError{Temporary: false, Message: fmt.Sprintf("marshal mailbox settings: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, m.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &DeployError{Temporary: false, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return &DeployError{Temporary: true, Message: fmt.Sprintf("graph request: %v", err)}
	}
	defer resp.Body.Close()

	return checkProviderResponse("graph", resp)
}
