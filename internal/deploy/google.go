package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

const defaultGoogleBaseURL = "https://gmail.googleapis.com"

// GoogleConfig contains Google Workspace deployment settings.
type GoogleConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	TokenURL     string   `yaml:"token_url"`
	Scopes       []string `yaml:"scopes"`
	BaseURL      string   `yaml:"base_url"` // override for tests / private endpoints
}

// GoogleDeployer writes signatures into Gmail sendAs settings.
type GoogleDeployer struct {
	baseURL    string
	httpClient *http.Client
}

// NewGoogleDeployer creates a Google Workspace deployer. The HTTP
// client is managed by the oauth2 client-credentials flow and refreshes
// tokens transparently.
func NewGoogleDeployer(cfg GoogleConfig) *GoogleDeployer {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGoogleBaseURL
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}

	httpClient := cc.Client(context.Background())
	httpClient.Timeout = 30 * time.Second

	return &GoogleDeployer{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// gmailSendAs is the subset of the sendAs resource the deployer writes.
type gmailSendAs struct {
	Signature string `json:"signature"`
}

// Deploy patches the recipient's primary sendAs alias with the
// compiled signature.
func (g *GoogleDeployer) Deploy(ctx context.Context, d *Deployment) error {
	path := fmt.Sprintf("/gmail/v1/users/%s/settings/sendAs/%s",
		url.PathEscape(d.UserEmail), url.PathEscape(d.UserEmail))

	body, err := json.Marshal(gmailSendAs{Signature: d.HTML})
	if err != nil {
		return &DeployError{Temporary: false, Message: fmt.Sprintf("marshal sendAs: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &DeployError{Temporary: false, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return &DeployError{Temporary: true, Message: fmt.Sprintf("gmail request: %v", err)}
	}
	defer resp.Body.Close()

	return checkProviderResponse("gmail", resp)
}

// checkProviderResponse maps an HTTP status onto the deploy error
// taxonomy: 2xx succeeds, 429 and 5xx are temporary, other 4xx are
// permanent (bad credentials, unknown mailbox).
func checkProviderResponse(provider string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := fmt.Sprintf("%s API error (status %d): %s", provider, resp.StatusCode, string(respBody))

	temporary := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return &DeployError{Temporary: temporary, Message: msg}
}
