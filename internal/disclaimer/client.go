// Package disclaimer talks to the external disclaimer-resolution
// service. Rule matching and org-hierarchy inheritance live entirely
// on that side; this client only fetches the pre-rendered HTML
// fragment to append after a compiled signature body.
package disclaimer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request identifies the user and organization the disclaimer service
// resolves rules against.
type Request struct {
	UserID               string `json:"userId"`
	UserEmail            string `json:"userEmail"`
	UserDepartment       string `json:"userDepartment,omitempty"`
	UserSource           string `json:"userSource,omitempty"`
	OrganizationID       string `json:"organizationId"`
	OrganizationDomain   string `json:"organizationDomain,omitempty"`
	OrganizationIndustry string `json:"organizationIndustry,omitempty"`
	ParentOrganizationID string `json:"parentOrganizationId,omitempty"`
}

// Response carries the resolved fragment. CombinedHTML is trusted
// output: it already satisfies the table/inline-style contract and is
// appended verbatim, or empty when no disclaimer applies.
type Response struct {
	CombinedHTML string `json:"combinedHtml"`
}

// Resolver resolves the disclaimer fragment for a recipient.
type Resolver interface {
	Resolve(ctx context.Context, req Request) (string, error)
}

// Client is an HTTP client for the disclaimer service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new disclaimer service client.
func NewClient(baseURL, apiKey string) *Client {
	return NewClientWithTimeout(baseURL, apiKey, 30*time.Second)
}

// NewClientWithTimeout creates a client with a custom request timeout.
func NewClientWithTimeout(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Resolve fetches the disclaimer fragment for the given recipient.
func (c *Client) Resolve(ctx context.Context, req Request) (string, error) {
	var resp Response
	if err := c.request(ctx, http.MethodPost, "/api/v1/disclaimers/resolve", req, &resp); err != nil {
		return "", err
	}
	return resp.CombinedHTML, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// request performs an HTTP request to the disclaimer service.
func (c *Client) request(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("disclaimer service error: %s", errResp.Error)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// NoopResolver resolves every request to the empty fragment. Used when
// no disclaimer service is configured.
type NoopResolver struct{}

// Resolve always returns the empty fragment.
func (NoopResolver) Resolve(ctx context.Context, req Request) (string, error) {
	return "", nil
}
