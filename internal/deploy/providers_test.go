package deploy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGoogleDeployer_Deploy(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody gmailSendAs

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"signature":"ok"}`)
	}))
	defer server.Close()

	g := &GoogleDeployer{
		baseURL:    server.URL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}

	d := newTestDeployment("org-1", "jane@acme.example", ProviderGoogle)
	d.HTML = "<table>sig</table>"

	if err := g.Deploy(context.Background(), d); err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	if gotMethod != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", gotMethod)
	}
	wantPath := "/gmail/v1/users/jane@acme.example/settings/sendAs/jane@acme.example"
	if gotPath != wantPath {
		t.Errorf("path = %s, want %s", gotPath, wantPath)
	}
	if gotBody.Signature != d.HTML {
		t.Errorf("signature = %q, want %q", gotBody.Signature, d.HTML)
	}
}

func TestMicrosoftDeployer_Deploy(t *testing.T) {
	var gotPath string
	var gotBody mailboxSignature

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := &MicrosoftDeployer{
		baseURL:    server.URL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}

	d := newTestDeployment("org-1", "jane@acme.example", ProviderMicrosoft)
	d.HTML = "<table>sig</table>"

	if err := m.Deploy(context.Background(), d); err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	wantPath := "/v1.0/users/jane@acme.example/mailboxSettings/signature"
	if gotPath != wantPath {
		t.Errorf("path = %s, want %s", gotPath, wantPath)
	}
	if gotBody.SignatureHTML != d.HTML {
		t.Errorf("signatureHtml = %q, want %q", gotBody.SignatureHTML, d.HTML)
	}
}

func TestCheckProviderResponse(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantErr       bool
		wantTemporary bool
	}{
		{"ok", http.StatusOK, false, false},
		{"no content", http.StatusNoContent, false, false},
		{"rate limited", http.StatusTooManyRequests, true, true},
		{"server error", http.StatusInternalServerError, true, true},
		{"bad gateway", http.StatusBadGateway, true, true},
		{"unauthorized", http.StatusUnauthorized, true, false},
		{"not found", http.StatusNotFound, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			resp, err := http.Get(server.URL)
			if err != nil {
				t.Fatalf("request error = %v", err)
			}
			defer resp.Body.Close()

			got := checkProviderResponse("test", resp)
			if (got != nil) != tt.wantErr {
				t.Fatalf("checkProviderResponse() error = %v, wantErr %v", got, tt.wantErr)
			}
			if got != nil && IsTemporary(got) != tt.wantTemporary {
				t.Errorf("IsTemporary() = %v, want %v", IsTemporary(got), tt.wantTemporary)
			}
		})
	}
}
