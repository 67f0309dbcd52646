// Package verifier calls the external DID agent that validates Verifiable
// Presentations. The cryptographic construction and signature checks live in
// the agent; this adapter only carries the presentation and challenge across
// and interprets the verdict.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Sleepy9988/decent-identity/core"
	"github.com/Sleepy9988/decent-identity/ports"
)

// DefaultTimeout bounds every verification round-trip.
const DefaultTimeout = 15 * time.Second

// HTTPVerifier verifies presentations against a DID agent over HTTP.
type HTTPVerifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPVerifier creates a verifier talking to the agent at baseURL.
func NewHTTPVerifier(baseURL string) ports.PresentationVerifier {
	return &HTTPVerifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
}

type verifyRequest struct {
	Presentation map[string]any `json:"presentation"`
	Challenge    string         `json:"challenge"`
}

type verifyResponse struct {
	Verified bool   `json:"verified"`
	Issuer   string `json:"issuer"`
	Error    string `json:"error,omitempty"`
}

// VerifyPresentation posts the presentation and its bound challenge to the
// agent and returns the issuer DID on success.
func (v *HTTPVerifier) VerifyPresentation(ctx context.Context, presentation map[string]any, nonce string) (string, error) {
	body, err := json.Marshal(verifyRequest{Presentation: presentation, Challenge: nonce})
	if err != nil {
		return "", fmt.Errorf("failed to marshal verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/verify-presentation", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("verification agent unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("verification agent returned status %d: %w", resp.StatusCode, core.ErrAuthenticationFailed)
	}

	var verdict verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return "", fmt.Errorf("failed to decode verification response: %w", err)
	}
	if !verdict.Verified || verdict.Issuer == "" {
		return "", core.ErrAuthenticationFailed
	}
	return verdict.Issuer, nil
}

// VerifyCredential posts a standalone credential to the agent and returns the
// issuer DID on success.
func (v *HTTPVerifier) VerifyCredential(ctx context.Context, credential map[string]any) (string, error) {
	body, err := json.Marshal(map[string]any{"credential": credential})
	if err != nil {
		return "", fmt.Errorf("failed to marshal verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/verify-credential", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("verification agent unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("verification agent returned status %d: %w", resp.StatusCode, core.ErrAuthenticationFailed)
	}

	var verdict verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return "", fmt.Errorf("failed to decode verification response: %w", err)
	}
	if !verdict.Verified || verdict.Issuer == "" {
		return "", core.ErrAuthenticationFailed
	}
	return verdict.Issuer, nil
}
