// Package client is the Go client for the decent-identity service. It owns
// the client side of the session lifecycle: bearer injection, the
// refresh-once-retry-once discipline on 401, bounded retries for idempotent
// reads, and a background keeper that notices silently expired sessions.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTimeout bounds every request; a hung call fails rather than
	// blocking its caller.
	DefaultTimeout = 15 * time.Second

	// KeeperInterval is how often the background keeper re-checks the
	// session. Token expiry is not observable without decoding, so this is
	// a deliberate polling design.
	KeeperInterval = 5 * time.Minute

	maxGetRetries = 3
)

var (
	// ErrSessionExpired means the access token expired and the refresh
	// attempt failed; the client has been logged out.
	ErrSessionExpired = errors.New("session expired")

	// ErrNotAuthenticated means no session material is present.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Credentials is the session material persisted between calls. Everything
// here is invalidated together on logout.
type Credentials struct {
	DID          string
	AccessToken  string
	RefreshToken string
	Signature    string // key signature, kept for identity decryption calls
}

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Payload    []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Client talks to a decent-identity server on behalf of one DID.
type Client struct {
	base  string
	httpc *http.Client

	mu       sync.Mutex
	creds    Credentials
	wasLive  bool
	stopKeep context.CancelFunc
}

// New creates a client for the server at baseURL.
func New(baseURL string) *Client {
	return &Client{
		base:  baseURL,
		httpc: &http.Client{Timeout: DefaultTimeout},
	}
}

// SetCredentials installs session material, typically right after
// authentication.
func (c *Client) SetCredentials(creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
	c.wasLive = creds.AccessToken != "" && creds.RefreshToken != ""
}

// Credentials returns a copy of the current session material.
func (c *Client) Credentials() Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds
}

// IsExpired reports whether token is missing, undecodable, or past its
// expiry. Fail closed: anything unreadable counts as expired.
func IsExpired(token string) bool {
	if token == "" {
		return true
	}
	claims := jwt.RegisteredClaims{}
	// The client holds no verification key; it only reads the expiry. The
	// server re-verifies every token anyway.
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return !time.Now().Before(claims.ExpiresAt.Time)
}

// Authenticate exchanges a presentation and challenge nonce for a session.
func (c *Client) Authenticate(ctx context.Context, did string, presentation map[string]any, challenge, keySignature string) error {
	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/authenticate", map[string]any{
		"presentation": presentation,
		"challenge":    challenge,
	}, false, &resp)
	if err != nil {
		return err
	}
	c.SetCredentials(Credentials{
		DID:          did,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Signature:    keySignature,
	})
	return nil
}

// Challenge fetches a fresh login nonce.
func (c *Client) Challenge(ctx context.Context) (string, error) {
	var resp struct {
		Challenge string `json:"challenge"`
	}
	if err := c.get(ctx, "/auth/challenge", false, &resp); err != nil {
		return "", err
	}
	return resp.Challenge, nil
}

// Refresh rotates the session tokens. Fails without a network round-trip if
// the refresh token itself is already expired.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.creds.RefreshToken
	c.mu.Unlock()

	if IsExpired(refresh) {
		return ErrSessionExpired
	}

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/refresh", map[string]any{
		"refresh_token": refresh,
	}, false, &resp)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	c.mu.Lock()
	c.creds.AccessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		c.creds.RefreshToken = resp.RefreshToken
	}
	c.mu.Unlock()
	return nil
}

// Logout tears the session down. The remote invalidation is best effort;
// local state is always cleared, and calling Logout twice is harmless.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.creds.RefreshToken
	c.creds = Credentials{}
	c.wasLive = false
	stop := c.stopKeep
	c.stopKeep = nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	if refresh == "" {
		return nil
	}

	// A backend hiccup must not leave the client "logged in"; the remote
	// call is fire and forget.
	_ = c.do(ctx, http.MethodPost, "/auth/logout", map[string]any{
		"refresh_token": refresh,
	}, false, nil)
	return nil
}

// StartKeeper launches the background session check. It re-runs every
// KeeperInterval and logs the session out when the tokens are gone or can no
// longer be refreshed. Logout cancels it.
func (c *Client) StartKeeper(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.stopKeep != nil {
		c.stopKeep()
	}
	c.stopKeep = cancel
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(KeeperInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.checkSession(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// checkSession is one keeper pass: a vanished token pair on a previously
// live session forces logout; an expired access token triggers a refresh and
// a failed refresh forces logout.
func (c *Client) checkSession(ctx context.Context) {
	c.mu.Lock()
	creds := c.creds
	wasLive := c.wasLive
	c.mu.Unlock()

	if creds.AccessToken == "" || creds.RefreshToken == "" {
		if wasLive {
			_ = c.Logout(ctx)
		}
		return
	}
	if IsExpired(creds.AccessToken) {
		if err := c.Refresh(ctx); err != nil {
			_ = c.Logout(ctx)
		}
	}
}

// Get performs an authenticated GET with bounded exponential-backoff
// retries. Only reads retry; mutations never do, to avoid duplicate side
// effects.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	op := func() error {
		err := c.get(ctx, path, true, out)
		var se *StatusError
		if errors.As(err, &se) {
			// HTTP-level failures are not transport errors; don't retry.
			return backoff.Permanent(err)
		}
		if errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrNotAuthenticated) {
			return backoff.Permanent(err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxGetRetries), ctx)
	return backoff.Retry(op, policy)
}

// Post performs an authenticated POST. No automatic retries.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.authed(ctx, http.MethodPost, path, body, out)
}

// Patch performs an authenticated PATCH. No automatic retries.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.authed(ctx, http.MethodPatch, path, body, out)
}

// Delete performs an authenticated DELETE. No automatic retries.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.authed(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) get(ctx context.Context, path string, authed bool, out any) error {
	if authed {
		return c.authed(ctx, http.MethodGet, path, nil, out)
	}
	return c.do(ctx, http.MethodGet, path, nil, false, out)
}

// authed performs a bearer-authenticated request with the
// refresh-once-retry-once discipline: on 401, refresh, retry the original
// request exactly once, and surface ErrSessionExpired if either step fails.
func (c *Client) authed(ctx context.Context, method, path string, body, out any) error {
	c.mu.Lock()
	access := c.creds.AccessToken
	c.mu.Unlock()
	if access == "" {
		return ErrNotAuthenticated
	}

	err := c.do(ctx, method, path, body, true, out)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		return err
	}

	if err := c.Refresh(ctx); err != nil {
		_ = c.Logout(ctx)
		return ErrSessionExpired
	}
	return c.do(ctx, method, path, body, true, out)
}

func (c *Client) do(ctx context.Context, method, path string, body any, authed bool, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		c.mu.Lock()
		req.Header.Set("Authorization", "Bearer "+c.creds.AccessToken)
		c.mu.Unlock()
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Payload: payload}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
