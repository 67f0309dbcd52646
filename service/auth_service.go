package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bluele/gcache"
	"github.com/google/uuid"

	"github.com/Sleepy9988/decent-identity/core"
	"github.com/Sleepy9988/decent-identity/internal/cryptoutil"
	"github.com/Sleepy9988/decent-identity/ports"
)

const (
	// maxAuthFailures failed verifications per client key within
	// failureWindow lock further attempts out until the window passes.
	maxAuthFailures = 5
	failureWindow   = 15 * time.Minute
)

// AuthResult is what a successful authentication hands back to the client.
type AuthResult struct {
	AccessToken       string
	RefreshToken      string
	ProfileCreatedAt  time.Time
	ProfileLastAccess time.Time
	Returning         bool
}

// AuthService turns a verified wallet presentation into a session and owns
// the session token lifecycle.
type AuthService struct {
	tokenizer  ports.Tokenizer
	challenges ports.ChallengeStore
	tokens     ports.TokenStore
	profiles   ports.ProfileStore
	verifier   ports.PresentationVerifier
	eventPub   ports.EventPublisher

	failures gcache.Cache

	challengeTTL time.Duration
	accessTTL    time.Duration
	refreshTTL   time.Duration
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	tokenizer ports.Tokenizer,
	challenges ports.ChallengeStore,
	tokens ports.TokenStore,
	profiles ports.ProfileStore,
	verifier ports.PresentationVerifier,
	eventPub ports.EventPublisher,
) *AuthService {
	return &AuthService{
		tokenizer:    tokenizer,
		challenges:   challenges,
		tokens:       tokens,
		profiles:     profiles,
		verifier:     verifier,
		eventPub:     eventPub,
		failures:     gcache.New(4096).LRU().Build(),
		challengeTTL: 5 * time.Minute,
		accessTTL:    5 * time.Minute,
		refreshTTL:   5 * 24 * time.Hour, // 5 days
	}
}

// IssueChallenge creates a single-use login nonce. No authentication is
// required to obtain one.
func (s *AuthService) IssueChallenge(ctx context.Context) (string, error) {
	nonce, err := cryptoutil.NewNonce()
	if err != nil {
		return "", err
	}

	now := time.Now()
	ch := &core.Challenge{
		Nonce:     nonce,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.challengeTTL),
	}
	if err := s.challenges.Put(ctx, ch); err != nil {
		return "", fmt.Errorf("failed to store challenge: %w", err)
	}
	return ch.Nonce, nil
}

// Authenticate verifies a presentation against a live challenge and issues a
// session. clientKey identifies the caller for failure rate limiting
// (typically the remote IP). A failed verification leaves the challenge
// consumable so the holder may retry; a successful one consumes it exactly
// once.
func (s *AuthService) Authenticate(ctx context.Context, presentation map[string]any, nonce, clientKey string) (*AuthResult, error) {
	if s.locked(clientKey) {
		return nil, core.ErrTooManyAttempts
	}

	// Classify the challenge before the expensive verification round-trip.
	if _, err := s.challenges.Peek(ctx, nonce); err != nil {
		return nil, err
	}

	did, err := s.verifier.VerifyPresentation(ctx, presentation, nonce)
	if err != nil {
		s.recordFailure(clientKey)
		return nil, fmt.Errorf("%w: %w", core.ErrAuthenticationFailed, err)
	}
	if !core.ValidDID(did) {
		s.recordFailure(clientKey)
		return nil, fmt.Errorf("verifier returned %q: %w", did, core.ErrInvalidDID)
	}

	// Consume after verification so the nonce survives a failed attempt.
	// A concurrent winner makes this fail with ErrChallengeReused.
	if _, err := s.challenges.Consume(ctx, nonce); err != nil {
		return nil, err
	}
	s.failures.Remove(clientKey)

	now := time.Now()
	profile, returning, err := s.profiles.Touch(ctx, did, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert profile: %w", err)
	}

	session := s.newSession(did, now)
	accessToken, refreshToken, err := s.mintTokens(session)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		AccessToken:       accessToken,
		RefreshToken:      refreshToken,
		ProfileCreatedAt:  profile.CreatedAt,
		ProfileLastAccess: profile.LastAccessAt,
		Returning:         returning,
	}, nil
}

// Refresh rotates the refresh token and issues new access and refresh
// tokens. The token's own expiry is checked before any store access.
func (s *AuthService) Refresh(ctx context.Context, refreshTokenStr string) (string, string, error) {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return "", "", fmt.Errorf("invalid refresh token: %w", err)
	}

	if time.Now().After(session.RefreshExpiry) {
		return "", "", core.ErrTokenExpired
	}

	invalidated, err := s.tokens.IsTokenInvalidated(ctx, session.RefreshID)
	if err != nil {
		return "", "", fmt.Errorf("failed to check token invalidation: %w", err)
	}
	if invalidated {
		return "", "", core.ErrTokenInvalidated
	}

	// Rotate: the old refresh token dies with its remaining lifetime.
	remaining := time.Until(session.RefreshExpiry)
	if err := s.tokens.InvalidateToken(ctx, session.RefreshID, remaining); err != nil {
		return "", "", fmt.Errorf("failed to invalidate old token: %w", err)
	}

	newSession := s.newSession(session.DID, time.Now())
	return s.mintTokens(newSession)
}

// Logout invalidates a refresh token. It is idempotent: invalidating an
// already invalidated or expired token succeeds.
func (s *AuthService) Logout(ctx context.Context, refreshTokenStr string) error {
	session, err := s.tokenizer.RefreshTokenToSession(refreshTokenStr)
	if err != nil {
		return fmt.Errorf("invalid refresh token: %w", err)
	}

	// Expired tokens still get a short-lived invalidation record so they
	// cannot be replayed under clock skew.
	remaining := time.Until(session.RefreshExpiry)
	if remaining <= 0 {
		remaining = time.Hour
	}

	if err := s.tokens.InvalidateToken(ctx, session.RefreshID, remaining); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	// Cross-instance notification is best effort; the invalidation record
	// above is the part that matters.
	if err := s.eventPub.PublishLogout(ctx, session.DID, session.RefreshID); err != nil {
		logWarn("failed to publish logout event: %v", err)
	}

	return nil
}

// ValidateAccessToken checks an access token and returns its session.
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*core.Session, error) {
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	if time.Now().After(session.AccessExpiry) {
		return nil, core.ErrTokenExpired
	}

	// An access token dies with its refresh token, so a logout cuts off
	// outstanding access tokens too.
	if session.RefreshID != "" {
		invalidated, err := s.tokens.IsTokenInvalidated(ctx, session.RefreshID)
		if err != nil {
			return nil, fmt.Errorf("failed to check token invalidation: %w", err)
		}
		if invalidated {
			return nil, core.ErrTokenInvalidated
		}
	}

	return session, nil
}

// IsExpired reports whether an access token is past its expiry. A missing or
// undecodable token counts as expired (fail closed).
func (s *AuthService) IsExpired(accessToken string) bool {
	if accessToken == "" {
		return true
	}
	session, err := s.tokenizer.AccessTokenToSession(accessToken)
	if err != nil {
		return true
	}
	return !time.Now().Before(session.AccessExpiry)
}

func (s *AuthService) newSession(did string, now time.Time) *core.Session {
	return &core.Session{
		ID:            uuid.New().String(),
		DID:           did,
		IssuedAt:      now,
		AccessExpiry:  now.Add(s.accessTTL),
		RefreshExpiry: now.Add(s.refreshTTL),
		RefreshID:     uuid.New().String(),
	}
}

func (s *AuthService) mintTokens(session *core.Session) (string, string, error) {
	accessToken, err := s.tokenizer.SessionToAccessToken(session)
	if err != nil {
		return "", "", fmt.Errorf("failed to create access token: %w", err)
	}
	refreshToken, err := s.tokenizer.SessionToRefreshToken(session)
	if err != nil {
		return "", "", fmt.Errorf("failed to create refresh token: %w", err)
	}
	return accessToken, refreshToken, nil
}

func (s *AuthService) locked(clientKey string) bool {
	v, err := s.failures.Get(clientKey)
	if err != nil {
		return false
	}
	count, _ := v.(int)
	return count >= maxAuthFailures
}

func (s *AuthService) recordFailure(clientKey string) {
	count := 0
	if v, err := s.failures.Get(clientKey); err == nil {
		count, _ = v.(int)
	}
	if err := s.failures.SetWithExpire(clientKey, count+1, failureWindow); err != nil {
		logWarn("failed to record auth failure: %v", err)
	}
}
