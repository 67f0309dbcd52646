package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sleepy9988/decent-identity/adapters/store"
	"github.com/Sleepy9988/decent-identity/adapters/tokenizer"
	"github.com/Sleepy9988/decent-identity/core"
	"github.com/Sleepy9988/decent-identity/ports"
)

func newTestTokenizer(t *testing.T) ports.Tokenizer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return tokenizer.NewJWTTokenizer(key)
}

func newAuthFixture(t *testing.T, verifier ports.PresentationVerifier) (*AuthService, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	svc := NewAuthService(
		newTestTokenizer(t),
		store.NewMemoryChallengeStore(),
		store.NewMemoryTokenStore(),
		store.NewMemoryProfileStore(),
		verifier,
		pub,
	)
	return svc, pub
}

func TestAuthenticateHappyPath(t *testing.T) {
	ctx := context.Background()
	w := newWallet(t)
	svc, _ := newAuthFixture(t, &stubVerifier{})

	nonce, err := svc.IssueChallenge(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, nonce)

	result, err := svc.Authenticate(ctx, presentationBy(w.did(), nil), nonce, "10.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.RefreshToken)
	require.False(t, result.Returning)

	session, err := svc.ValidateAccessToken(ctx, result.AccessToken)
	require.NoError(t, err)
	require.Equal(t, w.did(), session.DID)
}

func TestAuthenticateReturningProfile(t *testing.T) {
	ctx := context.Background()
	w := newWallet(t)
	svc, _ := newAuthFixture(t, &stubVerifier{})

	nonce, err := svc.IssueChallenge(ctx)
	require.NoError(t, err)
	first, err := svc.Authenticate(ctx, presentationBy(w.did(), nil), nonce, "10.0.0.1")
	require.NoError(t, err)

	nonce, err = svc.IssueChallenge(ctx)
	require.NoError(t, err)
	second, err := svc.Authenticate(ctx, presentationBy(w.did(), nil), nonce, "10.0.0.1")
	require.NoError(t, err)

	require.True(t, second.Returning)
	require.Equal(t, first.ProfileCreatedAt, second.ProfileCreatedAt)
	require.False(t, second.ProfileLastAccess.Before(first.ProfileLastAccess))
}

func TestAuthenticateNonceSingleUse(t *testing.T) {
	ctx := context.Background()
	w := newWallet(t)
	svc, _ := newAuthFixture(t, &stubVerifier{})

	nonce, err := svc.IssueChallenge(ctx)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, presentationBy(w.did(), nil), nonce, "10.0.0.1")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, presentationBy(w.did(), nil), nonce, "10.0.0.1")
	require.ErrorIs(t, err, core.ErrChallengeReused)
}

func TestAuthenticateUnknownNonce(t *testing.T) {
	ctx := context.Background()
	w := newWallet(t)
	svc, _ := newAuthFixture(t, &stubVerifier{})

	_, err := svc.Authenticate(ctx, presentationBy(w.did(), nil), "never-issued", "10.0.0.1")
	require.ErrorIs(t, err, core.ErrChallengeNotFound)
}

func TestAuthenticateFailureLeavesNonceRetryable(t *testing.T) {
	ctx := context.Background()
	w := newWallet(t)
	verifier := &stubVerifier{err: errors.New("bad proof")}
	svc, _ := newAuthFixture(t, verifier)

	nonce, err := svc.IssueChallenge(ctx)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, presentationBy(w.did(), nil), nonce, "10.0.0.1")
	require.ErrorIs(t, err, core.ErrAuthenticationFailed)

	// The failed attempt must not burn the challenge.
	verifier.err = nil
	_, err = svc.Authenticate(ctx, presentationBy(w.did(), nil), nonce, "10.0.0.1")
	require.NoError(t, err)
}

func TestAuthenticateRejectsInvalidDID(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthFixture(t, &stubVerifier{})

	nonce, err := svc.IssueChallenge(ctx)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, presentationBy("not-a-did", nil), nonce, "10.0.0.1")
	require.ErrorIs(t, err, core.ErrInvalidDID)
}

func TestAuthenticateRateLimit(t *testing.T) {
	ctx := context.Background()
	w := newWallet(t)
	verifier := &stubVerifier{err: errors.New("bad proof")}
	svc, _ := newAuthFixture(t, verifier)

	for i := range maxAuthFailures {
		nonce, err := svc.IssueChallenge(ctx)
		require.NoError(t, err)
		_, err = svc.Authenticate(ctx, presentationBy(w.did(), nil), nonce, "10.0.0.9")
		require.ErrorIs(t, err, core.ErrAuthenticationFailed, "attempt %d", i)
	}

	nonce, err := svc.IssueChallenge(ctx)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, presentationBy(w.did(), nil), nonce, "10.0.0.9")
	require.ErrorIs(t, err, core.ErrTooManyAttempts)

	// Other clients are unaffected.
	verifier.err = nil
	_, err = svc.Authenticate(ctx, presentationBy(w.did(), nil), nonce, "10.0.0.10")
	require.NoError(t, err)
}

func authenticate(t *testing.T, svc *AuthService, w *wallet) *AuthResult {
	t.Helper()
	ctx := context.Background()
	nonce, err := svc.IssueChallenge(ctx)
	require.NoError(t, err)
	result, err := svc.Authenticate(ctx, presentationBy(w.did(), nil), nonce, "10.0.0.1")
	require.NoError(t, err)
	return result
}

func TestRefreshRotation(t *testing.T) {
	ctx := context.Background()
	w := newWallet(t)
	svc, _ := newAuthFixture(t, &stubVerifier{})

	result := authenticate(t, svc, w)

	access, refresh, err := svc.Refresh(ctx, result.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	require.NotEqual(t, result.RefreshToken, refresh)

	// The consumed refresh token is dead.
	_, _, err = svc.Refresh(ctx, result.RefreshToken)
	require.ErrorIs(t, err, core.ErrTokenInvalidated)

	// The rotated one works.
	_, _, err = svc.Refresh(ctx, refresh)
	require.NoError(t, err)
}

func TestRefreshRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthFixture(t, &stubVerifier{})

	_, _, err := svc.Refresh(ctx, "not-a-token")
	require.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	ctx := context.Background()
	w := newWallet(t)
	svc, _ := newAuthFixture(t, &stubVerifier{})

	result := authenticate(t, svc, w)

	_, _, err := svc.Refresh(ctx, result.AccessToken)
	require.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestLogoutKillsSession(t *testing.T) {
	ctx := context.Background()
	w := newWallet(t)
	svc, pub := newAuthFixture(t, &stubVerifier{})

	result := authenticate(t, svc, w)

	require.NoError(t, svc.Logout(ctx, result.RefreshToken))

	// Refresh and access both die with the refresh token.
	_, _, err := svc.Refresh(ctx, result.RefreshToken)
	require.ErrorIs(t, err, core.ErrTokenInvalidated)

	_, err = svc.ValidateAccessToken(ctx, result.AccessToken)
	require.ErrorIs(t, err, core.ErrTokenInvalidated)

	require.Len(t, pub.logouts, 1)
}

func TestLogoutIdempotent(t *testing.T) {
	ctx := context.Background()
	w := newWallet(t)
	svc, _ := newAuthFixture(t, &stubVerifier{})

	result := authenticate(t, svc, w)

	require.NoError(t, svc.Logout(ctx, result.RefreshToken))
	require.NoError(t, svc.Logout(ctx, result.RefreshToken))
}

func TestValidateAccessTokenGarbage(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAuthFixture(t, &stubVerifier{})

	_, err := svc.ValidateAccessToken(ctx, "garbage")
	require.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestIsExpiredFailsClosed(t *testing.T) {
	w := newWallet(t)
	svc, _ := newAuthFixture(t, &stubVerifier{})

	result := authenticate(t, svc, w)
	require.False(t, svc.IsExpired(result.AccessToken))

	malformed := []string{
		"",
		"x",
		"..",
		"a.b.c",
		result.AccessToken + "tampered",
		result.AccessToken[:len(result.AccessToken)/2],
	}
	for i := range 32 {
		malformed = append(malformed, fmt.Sprintf("junk-%d.%d.%d", i, i*7, i*13))
	}
	for _, token := range malformed {
		require.True(t, svc.IsExpired(token), "token %q must read as expired", token)
	}
}
