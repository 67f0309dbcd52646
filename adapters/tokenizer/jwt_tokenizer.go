package tokenizer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Sleepy9988/decent-identity/core"
	"github.com/Sleepy9988/decent-identity/ports"
)

const AudienceAccess = "session:access"
const AudienceRefresh = "session:refresh"

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs.
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
}

// NewJWTTokenizer creates a new JWT tokenizer.
func NewJWTTokenizer(signKey *ecdsa.PrivateKey) ports.Tokenizer {
	return &JWTTokenizer{signKey: signKey}
}

// SessionToAccessToken converts a Session to an access JWT token.
func (j *JWTTokenizer) SessionToAccessToken(session *core.Session) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.DID,
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(session.AccessExpiry),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		RefreshID: session.RefreshID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return signedToken, nil
}

// SessionToRefreshToken converts a Session to a refresh JWT token.
func (j *JWTTokenizer) SessionToRefreshToken(session *core.Session) (string, error) {
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.DID,
			ID:        session.RefreshID, // The refresh token is identified by RefreshID
			ExpiresAt: jwt.NewNumericDate(session.RefreshExpiry),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceRefresh},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return signedToken, nil
}

// AccessTokenToSession parses an access token and returns the associated
// session. Expiry is not checked here; callers fail closed on AccessExpiry.
func (j *JWTTokenizer) AccessTokenToSession(tokenStr string) (*core.Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, j.keyFunc,
		jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", errors.Join(err, core.ErrInvalidToken))
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || claims.ExpiresAt == nil || claims.Subject == "" {
		return nil, core.ErrInvalidToken
	}
	if !hasAudience(claims.Audience, AudienceAccess) {
		return nil, core.ErrInvalidToken
	}

	return &core.Session{
		ID:           claims.ID,
		DID:          claims.Subject,
		IssuedAt:     claims.IssuedAt.Time,
		AccessExpiry: claims.ExpiresAt.Time,
		RefreshID:    claims.RefreshID,
	}, nil
}

// RefreshTokenToSession parses a refresh token and returns the associated
// session. Only the fields a refresh token carries are populated.
func (j *JWTTokenizer) RefreshTokenToSession(tokenStr string) (*core.Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &RefreshClaims{}, j.keyFunc,
		jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("failed to parse refresh token: %w", errors.Join(err, core.ErrInvalidToken))
	}

	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || claims.ExpiresAt == nil || claims.Subject == "" {
		return nil, core.ErrInvalidToken
	}
	if !hasAudience(claims.Audience, AudienceRefresh) {
		return nil, core.ErrInvalidToken
	}

	return &core.Session{
		DID:           claims.Subject,
		IssuedAt:      claims.IssuedAt.Time,
		RefreshExpiry: claims.ExpiresAt.Time,
		RefreshID:     claims.ID,
	}, nil
}

func (j *JWTTokenizer) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return &j.signKey.PublicKey, nil
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
