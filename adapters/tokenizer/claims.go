package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with access-specific ones. The
// subject carries the holder DID.
type AccessClaims struct {
	jwt.RegisteredClaims
	RefreshID string `json:"rid"` // ID of the refresh token this access token belongs to
}

// RefreshClaims are just the standard claims for refresh tokens.
type RefreshClaims struct {
	jwt.RegisteredClaims
}
