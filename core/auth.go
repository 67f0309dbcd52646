package core

import (
	"strings"
	"time"
)

// Challenge is a single-use login nonce. It is consumed exactly once by a
// successful authentication and expires after a fixed TTL otherwise.
type Challenge struct {
	Nonce      string    // Random nonce to be embedded in the presentation
	IssuedAt   time.Time // When the challenge was created
	ExpiresAt  time.Time // When the challenge expires
	Consumed   bool      // Whether a successful authentication used it
	ConsumedAt time.Time // When it was consumed, zero otherwise
}

// Session represents an authenticated holder session. The server keeps no
// record of issued access tokens; only refresh-token invalidation is stored.
type Session struct {
	ID            string    // Unique session identifier
	DID           string    // Decentralized identifier of the holder
	IssuedAt      time.Time // When the session was created
	RefreshExpiry time.Time // When the refresh capability expires
	AccessExpiry  time.Time // When the access capability expires
	RefreshID     string    // Unique identifier for the refresh token
}

// Profile tracks first-seen and last-seen markers for a DID. Created on the
// first successful authentication, touched on every later one.
type Profile struct {
	DID          string
	CreatedAt    time.Time
	LastAccessAt time.Time
}

// ValidDID reports whether s looks like a DID (method-prefixed identifier).
func ValidDID(s string) bool {
	parts := strings.SplitN(s, ":", 3)
	return len(parts) == 3 && parts[0] == "did" && parts[1] != "" && parts[2] != ""
}
