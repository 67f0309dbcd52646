package ports

import (
	"context"
	"time"

	"github.com/Sleepy9988/decent-identity/core"
)

// TokenStore keeps the refresh-token revocation list.
type TokenStore interface {
	InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error
	IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error)
}

// ChallengeStore issues and consumes single-use nonces. Consume must be
// atomic: two concurrent consumers of the same live nonce see exactly one
// success, the other core.ErrChallengeReused.
type ChallengeStore interface {
	// Put stores a freshly issued challenge under its nonce.
	Put(ctx context.Context, ch *core.Challenge) error

	// Consume marks the challenge consumed and returns it. It fails with
	// core.ErrChallengeNotFound, core.ErrChallengeExpired or
	// core.ErrChallengeReused.
	Consume(ctx context.Context, nonce string) (*core.Challenge, error)

	// Peek returns the challenge without consuming it, with the same error
	// contract as Consume. Used when verification fails and the challenge
	// should remain retryable.
	Peek(ctx context.Context, nonce string) (*core.Challenge, error)
}

// ProfileStore holds first-seen/last-seen markers per DID.
type ProfileStore interface {
	// Touch creates the profile on first sight or updates LastAccessAt, and
	// returns the resulting profile together with whether it already existed.
	Touch(ctx context.Context, did string, now time.Time) (*core.Profile, bool, error)

	// Get fails with core.ErrProfileNotFound for unknown DIDs.
	Get(ctx context.Context, did string) (*core.Profile, error)
}

// IdentityStore persists published identity claims.
type IdentityStore interface {
	Create(ctx context.Context, id *core.Identity) error
	Get(ctx context.Context, id string) (*core.Identity, error)
	ListByOwner(ctx context.Context, ownerDID string) ([]*core.Identity, error)

	// ActiveContext returns the active identity of ownerDID for the given
	// context name, or core.ErrIdentityNotFound.
	ActiveContext(ctx context.Context, ownerDID, contextName string) (*core.Identity, error)

	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, ids ...string) error
}

// RequestStore persists access requests. Update replaces the stored request
// by ID; transition serialization is the engine's job, not the store's.
type RequestStore interface {
	Create(ctx context.Context, r *core.AccessRequest) error
	Get(ctx context.Context, id string) (*core.AccessRequest, error)
	ListByParty(ctx context.Context, did string) ([]*core.AccessRequest, error)
	Update(ctx context.Context, r *core.AccessRequest) error
	Delete(ctx context.Context, id string) error
}
