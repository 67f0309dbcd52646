package core

import "errors"

var (
	// Challenge lifecycle.
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExpired  = errors.New("challenge has expired")
	ErrChallengeReused   = errors.New("challenge already consumed")

	// Authentication and sessions.
	ErrAuthenticationFailed = errors.New("presentation verification failed")
	ErrTokenExpired         = errors.New("token has expired")
	ErrTokenInvalidated     = errors.New("token has been invalidated")
	ErrInvalidToken         = errors.New("invalid token")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrTooManyAttempts      = errors.New("too many failed attempts")

	// Identities.
	ErrIdentityNotFound = errors.New("identity not found")
	ErrIdentityExists   = errors.New("identity already exists for this context")
	ErrNotOwner         = errors.New("caller does not own this identity")

	// Access requests.
	ErrRequestNotFound    = errors.New("access request not found")
	ErrSelfRequest        = errors.New("cannot request access to own identity")
	ErrNotRequestor       = errors.New("caller is not the requestor")
	ErrInvalidTransition  = errors.New("invalid request state transition")
	ErrRequestNotApproved = errors.New("access request is not approved")
	ErrRequestExpired     = errors.New("access request has expired")
	ErrDecryptionFailed   = errors.New("payload decryption failed")

	// Profiles.
	ErrProfileNotFound = errors.New("profile not found")

	// Validation.
	ErrInvalidDID = errors.New("invalid did")
)
