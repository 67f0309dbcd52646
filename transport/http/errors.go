package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Sleepy9988/decent-identity/core"
)

// respondError maps domain sentinel errors to HTTP status codes. Unknown
// errors become a bare 500 so internals never leak to clients.
func respondError(c *gin.Context, err error) {
	type mapping struct {
		sentinel error
		status   int
		message  string
	}

	mappings := []mapping{
		{core.ErrChallengeNotFound, http.StatusBadRequest, "Challenge not found"},
		{core.ErrChallengeExpired, http.StatusBadRequest, "Challenge expired"},
		{core.ErrChallengeReused, http.StatusConflict, "Challenge already used"},
		{core.ErrTooManyAttempts, http.StatusTooManyRequests, "Too many failed attempts"},
		{core.ErrAuthenticationFailed, http.StatusForbidden, "Presentation verification failed"},
		{core.ErrTokenExpired, http.StatusUnauthorized, "Token expired"},
		{core.ErrTokenInvalidated, http.StatusUnauthorized, "Token has been invalidated"},
		{core.ErrInvalidToken, http.StatusBadRequest, "Invalid token"},
		{core.ErrInvalidSignature, http.StatusUnauthorized, "Invalid signature"},
		{core.ErrIdentityExists, http.StatusConflict, "Identity already exists"},
		{core.ErrIdentityNotFound, http.StatusNotFound, "Identity not found"},
		{core.ErrNotOwner, http.StatusForbidden, "Not the owner"},
		{core.ErrRequestNotFound, http.StatusNotFound, "Request not found"},
		{core.ErrSelfRequest, http.StatusBadRequest, "Cannot request access to own identity"},
		{core.ErrNotRequestor, http.StatusForbidden, "Not the requestor"},
		{core.ErrInvalidTransition, http.StatusConflict, "Invalid request state transition"},
		{core.ErrRequestNotApproved, http.StatusForbidden, "Request is not approved"},
		{core.ErrRequestExpired, http.StatusGone, "Request has expired"},
		{core.ErrDecryptionFailed, http.StatusForbidden, "Decryption failed"},
		{core.ErrProfileNotFound, http.StatusNotFound, "Profile not found"},
		{core.ErrInvalidDID, http.StatusBadRequest, "Invalid DID"},
	}

	for _, m := range mappings {
		if errors.Is(err, m.sentinel) {
			c.JSON(m.status, gin.H{"error": m.message})
			return
		}
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
}
