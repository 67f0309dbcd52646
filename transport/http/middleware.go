package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Sleepy9988/decent-identity/core"
	"github.com/Sleepy9988/decent-identity/service"
)

// ctxDID is the gin context key holding the authenticated caller DID.
const ctxDID = "callerDID"

// AuthMiddleware creates middleware that validates access tokens. A 401 from
// here is the signal for clients to attempt exactly one refresh-and-retry.
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		session, err := authService.ValidateAccessToken(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, core.ErrTokenExpired) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			return
		}

		c.Set(ctxDID, session.DID)
		c.Next()
	}
}

// callerDID returns the DID the auth middleware stored on the context.
func callerDID(c *gin.Context) string {
	did, _ := c.Get(ctxDID)
	s, _ := did.(string)
	return s
}
