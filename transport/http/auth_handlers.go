package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Sleepy9988/decent-identity/service"
)

// AuthHandlers contains HTTP handlers for authentication and profiles.
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers.
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{authService: authService}
}

// Challenge hands out a single-use login nonce.
func (h *AuthHandlers) Challenge(c *gin.Context) {
	nonce, err := h.authService.IssueChallenge(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge": nonce})
}

// Authenticate verifies a presentation bound to a previously issued
// challenge and returns a fresh session.
func (h *AuthHandlers) Authenticate(c *gin.Context) {
	var req struct {
		Presentation map[string]any `json:"presentation" binding:"required"`
		Challenge    string         `json:"challenge" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	result, err := h.authService.Authenticate(c.Request.Context(), req.Presentation, req.Challenge, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":        result.AccessToken,
		"refresh_token":       result.RefreshToken,
		"token_type":          "Bearer",
		"profile_created":     result.ProfileCreatedAt.Format(time.RFC3339),
		"profile_last_access": result.ProfileLastAccess.Format(time.RFC3339),
		"returning":           result.Returning,
	})
}

// Refresh rotates a refresh token and returns a new token pair.
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	accessToken, refreshToken, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
	})
}

// Logout invalidates a refresh token. Repeating it is harmless.
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the authenticated caller's DID.
func (h *AuthHandlers) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"did": callerDID(c)})
}
