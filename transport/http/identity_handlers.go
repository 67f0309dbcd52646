package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Sleepy9988/decent-identity/service"
)

// maxAvatarBytes caps the optional avatar upload.
const maxAvatarBytes = 1 << 20

// IdentityHandlers contains HTTP handlers for identity claims.
type IdentityHandlers struct {
	identityService *service.IdentityService
}

// NewIdentityHandlers creates new identity handlers.
func NewIdentityHandlers(identityService *service.IdentityService) *IdentityHandlers {
	return &IdentityHandlers{identityService: identityService}
}

// Create issues a new identity from a multipart form carrying the credential
// JSON, the owner's key signature and an optional avatar image.
func (h *IdentityHandlers) Create(c *gin.Context) {
	credentialJSON := c.PostForm("credential")
	signature := c.PostForm("signature")
	if credentialJSON == "" || signature == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var credential map[string]any
	if err := json.Unmarshal([]byte(credentialJSON), &credential); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed credential"})
		return
	}

	var avatar []byte
	if file, err := c.FormFile("avatar"); err == nil {
		if file.Size > maxAvatarBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Avatar too large"})
			return
		}
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable avatar"})
			return
		}
		defer f.Close()
		avatar, err = io.ReadAll(io.LimitReader(f, maxAvatarBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable avatar"})
			return
		}
	}

	identity, err := h.identityService.Create(c.Request.Context(), callerDID(c), credential, signature, avatar)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":          identity.ID,
		"context":     identity.Context,
		"description": identity.Description,
		"issued":      identity.Issued,
		"is_active":   identity.IsActive,
	})
}

// List returns the caller's identities with subjects decrypted by the
// provided key signature. POST rather than GET because the signature must
// not end up in logs or referrers.
func (h *IdentityHandlers) List(c *gin.Context) {
	var req struct {
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	views, err := h.identityService.List(c.Request.Context(), callerDID(c), req.Signature)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"identities": views})
}

// SetActive toggles identity visibility.
func (h *IdentityHandlers) SetActive(c *gin.Context) {
	var req struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.identityService.SetActive(c.Request.Context(), callerDID(c), c.Param("id"), *req.IsActive); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "is_active": *req.IsActive})
}

// MassDelete removes a batch of the caller's identities.
func (h *IdentityHandlers) MassDelete(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.identityService.Delete(c.Request.Context(), callerDID(c), req.IDs...); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Contexts lists the public contexts a DID has published. No authentication
// required: active contexts are discoverable by design.
func (h *IdentityHandlers) Contexts(c *gin.Context) {
	contexts, err := h.identityService.Contexts(c.Request.Context(), c.Param("did"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contexts": contexts})
}
