package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Sleepy9988/decent-identity/core"
	"github.com/Sleepy9988/decent-identity/ports"
	"github.com/Sleepy9988/decent-identity/service"
)

// RequestHandlers contains HTTP handlers for the access request engine.
type RequestHandlers struct {
	requestService *service.RequestService
	notifier       ports.Notifier
}

// NewRequestHandlers creates new request handlers.
func NewRequestHandlers(requestService *service.RequestService, notifier ports.Notifier) *RequestHandlers {
	return &RequestHandlers{requestService: requestService, notifier: notifier}
}

// Challenge hands out a single-use nonce for a request credential.
func (h *RequestHandlers) Challenge(c *gin.Context) {
	nonce, err := h.requestService.IssueChallenge(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge": nonce})
}

// Create opens a Pending access request from a signed request credential.
func (h *RequestHandlers) Create(c *gin.Context) {
	var req struct {
		Presentation map[string]any `json:"presentation" binding:"required"`
		Challenge    string         `json:"challenge" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	request, err := h.requestService.Create(c.Request.Context(), callerDID(c), req.Presentation, req.Challenge)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, request)
}

// List returns every request involving the caller, lazily expired.
func (h *RequestHandlers) List(c *gin.Context) {
	requests, err := h.requestService.List(c.Request.Context(), callerDID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// updatePayload is the wire form of the decision union. Action selects the
// variant; the remaining fields belong to exactly one of them.
type updatePayload struct {
	Action    string     `json:"action" binding:"required,oneof=approve decline"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Signature string     `json:"signature,omitempty"`
}

// Update applies a holder decision to a pending request.
func (h *RequestHandlers) Update(c *gin.Context) {
	var req updatePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var decision core.Decision
	switch req.Action {
	case "approve":
		if req.ExpiresAt == nil || req.Signature == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Approval needs expires_at and signature"})
			return
		}
		decision = core.Approve{ExpiresAt: *req.ExpiresAt, HolderSignature: req.Signature}
	case "decline":
		decision = core.Decline{Reason: req.Reason}
	}

	request, err := h.requestService.Decide(c.Request.Context(), callerDID(c), c.Param("id"), decision)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

// Cancel deletes the caller's own pending request.
func (h *RequestHandlers) Cancel(c *gin.Context) {
	if err := h.requestService.Cancel(c.Request.Context(), callerDID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SharedData releases the approved subject to the requestor. The body
// carries the requestor's key signature, which doubles as decryption key
// material.
func (h *RequestHandlers) SharedData(c *gin.Context) {
	var req struct {
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	subject, err := h.requestService.Release(c.Request.Context(), callerDID(c), c.Param("id"), req.Signature)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": subject})
}

// Revoke withdraws an approved grant.
func (h *RequestHandlers) Revoke(c *gin.Context) {
	request, err := h.requestService.Decide(c.Request.Context(), callerDID(c), c.Param("id"), core.Revoke{})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

// ClearNotifications empties the caller's replay buffer ("mark all read").
func (h *RequestHandlers) ClearNotifications(c *gin.Context) {
	if err := h.notifier.Clear(c.Request.Context(), callerDID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear notifications"})
		return
	}
	c.Status(http.StatusNoContent)
}
