package core

import "time"

// Notification event names published by the identity and request services.
const (
	EventRequestCreated  = "request.created"
	EventRequestApproved = "request.approved"
	EventRequestDeclined = "request.declined"
	EventRequestRevoked  = "request.revoked"
	EventIdentityCreated = "identity.created"
	EventIdentityUpdated = "identity.updated"
	EventIdentityDeleted = "identity.deleted"
)

// Notification is an ephemeral per-DID event. Delivery is at-most-once per
// connected client; a short replay buffer covers reconnects.
type Notification struct {
	Event     string    `json:"event"`
	Context   any       `json:"context,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
