package core

import "time"

// RequestStatus is the lifecycle state of an access request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusDeclined RequestStatus = "declined"
	StatusExpired  RequestStatus = "expired"
	StatusRevoked  RequestStatus = "revoked"
)

// Terminal reports whether no further transition is allowed from s.
// Approved is not terminal: it can still expire or be revoked.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusDeclined, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// AccessRequest asks a holder DID to share the subject of one of its identity
// contexts with a requestor DID. Status moves one-directionally:
//
//	Pending  -> Approved | Declined | (deleted on cancel)
//	Approved -> Expired (lazily, once now > ExpiresAt) | Revoked
type AccessRequest struct {
	ID            string        `json:"id"`
	RequestorDID  string        `json:"requestor_did"`
	HolderDID     string        `json:"holder_did"`
	Context       string        `json:"context"`
	Purpose       string        `json:"purpose"`
	Status        RequestStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	DecidedAt     time.Time     `json:"decided_at,omitzero"`
	ExpiresAt     time.Time     `json:"expires_at,omitzero"`
	DeclineReason string        `json:"decline_reason,omitempty"`

	// Shared copy of the identity subject, sealed for the requestor at
	// approval time. Empty unless Status is Approved or was Approved.
	SharedData []byte `json:"-"`
	SharedSalt []byte `json:"-"`
}

// EffectiveStatus applies lazy expiry: an Approved request whose ExpiresAt has
// passed reads as Expired. No background sweep reconciles the stored status;
// every read path must go through this.
func (r *AccessRequest) EffectiveStatus(now time.Time) RequestStatus {
	if r.Status == StatusApproved && !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt) {
		return StatusExpired
	}
	return r.Status
}

// Decision is the tagged union of actions a party may take on a pending or
// approved request. Exactly one of the concrete types below is passed to the
// request engine, making the transition table exhaustive.
type Decision interface {
	decision()
}

// Approve grants the request until ExpiresAt. HolderSignature is the holder's
// key signature, needed to unseal the identity subject for re-sealing.
type Approve struct {
	ExpiresAt       time.Time
	HolderSignature string
}

// Decline rejects the request with an optional reason.
type Decline struct {
	Reason string
}

// Revoke withdraws a previously granted approval.
type Revoke struct{}

func (Approve) decision() {}
func (Decline) decision() {}
func (Revoke) decision()  {}
