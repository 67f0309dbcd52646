package core

import "time"

// Identity is a published identity claim owned by a DID. The subject data is
// sealed at creation time and never stored in the clear; everything except
// IsActive is immutable once issued.
type Identity struct {
	ID          string
	OwnerDID    string
	Context     string // Claim context, e.g. "university", "employer"
	Description string
	Issued      time.Time
	IsActive    bool
	Avatar      []byte // Optional avatar image bytes

	// Sealed subject data. Salt is the per-identity KDF salt; EncData is the
	// AES-GCM sealed JSON subject map.
	EncData []byte
	Salt    []byte
}

// Subject is the decrypted claim payload of an identity.
type Subject map[string]any

// IdentityView is an identity as returned to its owner, with the subject
// decrypted and the sealed fields omitted.
type IdentityView struct {
	ID          string    `json:"id"`
	OwnerDID    string    `json:"owner_did"`
	Context     string    `json:"context"`
	Description string    `json:"description"`
	Issued      time.Time `json:"issued"`
	IsActive    bool      `json:"is_active"`
	Avatar      []byte    `json:"avatar,omitempty"`
	Subject     Subject   `json:"subject,omitempty"`
}

// View renders the identity with the given decrypted subject.
func (i *Identity) View(subject Subject) IdentityView {
	return IdentityView{
		ID:          i.ID,
		OwnerDID:    i.OwnerDID,
		Context:     i.Context,
		Description: i.Description,
		Issued:      i.Issued,
		IsActive:    i.IsActive,
		Avatar:      i.Avatar,
		Subject:     subject,
	}
}
