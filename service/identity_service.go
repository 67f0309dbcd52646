package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/Sleepy9988/decent-identity/core"
	"github.com/Sleepy9988/decent-identity/internal/cryptoutil"
	"github.com/Sleepy9988/decent-identity/internal/eth"
	"github.com/Sleepy9988/decent-identity/ports"
)

// IdentityService owns published identity claims. Subject data is sealed at
// creation under a key derived from the owner's wallet and only ever leaves
// the store decrypted when the owner (or an approved requestor, via the
// request engine) presents a matching key signature.
type IdentityService struct {
	identities ports.IdentityStore
	verifier   ports.PresentationVerifier
	notifier   ports.Notifier
}

// NewIdentityService creates a new identity service.
func NewIdentityService(identities ports.IdentityStore, verifier ports.PresentationVerifier, notifier ports.Notifier) *IdentityService {
	return &IdentityService{
		identities: identities,
		verifier:   verifier,
		notifier:   notifier,
	}
}

// Create verifies an identity credential issued by ownerDID, seals the
// subject under the owner's key signature and publishes the claim. Everything
// but IsActive is immutable afterwards.
func (s *IdentityService) Create(ctx context.Context, ownerDID string, credential map[string]any, signature string, avatar []byte) (*core.Identity, error) {
	issuer, err := s.verifier.VerifyCredential(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("credential verification failed: %w", err)
	}
	if issuer != ownerDID {
		return nil, fmt.Errorf("credential issued by %s, session owned by %s: %w", issuer, ownerDID, core.ErrAuthenticationFailed)
	}

	ownerAddr, err := ownerKeyAddress(ownerDID, signature)
	if err != nil {
		return nil, err
	}

	claim, err := parseIdentityClaim(credential)
	if err != nil {
		return nil, err
	}

	subjectJSON, err := json.Marshal(claim.subject)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subject: %w", err)
	}
	salt, err := cryptoutil.NewSalt()
	if err != nil {
		return nil, err
	}
	encData, err := cryptoutil.Seal(subjectJSON, ownerAddr.Bytes(), salt)
	if err != nil {
		return nil, fmt.Errorf("failed to seal subject: %w", err)
	}

	identity := &core.Identity{
		ID:          uuid.New().String(),
		OwnerDID:    ownerDID,
		Context:     claim.context,
		Description: claim.description,
		Issued:      time.Now(),
		IsActive:    true,
		Avatar:      avatar,
		EncData:     encData,
		Salt:        salt,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, err
	}

	s.notify(ctx, ownerDID, core.EventIdentityCreated, identitySnapshot(identity))
	return identity, nil
}

// List returns the caller's identities with subjects decrypted using the
// provided key signature.
func (s *IdentityService) List(ctx context.Context, ownerDID, signature string) ([]core.IdentityView, error) {
	ownerAddr, err := ownerKeyAddress(ownerDID, signature)
	if err != nil {
		return nil, err
	}

	identities, err := s.identities.ListByOwner(ctx, ownerDID)
	if err != nil {
		return nil, err
	}

	views := make([]core.IdentityView, 0, len(identities))
	for _, identity := range identities {
		plaintext, err := cryptoutil.Open(identity.EncData, ownerAddr.Bytes(), identity.Salt)
		if err != nil {
			return nil, fmt.Errorf("identity %s: %w", identity.ID, core.ErrDecryptionFailed)
		}
		var subject core.Subject
		if err := json.Unmarshal(plaintext, &subject); err != nil {
			return nil, fmt.Errorf("identity %s: malformed subject: %w", identity.ID, err)
		}
		views = append(views, identity.View(subject))
	}
	return views, nil
}

// SetActive toggles the visibility of an identity. Only the owner may do so.
func (s *IdentityService) SetActive(ctx context.Context, callerDID, identityID string, active bool) error {
	identity, err := s.identities.Get(ctx, identityID)
	if err != nil {
		return err
	}
	if identity.OwnerDID != callerDID {
		return core.ErrNotOwner
	}
	if err := s.identities.SetActive(ctx, identityID, active); err != nil {
		return err
	}

	identity.IsActive = active
	s.notify(ctx, callerDID, core.EventIdentityUpdated, identitySnapshot(identity))
	return nil
}

// Delete removes the caller's identities with the given ids. Ids the caller
// does not own fail the whole batch before anything is deleted.
func (s *IdentityService) Delete(ctx context.Context, callerDID string, ids ...string) error {
	for _, id := range ids {
		identity, err := s.identities.Get(ctx, id)
		if err != nil {
			return err
		}
		if identity.OwnerDID != callerDID {
			return core.ErrNotOwner
		}
	}
	if err := s.identities.Delete(ctx, ids...); err != nil {
		return err
	}

	s.notify(ctx, callerDID, core.EventIdentityDeleted, map[string]any{"ids": ids})
	return nil
}

// Contexts returns the active (public) context names published by a DID.
func (s *IdentityService) Contexts(ctx context.Context, did string) ([]string, error) {
	identities, err := s.identities.ListByOwner(ctx, did)
	if err != nil {
		return nil, err
	}
	contexts := make([]string, 0, len(identities))
	for _, identity := range identities {
		if identity.IsActive {
			contexts = append(contexts, identity.Context)
		}
	}
	return contexts, nil
}

func (s *IdentityService) notify(ctx context.Context, did, event string, snapshot any) {
	err := s.notifier.Publish(ctx, did, core.Notification{
		Event:     event,
		Context:   snapshot,
		CreatedAt: time.Now(),
	})
	if err != nil {
		// Notifications are best effort; state is queryable over REST.
		logWarn("failed to publish %s for %s: %v", event, did, err)
	}
}

type identityClaim struct {
	context     string
	description string
	subject     core.Subject
}

// parseIdentityClaim pulls the claim fields out of a verified credential's
// credentialSubject.
func parseIdentityClaim(credential map[string]any) (*identityClaim, error) {
	subjectField, ok := credential["credentialSubject"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("credential has no credentialSubject")
	}

	claim := &identityClaim{subject: core.Subject{}}
	for k, v := range subjectField {
		switch k {
		case "context":
			claim.context, _ = v.(string)
		case "description":
			claim.description, _ = v.(string)
		case "id":
			// The subject id repeats the issuer DID; not claim data.
		default:
			claim.subject[k] = v
		}
	}
	if claim.context == "" {
		return nil, fmt.Errorf("credential subject is missing a context")
	}
	return claim, nil
}

// identitySnapshot is the notification payload for identity events.
func identitySnapshot(identity *core.Identity) map[string]any {
	return map[string]any{
		"id":        identity.ID,
		"context":   identity.Context,
		"is_active": identity.IsActive,
	}
}

// ownerKeyAddress recovers the signer of the key message and checks it
// against the address embedded in the DID.
func ownerKeyAddress(did, signature string) (common.Address, error) {
	expected, err := eth.AddressFromDID(did)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", core.ErrInvalidDID, err)
	}
	recovered, err := eth.RecoverSigner(eth.KeyMessage, signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", core.ErrInvalidSignature, err)
	}
	if recovered != expected {
		return common.Address{}, core.ErrInvalidSignature
	}
	return recovered, nil
}
