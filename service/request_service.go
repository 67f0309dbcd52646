package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sleepy9988/decent-identity/core"
	"github.com/Sleepy9988/decent-identity/internal/cryptoutil"
	"github.com/Sleepy9988/decent-identity/internal/eth"
	"github.com/Sleepy9988/decent-identity/ports"
)

// RequestService is the access request engine: it owns the request state
// machine and the signature-gated data release step. All transitions on a
// request are serialized through a per-request lock so a race between
// concurrent decisions resolves to exactly one winner; the loser observes
// core.ErrInvalidTransition.
type RequestService struct {
	requests   ports.RequestStore
	identities ports.IdentityStore
	challenges ports.ChallengeStore
	verifier   ports.PresentationVerifier
	notifier   ports.Notifier

	challengeTTL time.Duration
	locks        keyedMutex
}

// NewRequestService creates a new access request engine.
func NewRequestService(
	requests ports.RequestStore,
	identities ports.IdentityStore,
	challenges ports.ChallengeStore,
	verifier ports.PresentationVerifier,
	notifier ports.Notifier,
) *RequestService {
	return &RequestService{
		requests:     requests,
		identities:   identities,
		challenges:   challenges,
		verifier:     verifier,
		notifier:     notifier,
		challengeTTL: 5 * time.Minute,
	}
}

// IssueChallenge creates a single-use nonce binding a request credential to
// this creation attempt. Shares the nonce space and TTL of login challenges.
func (s *RequestService) IssueChallenge(ctx context.Context) (string, error) {
	nonce, err := cryptoutil.NewNonce()
	if err != nil {
		return "", err
	}
	now := time.Now()
	ch := &core.Challenge{
		Nonce:     nonce,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.challengeTTL),
	}
	if err := s.challenges.Put(ctx, ch); err != nil {
		return "", fmt.Errorf("failed to store challenge: %w", err)
	}
	return nonce, nil
}

// Create verifies a signed request credential and opens a Pending request.
// The presentation's issuer must be the session holder, the target context
// must exist and be active, and self-requests are rejected.
func (s *RequestService) Create(ctx context.Context, callerDID string, presentation map[string]any, nonce string) (*core.AccessRequest, error) {
	if _, err := s.challenges.Peek(ctx, nonce); err != nil {
		return nil, err
	}

	issuer, err := s.verifier.VerifyPresentation(ctx, presentation, nonce)
	if err != nil {
		return nil, fmt.Errorf("request credential verification failed: %w", err)
	}
	if issuer != callerDID {
		return nil, fmt.Errorf("credential issued by %s, session owned by %s: %w", issuer, callerDID, core.ErrAuthenticationFailed)
	}

	// Local claim checks run before the nonce is burned so a malformed
	// credential leaves the challenge retryable, same as failed logins.
	claim, err := parseRequestClaim(presentation)
	if err != nil {
		return nil, err
	}
	if claim.holderDID == callerDID {
		return nil, core.ErrSelfRequest
	}
	if !core.ValidDID(claim.holderDID) {
		return nil, core.ErrInvalidDID
	}

	if _, err := s.challenges.Consume(ctx, nonce); err != nil {
		return nil, err
	}

	// The requested context must be published and active.
	if _, err := s.identities.ActiveContext(ctx, claim.holderDID, claim.context); err != nil {
		return nil, err
	}

	request := &core.AccessRequest{
		ID:           uuid.New().String(),
		RequestorDID: callerDID,
		HolderDID:    claim.holderDID,
		Context:      claim.context,
		Purpose:      claim.purpose,
		Status:       core.StatusPending,
		CreatedAt:    time.Now(),
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, err
	}

	s.notify(ctx, request.HolderDID, core.EventRequestCreated, request)
	return request, nil
}

// Decide applies a holder decision (Approve, Decline or Revoke) to a request.
// Transitions from a terminal state, or by any actor but the holder, fail
// with core.ErrInvalidTransition and leave the request untouched.
func (s *RequestService) Decide(ctx context.Context, callerDID, requestID string, decision core.Decision) (*core.AccessRequest, error) {
	unlock := s.locks.lock(requestID)
	defer unlock()

	request, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if callerDID != request.HolderDID {
		return nil, core.ErrInvalidTransition
	}

	now := time.Now()
	effective := request.EffectiveStatus(now)

	var event string
	switch d := decision.(type) {
	case core.Approve:
		if effective != core.StatusPending {
			return nil, core.ErrInvalidTransition
		}
		if !d.ExpiresAt.After(now) {
			return nil, fmt.Errorf("expiry must be in the future: %w", core.ErrInvalidTransition)
		}
		if err := s.shareSubject(ctx, request, d.HolderSignature); err != nil {
			return nil, err
		}
		request.Status = core.StatusApproved
		request.DecidedAt = now
		request.ExpiresAt = d.ExpiresAt
		event = core.EventRequestApproved

	case core.Decline:
		if effective != core.StatusPending {
			return nil, core.ErrInvalidTransition
		}
		request.Status = core.StatusDeclined
		request.DecidedAt = now
		request.DeclineReason = d.Reason
		event = core.EventRequestDeclined

	case core.Revoke:
		if effective != core.StatusApproved {
			return nil, core.ErrInvalidTransition
		}
		request.Status = core.StatusRevoked
		request.DecidedAt = now
		request.SharedData = nil
		request.SharedSalt = nil
		event = core.EventRequestRevoked

	default:
		return nil, core.ErrInvalidTransition
	}

	if err := s.requests.Update(ctx, request); err != nil {
		return nil, err
	}

	s.notify(ctx, request.RequestorDID, event, request)
	return request, nil
}

// Cancel deletes a Pending request. Only the requestor may cancel, and only
// while the request is still pending.
func (s *RequestService) Cancel(ctx context.Context, callerDID, requestID string) error {
	unlock := s.locks.lock(requestID)
	defer unlock()

	request, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if callerDID != request.RequestorDID {
		return core.ErrInvalidTransition
	}
	if request.EffectiveStatus(time.Now()) != core.StatusPending {
		return core.ErrInvalidTransition
	}
	return s.requests.Delete(ctx, requestID)
}

// List returns all requests involving did, with lazy expiry applied so an
// overdue approval uniformly reads as Expired on every read path.
func (s *RequestService) List(ctx context.Context, did string) ([]*core.AccessRequest, error) {
	requests, err := s.requests.ListByParty(ctx, did)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for _, r := range requests {
		r.Status = r.EffectiveStatus(now)
	}
	return requests, nil
}

// Release is the data release gate. It returns the shared subject when the
// request is effectively Approved AND the presented signature recovers the
// requestor's key. State alone is not enough: a caller without the
// requestor's signing capability gets core.ErrDecryptionFailed even on an
// approved, unexpired request.
func (s *RequestService) Release(ctx context.Context, callerDID, requestID, signature string) (core.Subject, error) {
	unlock := s.locks.lock(requestID)
	defer unlock()

	request, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if callerDID != request.RequestorDID {
		return nil, core.ErrNotRequestor
	}

	switch request.EffectiveStatus(time.Now()) {
	case core.StatusApproved:
	case core.StatusExpired:
		return nil, core.ErrRequestExpired
	default:
		return nil, core.ErrRequestNotApproved
	}

	// The recovered signer address is the key material. A forged or stale
	// signature recovers some other address and the seal will not open.
	recovered, err := eth.RecoverSigner(eth.KeyMessage, signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrDecryptionFailed, err)
	}
	plaintext, err := cryptoutil.Open(request.SharedData, recovered.Bytes(), request.SharedSalt)
	if err != nil {
		return nil, core.ErrDecryptionFailed
	}

	var subject core.Subject
	if err := json.Unmarshal(plaintext, &subject); err != nil {
		return nil, fmt.Errorf("malformed shared payload: %w", err)
	}
	return subject, nil
}

// shareSubject unseals the holder's identity subject and reseals a copy for
// the requestor on the request itself.
func (s *RequestService) shareSubject(ctx context.Context, request *core.AccessRequest, holderSignature string) error {
	identity, err := s.identities.ActiveContext(ctx, request.HolderDID, request.Context)
	if err != nil {
		return err
	}

	holderAddr, err := ownerKeyAddress(request.HolderDID, holderSignature)
	if err != nil {
		return err
	}
	plaintext, err := cryptoutil.Open(identity.EncData, holderAddr.Bytes(), identity.Salt)
	if err != nil {
		return core.ErrDecryptionFailed
	}

	requestorAddr, err := eth.AddressFromDID(request.RequestorDID)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidDID, err)
	}
	salt, err := cryptoutil.NewSalt()
	if err != nil {
		return err
	}
	sealed, err := cryptoutil.Seal(plaintext, requestorAddr.Bytes(), salt)
	if err != nil {
		return fmt.Errorf("failed to seal shared subject: %w", err)
	}

	request.SharedData = sealed
	request.SharedSalt = salt
	return nil
}

func (s *RequestService) notify(ctx context.Context, did, event string, request *core.AccessRequest) {
	err := s.notifier.Publish(ctx, did, core.Notification{
		Event:     event,
		Context:   request,
		CreatedAt: time.Now(),
	})
	if err != nil {
		logWarn("failed to publish %s for %s: %v", event, did, err)
	}
}

type requestClaim struct {
	holderDID string
	context   string
	purpose   string
}

// parseRequestClaim pulls the request fields out of the first credential
// embedded in a verified presentation.
func parseRequestClaim(presentation map[string]any) (*requestClaim, error) {
	vcs, ok := presentation["verifiableCredential"].([]any)
	if !ok || len(vcs) == 0 {
		return nil, fmt.Errorf("presentation carries no credential")
	}
	credential, ok := vcs[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("presentation carries a malformed credential")
	}
	subject, ok := credential["credentialSubject"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("credential has no credentialSubject")
	}

	claim := &requestClaim{}
	claim.holderDID, _ = subject["holder"].(string)
	claim.context, _ = subject["context"].(string)
	claim.purpose, _ = subject["purpose"].(string)
	if claim.holderDID == "" || claim.context == "" {
		return nil, fmt.Errorf("request credential is missing holder or context")
	}
	return claim, nil
}

// keyedMutex serializes work per request ID.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*entryLock)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &entryLock{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
