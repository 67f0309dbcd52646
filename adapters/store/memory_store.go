package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Sleepy9988/decent-identity/core"
	"github.com/Sleepy9988/decent-identity/ports"
)

// MemoryTokenStore is an in-memory refresh-token revocation list.
type MemoryTokenStore struct {
	invalidatedTokens map[string]time.Time
	mu                sync.RWMutex
}

// NewMemoryTokenStore creates a new in-memory token store.
func NewMemoryTokenStore() ports.TokenStore {
	return &MemoryTokenStore{
		invalidatedTokens: make(map[string]time.Time),
	}
}

// InvalidateToken marks a token as invalidated.
func (s *MemoryTokenStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiryTime := time.Now().Add(expiry)
	s.invalidatedTokens[tokenID] = expiryTime

	// Drop the record once it expires on its own.
	go func() {
		time.Sleep(expiry)

		s.mu.Lock()
		defer s.mu.Unlock()

		if storedExpiry, exists := s.invalidatedTokens[tokenID]; exists && !storedExpiry.After(expiryTime) {
			delete(s.invalidatedTokens, tokenID)
		}
	}()

	return nil
}

// IsTokenInvalidated checks if a token is invalidated.
func (s *MemoryTokenStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiryTime, exists := s.invalidatedTokens[tokenID]
	if !exists {
		return false, nil
	}
	if time.Now().After(expiryTime) {
		return false, nil
	}
	return true, nil
}

// MemoryChallengeStore keeps single-use nonces in memory. Consumed and
// expired challenges are retained until twice their TTL has passed so that a
// replay is reported as reused rather than unknown.
type MemoryChallengeStore struct {
	challenges map[string]*core.Challenge
	mu         sync.Mutex
}

// NewMemoryChallengeStore creates a new in-memory challenge store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: make(map[string]*core.Challenge),
	}
}

// Put stores a freshly issued challenge.
func (s *MemoryChallengeStore) Put(ctx context.Context, ch *core.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ch
	s.challenges[ch.Nonce] = &cp
	s.sweepLocked(time.Now())
	return nil
}

// Consume atomically marks a live challenge consumed and returns it.
func (s *MemoryChallengeStore) Consume(ctx context.Context, nonce string) (*core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.lookupLocked(nonce)
	if err != nil {
		return nil, err
	}
	ch.Consumed = true
	ch.ConsumedAt = time.Now()
	cp := *ch
	return &cp, nil
}

// Peek returns a live challenge without consuming it.
func (s *MemoryChallengeStore) Peek(ctx context.Context, nonce string) (*core.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.lookupLocked(nonce)
	if err != nil {
		return nil, err
	}
	cp := *ch
	return &cp, nil
}

func (s *MemoryChallengeStore) lookupLocked(nonce string) (*core.Challenge, error) {
	ch, exists := s.challenges[nonce]
	if !exists {
		return nil, core.ErrChallengeNotFound
	}
	if ch.Consumed {
		return nil, core.ErrChallengeReused
	}
	if time.Now().After(ch.ExpiresAt) {
		return nil, core.ErrChallengeExpired
	}
	return ch, nil
}

func (s *MemoryChallengeStore) sweepLocked(now time.Time) {
	for nonce, ch := range s.challenges {
		ttl := ch.ExpiresAt.Sub(ch.IssuedAt)
		if now.After(ch.ExpiresAt.Add(ttl)) {
			delete(s.challenges, nonce)
		}
	}
}

// MemoryProfileStore keeps DID profiles in memory.
type MemoryProfileStore struct {
	profiles map[string]*core.Profile
	mu       sync.Mutex
}

// NewMemoryProfileStore creates a new in-memory profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]*core.Profile)}
}

// Touch creates or refreshes the profile for did.
func (s *MemoryProfileStore) Touch(ctx context.Context, did string, now time.Time) (*core.Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, exists := s.profiles[did]; exists {
		p.LastAccessAt = now
		cp := *p
		return &cp, true, nil
	}
	p := &core.Profile{DID: did, CreatedAt: now, LastAccessAt: now}
	s.profiles[did] = p
	cp := *p
	return &cp, false, nil
}

// Get returns the profile for did.
func (s *MemoryProfileStore) Get(ctx context.Context, did string) (*core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.profiles[did]
	if !exists {
		return nil, core.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

// MemoryIdentityStore keeps identity claims in memory.
type MemoryIdentityStore struct {
	identities map[string]*core.Identity
	mu         sync.RWMutex
}

// NewMemoryIdentityStore creates a new in-memory identity store.
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{identities: make(map[string]*core.Identity)}
}

// Create stores a new identity. The (owner, context, description) triple must
// be unique, matching the backing schema constraint.
func (s *MemoryIdentityStore) Create(ctx context.Context, id *core.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.identities {
		if existing.OwnerDID == id.OwnerDID && existing.Context == id.Context && existing.Description == id.Description {
			return core.ErrIdentityExists
		}
	}
	cp := *id
	s.identities[id.ID] = &cp
	return nil
}

// Get returns the identity with the given id.
func (s *MemoryIdentityStore) Get(ctx context.Context, id string) (*core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, exists := s.identities[id]
	if !exists {
		return nil, core.ErrIdentityNotFound
	}
	cp := *identity
	return &cp, nil
}

// ListByOwner returns all identities owned by ownerDID, newest first.
func (s *MemoryIdentityStore) ListByOwner(ctx context.Context, ownerDID string) ([]*core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Identity
	for _, identity := range s.identities {
		if identity.OwnerDID == ownerDID {
			cp := *identity
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Issued.After(out[j].Issued) })
	return out, nil
}

// ActiveContext returns the active identity of ownerDID for a context name.
func (s *MemoryIdentityStore) ActiveContext(ctx context.Context, ownerDID, contextName string) (*core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, identity := range s.identities {
		if identity.OwnerDID == ownerDID && identity.Context == contextName && identity.IsActive {
			cp := *identity
			return &cp, nil
		}
	}
	return nil, core.ErrIdentityNotFound
}

// SetActive toggles the visibility of an identity.
func (s *MemoryIdentityStore) SetActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, exists := s.identities[id]
	if !exists {
		return core.ErrIdentityNotFound
	}
	identity.IsActive = active
	return nil
}

// Delete removes the identities with the given ids. Unknown ids are ignored.
func (s *MemoryIdentityStore) Delete(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.identities, id)
	}
	return nil
}

// MemoryRequestStore keeps access requests in memory.
type MemoryRequestStore struct {
	requests map[string]*core.AccessRequest
	mu       sync.RWMutex
}

// NewMemoryRequestStore creates a new in-memory request store.
func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{requests: make(map[string]*core.AccessRequest)}
}

// Create stores a new access request.
func (s *MemoryRequestStore) Create(ctx context.Context, r *core.AccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.requests[r.ID] = &cp
	return nil
}

// Get returns the access request with the given id.
func (s *MemoryRequestStore) Get(ctx context.Context, id string) (*core.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.requests[id]
	if !exists {
		return nil, core.ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

// ListByParty returns all requests where did is requestor or holder, newest
// first.
func (s *MemoryRequestStore) ListByParty(ctx context.Context, did string) ([]*core.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.AccessRequest
	for _, r := range s.requests {
		if r.RequestorDID == did || r.HolderDID == did {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Update replaces the stored request.
func (s *MemoryRequestStore) Update(ctx context.Context, r *core.AccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[r.ID]; !exists {
		return core.ErrRequestNotFound
	}
	cp := *r
	s.requests[r.ID] = &cp
	return nil
}

// Delete removes a request.
func (s *MemoryRequestStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[id]; !exists {
		return core.ErrRequestNotFound
	}
	delete(s.requests, id)
	return nil
}
