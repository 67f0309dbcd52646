package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sleepy9988/decent-identity/core"
)

func liveChallenge(nonce string) *core.Challenge {
	now := time.Now()
	return &core.Challenge{
		Nonce:     nonce,
		IssuedAt:  now,
		ExpiresAt: now.Add(5 * time.Minute),
	}
}

func TestChallengeConsumeOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChallengeStore()

	require.NoError(t, store.Put(ctx, liveChallenge("nonce-1")))

	ch, err := store.Consume(ctx, "nonce-1")
	require.NoError(t, err)
	require.True(t, ch.Consumed)
	require.False(t, ch.ConsumedAt.IsZero())

	_, err = store.Consume(ctx, "nonce-1")
	require.ErrorIs(t, err, core.ErrChallengeReused)

	_, err = store.Peek(ctx, "nonce-1")
	require.ErrorIs(t, err, core.ErrChallengeReused)
}

func TestChallengeConsumeConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChallengeStore()
	require.NoError(t, store.Put(ctx, liveChallenge("nonce-race")))

	const goroutines = 16
	var wg sync.WaitGroup
	results := make(chan error, goroutines)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Consume(ctx, "nonce-race")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, reuses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, core.ErrChallengeReused)
			reuses++
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, goroutines-1, reuses)
}

func TestChallengePeekDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChallengeStore()
	require.NoError(t, store.Put(ctx, liveChallenge("nonce-2")))

	_, err := store.Peek(ctx, "nonce-2")
	require.NoError(t, err)

	_, err = store.Consume(ctx, "nonce-2")
	require.NoError(t, err)
}

func TestChallengeClassification(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChallengeStore()

	_, err := store.Consume(ctx, "never-issued")
	require.ErrorIs(t, err, core.ErrChallengeNotFound)

	expired := liveChallenge("nonce-expired")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Put(ctx, expired))

	_, err = store.Consume(ctx, "nonce-expired")
	require.ErrorIs(t, err, core.ErrChallengeExpired)
}

func TestTokenStoreInvalidate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore()

	invalidated, err := store.IsTokenInvalidated(ctx, "token-1")
	require.NoError(t, err)
	require.False(t, invalidated)

	require.NoError(t, store.InvalidateToken(ctx, "token-1", time.Hour))

	invalidated, err = store.IsTokenInvalidated(ctx, "token-1")
	require.NoError(t, err)
	require.True(t, invalidated)
}

func TestProfileTouch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryProfileStore()
	did := "did:ethr:0x1111111111111111111111111111111111111111"

	first := time.Now().Add(-time.Hour)
	p, existed, err := store.Touch(ctx, did, first)
	require.NoError(t, err)
	require.False(t, existed)
	require.Equal(t, first, p.CreatedAt)
	require.Equal(t, first, p.LastAccessAt)

	second := time.Now()
	p, existed, err = store.Touch(ctx, did, second)
	require.NoError(t, err)
	require.True(t, existed)
	require.Equal(t, first, p.CreatedAt)
	require.Equal(t, second, p.LastAccessAt)

	_, err = store.Get(ctx, "did:ethr:0x2222222222222222222222222222222222222222")
	require.ErrorIs(t, err, core.ErrProfileNotFound)
}

func TestIdentityStoreUniqueTriple(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdentityStore()
	owner := "did:ethr:0x1111111111111111111111111111111111111111"

	id := &core.Identity{ID: "a", OwnerDID: owner, Context: "university", Description: "BSc", Issued: time.Now(), IsActive: true}
	require.NoError(t, store.Create(ctx, id))

	dup := &core.Identity{ID: "b", OwnerDID: owner, Context: "university", Description: "BSc"}
	require.ErrorIs(t, store.Create(ctx, dup), core.ErrIdentityExists)

	// Same context with a different description is a distinct claim.
	other := &core.Identity{ID: "c", OwnerDID: owner, Context: "university", Description: "MSc", Issued: time.Now()}
	require.NoError(t, store.Create(ctx, other))
}

func TestIdentityStoreListByOwnerOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdentityStore()
	owner := "did:ethr:0x1111111111111111111111111111111111111111"

	now := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, store.Create(ctx, &core.Identity{
			ID:       id,
			OwnerDID: owner,
			Context:  "ctx-" + id,
			Issued:   now.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.Create(ctx, &core.Identity{
		ID:       "foreign",
		OwnerDID: "did:ethr:0x2222222222222222222222222222222222222222",
		Context:  "other",
		Issued:   now,
	}))

	out, err := store.ListByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, "new", out[0].ID)
	require.Equal(t, "mid", out[1].ID)
	require.Equal(t, "old", out[2].ID)
}

func TestIdentityStoreActiveContext(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdentityStore()
	owner := "did:ethr:0x1111111111111111111111111111111111111111"

	id := &core.Identity{ID: "a", OwnerDID: owner, Context: "employer", IsActive: true, Issued: time.Now()}
	require.NoError(t, store.Create(ctx, id))

	got, err := store.ActiveContext(ctx, owner, "employer")
	require.NoError(t, err)
	require.Equal(t, "a", got.ID)

	require.NoError(t, store.SetActive(ctx, "a", false))
	_, err = store.ActiveContext(ctx, owner, "employer")
	require.ErrorIs(t, err, core.ErrIdentityNotFound)

	_, err = store.ActiveContext(ctx, owner, "unknown")
	require.ErrorIs(t, err, core.ErrIdentityNotFound)
}

func TestIdentityStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdentityStore()
	owner := "did:ethr:0x1111111111111111111111111111111111111111"

	require.NoError(t, store.Create(ctx, &core.Identity{ID: "a", OwnerDID: owner, Context: "x", Issued: time.Now()}))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	got.Context = "mutated"

	again, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "x", again.Context)
}

func TestRequestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRequestStore()

	holder := "did:ethr:0x1111111111111111111111111111111111111111"
	requestor := "did:ethr:0x2222222222222222222222222222222222222222"

	r := &core.AccessRequest{
		ID:           "r1",
		RequestorDID: requestor,
		HolderDID:    holder,
		Context:      "university",
		Status:       core.StatusPending,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, store.Create(ctx, r))

	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, core.StatusPending, got.Status)

	got.Status = core.StatusDeclined
	require.NoError(t, store.Update(ctx, got))

	got, err = store.Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, core.StatusDeclined, got.Status)

	// Both parties see the request; a stranger does not.
	for _, did := range []string{holder, requestor} {
		out, err := store.ListByParty(ctx, did)
		require.NoError(t, err)
		require.Len(t, out, 1)
	}
	out, err := store.ListByParty(ctx, "did:ethr:0x3333333333333333333333333333333333333333")
	require.NoError(t, err)
	require.Empty(t, out)

	require.NoError(t, store.Delete(ctx, "r1"))
	_, err = store.Get(ctx, "r1")
	require.ErrorIs(t, err, core.ErrRequestNotFound)

	require.ErrorIs(t, store.Update(ctx, r), core.ErrRequestNotFound)
}
