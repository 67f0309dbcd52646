package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sleepy9988/decent-identity/core"
	"github.com/Sleepy9988/decent-identity/ports"
)

// RedisTokenStore is a Redis implementation of the token revocation list.
type RedisTokenStore struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenStore creates a new Redis token store.
func NewRedisTokenStore(client *redis.Client) ports.TokenStore {
	return &RedisTokenStore{
		client: client,
		prefix: "decentid:invalidated:",
	}
}

// InvalidateToken marks a token as invalidated in Redis.
func (s *RedisTokenStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	key := s.prefix + tokenID

	if err := s.client.Set(ctx, key, "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}

// IsTokenInvalidated checks if a token is invalidated in Redis.
func (s *RedisTokenStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	key := s.prefix + tokenID

	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	return val > 0, nil
}

// RedisChallengeStore keeps single-use nonces in Redis. A consumed nonce is
// rewritten in place so a replay within the retention window reports reuse;
// the key TTL is twice the challenge TTL for that reason.
type RedisChallengeStore struct {
	client *redis.Client
	prefix string
}

// NewRedisChallengeStore creates a new Redis challenge store.
func NewRedisChallengeStore(client *redis.Client) ports.ChallengeStore {
	return &RedisChallengeStore{
		client: client,
		prefix: "decentid:challenge:",
	}
}

type redisChallenge struct {
	Nonce      string    `json:"nonce"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Consumed   bool      `json:"consumed"`
	ConsumedAt time.Time `json:"consumed_at,omitzero"`
}

// Put stores a freshly issued challenge.
func (s *RedisChallengeStore) Put(ctx context.Context, ch *core.Challenge) error {
	key := s.prefix + ch.Nonce
	payload, err := json.Marshal(redisChallenge{
		Nonce:     ch.Nonce,
		IssuedAt:  ch.IssuedAt,
		ExpiresAt: ch.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	retention := 2 * ch.ExpiresAt.Sub(ch.IssuedAt)
	if err := s.client.Set(ctx, key, payload, retention).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

// consumedSentinel is what consumeScript returns for an already consumed key.
const consumedSentinel = "REUSED"

// consumeRetentionFallback guards the consumed marker when the key carries no
// TTL, which only happens if the retention expired between GET and SET.
const consumeRetentionFallback = 10 * time.Minute

// consumeScript reads, checks and marks a challenge in one atomic step, so a
// consumer losing the race always finds the consumed marker in place. Returns
// the original payload, the reuse sentinel, or nil for an unknown key.
var consumeScript = redis.NewScript(`
local val = redis.call('GET', KEYS[1])
if not val then
	return false
end
local ch = cjson.decode(val)
if ch.consumed then
	return '` + consumedSentinel + `'
end
ch.consumed = true
ch.consumed_at = ARGV[1]
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
	ttl = tonumber(ARGV[2])
end
redis.call('SET', KEYS[1], cjson.encode(ch), 'PX', ttl)
return val
`)

// Consume marks a live challenge consumed and returns it.
func (s *RedisChallengeStore) Consume(ctx context.Context, nonce string) (*core.Challenge, error) {
	key := s.prefix + nonce
	now := time.Now()

	val, err := consumeScript.Run(ctx, s.client, []string{key},
		now.UTC().Format(time.RFC3339Nano),
		consumeRetentionFallback.Milliseconds(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}
	if val == consumedSentinel {
		return nil, core.ErrChallengeReused
	}

	var rc redisChallenge
	if err := json.Unmarshal([]byte(val), &rc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}
	if now.After(rc.ExpiresAt) {
		return nil, core.ErrChallengeExpired
	}
	return &core.Challenge{
		Nonce:      rc.Nonce,
		IssuedAt:   rc.IssuedAt,
		ExpiresAt:  rc.ExpiresAt,
		Consumed:   true,
		ConsumedAt: now,
	}, nil
}

// Peek returns a live challenge without consuming it.
func (s *RedisChallengeStore) Peek(ctx context.Context, nonce string) (*core.Challenge, error) {
	key := s.prefix + nonce

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read challenge: %w", err)
	}

	var rc redisChallenge
	if err := json.Unmarshal([]byte(val), &rc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}
	if rc.Consumed {
		return nil, core.ErrChallengeReused
	}
	if time.Now().After(rc.ExpiresAt) {
		return nil, core.ErrChallengeExpired
	}
	return &core.Challenge{Nonce: rc.Nonce, IssuedAt: rc.IssuedAt, ExpiresAt: rc.ExpiresAt}, nil
}

// RedisProfileStore keeps DID profiles as JSON documents.
type RedisProfileStore struct {
	client *redis.Client
	prefix string
}

// NewRedisProfileStore creates a new Redis profile store.
func NewRedisProfileStore(client *redis.Client) ports.ProfileStore {
	return &RedisProfileStore{client: client, prefix: "decentid:profile:"}
}

// Touch creates or refreshes the profile for did.
func (s *RedisProfileStore) Touch(ctx context.Context, did string, now time.Time) (*core.Profile, bool, error) {
	key := s.prefix + did

	val, err := s.client.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		p := &core.Profile{DID: did, CreatedAt: now, LastAccessAt: now}
		if err := s.write(ctx, key, p); err != nil {
			return nil, false, err
		}
		return p, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("failed to read profile: %w", err)
	}

	var p core.Profile
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	p.LastAccessAt = now
	if err := s.write(ctx, key, &p); err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

// Get returns the profile for did.
func (s *RedisProfileStore) Get(ctx context.Context, did string) (*core.Profile, error) {
	val, err := s.client.Get(ctx, s.prefix+did).Result()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	var p core.Profile
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &p, nil
}

func (s *RedisProfileStore) write(ctx context.Context, key string, p *core.Profile) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := s.client.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}
