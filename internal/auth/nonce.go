package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNonceTTL bounds how long a wallet challenge stays valid.
const DefaultNonceTTL = 5 * time.Minute

// NonceStore issues and single-use-validates wallet authentication
// challenges. Only the most recently issued nonce per address is valid.
type NonceStore interface {
	// Issue generates a fresh nonce for the normalized address, replacing
	// any prior challenge. Returns ErrValidation for malformed addresses.
	Issue(ctx context.Context, address string) (string, error)
	// Consume validates and burns the nonce. Fails closed (false, nil) on
	// unknown address, mismatch, reuse, or expiry.
	Consume(ctx context.Context, address, nonce string) (bool, error)
}

// generateNonce returns 16 bytes of entropy, hex-encoded.
func generateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

type nonceEntry struct {
	nonce     string
	expiresAt time.Time
	used      bool
}

// MemoryNonceStore keeps challenges in process memory. Suitable for a single
// instance only; multi-instance deployments need the Redis store so a nonce
// issued on one instance is consumable on another.
type MemoryNonceStore struct {
	mu      sync.Mutex
	entries map[string]*nonceEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryNonceStore creates an in-process nonce store with the given TTL.
func NewMemoryNonceStore(ttl time.Duration) *MemoryNonceStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &MemoryNonceStore{
		entries: make(map[string]*nonceEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Issue implements NonceStore.
func (s *MemoryNonceStore) Issue(_ context.Context, address string) (string, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return "", err
	}

	nonce, err := generateNonce()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked()

	s.entries[addr] = &nonceEntry{
		nonce:     nonce,
		expiresAt: s.now().Add(s.ttl),
	}
	return nonce, nil
}

// Consume implements NonceStore. The used flag flips exactly once; replays
// are rejected even before expiry.
func (s *MemoryNonceStore) Consume(_ context.Context, address, nonce string) (bool, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked()

	entry, ok := s.entries[addr]
	if !ok {
		return false, nil
	}
	if entry.used || entry.nonce != nonce {
		return false, nil
	}
	if s.now().After(entry.expiresAt) {
		return false, nil
	}
	entry.used = true
	return true, nil
}

// purgeExpiredLocked drops expired entries. Amortized cleanup only; expiry
// is independently checked on consume.
func (s *MemoryNonceStore) purgeExpiredLocked() {
	now := s.now()
	for addr, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, addr)
		}
	}
}

const nonceKeyPrefix = "auth:nonce:"

// consumeNonceScript deletes the stored nonce only if it matches the
// supplied value, making check-and-burn atomic across instances.
var consumeNonceScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisNonceStore keeps challenges in a shared cache keyed by address, with
// per-key TTL. SET on issue overwrites any prior challenge; a Lua script
// makes consumption atomic so exactly one concurrent check can succeed.
type RedisNonceStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisNonceStore creates a Redis-backed nonce store with the given TTL.
func NewRedisNonceStore(client *redis.Client, ttl time.Duration) *RedisNonceStore {
	if ttl <= 0 {
		ttl = DefaultNonceTTL
	}
	return &RedisNonceStore{client: client, ttl: ttl}
}

// Issue implements NonceStore.
func (s *RedisNonceStore) Issue(ctx context.Context, address string) (string, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return "", err
	}

	nonce, err := generateNonce()
	if err != nil {
		return "", err
	}

	if err := s.client.Set(ctx, nonceKeyPrefix+addr, nonce, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store nonce: %w", err)
	}
	return nonce, nil
}

// Consume implements NonceStore. Expiry is enforced by the key TTL; the
// delete-if-match script prevents double consumption.
func (s *RedisNonceStore) Consume(ctx context.Context, address, nonce string) (bool, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return false, err
	}

	n, err := consumeNonceScript.Run(ctx, s.client, []string{nonceKeyPrefix + addr}, nonce).Int()
	if err != nil {
		return false, fmt.Errorf("consume nonce: %w", err)
	}
	return n == 1, nil
}
