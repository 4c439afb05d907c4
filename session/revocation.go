package session

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// =============================================================================
// MEMORY REVOCATIONS
// =============================================================================

// MemoryRevocations keeps revoked ids in process memory.
type MemoryRevocations struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocations returns an empty in-process revocation list.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{entries: make(map[string]time.Time), now: time.Now}
}

// Revoke marks jti revoked for ttl and drops expired entries.
func (m *MemoryRevocations) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[jti] = m.now().Add(ttl)
	m.pruneLocked()
	return nil
}

// IsRevoked reports whether jti is revoked and not yet expired.
func (m *MemoryRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.entries[jti]
	if !ok {
		return false, nil
	}
	if !m.now().Before(until) {
		delete(m.entries, jti)
		return false, nil
	}
	return true, nil
}

func (m *MemoryRevocations) pruneLocked() {
	now := m.now()
	for jti, until := range m.entries {
		if !now.Before(until) {
			delete(m.entries, jti)
		}
	}
}

// =============================================================================
// REDIS REVOCATIONS
// =============================================================================

const revokedPrefix = "planner:token:revoked:"

// RedisRevocations stores revoked ids as expiring keys.
type RedisRevocations struct {
	rdb *goredis.Client
}

// NewRedisRevocations stores revocations in rdb.
func NewRedisRevocations(rdb *goredis.Client) *RedisRevocations {
	return &RedisRevocations{rdb: rdb}
}

// Revoke sets an expiring key for jti. A non-positive ttl is a no-op.
func (r *RedisRevocations) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.rdb.Set(ctx, revokedPrefix+jti, "1", ttl).Err()
}

// IsRevoked reports whether the key for jti exists.
func (r *RedisRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
