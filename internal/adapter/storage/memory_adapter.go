package storage

import (
	"context"
	"sync"
	"time"
)

// sweepInterval spaces out full scans for expired entries.
const sweepInterval = time.Minute

// MemoryAdapter is the single-process stand-in for RedisAdapter, used when no Redis
// address is configured. Keys expire on access, and inserts sweep out expired
// entries at most once per sweepInterval.
type MemoryAdapter struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *MemoryAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.liveLocked(key) {
		return false, nil
	}
	m.insertLocked(key, idempotencyKeyTTL)
	return true, nil
}

func (m *MemoryAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *MemoryAdapter) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.insertLocked(revokedKeyPrefix+tokenID, ttl)
	return nil
}

func (m *MemoryAdapter) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.liveLocked(revokedKeyPrefix + tokenID), nil
}

func (m *MemoryAdapter) insertLocked(key string, ttl time.Duration) {
	now := m.now()
	if now.Sub(m.lastSweep) >= sweepInterval {
		for k, expiresAt := range m.entries {
			if !now.Before(expiresAt) {
				delete(m.entries, k)
			}
		}
		m.lastSweep = now
	}
	m.entries[key] = now.Add(ttl)
}

func (m *MemoryAdapter) liveLocked(key string) bool {
	expiresAt, ok := m.entries[key]
	if !ok {
		return false
	}
	if !m.now().Before(expiresAt) {
		delete(m.entries, key)
		return false
	}
	return true
}
