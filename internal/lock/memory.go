package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker implements Locker using in-memory locks.
// This is suitable for single-node deployments where distributed locking is
// not needed. The locks are NOT shared across process restarts or instances.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
}

// NewMemoryLocker creates a new in-memory locker.
func NewMemoryLocker() *MemoryLocker {
	ml := &MemoryLocker{
		locks: make(map[string]time.Time),
	}

	// Reap expired locks in the background.
	go ml.cleanupLoop()

	return ml
}

// cleanupLoop periodically removes expired locks.
func (m *MemoryLocker) cleanupLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.cleanup()
	}
}

// cleanup removes expired locks.
func (m *MemoryLocker) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, expiresAt := range m.locks {
		if now.After(expiresAt) {
			delete(m.locks, key)
		}
	}
}

// Acquire attempts to acquire a lock.
func (m *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if expiresAt, held := m.locks[key]; held && time.Now().Before(expiresAt) {
		return false, nil
	}
	m.locks[key] = time.Now().Add(ttl)
	return true, nil
}

// Release releases a lock.
func (m *MemoryLocker) Release(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[key]; !held {
		return false, nil
	}
	delete(m.locks, key)
	return true, nil
}

// Extend extends the TTL of a held lock.
func (m *MemoryLocker) Extend(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt, held := m.locks[key]
	if !held || time.Now().After(expiresAt) {
		return false, nil
	}
	m.locks[key] = time.Now().Add(ttl)
	return true, nil
}
