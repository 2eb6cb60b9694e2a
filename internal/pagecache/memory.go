package pagecache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memEntry struct {
	val       []byte
	expiresAt time.Time
}

// MemoryBackend keeps entries in process memory. It serves single-instance
// deployments and tests.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memEntry), now: time.Now}
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok || !m.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return e.val, true, nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memEntry{val: val, expiresAt: m.now().Add(ttl)}
	return nil
}

// DeletePrefix removes every key starting with prefix, and any expired entry it walks past.
func (m *MemoryBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	deleted := 0
	for k, e := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
			deleted++
		} else if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	return deleted, nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
