package querycache

import (
	"context"
	"sync"
	"time"
)

// Memory is the in-process cache backend, used when no Redis is
// configured and as the test double.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	recent  []string

	// now is swappable for TTL tests.
	now func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok || m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return false, nil
	}
	return true, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) UpdateTTL(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil
	}
	entry.expiresAt = m.now().Add(ttl)
	m.entries[key] = entry
	return nil
}

func (m *Memory) PushRecent(_ context.Context, query string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	filtered := make([]string, 0, len(m.recent)+1)
	filtered = append(filtered, query)
	for _, q := range m.recent {
		if q != query {
			filtered = append(filtered, q)
		}
	}
	if len(filtered) > MaxRecent {
		filtered = filtered[:MaxRecent]
	}
	m.recent = filtered
	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > MaxRecent {
		limit = MaxRecent
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit > len(m.recent) {
		limit = len(m.recent)
	}
	out := make([]string, limit)
	copy(out, m.recent[:limit])
	return out, nil
}
