package cache

import (
	"sync"
	"time"
)

// MockStore is a map-backed ByteStore for tests. It ignores TTLs.
type MockStore struct {
	mu    sync.Mutex
	name  string
	data  map[string][]byte
	stats Stats
}

// NewMockStore creates a new mock store for testing.
func NewMockStore(name string) *MockStore {
	return &MockStore{
		name: name,
		data: make(map[string][]byte),
	}
}

func (m *MockStore) Name() string { return m.name }

func (m *MockStore) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, found := m.data[key]
	if found {
		m.stats.Hits++
	} else {
		m.stats.Misses++
	}
	return val, found
}

func (m *MockStore) Set(key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.stats.Sets++
}

func (m *MockStore) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return false
	}
	delete(m.data, key)
	m.stats.Deletes++
	return true
}

func (m *MockStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
}

func (m *MockStore) ResetStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = Stats{}
}

func (m *MockStore) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Size = len(m.data)
	s.MaxSize = -1
	s.HitRate = formatHitRate(s.Hits, s.Misses)
	return s
}
