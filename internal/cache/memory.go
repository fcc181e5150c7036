package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type memoryEntry struct {
	key       string
	value     string
	expiresAt time.Time
}

// Memory is a thread-safe in-process Cache with LRU eviction and per-entry
// TTL expiration. It exists for cache-less deployments and tests; production
// setups use Redis.
type Memory struct {
	mu        sync.Mutex
	capacity  int
	items     map[string]*list.Element
	evictList *list.List
	hits      atomic.Int64
	misses    atomic.Int64
}

// NewMemory creates an in-memory cache holding at most capacity entries.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Memory{
		capacity:  capacity,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
}

// Get returns the cached value for key, or false if missing or expired.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		m.misses.Add(1)
		return "", false, nil
	}

	entry := elem.Value.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		m.removeElement(elem)
		m.misses.Add(1)
		return "", false, nil
	}

	m.evictList.MoveToFront(elem)
	m.hits.Add(1)
	return entry.value, true, nil
}

// Set stores value with the given TTL, refreshing the expiry of an existing
// entry.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.evictList.MoveToFront(elem)
		entry := elem.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = time.Now().Add(ttl)
		return nil
	}

	if m.evictList.Len() >= m.capacity {
		m.removeOldest()
	}

	entry := &memoryEntry{key: key, value: value, expiresAt: time.Now().Add(ttl)}
	m.items[key] = m.evictList.PushFront(entry)
	return nil
}

// Delete removes an entry.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.removeElement(elem)
	}
	return nil
}

// ClearAll removes all entries and returns how many were removed.
func (m *Memory) ClearAll(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.evictList.Len()
	m.items = make(map[string]*list.Element)
	m.evictList.Init()
	return n, nil
}

// Stats returns hit/miss counters and the current entry count.
func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	keys := int64(m.evictList.Len())
	m.mu.Unlock()
	return Stats{Hits: m.hits.Load(), Misses: m.misses.Load(), Keys: keys}, nil
}

// Ping always succeeds; the store lives in-process.
func (m *Memory) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func (m *Memory) removeOldest() {
	if elem := m.evictList.Back(); elem != nil {
		m.removeElement(elem)
	}
}

func (m *Memory) removeElement(elem *list.Element) {
	m.evictList.Remove(elem)
	entry := elem.Value.(*memoryEntry)
	delete(m.items, entry.key)
}
