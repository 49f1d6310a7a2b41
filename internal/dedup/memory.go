package dedup

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Deduper backed by a map.
// Expired keys are swept lazily on Add.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemory creates a Memory deduper. A non-positive ttl uses DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, expires: make(map[string]time.Time), now: time.Now}
}

// Add implements Deduper.
func (m *Memory) Add(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	if exp, ok := m.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.expires[key] = now.Add(m.ttl)
	return true, nil
}

// Remove implements Deduper.
func (m *Memory) Remove(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	delete(m.expires, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of unexpired keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep(m.now())
	return len(m.expires)
}

func (m *Memory) sweep(now time.Time) {
	for k, exp := range m.expires {
		if !now.Before(exp) {
			delete(m.expires, k)
		}
	}
}
