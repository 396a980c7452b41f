package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count     int
	expiresAt time.Time
}

// Memory is a process-scoped Store with TTL-based eviction. Suitable for
// single-instance deployments; use the Redis store when more than one
// instance serves logins.
type Memory struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	entries map[string]memoryEntry

	stop chan struct{}
	once sync.Once
	now  func() time.Time
}

func NewMemory(limit int, window time.Duration) *Memory {
	m := &Memory{
		limit:   limit,
		window:  window,
		entries: make(map[string]memoryEntry),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go m.janitor()
	return m
}

func (m *Memory) RecordFailure(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = memoryEntry{expiresAt: now.Add(m.window)}
	}
	entry.count++
	m.entries[key] = entry
	return entry.count, nil
}

func (m *Memory) RetryAfter(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry, ok := m.entries[key]
	if !ok || now.After(entry.expiresAt) {
		return 0, nil
	}
	if entry.count < m.limit {
		return 0, nil
	}
	return entry.expiresAt.Sub(now), nil
}

func (m *Memory) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Close stops the background eviction goroutine.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

func (m *Memory) janitor() {
	ticker := time.NewTicker(m.window)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *Memory) evictExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for key, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, key)
		}
	}
}
