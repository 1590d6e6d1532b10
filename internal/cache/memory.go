// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/bustinel/internal/metrics"
)

const cleanupInterval = 5 * time.Minute

// entry is a cached value with expiration
type entry struct {
	value     string
	expiresAt time.Time
}

// Stats tracks cache performance
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	TotalKeys   int64
	LastCleanup time.Time
}

// MemoryStore is a thread-safe in-memory Store with TTL expiration.
//
// Expired entries are dropped lazily on lookup and by a background sweep
// every five minutes. Close stops the sweep.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	closed  bool

	statsMu sync.Mutex
	stats   Stats

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates an empty store and starts its cleanup goroutine.
func NewMemoryStore() *MemoryStore {
	return newMemoryStore(cleanupInterval)
}

func newMemoryStore(sweep time.Duration) *MemoryStore {
	m := &MemoryStore{
		entries: make(map[string]entry),
		stats:   Stats{LastCleanup: time.Now()},
		stop:    make(chan struct{}),
	}
	go m.cleanupLoop(sweep)
	return m
}

// Exists implements Store.
func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return false, ErrClosed
	}
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if ok && time.Now().After(e.expiresAt) {
		m.mu.Lock()
		// Re-check; a concurrent Set may have refreshed the entry.
		if cur, still := m.entries[key]; still && time.Now().After(cur.expiresAt) {
			delete(m.entries, key)
			m.record(func(s *Stats) { s.Evictions++ })
		}
		m.mu.Unlock()
		ok = false
	}

	m.record(func(s *Stats) {
		if ok {
			s.Hits++
		} else {
			s.Misses++
		}
	})
	metrics.RecordCacheLookup(BackendMemory, ok)
	return ok, nil
}

// Set implements Store. A non-positive ttl stores nothing.
func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	m.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	n := int64(len(m.entries))
	m.record(func(s *Stats) { s.TotalKeys = n })
	return nil
}

// Close stops the cleanup goroutine and drops all entries.
func (m *MemoryStore) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	m.closed = true
	m.entries = nil
	m.mu.Unlock()
	return nil
}

// GetStats returns a snapshot of the store statistics.
func (m *MemoryStore) GetStats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

// HitRate returns the hit rate as a percentage.
func (m *MemoryStore) HitRate() float64 {
	stats := m.GetStats()
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0.0
	}
	return float64(stats.Hits) / float64(total) * 100.0
}

func (m *MemoryStore) record(fn func(*Stats)) {
	m.statsMu.Lock()
	fn(&m.stats)
	m.statsMu.Unlock()
}

// cleanupLoop periodically removes expired entries
func (m *MemoryStore) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

// cleanup removes all expired entries
func (m *MemoryStore) cleanup() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	evictions := int64(0)
	for key, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, key)
			evictions++
		}
	}

	n := int64(len(m.entries))
	m.record(func(s *Stats) {
		s.Evictions += evictions
		s.TotalKeys = n
		s.LastCleanup = now
	})
}
