// Package cache provides the short-lived caches that keep the dashboard
// inside the free-tier rate limits of its upstream providers.
package cache

import (
	"sync"
	"time"
)

// Entry holds a cached payload with its fetch timestamp.
type Entry struct {
	Payload   interface{}
	FetchedAt time.Time
}

// TTLStore is a thread-safe in-memory cache with lazy expiry. Entries are
// considered stale once the TTL has elapsed; stale entries are not purged,
// they are overwritten by the next successful fetch. Concurrent requests
// racing on the same key may both miss and both store — payloads are
// idempotent, so last write wins.
type TTLStore struct {
	ttl     time.Duration
	now     func() time.Time
	entries sync.Map // key -> *Entry

	// Statistics
	hitCount  int64
	missCount int64
	statsMu   sync.RWMutex
}

// NewTTLStore creates a cache with the given TTL. A nil clock defaults to
// time.Now; tests inject their own.
func NewTTLStore(ttl time.Duration, now func() time.Time) *TTLStore {
	if now == nil {
		now = time.Now
	}
	return &TTLStore{
		ttl: ttl,
		now: now,
	}
}

// Get returns the cached payload for key if it exists and is fresh.
func (s *TTLStore) Get(key string) (interface{}, bool) {
	if val, ok := s.entries.Load(key); ok {
		entry := val.(*Entry)
		if s.now().Sub(entry.FetchedAt) < s.ttl {
			s.recordHit()
			return entry.Payload, true
		}
	}
	s.recordMiss()
	return nil, false
}

// Set stores a payload for key, stamping it with the current time.
func (s *TTLStore) Set(key string, payload interface{}) {
	s.entries.Store(key, &Entry{
		Payload:   payload,
		FetchedAt: s.now(),
	})
}

// FetchedAt returns the timestamp of the entry for key, fresh or stale.
func (s *TTLStore) FetchedAt(key string) (time.Time, bool) {
	if val, ok := s.entries.Load(key); ok {
		return val.(*Entry).FetchedAt, true
	}
	return time.Time{}, false
}

// Clear removes all cached data.
func (s *TTLStore) Clear() {
	s.entries = sync.Map{}
}

// ==================== STATISTICS ====================

func (s *TTLStore) recordHit() {
	s.statsMu.Lock()
	s.hitCount++
	s.statsMu.Unlock()
}

func (s *TTLStore) recordMiss() {
	s.statsMu.Lock()
	s.missCount++
	s.statsMu.Unlock()
}

// Stats returns cache hit/miss statistics.
func (s *TTLStore) Stats() (hits, misses int64, hitRate float64) {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	hits = s.hitCount
	misses = s.missCount
	total := hits + misses
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return
}
