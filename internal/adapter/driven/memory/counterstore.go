// Package memory holds in-process implementations of driven ports. They are
// only correct for a single process and back the development profile and
// tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

var _ driven.CounterStore = (*CounterStore)(nil)

type counter struct {
	value     int64
	expiresAt time.Time // zero means no expiry
}

func (c counter) live(now time.Time) bool {
	return c.expiresAt.IsZero() || c.expiresAt.After(now)
}

// CounterStore is a mutex-guarded CounterStore.
type CounterStore struct {
	mu       sync.Mutex
	windows  map[string][]time.Time
	counters map[string]counter
}

// NewCounterStore creates an empty CounterStore.
func NewCounterStore() *CounterStore {
	return &CounterStore{
		windows:  make(map[string][]time.Time),
		counters: make(map[string]counter),
	}
}

// Hit records a request for key if the window has room.
func (s *CounterStore) Hit(_ context.Context, key string, window time.Duration, limit int, now time.Time) (driven.HitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hits := trim(s.windows[key], now.Add(-window))

	if len(hits) >= limit {
		s.windows[key] = hits
		res := driven.HitResult{Count: len(hits)}
		if len(hits) > 0 {
			res.Oldest = hits[0]
		}
		return res, nil
	}

	hits = append(hits, now)
	s.windows[key] = hits
	return driven.HitResult{Count: len(hits), Admitted: true, Oldest: hits[0]}, nil
}

// Get returns the live value of key.
func (s *CounterStore) Get(_ context.Context, key string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || !c.live(now) {
		return 0, nil
	}
	return c.value, nil
}

// CompareAndSet swaps key from oldVal to newVal.
func (s *CounterStore) CompareAndSet(_ context.Context, key string, oldVal, newVal int64, ttl time.Duration, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if c, ok := s.counters[key]; ok && c.live(now) {
		current = c.value
	}
	if current != oldVal {
		return false, nil
	}

	next := counter{value: newVal}
	if ttl > 0 {
		next.expiresAt = now.Add(ttl)
	}
	s.counters[key] = next
	return true, nil
}

// Prune drops expired counters and stale window entries.
func (s *CounterStore) Prune(_ context.Context, maxWindow time.Duration, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, c := range s.counters {
		if !c.live(now) {
			delete(s.counters, key)
			removed++
		}
	}

	cutoff := now.Add(-maxWindow)
	for key, hits := range s.windows {
		kept := trim(hits, cutoff)
		removed += int64(len(hits) - len(kept))
		if len(kept) == 0 {
			delete(s.windows, key)
			continue
		}
		s.windows[key] = kept
	}
	return removed, nil
}

// trim drops hits at or before cutoff. hits is sorted ascending.
func trim(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
