package store

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	// ErrNotFound is returned when nothing has been stored under a key.
	ErrNotFound = errors.New("no entry for key")
	// ErrExpired is returned when the latest entry is older than the max age.
	ErrExpired = errors.New("entry expired")
)

// Entry is a stored value together with the time it was saved.
type Entry[V any] struct {
	Value    V
	StoredAt time.Time
}

type history[V any] struct {
	entries []Entry[V]
}

// MemoryStore is a concurrency-safe in-memory cache keeping a bounded
// history of values per key.
type MemoryStore[V any] struct {
	mu sync.RWMutex

	data map[string]*history[V]

	maxHistory int           // max entries per key
	maxAge     time.Duration // entries older than this are not fresh
	clock      clockwork.Clock
}

// NewMemoryStore creates a new MemoryStore. maxHistory <= 0 keeps a single
// entry per key; maxAge <= 0 disables expiry. A nil clock uses wall time.
func NewMemoryStore[V any](maxHistory int, maxAge time.Duration, clock clockwork.Clock) *MemoryStore[V] {
	if maxHistory <= 0 {
		maxHistory = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore[V]{
		data:       make(map[string]*history[V]),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		clock:      clock,
	}
}

// Save appends value under key and enforces retention.
func (s *MemoryStore[V]) Save(key string, value V) Entry[V] {
	entry := Entry[V]{Value: value, StoredAt: s.clock.Now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.data[key]
	if !ok {
		h = &history[V]{}
		s.data[key] = h
	}
	h.entries = append(h.entries, entry)

	if len(h.entries) > s.maxHistory {
		over := len(h.entries) - s.maxHistory
		h.entries = h.entries[over:]
	}

	// Drop expired entries, but always keep the newest.
	if s.maxAge > 0 {
		cutoff := s.clock.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(h.entries)-1; i++ {
			if !h.entries[i].StoredAt.Before(cutoff) {
				break
			}
		}
		h.entries = h.entries[i:]
	}
	return entry
}

// Latest returns the most recent entry for key regardless of age.
func (s *MemoryStore[V]) Latest(key string) (Entry[V], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.data[key]
	if !ok || len(h.entries) == 0 {
		return Entry[V]{}, ErrNotFound
	}
	return h.entries[len(h.entries)-1], nil
}

// Fresh returns the most recent entry for key if it is within the max age.
func (s *MemoryStore[V]) Fresh(key string) (Entry[V], error) {
	entry, err := s.Latest(key)
	if err != nil {
		return entry, err
	}
	if s.maxAge > 0 && s.clock.Since(entry.StoredAt) > s.maxAge {
		return entry, ErrExpired
	}
	return entry, nil
}

// History returns the retained entries for key, oldest first.
func (s *MemoryStore[V]) History(key string) ([]Entry[V], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.data[key]
	if !ok || len(h.entries) == 0 {
		return nil, ErrNotFound
	}
	return append([]Entry[V](nil), h.entries...), nil
}

// Invalidate drops everything stored under key.
func (s *MemoryStore[V]) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}
