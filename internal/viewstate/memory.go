package viewstate

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store with TTL support. Suitable for testing
// and single-instance deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
}

type memEntry struct {
	params    url.Values
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry), now: time.Now}
}

// Get returns a copy of the stored params.
func (s *MemoryStore) Get(_ context.Context, subject, listKey string) (url.Values, error) {
	key := subjectKey(subject, listKey)
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, nil
	}
	return clone(e.params), nil
}

// Set stores a copy of params. A zero ttl never expires.
func (s *MemoryStore) Set(_ context.Context, subject, listKey string, params url.Values, ttl time.Duration) error {
	e := memEntry{params: clone(params)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[subjectKey(subject, listKey)] = e
	s.mu.Unlock()
	return nil
}

// Delete removes the entry.
func (s *MemoryStore) Delete(_ context.Context, subject, listKey string) error {
	s.mu.Lock()
	delete(s.entries, subjectKey(subject, listKey))
	s.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len returns the number of entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func clone(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
