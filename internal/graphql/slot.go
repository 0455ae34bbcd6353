package graphql

import (
	"encoding/json"
	"sync"
)

// Slot tracks one logical query whose variables change over time, such as
// the option search of a relationship picker. Only the response for the most
// recently issued variables is current; responses for superseded variables
// are stale and must be ignored when they arrive.
type Slot struct {
	mu  sync.Mutex
	gen uint64
	key string
}

// Ticket identifies one issued request of a Slot.
type Ticket struct {
	gen uint64
	key string
}

// Begin records that a request with vars is being issued and returns its
// ticket. Issuing the same variables again does not supersede the earlier
// request.
func (s *Slot) Begin(vars map[string]any) Ticket {
	key := variablesKey(vars)
	s.mu.Lock()
	defer s.mu.Unlock()
	if key != s.key || s.gen == 0 {
		s.gen++
		s.key = key
	}
	return Ticket{gen: s.gen, key: key}
}

// Current reports whether a response for t may still be applied.
func (s *Slot) Current(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.gen == s.gen && t.key == s.key
}

// Invalidate makes every outstanding ticket stale.
func (s *Slot) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.key = ""
}

// variablesKey is the canonical JSON of vars; encoding/json sorts map keys.
func variablesKey(vars map[string]any) string {
	if len(vars) == 0 {
		return "{}"
	}
	b, err := json.Marshal(vars)
	if err != nil {
		return ""
	}
	return string(b)
}
