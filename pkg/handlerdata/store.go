package handlerdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when no data is stored for a path.
var ErrNotFound = errors.New("handler data not found")

// MatchFunc resolves a request path to the registered route pattern that
// serves it.
type MatchFunc func(path string) (pattern string, ok bool)

// Store maps route paths to JSON values. Values are kept in encoded form so
// every reader receives its own copy.
type Store struct {
	mu      sync.RWMutex
	entries map[string]json.RawMessage
	match   MatchFunc
}

// Option configures a Store.
type Option func(*Store)

// WithMatcher makes lookups fall back to the route pattern matching a path
// when no data is stored under the literal path.
func WithMatcher(fn MatchFunc) Option {
	return func(s *Store) {
		s.match = fn
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{entries: make(map[string]json.RawMessage)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set stores value under path, replacing any previous value.
func (s *Store) Set(path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode data for %s: %w", path, err)
	}
	return s.SetRaw(path, raw)
}

// SetRaw stores an already encoded JSON document under path.
func (s *Store) SetRaw(path string, raw []byte) error {
	if !json.Valid(raw) {
		return fmt.Errorf("data for %s is not valid JSON", path)
	}
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)

	s.mu.Lock()
	s.entries[path] = cp
	s.mu.Unlock()
	return nil
}

// Get returns a decoded copy of the value stored under path.
func (s *Store) Get(path string) (any, bool) {
	s.mu.RLock()
	raw, ok := s.entries[path]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

// Lookup returns the value for a request path, trying the literal path first
// and then the route pattern serving it.
func (s *Store) Lookup(path string) (any, bool) {
	if v, ok := s.Get(path); ok {
		return v, true
	}
	if s.match == nil {
		return nil, false
	}
	pattern, ok := s.match(path)
	if !ok || pattern == path {
		return nil, false
	}
	return s.Get(pattern)
}

// Delete removes the value stored under path and reports whether it existed.
func (s *Store) Delete(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[path]; !ok {
		return false
	}
	delete(s.entries, path)
	return true
}

// Paths returns the stored paths in sorted order.
func (s *Store) Paths() []string {
	s.mu.RLock()
	paths := make([]string, 0, len(s.entries))
	for p := range s.entries {
		paths = append(paths, p)
	}
	s.mu.RUnlock()

	sort.Strings(paths)
	return paths
}

// Len returns the number of stored paths.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes all stored values.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]json.RawMessage)
	s.mu.Unlock()
}
