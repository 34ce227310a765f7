// Package credentials provides the ambient session-credential store the
// client authenticates with.
//
// Credentials are session cookies. Only cookies whose name passes a
// Predicate are ever sent, and a fresh Snapshot is taken for every use.
package credentials

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// DefaultCookiePrefix marks cookies that carry session tokens.
const DefaultCookiePrefix = "token-"

// Set is an immutable snapshot of cookie name -> value.
type Set map[string]string

// Source returns the current cookies. Implementations must return a copy.
type Source interface {
	Cookies() map[string]string
}

// Predicate selects which cookie names are credentials.
type Predicate func(name string) bool

// PrefixPredicate accepts cookie names starting with prefix.
func PrefixPredicate(prefix string) Predicate {
	return func(name string) bool {
		return strings.HasPrefix(name, prefix)
	}
}

// Snapshot reads src once and keeps only the cookies accepted by pred.
// A nil pred uses PrefixPredicate(DefaultCookiePrefix). The result is never nil.
func Snapshot(src Source, pred Predicate) Set {
	out := make(Set)
	if src == nil {
		return out
	}
	if pred == nil {
		pred = PrefixPredicate(DefaultCookiePrefix)
	}
	for name, value := range src.Cookies() {
		if pred(name) {
			out[name] = value
		}
	}
	return out
}

// MemoryStore is a concurrency-safe in-memory cookie jar.
type MemoryStore struct {
	mu      sync.RWMutex
	cookies map[string]string
}

// NewMemoryStore creates a store seeded with initial.
func NewMemoryStore(initial map[string]string) *MemoryStore {
	s := &MemoryStore{cookies: make(map[string]string, len(initial))}
	for k, v := range initial {
		s.cookies[k] = v
	}
	return s
}

// Set stores a cookie.
func (s *MemoryStore) Set(name, value string) {
	s.mu.Lock()
	s.cookies[name] = value
	s.mu.Unlock()
}

// Delete removes a cookie.
func (s *MemoryStore) Delete(name string) {
	s.mu.Lock()
	delete(s.cookies, name)
	s.mu.Unlock()
}

// Cookies returns a copy of all cookies.
func (s *MemoryStore) Cookies() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.cookies))
	for k, v := range s.cookies {
		out[k] = v
	}
	return out
}

// ParseCookieHeader parses a Cookie header value ("a=1; b=2").
func ParseCookieHeader(header string) (map[string]string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return map[string]string{}, nil
	}

	cookies, err := http.ParseCookie(header)
	if err != nil {
		return nil, fmt.Errorf("parse cookie header: %w", err)
	}

	out := make(map[string]string, len(cookies))
	for _, c := range cookies {
		out[c.Name] = c.Value
	}
	return out, nil
}
