package pagination

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/rickgao/livesync/internal/protocol"
)

// Store holds every known list view.
type Store struct {
	mu      sync.RWMutex
	pages   map[Key]Page
	updates uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{pages: make(map[Key]Page)}
}

// Set replaces a page, as after an initial fetch.
func (s *Store) Set(schemaName string, filter json.RawMessage, sort protocol.OrderSpec, p Page) error {
	key, err := KeyFor(schemaName, filter, sort)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[key] = clonePage(p)
	return nil
}

// Get returns a copy of a page.
func (s *Store) Get(schemaName string, filter json.RawMessage, sort protocol.OrderSpec) (Page, bool) {
	key, err := KeyFor(schemaName, filter, sort)
	if err != nil {
		return Page{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[key]
	if !ok {
		return Page{}, false
	}
	return clonePage(p), true
}

// ApplyUpdate merges u into its page.
func (s *Store) ApplyUpdate(u Update) error {
	if !u.Direction.Valid() {
		return fmt.Errorf("invalid direction %q", u.Direction)
	}
	key, err := KeyFor(u.Schema, u.Filter, u.Sort)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[key] = merge(s.pages[key], u)
	s.updates++
	return nil
}

// Len returns the number of pages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// Updates returns how many updates have been applied.
func (s *Store) Updates() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}

// Snapshot returns a copy of every page by key.
func (s *Store) Snapshot() map[Key]Page {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Key]Page, len(s.pages))
	for k, p := range s.pages {
		out[k] = clonePage(p)
	}
	return out
}

// merge applies u to p. Edges already present are moved to the update's
// position rather than duplicated.
func merge(p Page, u Update) Page {
	if len(p.Edges) == 0 {
		return Page{Edges: slices.Clone(u.Edges), PageInfo: u.PageInfo}
	}

	incoming := make(map[string]struct{}, len(u.Edges))
	for _, e := range u.Edges {
		incoming[e.ID] = struct{}{}
	}
	kept := make([]Edge, 0, len(p.Edges))
	for _, e := range p.Edges {
		if _, dup := incoming[e.ID]; !dup {
			kept = append(kept, e)
		}
	}

	out := Page{PageInfo: p.PageInfo}
	switch u.Direction {
	case protocol.Backward:
		out.Edges = append(slices.Clone(u.Edges), kept...)
		out.PageInfo.StartCursor = u.PageInfo.StartCursor
		out.PageInfo.HasPreviousPage = u.PageInfo.HasPreviousPage
	case protocol.Forward:
		out.Edges = append(kept, u.Edges...)
		out.PageInfo.EndCursor = u.PageInfo.EndCursor
		out.PageInfo.HasNextPage = u.PageInfo.HasNextPage
	}
	return out
}

func clonePage(p Page) Page {
	return Page{Edges: slices.Clone(p.Edges), PageInfo: p.PageInfo}
}
