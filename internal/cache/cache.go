// Package cache is the in-memory normalized entity cache pushes are merged
// into.
package cache

import (
	"maps"
	"sync"

	"github.com/rickgao/livesync/internal/schema"
)

// Cache stores entities by type and id. Merges are attribute-level
// last-write-wins and never delete an entity or an attribute.
type Cache struct {
	mu       sync.RWMutex
	entities schema.Graph
	merges   uint64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entities: make(schema.Graph)}
}

// MergeEntities merges every entity of g.
func (c *Cache) MergeEntities(g schema.Graph) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for entityType, byID := range g {
		for id, e := range byID {
			c.entities.Put(entityType, id, e)
		}
	}
	c.merges++
}

// Get returns a copy of one entity.
func (c *Cache) Get(entityType, id string) (schema.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entities.Get(entityType, id)
	if !ok {
		return nil, false
	}
	return maps.Clone(e), true
}

// Len returns the number of cached entities across all types.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entities.Len()
}

// Merges returns how many graphs have been merged.
func (c *Cache) Merges() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.merges
}

// Snapshot returns a copy of the cached entities of one type, or of every
// type when entityType is empty.
func (c *Cache) Snapshot(entityType string) schema.Graph {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(schema.Graph)
	for t, byID := range c.entities {
		if entityType != "" && t != entityType {
			continue
		}
		copied := make(map[string]schema.Entity, len(byID))
		for id, e := range byID {
			copied[id] = maps.Clone(e)
		}
		out[t] = copied
	}
	return out
}
