// Package entity resolves entity references found in primary items and keeps
// the resolved records in an insert-only cache.
package entity

import (
	"strings"
	"sync"

	"github.com/Sternrassler/collection-loader/pkg/collection"
)

// Cache maps reference ids to resolved entities. Entries are never removed;
// an id that failed to resolve is simply absent.
type Cache struct {
	mu       sync.RWMutex
	entities map[string]collection.Entity
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		entities: make(map[string]collection.Entity),
	}
}

// Get returns the entity for id.
func (c *Cache) Get(id string) (collection.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entities[id]
	return e, ok
}

// Has reports whether id is resolved.
func (c *Cache) Has(id string) bool {
	_, ok := c.Get(id)
	return ok
}

// Len returns the number of resolved entities.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entities)
}

// Names joins the display names of the resolved ids with single spaces.
// Unresolved ids are skipped.
func (c *Cache) Names(ids []string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if e, ok := c.entities[id]; ok && e.Name != "" {
			names = append(names, e.Name)
		}
	}
	return strings.Join(names, " ")
}

// Missing returns the ids not yet resolved, de-duplicated, in input order.
func (c *Cache) Missing(ids []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{}, len(ids))
	var missing []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := c.entities[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// put inserts an entity. An existing entry is kept.
func (c *Cache) put(id string, e collection.Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entities[id]; ok {
		return
	}
	if e.ID == "" {
		e.ID = id
	}
	c.entities[id] = e
}
