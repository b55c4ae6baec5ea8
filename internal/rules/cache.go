package rules

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pipe-qc-server/internal/domain"
)

// Cache holds loaded rule-table snapshots so the hot classification path
// does not re-read the document on every request. Invalidation is
// coarse-grained: any mutation purges every snapshot, never a single
// entry, so a reader can only ever observe a fully written table.
//
// Each invalidation bumps a generation counter, and a snapshot may only
// be cached while the generation it was loaded at is still current. A
// reader that raced a mutation therefore cannot re-cache the
// pre-mutation table.
//
// The cache is constructed by whoever composes the application and
// injected into each Store, so tests can build isolated instances.
type Cache struct {
	mu        sync.Mutex
	gen       uint64
	snapshots *lru.Cache[domain.TableID, *domain.RuleTable]
}

// cacheSize leaves headroom over the two known tables.
const cacheSize = 4

// NewCache creates an empty snapshot cache.
func NewCache() (*Cache, error) {
	snapshots, err := lru.New[domain.TableID, *domain.RuleTable](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Cache{snapshots: snapshots}, nil
}

// Get returns the cached snapshot for a table, if present.
func (c *Cache) Get(id domain.TableID) (*domain.RuleTable, bool) {
	return c.snapshots.Get(id)
}

// Generation returns the current invalidation generation. Callers must
// read it before loading a snapshot they intend to Put.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Put stores a snapshot loaded at the given generation. The put is
// dropped when an invalidation happened since, so a stale snapshot
// never replaces a newer table.
func (c *Cache) Put(id domain.TableID, table *domain.RuleTable, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.snapshots.Add(id, table)
}

// Invalidate drops every cached snapshot and advances the generation.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.snapshots.Purge()
}
