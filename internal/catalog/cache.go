package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relcore/dbcore/internal/bufpool"
	"github.com/relcore/dbcore/internal/catalogstore"
	"github.com/relcore/dbcore/internal/coreerr"
	"github.com/relcore/dbcore/internal/temprel"
)

// Cache is the per-worker dual-indexed descriptor cache (spec §4.2).
// Descriptors in one worker's cache are private to that worker; there is no
// cross-worker sharing (spec §5).
type Cache struct {
	mu       sync.Mutex
	byID     map[uint32]*RelationDescriptor
	byName   map[string]*RelationDescriptor
	nailed   map[uint32]struct{}
	lockDir  string
	lockWait time.Duration

	store   *catalogstore.Store
	pool    bufpool.BufferPool
	temp    *temprel.Registry
	policy  CatalogAccessPolicy
}

// NewCache returns an empty Cache backed by store and pool. policy governs
// the bootstrap-vs-indexed build-from-catalog dichotomy; pass
// catalog.IndexedAccess{} for normal operation.
func NewCache(store *catalogstore.Store, pool bufpool.BufferPool, temp *temprel.Registry, policy CatalogAccessPolicy, lockDir string) *Cache {
	return &Cache{
		byID:     make(map[uint32]*RelationDescriptor),
		byName:   make(map[string]*RelationDescriptor),
		nailed:   make(map[uint32]struct{}),
		store:    store,
		pool:     pool,
		temp:     temp,
		policy:   policy,
		lockDir:  lockDir,
		lockWait: 5 * time.Second,
	}
}

// SetPolicy swaps the access policy, used to transition out of bootstrap
// mode once the catalog's own indexes are available.
func (c *Cache) SetPolicy(p CatalogAccessPolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = p
}

// Len returns the number of distinct cached descriptors.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

// OpenByID resolves rel-id to a descriptor, building it from the catalog on
// a cache miss (spec §4.2 open-by-id).
func (c *Cache) OpenByID(ctx context.Context, relID uint32) (*RelationDescriptor, error) {
	c.mu.Lock()
	if d, ok := c.byID[relID]; ok {
		if d.IsStale() && d.Refcount() == 0 {
			delete(c.byID, relID)
			delete(c.byName, d.Name)
		} else {
			c.mu.Unlock()
			return c.acquire(d)
		}
	}
	policy := c.policy
	c.mu.Unlock()

	d, err := c.buildFromCatalog(ctx, policy, relID, "")
	if err != nil {
		return nil, err
	}
	return c.insertAndAcquire(d)
}

// OpenByName resolves logical-name to a descriptor. The temp registry is
// consulted first (spec §4.2's "sole point where temp visibility is
// enforced"): if logical-name maps to a temp relation's physical name, the
// remainder of the operation uses that physical name.
func (c *Cache) OpenByName(ctx context.Context, logicalName string) (*RelationDescriptor, error) {
	lookupName := logicalName
	if c.temp != nil {
		if phys, ok := c.temp.PhysicalName(logicalName); ok {
			lookupName = phys
		}
	}

	c.mu.Lock()
	if d, ok := c.byName[lookupName]; ok {
		if d.IsStale() && d.Refcount() == 0 {
			delete(c.byID, d.RelID)
			delete(c.byName, lookupName)
		} else {
			c.mu.Unlock()
			return c.acquire(d)
		}
	}
	policy := c.policy
	c.mu.Unlock()

	d, err := c.buildFromCatalog(ctx, policy, 0, lookupName)
	if err != nil {
		return nil, err
	}
	return c.insertAndAcquire(d)
}

func (c *Cache) acquire(d *RelationDescriptor) (*RelationDescriptor, error) {
	d.incref()
	if d.Lock == nil {
		lock, err := AcquireDescriptorLock(c.lockDir, d.RelID, false, c.lockWait)
		if err != nil {
			d.decref()
			return nil, coreerr.Errorf("catalog.open", err)
		}
		d.Lock = lock
	}
	return d, nil
}

func (c *Cache) insertAndAcquire(d *RelationDescriptor) (*RelationDescriptor, error) {
	c.mu.Lock()
	if existing, ok := c.byID[d.RelID]; ok {
		c.mu.Unlock()
		return c.acquire(existing)
	}
	c.byID[d.RelID] = d
	c.byName[d.Name] = d
	c.mu.Unlock()
	return c.acquire(d)
}

// Close decrements refcount; no eviction is forced here (spec §4.2 close).
func (c *Cache) Close(d *RelationDescriptor) {
	d.decref()
	if d.Refcount() == 0 && d.Lock != nil {
		d.Lock.Release()
		d.Lock = nil
	}
}

// Forget is called when a relation is dropped by this worker: it evicts the
// descriptor unconditionally (spec §4.2 forget). It does not touch the
// temp-relation registry; any temp entry for relID stays in that list.
func (c *Cache) Forget(relID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.byID[relID]
	if !ok {
		return
	}
	delete(c.byID, relID)
	delete(c.byName, d.Name)
	delete(c.nailed, relID)
}

// Invalidate evicts the descriptor named by relID, honoring the refcount
// deferral rule: if the current transaction still holds references, full
// eviction is deferred and the descriptor is left for the holder to drain
// (spec §4.2, §4.3 consumer side).
//
// rebuild distinguishes relcache.c's two invalidation shapes (see
// SPEC_FULL.md): true means the underlying row changed in place (ALTER) and
// a referenced descriptor is marked stale rather than silently kept as if
// nothing happened, so the next Open once the refcount drains rebuilds it
// from the catalog; false means the relation itself is gone and the
// descriptor is simply evicted once unreferenced, same as before.
func (c *Cache) Invalidate(relID uint32, rebuild bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.byID[relID]
	if !ok {
		return
	}
	if _, isNailed := c.nailed[relID]; isNailed {
		return
	}
	if d.Refcount() > 0 {
		if rebuild {
			d.markStale()
		}
		return
	}
	delete(c.byID, relID)
	delete(c.byName, d.Name)
}

// InvalidateAll is the process-wide cache reset (spec §4.2 invalidate-all,
// §8 scenario 6: nailed descriptors survive). When onlyZeroRefs is true,
// descriptors still referenced are left in place.
func (c *Cache) InvalidateAll(onlyZeroRefs bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, d := range c.byID {
		if _, isNailed := c.nailed[id]; isNailed {
			continue
		}
		if onlyZeroRefs && d.Refcount() > 0 {
			continue
		}
		delete(c.byID, id)
		delete(c.byName, d.Name)
	}
}

// buildFromCatalog implements spec §4.2's build-from-catalog sequence.
func (c *Cache) buildFromCatalog(ctx context.Context, policy CatalogAccessPolicy, relID uint32, name string) (*RelationDescriptor, error) {
	ctx, span := buildSpan(ctx, "from_catalog")
	defer span.End()

	// Step 1: look up the catalog row.
	var row *catalogstore.RelationRow
	var err error
	if name != "" {
		row, err = policy.RelationByName(ctx, c.store, name)
	} else {
		row, err = policy.RelationByID(ctx, c.store, relID)
	}
	if err != nil {
		return nil, coreerr.Errorf("catalog.build.lookup", fmt.Errorf("relation not found: %w", err))
	}

	// Step 2: allocate the descriptor and copy the catalog form.
	d := &RelationDescriptor{
		RelID: row.ID,
		Name:  row.Name,
	}

	// Step 3: populate the tuple layout via the column catalog (same
	// bootstrap/indexed dichotomy).
	cols, err := policy.Columns(ctx, c.store, row.ID)
	if err != nil {
		return nil, fatalBuildErr("columns", err)
	}
	layoutCols := make([]Column, 0, len(cols))
	for _, cc := range cols {
		layoutCols = append(layoutCols, Column{
			Name: cc.Name, Number: cc.ColumnNo, TypeID: cc.TypeID,
			Length: cc.Length, Align: cc.Align, ByValue: cc.ByValue,
			IsDropped: cc.IsDropped, TypeMod: cc.TypeMod,
		})
	}
	layout, err := NewTupleLayout(layoutCols)
	if err != nil {
		return nil, fatalBuildErr("columns", err)
	}
	d.Layout = layout

	// Step 4: rewrite rules, opaque to this core.
	if row.HasRules {
		rules, err := c.store.RulesForRelation(ctx, row.ID)
		if err != nil {
			return nil, fatalBuildErr("rules", err)
		}
		d.Rules = rules
	}

	// Step 5: index strategy/support-function vectors.
	if row.Kind == "index" {
		d.IsIndex = true
		am, err := c.store.AccessMethod(ctx, row.ID)
		if err != nil {
			// Index support lookup failure during rebuild of an index
			// descriptor is fatal for the worker (spec §4.2 failure modes).
			return nil, fatalBuildErr("index_support", err)
		}
		d.AccessMtd = *am
		d.IndexInfo = &IndexStrategy{
			Strategies:       make([]uint32, am.StrategyCount),
			SupportFunctions: make([]uint32, am.SupportFunctionCount),
		}
	}

	// Step 6: lock-manager handle is resolved lazily in acquire() on
	// first open, not here, so a descriptor can be built without
	// immediately contending for the lock.

	// Step 7: open the underlying storage file via the storage facade.
	handle, err := c.pool.Open(ctx, row.ID)
	if err != nil {
		return nil, fatalBuildErr("open_storage", err)
	}
	d.Handle = handle

	return d, nil
}

// MarkNailed marks relID as a nailed descriptor: required to answer further
// catalog lookups, never evicted (spec §3, §4.2).
func (c *Cache) MarkNailed(relID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nailed[relID] = struct{}{}
}

// NailedCount returns how many descriptors are currently marked nailed.
func (c *Cache) NailedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nailed)
}

// InsertNailed installs a pre-materialized bootstrap descriptor (spec
// §4.2's "compile-time constant schema") directly, bypassing
// buildFromCatalog, and marks it nailed.
func (c *Cache) InsertNailed(d *RelationDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d.Nailed = true
	c.byID[d.RelID] = d
	c.byName[d.Name] = d
	c.nailed[d.RelID] = struct{}{}
}
