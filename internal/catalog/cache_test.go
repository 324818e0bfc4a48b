package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	return NewCache(nil, nil, nil, IndexedAccess{}, t.TempDir())
}

func TestInsertNailedMarksNailedAndSurvivesReset(t *testing.T) {
	c := newTestCache(t)
	c.InsertNailed(&RelationDescriptor{RelID: 1, Name: "relation_catalog"})
	c.InsertNailed(&RelationDescriptor{RelID: 2, Name: "column_catalog"})
	require.Equal(t, 2, c.NailedCount())

	c.InvalidateAll(false)
	require.Equal(t, 2, c.Len())
}

func TestInvalidateDefersWhileReferenced(t *testing.T) {
	c := newTestCache(t)
	d := &RelationDescriptor{RelID: 10, Name: "r"}
	c.insertAndAcquireForTest(d)
	d.incref() // simulate an outstanding reference held elsewhere

	c.Invalidate(10, false)
	require.Equal(t, 1, c.Len(), "descriptor must survive while referenced")

	d.decref()
	d.decref()
	c.Invalidate(10, false)
	require.Equal(t, 0, c.Len())
}

func TestInvalidateRebuildMarksStaleWhileReferencedThenEvicts(t *testing.T) {
	c := newTestCache(t)
	d := &RelationDescriptor{RelID: 12, Name: "r3"}
	c.insertAndAcquireForTest(d)
	d.incref()

	c.Invalidate(12, true)
	require.Equal(t, 1, c.Len(), "a rebuild invalidation must not evict a referenced descriptor")
	require.True(t, d.IsStale())

	d.decref()
	c.Invalidate(12, true)
	require.Equal(t, 0, c.Len(), "once unreferenced, a rebuild invalidation evicts like any other")
}

func TestForgetEvictsUnconditionally(t *testing.T) {
	c := newTestCache(t)
	d := &RelationDescriptor{RelID: 11, Name: "r2"}
	c.insertAndAcquireForTest(d)
	c.Forget(11)
	require.Equal(t, 0, c.Len())
}

func TestInvalidateAllOnlyZeroRefsSparesReferenced(t *testing.T) {
	c := newTestCache(t)
	free := &RelationDescriptor{RelID: 20, Name: "free"}
	held := &RelationDescriptor{RelID: 21, Name: "held"}
	c.insertAndAcquireForTest(free)
	c.insertAndAcquireForTest(held)
	held.incref()

	c.InvalidateAll(true)
	require.Equal(t, 1, c.Len())
	_, stillThere := c.byID[21]
	require.True(t, stillThere)
}

// insertAndAcquireForTest inserts d into the cache maps only: unlike the
// real insertAndAcquire path it takes no filesystem-backed descriptor lock
// and does not increment d's refcount, since these tests exercise eviction
// logic in isolation.
func (c *Cache) insertAndAcquireForTest(d *RelationDescriptor) {
	c.mu.Lock()
	c.byID[d.RelID] = d
	c.byName[d.Name] = d
	c.mu.Unlock()
}
