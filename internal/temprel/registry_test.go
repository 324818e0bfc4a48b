package temprel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateAndLookup(t *testing.T) {
	r, err := Open("")
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	_, err = r.Create(ctx, "t", "pg_temp_1.t", 100, KindHeap)
	require.NoError(t, err)

	phys, ok := r.PhysicalName("t")
	require.True(t, ok)
	require.Equal(t, "pg_temp_1.t", phys)
}

func TestRenamePreservesSingleActiveEntry(t *testing.T) {
	r, err := Open("")
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()

	_, err = r.Create(ctx, "t", "pg_temp_1.t", 1, KindHeap)
	require.NoError(t, err)
	require.NoError(t, r.Rename("t", "t2"))

	_, ok := r.PhysicalName("t")
	require.False(t, ok)
	phys, ok := r.PhysicalName("t2")
	require.True(t, ok)
	require.Equal(t, "pg_temp_1.t", phys)
}

func TestCommitDropsDeletedClearsCreated(t *testing.T) {
	r, err := Open("")
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()

	_, err = r.Create(ctx, "a", "pa", 1, KindHeap)
	require.NoError(t, err)
	_, err = r.Create(ctx, "b", "pb", 2, KindHeap)
	require.NoError(t, err)
	require.NoError(t, r.Drop("b"))

	r.Commit()

	_, ok := r.PhysicalName("a")
	require.True(t, ok)
	_, ok = r.PhysicalName("b")
	require.False(t, ok)
	require.False(t, r.entries[0].CreatedInXact)
}

func TestAbortDropsCreatedClearsDeleted(t *testing.T) {
	r, err := Open("")
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()

	_, err = r.Create(ctx, "a", "pa", 1, KindHeap)
	require.NoError(t, err)
	r.Commit() // a is now a pre-existing (not created-in-xact) entry

	require.NoError(t, r.Drop("a"))
	_, err = r.Create(ctx, "b", "pb", 2, KindHeap)
	require.NoError(t, err)

	r.Abort()

	_, ok := r.PhysicalName("a")
	require.True(t, ok, "drop of a pre-existing entry must roll back on abort")
	_, ok = r.PhysicalName("b")
	require.False(t, ok, "creation within the aborted xact must roll back")
}

func TestShutdownReturnsReverseCreationOrder(t *testing.T) {
	r, err := Open("")
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()

	_, err = r.Create(ctx, "idx", "p_idx", 1, KindIndex)
	require.NoError(t, err)
	_, err = r.Create(ctx, "tbl", "p_tbl", 2, KindHeap)
	require.NoError(t, err)

	entries := r.Shutdown()
	require.Len(t, entries, 2)
	require.Equal(t, "tbl", entries[0].LogicalName)
	require.Equal(t, "idx", entries[1].LogicalName)
}
