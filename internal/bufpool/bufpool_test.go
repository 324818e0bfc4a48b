package bufpool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlushAllClearsDirty(t *testing.T) {
	p := NewMemPool()
	ctx := context.Background()
	require.NoError(t, p.MarkDirty(PageID{RelID: 1, Offset: 0}))
	require.NoError(t, p.FlushAll(ctx))
	require.Empty(t, p.(*memPool).dirty)
	require.NoError(t, p.CheckLeak())
}

func TestCheckLeakDetectsOpenHandle(t *testing.T) {
	p := NewMemPool()
	ctx := context.Background()
	h, err := p.Open(ctx, 7)
	require.NoError(t, err)
	require.Error(t, p.CheckLeak())
	require.NoError(t, h.Close())
	require.NoError(t, p.CheckLeak())
}

func TestResetDiscardsDirtyWithoutFlush(t *testing.T) {
	p := NewMemPool()
	require.NoError(t, p.MarkDirty(PageID{RelID: 2, Offset: 4}))
	p.Reset()
	require.Empty(t, p.(*memPool).dirty)
	require.NoError(t, p.CheckLeak())
}
