package xact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relcore/dbcore/internal/bufpool"
	"github.com/relcore/dbcore/internal/catalog"
	"github.com/relcore/dbcore/internal/invalidation"
	"github.com/relcore/dbcore/internal/notify"
	"github.com/relcore/dbcore/internal/temprel"
	"github.com/relcore/dbcore/internal/txnlog"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	log, err := txnlog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	pool := bufpool.NewMemPool()
	temp, err := temprel.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { temp.Close() })

	cat := catalog.NewCache(nil, pool, temp, catalog.IndexedAccess{}, t.TempDir())
	proc := NewProcess()
	notifier := notify.NewDispatcher(nil)

	return NewWorker(proc, log, pool, cat, temp, notifier)
}

func TestDefaultBlockStatementAutoCommits(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	require.Equal(t, PhaseDefault, w.State().Phase)
	require.NoError(t, w.BeginStatement(ctx))
	require.Equal(t, PhaseInProgress, w.State().Phase)
	require.True(t, w.State().Xid.Valid())

	require.NoError(t, w.EndStatement(ctx))
	require.Equal(t, PhaseDefault, w.State().Phase)
}

func TestBlockLifecycleCommits(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	require.NoError(t, w.BeginStatement(ctx)) // opens the xact BEGIN itself runs in
	require.NoError(t, w.UserBeginBlock())
	require.NoError(t, w.EndStatement(ctx)) // block-begin -> block-inprogress
	require.Equal(t, BlockInProgress, w.State().BlockPhase)

	require.NoError(t, w.BeginStatement(ctx)) // next statement, still in-progress
	require.NoError(t, w.EndStatement(ctx))   // no-op besides cid bump
	require.Equal(t, BlockInProgress, w.State().BlockPhase)

	require.NoError(t, w.UserEndBlock())
	require.Equal(t, BlockEnd, w.State().BlockPhase)
	require.NoError(t, w.BeginStatement(ctx)) // dispatcher still calls begin/end around END
	require.NoError(t, w.EndStatement(ctx))
	require.Equal(t, BlockDefault, w.State().BlockPhase)
	require.Equal(t, PhaseDefault, w.State().Phase)
}

func TestNestedAbortInsideBlock(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	require.NoError(t, w.BeginStatement(ctx))
	require.NoError(t, w.UserBeginBlock())
	require.NoError(t, w.EndStatement(ctx)) // -> block-inprogress

	// A statement fails: internal abort.
	require.NoError(t, w.BeginStatement(ctx))
	require.NoError(t, w.AbortCurrent(ctx))
	require.Equal(t, BlockAbort, w.State().BlockPhase)

	// Subsequent statements before END are skipped (no new xact opens).
	require.NoError(t, w.BeginStatement(ctx))
	require.Equal(t, BlockAbort, w.State().BlockPhase)
	require.NoError(t, w.EndStatement(ctx))
	require.Equal(t, BlockAbort, w.State().BlockPhase)

	// Client's END arrives.
	require.NoError(t, w.UserEndBlock())
	require.Equal(t, BlockEndAbort, w.State().BlockPhase)
	require.NoError(t, w.BeginStatement(ctx))
	require.NoError(t, w.EndStatement(ctx))
	require.Equal(t, BlockDefault, w.State().BlockPhase)
}

func TestUserAbortBlockGoesDirectlyToEndAbort(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	require.NoError(t, w.BeginStatement(ctx))
	require.NoError(t, w.UserBeginBlock())
	require.NoError(t, w.EndStatement(ctx))

	require.NoError(t, w.UserAbortBlock(ctx))
	require.Equal(t, BlockEndAbort, w.State().BlockPhase)
	require.NoError(t, w.EndStatement(ctx))
	require.Equal(t, BlockDefault, w.State().BlockPhase)
}

func TestAbortCurrentAtBlockEndGoesDirectlyToDefault(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	require.NoError(t, w.BeginStatement(ctx))
	require.NoError(t, w.UserBeginBlock())
	require.NoError(t, w.EndStatement(ctx)) // -> block-inprogress
	require.NoError(t, w.UserEndBlock())
	require.Equal(t, BlockEnd, w.State().BlockPhase)

	// A failure caught while processing the user's END: abort runs, but
	// block-phase regresses straight to block-default, not block-abort.
	require.NoError(t, w.AbortCurrent(ctx))
	require.Equal(t, BlockDefault, w.State().BlockPhase)
}

func TestAbortCurrentAtEndAbortDoesNotAbortAgain(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()

	require.NoError(t, w.BeginStatement(ctx))
	require.NoError(t, w.UserBeginBlock())
	require.NoError(t, w.EndStatement(ctx))
	require.NoError(t, w.UserAbortBlock(ctx))
	require.Equal(t, BlockEndAbort, w.State().BlockPhase)

	// Already past the abort; a second AbortCurrent must not re-run abort,
	// just regress to block-default.
	require.NoError(t, w.AbortCurrent(ctx))
	require.Equal(t, BlockDefault, w.State().BlockPhase)
}

func TestCidOverflowIsFatal(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()
	require.NoError(t, w.BeginStatement(ctx))
	require.NoError(t, w.UserBeginBlock())
	require.NoError(t, w.EndStatement(ctx)) // block-inprogress

	w.mu.Lock()
	w.state.Cid = 0xFFFF
	w.mu.Unlock()

	err := w.EndStatement(ctx)
	require.Error(t, err)
}

func TestAbortDoesNotBroadcastInvalidations(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()
	require.NoError(t, w.BeginStatement(ctx))

	consumer := w.proc.Invalidation.NewConsumer()
	w.AppendInvalidation(invalidation.Relation(42, 0))
	require.NoError(t, w.AbortCurrent(ctx))

	require.Empty(t, consumer.Drain(), "aborted transaction's invalidations must never reach the global queue")
}

func TestCommitBroadcastsInvalidations(t *testing.T) {
	w := newTestWorker(t)
	ctx := context.Background()
	require.NoError(t, w.BeginStatement(ctx))

	consumer := w.proc.Invalidation.NewConsumer()
	w.AppendInvalidation(invalidation.Relation(7, 0))
	require.NoError(t, w.EndStatement(ctx))

	got := consumer.Drain()
	require.Len(t, got, 1)
}

func TestAbortDiscardsOwnNotificationsButDeliversRemote(t *testing.T) {
	var delivered []string
	log, err := txnlog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	pool := bufpool.NewMemPool()
	temp, err := temprel.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { temp.Close() })

	cat := catalog.NewCache(nil, pool, temp, catalog.IndexedAccess{}, t.TempDir())
	notifier := notify.NewDispatcher(func(_ context.Context, n notify.Notification) error {
		delivered = append(delivered, n.Payload)
		return nil
	})
	w := NewWorker(NewProcess(), log, pool, cat, temp, notifier)

	ctx := context.Background()
	require.NoError(t, w.BeginStatement(ctx))
	w.Notify("c", "own")
	w.NotifyRemote("c", "other-worker's")

	require.NoError(t, w.AbortCurrent(ctx))
	require.Equal(t, []string{"other-worker's"}, delivered, "abort must discard this transaction's own notifications but still deliver ones from other workers")
}
