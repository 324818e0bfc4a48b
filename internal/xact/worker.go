package xact

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/relcore/dbcore/internal/bufpool"
	"github.com/relcore/dbcore/internal/catalog"
	"github.com/relcore/dbcore/internal/coreerr"
	"github.com/relcore/dbcore/internal/invalidation"
	"github.com/relcore/dbcore/internal/invalq"
	"github.com/relcore/dbcore/internal/notify"
	"github.com/relcore/dbcore/internal/temprel"
	"github.com/relcore/dbcore/internal/txnlog"
	"github.com/relcore/dbcore/internal/xid"
)

// TransactionState is spec §3's TransactionState record: exactly one per
// worker, created at worker start in PhaseDefault, never destroyed.
type TransactionState struct {
	Xid        xid.Xid
	Cid        xid.Cid
	StartTime  time.Time
	Phase      Phase
	BlockPhase BlockPhase
}

// Worker is the transaction state machine owner (spec §9's redesign of the
// original's process-wide globals into an explicit, per-connection value).
// It owns the TransactionState/BlockState and drives the log adapter,
// descriptor cache, temp registry, invalidation protocol, and buffer pool
// at statement and transaction boundaries.
type Worker struct {
	mu    sync.Mutex
	state TransactionState

	proc    *Process
	log     *txnlog.Log
	pool    bufpool.BufferPool
	catalog *catalog.Cache
	temp    *temprel.Registry
	notify  *notify.Dispatcher

	local    invalidation.LocalList
	consumer *invalq.Consumer

	cursors []io.Closer
	// cleanup is a resource-owner-style stack (grounded on
	// original_source/xact.c, see SPEC_FULL.md): subsystems push a
	// release callback when they acquire something scoped to the
	// current transaction, and commit/abort run the stack in reverse
	// order, the same way xact.c unwinds resource owners.
	cleanup []func()
}

// NewWorker creates a Worker in PhaseDefault/BlockDefault, registered as a
// consumer of proc's shared invalidation queue.
func NewWorker(proc *Process, log *txnlog.Log, pool bufpool.BufferPool, cat *catalog.Cache, temp *temprel.Registry, notifier *notify.Dispatcher) *Worker {
	return &Worker{
		state:    TransactionState{Phase: PhaseDefault, BlockPhase: BlockDefault},
		proc:     proc,
		log:      log,
		pool:     pool,
		catalog:  cat,
		temp:     temp,
		notify:   notifier,
		consumer: proc.Invalidation.NewConsumer(),
	}
}

// State returns a copy of the worker's current transaction state.
func (w *Worker) State() TransactionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// PushCleanup registers fn to run, in reverse registration order, the next
// time this transaction commits or aborts.
func (w *Worker) PushCleanup(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cleanup = append(w.cleanup, fn)
}

// PushCursor registers an open result cursor to be closed at the next
// commit or abort (spec §4.1 commit step 2 / abort step 1).
func (w *Worker) PushCursor(c io.Closer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cursors = append(w.cursors, c)
}

// Notify queues an asynchronous notification produced by the current
// transaction for delivery at its next commit. If it instead aborts, the
// notification is discarded rather than delivered (spec §4.1 abort step
// 6).
func (w *Worker) Notify(channel, payload string) {
	w.notify.Enqueue(notify.Notification{Channel: channel, Payload: payload})
}

// NotifyRemote queues a notification delivered on behalf of another
// worker's already-committed transaction. Unlike Notify, it survives this
// worker's current transaction aborting.
func (w *Worker) NotifyRemote(channel, payload string) {
	w.notify.EnqueueRemote(notify.Notification{Channel: channel, Payload: payload})
}

// NoteLocalRelation records that relID was created or altered by the
// current transaction, so its descriptor is purged at commit or abort
// (spec §4.1 commit step 4 / abort step 3) rather than left to an
// invalidation from elsewhere.
func (w *Worker) NoteLocalRelation(relID uint32) {
	w.PushCleanup(func() { w.catalog.Forget(relID) })
}

// AppendInvalidation records an invalidation produced by the current
// transaction on the local list (spec §4.3 producer side).
func (w *Worker) AppendInvalidation(msg invalidation.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.local.Append(msg)
}

// ---- statement-boundary operations (spec §4.1) ----

// BeginStatement is called by the dispatch loop before handing a command to
// the executor.
func (w *Worker) BeginStatement(ctx context.Context) error {
	w.mu.Lock()
	bp := w.state.BlockPhase
	w.mu.Unlock()

	switch bp {
	case BlockDefault:
		return w.startTransaction(ctx)
	case BlockBegin:
		// The previous end-statement should already have made this
		// transition; tolerated as a notice per spec §4.1/§7.
		w.mu.Lock()
		w.state.BlockPhase = BlockInProgress
		w.mu.Unlock()
		logNotice("begin-statement", "found block-begin")
		return nil
	case BlockInProgress:
		return nil
	case BlockAbort:
		return nil
	case BlockEnd:
		// A missed commit: commit the prior transaction, start a new
		// one, return to block-default.
		if err := w.commit(ctx); err != nil {
			return err
		}
		if err := w.startTransaction(ctx); err != nil {
			return err
		}
		w.mu.Lock()
		w.state.BlockPhase = BlockDefault
		w.mu.Unlock()
		return nil
	case BlockEndAbort:
		return nil
	default:
		return coreerr.Warn("begin-statement", fmt.Sprintf("unexpected block phase %s", bp))
	}
}

// EndStatement is called by the dispatch loop after the executor returns.
func (w *Worker) EndStatement(ctx context.Context) error {
	w.mu.Lock()
	bp := w.state.BlockPhase
	w.mu.Unlock()

	switch bp {
	case BlockDefault:
		return w.commit(ctx)
	case BlockBegin:
		w.mu.Lock()
		w.state.BlockPhase = BlockInProgress
		w.mu.Unlock()
		return nil
	case BlockInProgress:
		return w.bumpCid()
	case BlockEnd:
		if err := w.commit(ctx); err != nil {
			return err
		}
		w.mu.Lock()
		w.state.BlockPhase = BlockDefault
		w.mu.Unlock()
		return nil
	case BlockAbort:
		return nil
	case BlockEndAbort:
		w.mu.Lock()
		w.state.BlockPhase = BlockDefault
		w.mu.Unlock()
		return nil
	default:
		return coreerr.Warn("end-statement", fmt.Sprintf("unexpected block phase %s", bp))
	}
}

// AbortCurrent unwinds from internal failure. Unlike EndStatement/commit,
// the target block-phase depends on where the failure was caught, mirroring
// AbortCurrentTransaction's six-way switch (spec §4.1 abort-current):
// block-default/begin/in-progress/end all still need a real abort; abort and
// end-abort are already past that point and must not abort a second time.
func (w *Worker) AbortCurrent(ctx context.Context) error {
	w.mu.Lock()
	bp := w.state.BlockPhase
	w.mu.Unlock()

	switch bp {
	case BlockDefault:
		return w.abort(ctx)
	case BlockBegin, BlockInProgress:
		if err := w.abort(ctx); err != nil {
			return err
		}
		w.mu.Lock()
		w.state.BlockPhase = BlockAbort
		w.mu.Unlock()
		return nil
	case BlockEnd:
		if err := w.abort(ctx); err != nil {
			return err
		}
		w.mu.Lock()
		w.state.BlockPhase = BlockDefault
		w.mu.Unlock()
		return nil
	case BlockAbort:
		return nil
	case BlockEndAbort:
		w.mu.Lock()
		w.state.BlockPhase = BlockDefault
		w.mu.Unlock()
		return nil
	default:
		return coreerr.Warn("abort-current", fmt.Sprintf("unexpected block phase %s", bp))
	}
}

// ---- user BEGIN/END/ABORT operations (spec §4.1) ----

// UserBeginBlock is driven by a BEGIN statement: it only updates
// block-phase; the next end-statement advances the real transaction.
func (w *Worker) UserBeginBlock() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.BlockPhase != BlockDefault {
		return coreerr.Notice("user-begin-block", fmt.Sprintf("found %s", w.state.BlockPhase))
	}
	w.state.BlockPhase = BlockBegin
	return nil
}

// UserEndBlock is driven by an END/COMMIT statement.
func (w *Worker) UserEndBlock() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state.BlockPhase {
	case BlockInProgress, BlockBegin:
		w.state.BlockPhase = BlockEnd
		return nil
	case BlockAbort:
		w.state.BlockPhase = BlockEndAbort
		return nil
	default:
		return coreerr.Warn("user-end-block", fmt.Sprintf("unexpected block phase %s", w.state.BlockPhase))
	}
}

// UserAbortBlock is driven by an ABORT statement. Unlike internal
// AbortCurrent, it leaves block-phase at block-endabort directly — the
// user's ABORT is itself the terminating command, so there is no need to
// wait for a subsequent END (spec §4.1).
func (w *Worker) UserAbortBlock(ctx context.Context) error {
	if err := w.abort(ctx); err != nil {
		return err
	}
	w.mu.Lock()
	w.state.BlockPhase = BlockEndAbort
	w.mu.Unlock()
	return nil
}

// ---- internal sequences ----

func (w *Worker) startTransaction(ctx context.Context) error {
	w.mu.Lock()
	w.state.Phase = PhaseStart
	w.mu.Unlock()

	// Step 1: acquire fresh xid.
	x := w.log.NextXid()

	// Step 2: reset cid, record start time.
	w.mu.Lock()
	w.state.Xid = x
	w.state.Cid = xid.FirstCid
	w.state.StartTime = time.Now()
	w.state.Phase = PhaseInProgress
	w.mu.Unlock()

	// Step 3: discard pending invalidations left over from prior
	// transactions; apply any enqueued by other workers.
	w.drainInvalidations()

	// Step 4: the per-transaction memory region ("portal context") is
	// represented implicitly by this Worker's cursor/cleanup slices,
	// both already empty at this point.

	// Step 5: the temp-relation-creation list's empty state is
	// maintained by temprel.Registry itself across commit/abort; no
	// explicit reset is needed here.
	return nil
}

func (w *Worker) drainInvalidations() {
	for _, msg := range w.consumer.Drain() {
		w.applyInvalidation(msg)
	}
}

func (w *Worker) applyInvalidation(msg invalidation.Message) {
	switch msg.Kind {
	case invalidation.KindRelation:
		w.catalog.Invalidate(msg.RelID, msg.Rebuild)
	case invalidation.KindCatalogTuple:
		// A no-op if the row is absent from the in-memory catalog-row
		// cache; this core's Cache is descriptor-granular, so a
		// catalog-tuple message conservatively invalidates the owning
		// descriptor via CacheID-as-rel-id convention.
		w.catalog.Invalidate(uint32(msg.CacheID), false)
	case invalidation.KindResetAll:
		w.catalog.InvalidateAll(msg.OnlyZeroRefs)
	}
}

func (w *Worker) commit(ctx context.Context) error {
	w.mu.Lock()
	w.state.Phase = PhaseCommit
	w.mu.Unlock()

	// Step 1: destroy temp relations created by this xact that are
	// still present (the entries DeletedEntries() reports are the ones
	// actually being dropped for good at this commit; see DESIGN.md).
	for _, e := range w.temp.DeletedEntries() {
		w.catalog.Forget(e.RelID)
	}
	w.temp.Commit()

	// Step 2: close open result cursors.
	w.closeCursors()

	// Step 3: record commit — flush dirty pages, mark committed, flush
	// again to enforce data-before-log ordering (spec §4.1, §5).
	if err := w.pool.FlushAll(ctx); err != nil {
		return coreerr.Fatal("xact.commit.flush1", err)
	}
	if err := w.log.RecordCommitted(w.State().Xid, time.Now()); err != nil {
		return coreerr.Fatal("xact.commit.record", err)
	}
	if err := w.pool.FlushAll(ctx); err != nil {
		return coreerr.Fatal("xact.commit.flush2", err)
	}

	// Step 4: purge descriptors for relations local to this xact, and
	// step 6 (release locks) via the cleanup stack.
	w.runCleanup()

	// Step 5: broadcast local invalidations onto the process-wide queue.
	w.mu.Lock()
	msgs := append([]invalidation.Message(nil), w.local.Messages()...)
	w.local.Clear()
	w.mu.Unlock()
	w.proc.Invalidation.Broadcast(ctx, msgs)

	// Step 7: discard the per-transaction memory region — nothing left
	// to do; cursors and cleanup were already drained above.

	// Step 8: deliver pending asynchronous notifications.
	w.notify.Flush(ctx)

	w.mu.Lock()
	w.state.Phase = PhaseDefault
	w.mu.Unlock()
	return nil
}

func (w *Worker) abort(ctx context.Context) error {
	w.mu.Lock()
	w.state.Phase = PhaseAbort
	w.mu.Unlock()

	// Step 1: close result cursors.
	w.closeCursors()

	// Step 2: mark xid aborted; reset dirty pages without flushing.
	if x := w.State().Xid; x.Valid() {
		if err := w.log.RecordAborted(x); err != nil {
			return coreerr.Fatal("xact.abort.record", err)
		}
	}
	w.pool.Reset()

	// Step 3: purge local-relation descriptors (cleanup stack).
	w.runCleanup()

	// Step 4: apply local invalidations to the local cache only — never
	// broadcast, since other workers never saw this work (spec §4.3's
	// central asymmetry).
	w.mu.Lock()
	msgs := append([]invalidation.Message(nil), w.local.Messages()...)
	w.local.Clear()
	w.mu.Unlock()
	for _, m := range msgs {
		w.applyInvalidation(m)
	}

	// Step 5: locks already released via runCleanup above; discard the
	// memory region (nothing further to do).

	// Step 6: discard this transaction's own pending notifications, then
	// deliver any that arrived from other workers mid-transaction.
	w.notify.Discard()
	w.notify.Flush(ctx)

	w.temp.Abort()

	w.mu.Lock()
	w.state.Phase = PhaseDefault
	w.state.Xid = xid.DisabledXid
	w.mu.Unlock()
	return nil
}

func (w *Worker) closeCursors() {
	w.mu.Lock()
	cursors := w.cursors
	w.cursors = nil
	w.mu.Unlock()
	for _, c := range cursors {
		_ = c.Close()
	}
}

func (w *Worker) runCleanup() {
	w.mu.Lock()
	stack := w.cleanup
	w.cleanup = nil
	w.mu.Unlock()
	for i := len(stack) - 1; i >= 0; i-- {
		stack[i]()
	}
}

// bumpCid advances the command counter, failing the transaction with a
// "too many commands" fatal condition on overflow (spec §3, §8).
func (w *Worker) bumpCid() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state.Cid == xid.MaxCid {
		return coreerr.Fatal("xact.bump_cid", fmt.Errorf("too many commands in transaction %s", w.state.Xid))
	}
	w.state.Cid++
	return nil
}

func logNotice(op, msg string) {
	log.Printf("%v", coreerr.Notice(op, msg))
}
