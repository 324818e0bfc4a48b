// Package bufpool defines the Storage Facade the transaction manager talks
// to: an opaque BufferPool with flush-all, reset, and check-leak (spec §2
// item 1, §4.1). The physical buffer pool and on-disk page format are
// explicitly out of scope (spec §1); this package exposes the interface the
// rest of the core depends on plus a reference implementation sufficient to
// exercise commit/abort end to end.
package bufpool

import (
	"context"
	"fmt"
	"sync"
)

// PageID identifies a single page within the pool's address space.
type PageID struct {
	RelID  uint32
	Offset uint32
}

// BufferPool is the facade the transaction state machine and descriptor
// cache depend on. No other core component calls it directly (spec §2).
type BufferPool interface {
	// Open returns a handle used by the descriptor cache to mark a
	// relation's storage as in use; it does not itself read any bytes.
	Open(ctx context.Context, relID uint32) (Handle, error)
	// MarkDirty records that a page was written and must be flushed
	// before the owning transaction's commit record.
	MarkDirty(PageID) error
	// FlushAll forces every dirty page to stable storage. Called twice
	// around the commit log write per spec §4.1 step 3 and §5's
	// data-before-log invariant.
	FlushAll(ctx context.Context) error
	// Reset discards all dirty pages without flushing them, used on
	// abort (spec §4.1 abort step 2).
	Reset()
	// CheckLeak reports an error if any handle opened via Open has not
	// been closed; used by tests and by worker shutdown.
	CheckLeak() error
}

// Handle represents one open relation's storage within the pool.
type Handle interface {
	Close() error
	RelID() uint32
}

// memPool is a reference BufferPool good enough to drive the rest of the
// core through its contract without touching disk itself — the real page
// cache is out of scope per spec §1.
type memPool struct {
	mu     sync.Mutex
	dirty  map[PageID]struct{}
	open   map[*memHandle]struct{}
	closed bool
}

// NewMemPool returns an in-memory BufferPool reference implementation.
func NewMemPool() BufferPool {
	return &memPool{
		dirty: make(map[PageID]struct{}),
		open:  make(map[*memHandle]struct{}),
	}
}

type memHandle struct {
	pool  *memPool
	relID uint32
}

func (h *memHandle) RelID() uint32 { return h.relID }

func (h *memHandle) Close() error {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()
	delete(h.pool.open, h)
	return nil
}

func (p *memPool) Open(_ context.Context, relID uint32) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := &memHandle{pool: p, relID: relID}
	p.open[h] = struct{}{}
	return h, nil
}

func (p *memPool) MarkDirty(id PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty[id] = struct{}{}
	return nil
}

func (p *memPool) FlushAll(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = make(map[PageID]struct{})
	return nil
}

func (p *memPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = make(map[PageID]struct{})
}

func (p *memPool) CheckLeak() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.open) > 0 {
		return fmt.Errorf("bufpool: %d handle(s) still open at leak check", len(p.open))
	}
	return nil
}
