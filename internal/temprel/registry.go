// Package temprel is the Temporary-Relation Registry (spec §2 item 6,
// §4.4): a per-worker list overlaying the descriptor cache, giving
// session-local visibility to session-local relations.
//
// The registry's lookup and mutation logic is a small, linear, in-memory
// list exactly as spec §4.4 specifies ("the list is small by design");
// durability across worker crash is grounded on the teacher's
// ephemeral.Store (SQLite-backed, SetMaxOpenConns(1), "can be freely
// nuked") per DESIGN.md's Open-Question decision: temp relations are
// registered durably. The registry deletes no data file, neither at end of
// block nor at abort nor in a crash-recovery sweep; end of block only
// updates this list and the descriptor cache.
package temprel

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Kind distinguishes the two relation shapes that can be temporary.
type Kind int

const (
	KindHeap Kind = iota
	KindIndex
)

// Entry is spec §3's TemporaryRelationEntry.
type Entry struct {
	LogicalName     string
	PhysicalName    string
	RelID           uint32
	Kind            Kind
	CreatedInXact   bool
	DeletedInXact   bool
	creationOrder   int
}

// Registry is the per-worker temp-relation list.
type Registry struct {
	mu      sync.Mutex
	entries []*Entry
	nextOrd int

	db *sql.DB
}

// Open opens (creating if absent) the SQLite-backed durability store at
// path, and returns an empty in-memory Registry. Pass "" for path to run
// purely in memory (e.g. in tests).
func Open(path string) (*Registry, error) {
	r := &Registry{}
	if path == "" {
		return r, nil
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("temprel: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS temp_relations (
		logical_name TEXT NOT NULL,
		physical_name TEXT NOT NULL,
		rel_id INTEGER NOT NULL,
		kind INTEGER NOT NULL,
		creation_order INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("temprel: create schema: %w", err)
	}
	r.db = db
	return r, nil
}

// Close closes the durability store, if any.
func (r *Registry) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// lookup returns the active (non-deleted) entry with the greatest creation
// order for logicalName, or nil (spec §8's round-trip law).
func (r *Registry) lookup(logicalName string) *Entry {
	var best *Entry
	for _, e := range r.entries {
		if e.LogicalName != logicalName || e.DeletedInXact {
			continue
		}
		if best == nil || e.creationOrder > best.creationOrder {
			best = e
		}
	}
	return best
}

// PhysicalName is the descriptor cache's sole point of temp-visibility
// enforcement (spec §4.2): it reports whether logicalName names an active
// temp relation and, if so, its physical name.
func (r *Registry) PhysicalName(logicalName string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.lookup(logicalName)
	if e == nil {
		return "", false
	}
	return e.PhysicalName, true
}

// Create appends a new entry for a freshly created temp relation. Per spec
// §4.4, renaming a non-temp relation into a name currently occupied by an
// active temp entry is rejected by the caller before reaching here; Create
// itself rejects any logicalName that already has an active entry, whatever
// that entry's rel-id.
func (r *Registry) Create(ctx context.Context, logicalName, physicalName string, relID uint32, kind Kind) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.lookup(logicalName); existing != nil {
		return nil, fmt.Errorf("temprel: %q already has an active temp entry", logicalName)
	}
	e := &Entry{
		LogicalName: logicalName, PhysicalName: physicalName,
		RelID: relID, Kind: kind, CreatedInXact: true,
		creationOrder: r.nextOrd,
	}
	r.nextOrd++
	r.entries = append(r.entries, e)
	if r.db != nil {
		if _, err := r.db.ExecContext(ctx, `INSERT INTO temp_relations (logical_name, physical_name, rel_id, kind, creation_order) VALUES (?, ?, ?, ?, ?)`,
			e.LogicalName, e.PhysicalName, e.RelID, e.Kind, e.creationOrder); err != nil {
			return nil, fmt.Errorf("temprel: persist create: %w", err)
		}
	}
	return e, nil
}

// Drop marks the active entry for logicalName deleted-in-xact without
// removing it, so rollback can restore it (spec §4.4).
func (r *Registry) Drop(logicalName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.lookup(logicalName)
	if e == nil {
		return fmt.Errorf("temprel: no active temp entry %q", logicalName)
	}
	e.DeletedInXact = true
	return nil
}

// Rename inserts a new entry under newName and marks the old one deleted,
// preserving the invariant that exactly one active entry maps any given
// logical name (spec §4.4). Renaming into a name already claimed by a temp
// entry is rejected.
func (r *Registry) Rename(oldName, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.lookup(oldName)
	if old == nil {
		return fmt.Errorf("temprel: no active temp entry %q", oldName)
	}
	if r.lookup(newName) != nil {
		return fmt.Errorf("temprel: %q is already an active temp name", newName)
	}
	old.DeletedInXact = true
	e := &Entry{
		LogicalName: newName, PhysicalName: old.PhysicalName,
		RelID: old.RelID, Kind: old.Kind, CreatedInXact: true,
		creationOrder: r.nextOrd,
	}
	r.nextOrd++
	r.entries = append(r.entries, e)
	return nil
}

// DeletedEntries returns the entries currently marked deleted-in-xact,
// without mutating the registry, so a caller can destroy their underlying
// storage before calling Commit (spec §4.1 commit step 1: "destroy temp
// relations created by this xact that are still present in the registry").
func (r *Registry) DeletedEntries() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Entry
	for _, e := range r.entries {
		if e.DeletedInXact {
			out = append(out, e)
		}
	}
	return out
}

// Commit applies spec §4.4's end-of-transaction commit rule: drop entries
// marked deleted-in-xact, clear created-in-xact on the rest.
func (r *Registry) Commit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.DeletedInXact {
			continue
		}
		e.CreatedInXact = false
		kept = append(kept, e)
	}
	r.entries = kept
}

// Abort applies spec §4.4's end-of-transaction abort rule: drop entries
// marked created-in-xact, clear deleted-in-xact on the rest.
func (r *Registry) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.CreatedInXact {
			continue
		}
		e.DeletedInXact = false
		kept = append(kept, e)
	}
	r.entries = kept
}

// Shutdown returns every live entry in reverse creation order, so the
// caller can drop indexes before their tables as spec §4.4 requires, then
// empties the registry.
func (r *Registry) Shutdown() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	r.entries = nil
	return out
}
