// Package catalog is the Descriptor Cache (spec §2 item 5, §4.2): it
// materializes RelationDescriptor values on demand from the catalog tables,
// caches them dual-indexed by id and by name, and keeps them coherent with
// invalidations.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/relcore/dbcore/internal/bufpool"
	"github.com/relcore/dbcore/internal/catalogstore"
	"github.com/relcore/dbcore/internal/coreerr"
)

var catalogTracer = otel.Tracer("github.com/relcore/dbcore/catalog")

var catalogMetrics struct {
	lockWaitMs metric.Float64Histogram
}

func init() {
	m := otel.Meter("github.com/relcore/dbcore/catalog")
	catalogMetrics.lockWaitMs, _ = m.Float64Histogram("dbcore.catalog.lock_wait_ms",
		metric.WithDescription("time spent waiting for a descriptor-scoped lock"),
		metric.WithUnit("ms"),
	)
}

// Column is the in-memory form of one column-catalog row (spec §6).
type Column struct {
	Name      string
	Number    int
	TypeID    uint32
	Length    int
	Align     byte
	ByValue   bool
	IsDropped bool
	TypeMod   int
}

// TupleLayout is the ordered set of a relation's columns, plus a hash
// index enforcing alias-uniqueness across the live (non-dropped) ones
// (spec §8: "under ≥32-column relations, alias-uniqueness must use a
// hash index, not linear search" — a relation this wide would otherwise
// make every catalog build that checks for a duplicate column name scan
// the whole column list once per column, i.e. quadratic in width).
// Dropped columns are exempt from the check: postgres internally renames
// a dropped column rather than reusing its slot, so two dropped columns
// never actually collide in practice.
type TupleLayout struct {
	Columns []Column

	aliasIndex map[string]int
}

// NewTupleLayout builds a TupleLayout from cols in order, rejecting a
// duplicate live column name the moment it is seen.
func NewTupleLayout(cols []Column) (TupleLayout, error) {
	layout := TupleLayout{
		Columns:    make([]Column, 0, len(cols)),
		aliasIndex: make(map[string]int, len(cols)),
	}
	for _, c := range cols {
		if err := layout.addColumn(c); err != nil {
			return TupleLayout{}, err
		}
	}
	return layout, nil
}

func (l *TupleLayout) addColumn(c Column) error {
	if l.aliasIndex == nil {
		l.aliasIndex = make(map[string]int, len(l.Columns)+1)
	}
	if !c.IsDropped {
		if _, dup := l.aliasIndex[c.Name]; dup {
			return fmt.Errorf("catalog: duplicate column alias %q", c.Name)
		}
	}
	l.Columns = append(l.Columns, c)
	if !c.IsDropped {
		l.aliasIndex[c.Name] = len(l.Columns) - 1
	}
	return nil
}

// ColumnByAlias looks up a live column by name through the hash index —
// O(1) regardless of the relation's column count.
func (l *TupleLayout) ColumnByAlias(name string) (Column, bool) {
	i, ok := l.aliasIndex[name]
	if !ok {
		return Column{}, false
	}
	return l.Columns[i], true
}

// IndexStrategy holds the strategy and support-function vectors loaded for
// an index relation (spec §4.2 step 5).
type IndexStrategy struct {
	Strategies       []uint32
	SupportFunctions []uint32
}

// RelationDescriptor is spec §3's RelationDescriptor record.
type RelationDescriptor struct {
	RelID      uint32
	Name       string
	Nailed     bool
	Layout     TupleLayout
	AccessMtd  catalogstore.AccessMethodRow
	Rules      []catalogstore.RuleRow
	Handle     bufpool.Handle
	Lock       *DescriptorLock
	IsIndex    bool
	IndexInfo  *IndexStrategy

	mu       sync.Mutex
	refcount int
	stale    bool
}

// Refcount returns the descriptor's current reference count.
func (d *RelationDescriptor) Refcount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refcount
}

// IsStale reports whether a rebuild invalidation (relcache.c's "row
// changed, rebuild in place" case — see SPEC_FULL.md) arrived while this
// descriptor was still referenced, so its cached catalog data no longer
// reflects the underlying row.
func (d *RelationDescriptor) IsStale() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stale
}

func (d *RelationDescriptor) markStale() {
	d.mu.Lock()
	d.stale = true
	d.mu.Unlock()
}

func (d *RelationDescriptor) incref() {
	d.mu.Lock()
	d.refcount++
	d.mu.Unlock()
}

func (d *RelationDescriptor) decref() {
	d.mu.Lock()
	if d.refcount > 0 {
		d.refcount--
	}
	d.mu.Unlock()
}

// CatalogAccessPolicy selects the two-path strategy threaded through
// build-from-catalog (spec §4.2, §9's design notes): sequential scan during
// bootstrap versus indexed lookup once the catalog indexes themselves are
// cached. Both implementations share this interface.
type CatalogAccessPolicy interface {
	RelationByID(ctx context.Context, store *catalogstore.Store, id uint32) (*catalogstore.RelationRow, error)
	RelationByName(ctx context.Context, store *catalogstore.Store, name string) (*catalogstore.RelationRow, error)
	Columns(ctx context.Context, store *catalogstore.Store, relID uint32) ([]catalogstore.ColumnRow, error)
}

// IndexedAccess is the normal-operation policy: catalog indexes are used.
type IndexedAccess struct{}

func (IndexedAccess) RelationByID(ctx context.Context, store *catalogstore.Store, id uint32) (*catalogstore.RelationRow, error) {
	return store.RelationByID(ctx, id)
}

func (IndexedAccess) RelationByName(ctx context.Context, store *catalogstore.Store, name string) (*catalogstore.RelationRow, error) {
	return store.RelationByName(ctx, name)
}

func (IndexedAccess) Columns(ctx context.Context, store *catalogstore.Store, relID uint32) ([]catalogstore.ColumnRow, error) {
	return store.ColumnsForRelation(ctx, relID)
}

// BootstrapAccess is the bootstrap-time policy: the catalog's own indexes
// are not yet available, so every lookup is a sequential scan (spec §4.2
// step 1).
type BootstrapAccess struct{}

func (BootstrapAccess) RelationByID(ctx context.Context, store *catalogstore.Store, id uint32) (*catalogstore.RelationRow, error) {
	return store.RelationByIDSeqScan(ctx, id)
}

func (BootstrapAccess) RelationByName(ctx context.Context, store *catalogstore.Store, name string) (*catalogstore.RelationRow, error) {
	rows, err := store.QueryContext(ctx, `SELECT id, name, kind, owner, is_shared, column_count, storage_manager, has_rules, has_indexes FROM relation_catalog`)
	if err != nil {
		return nil, fmt.Errorf("catalog: bootstrap seqscan by name: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r catalogstore.RelationRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Kind, &r.Owner, &r.IsShared, &r.ColumnCount, &r.StorageMgr, &r.HasRules, &r.HasIndexes); err != nil {
			return nil, fmt.Errorf("catalog: bootstrap seqscan scan: %w", err)
		}
		if r.Name == name {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("catalog: relation %q not found in bootstrap scan", name)
}

func (BootstrapAccess) Columns(ctx context.Context, store *catalogstore.Store, relID uint32) ([]catalogstore.ColumnRow, error) {
	return store.ColumnsForRelationSeqScan(ctx, relID)
}

// buildSpan starts a span around one build-from-catalog call.
func buildSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return catalogTracer.Start(ctx, "catalog.build."+name, trace.WithSpanKind(trace.SpanKindInternal))
}

// fatalBuildErr wraps a build-from-catalog error as Fatal per spec §4.2's
// failure-mode note ("index support lookup failure... is fatal for the
// worker").
func fatalBuildErr(op string, err error) error {
	return coreerr.Fatal("catalog.build."+op, err)
}
