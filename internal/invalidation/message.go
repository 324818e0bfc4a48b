// Package invalidation defines the InvalidationMessage tagged union (spec
// §3, §4.3) and the per-worker LocalList that accumulates messages produced
// within the currently running transaction.
//
// The message shape is grounded on original_source/inval.c's
// SharedInvalidMessage union (see SPEC_FULL.md): a Kind tag plus the fields
// relevant to that kind. ResetAll is carried as a message kind, the same
// way inval.c folds a cache reset into the union rather than treating it as
// a side channel, so it can travel the same local list and the same global
// queue as every other invalidation.
package invalidation

// Kind tags the variant of an InvalidationMessage.
type Kind int

const (
	// KindCatalogTuple names one cached catalog row that must be
	// discarded.
	KindCatalogTuple Kind = iota
	// KindRelation names a cached relation descriptor (and optionally a
	// dependent index descriptor set) that must be rebuilt.
	KindRelation
	// KindResetAll requests a process-wide cache reset (spec §4.2
	// invalidate-all). Supplemented from inval.c; see SPEC_FULL.md.
	KindResetAll
)

// Message is a value-type tagged union. Only the fields relevant to Kind
// are meaningful; the others are zero.
type Message struct {
	Kind Kind

	// KindCatalogTuple fields.
	CacheID   int
	HashIndex uint32
	RowPtr    uint64

	// KindRelation fields.
	RelID    uint32
	ObjectID uint32
	// Rebuild distinguishes a row changed in place (true, e.g. ALTER) from
	// the relation itself having been dropped (false). Supplemented from
	// original_source/relcache.c; see SPEC_FULL.md.
	Rebuild bool

	// KindResetAll fields.
	OnlyZeroRefs bool
}

// CatalogTuple constructs a catalog-tuple invalidation.
func CatalogTuple(cacheID int, hashIndex uint32, rowPtr uint64) Message {
	return Message{Kind: KindCatalogTuple, CacheID: cacheID, HashIndex: hashIndex, RowPtr: rowPtr}
}

// Relation constructs a relation-descriptor invalidation for a dropped
// relation: once unreferenced, the descriptor is evicted outright.
func Relation(relID, objectID uint32) Message {
	return Message{Kind: KindRelation, RelID: relID, ObjectID: objectID}
}

// RelationRebuild constructs a relation-descriptor invalidation for a row
// changed in place (e.g. ALTER): a still-referenced descriptor is marked
// stale instead of evicted, and rebuilt from the catalog the next time it
// is opened with a zero refcount.
func RelationRebuild(relID, objectID uint32) Message {
	return Message{Kind: KindRelation, RelID: relID, ObjectID: objectID, Rebuild: true}
}

// ResetAll constructs a process-wide cache-reset invalidation.
func ResetAll(onlyZeroRefs bool) Message {
	return Message{Kind: KindResetAll, OnlyZeroRefs: onlyZeroRefs}
}

// LocalList is a per-worker, append-only list of messages produced within
// the currently running transaction. Order is not semantically significant
// and duplicates are permitted and harmless (spec §4.3).
type LocalList struct {
	messages []Message
}

// Append records msg on the local list.
func (l *LocalList) Append(msg Message) {
	l.messages = append(l.messages, msg)
}

// Messages returns the accumulated messages in append order.
func (l *LocalList) Messages() []Message {
	return l.messages
}

// Len reports how many messages are pending.
func (l *LocalList) Len() int {
	return len(l.messages)
}

// Clear empties the list, typically called once its contents have been
// either broadcast (commit) or applied locally (abort).
func (l *LocalList) Clear() {
	l.messages = l.messages[:0]
}
