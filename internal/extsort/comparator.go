// Package extsort is the External Polyphase Merge Sorter (spec §2 item 8,
// §4.5): replacement-selection run generation over an arena-backed,
// generation-tagged heap, Fibonacci tape distribution, and an M-1-input/
// one-output polyphase merge.
package extsort

import "math"

// Tuple is one sortable row: a fixed set of int64 columns. Real tuple
// payloads are opaque to this core (spec §1); this reduced representation
// is enough to exercise the sort algorithm's comparator contract, run
// generation, and merge end to end.
type Tuple []int64

// NullValue marks a column as null for comparator purposes (spec §4.5:
// "Nulls compare as specified by the caller; by default, null < any
// value").
const NullValue = int64(math.MinInt64)

// SortKey is one entry in the caller-supplied ordered list of sort keys
// (spec §4.5's comparison contract).
type SortKey struct {
	Column  int
	Commute bool // reverses this key's direction
}

// Comparator orders tuples by an ordered list of keys, short-circuiting at
// the first key that distinguishes them.
type Comparator struct {
	Keys []SortKey
}

// Compare returns <0, 0, or >0 as a sorts before, equal to, or after b.
func (c Comparator) Compare(a, b Tuple) int {
	for _, k := range c.Keys {
		av, bv := a[k.Column], b[k.Column]
		var cmp int
		switch {
		case av == NullValue && bv == NullValue:
			cmp = 0
		case av == NullValue:
			cmp = -1
		case bv == NullValue:
			cmp = 1
		case av < bv:
			cmp = -1
		case av > bv:
			cmp = 1
		default:
			cmp = 0
		}
		if k.Commute {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp
		}
	}
	return 0
}
