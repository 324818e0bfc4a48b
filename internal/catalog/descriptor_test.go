package catalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTupleLayoutRejectsDuplicateAlias(t *testing.T) {
	_, err := NewTupleLayout([]Column{
		{Name: "a", Number: 1},
		{Name: "b", Number: 2},
		{Name: "a", Number: 3},
	})
	require.Error(t, err)
}

func TestNewTupleLayoutAllowsDuplicateDroppedAlias(t *testing.T) {
	layout, err := NewTupleLayout([]Column{
		{Name: "........pg.dropped.1........", Number: 1, IsDropped: true},
		{Name: "........pg.dropped.1........", Number: 2, IsDropped: true},
		{Name: "a", Number: 3},
	})
	require.NoError(t, err)
	require.Len(t, layout.Columns, 3)
}

func TestColumnByAliasUsesHashIndex(t *testing.T) {
	layout, err := NewTupleLayout([]Column{
		{Name: "id", Number: 1},
		{Name: "name", Number: 2},
	})
	require.NoError(t, err)

	col, ok := layout.ColumnByAlias("name")
	require.True(t, ok)
	require.Equal(t, 2, col.Number)

	_, ok = layout.ColumnByAlias("missing")
	require.False(t, ok)
}

// TestWideRelationAliasUniquenessStaysUnique builds a relation with 64
// columns — double the spec's 32-column threshold for preferring a hash
// index over a linear scan — checks that the last alias resolves, and
// checks that a duplicate is caught when the last column repeats the first
// column's name, the two positions farthest apart in the relation.
func TestWideRelationAliasUniquenessStaysUnique(t *testing.T) {
	const width = 64

	cols := make([]Column, 0, width)
	for i := 0; i < width; i++ {
		cols = append(cols, Column{Name: fmt.Sprintf("col_%d", i), Number: i})
	}
	layout, err := NewTupleLayout(cols)
	require.NoError(t, err)
	require.Len(t, layout.Columns, width)

	col, ok := layout.ColumnByAlias(fmt.Sprintf("col_%d", width-1))
	require.True(t, ok)
	require.Equal(t, width-1, col.Number)

	dup := make([]Column, len(cols))
	copy(dup, cols)
	dup[width-1].Name = dup[0].Name
	_, err = NewTupleLayout(dup)
	require.Error(t, err, "duplicate alias at the tail of a wide relation must still be caught")
}
