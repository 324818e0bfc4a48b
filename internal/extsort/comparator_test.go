package extsort

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareSingleKeyAscending(t *testing.T) {
	cmp := Comparator{Keys: []SortKey{{Column: 0}}}
	require.Less(t, cmp.Compare(Tuple{1}, Tuple{2}), 0)
	require.Greater(t, cmp.Compare(Tuple{2}, Tuple{1}), 0)
	require.Equal(t, 0, cmp.Compare(Tuple{5}, Tuple{5}))
}

func TestCompareCommuteReversesDirection(t *testing.T) {
	cmp := Comparator{Keys: []SortKey{{Column: 0, Commute: true}}}
	require.Greater(t, cmp.Compare(Tuple{1}, Tuple{2}), 0)
}

func TestCompareSecondaryKeyBreaksTie(t *testing.T) {
	cmp := Comparator{Keys: []SortKey{{Column: 0}, {Column: 1}}}
	require.Less(t, cmp.Compare(Tuple{1, 9}, Tuple{1, 10}), 0)
	require.Equal(t, 0, cmp.Compare(Tuple{1, 9}, Tuple{1, 9}))
}

func TestCompareNullSortsSmaller(t *testing.T) {
	cmp := Comparator{Keys: []SortKey{{Column: 0}}}
	require.Less(t, cmp.Compare(Tuple{NullValue}, Tuple{0}), 0)
	require.Greater(t, cmp.Compare(Tuple{0}, Tuple{NullValue}), 0)
	require.Equal(t, 0, cmp.Compare(Tuple{NullValue}, Tuple{NullValue}))
}
