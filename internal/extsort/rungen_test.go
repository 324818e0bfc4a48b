package extsort

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sliceSource(tuples []Tuple) TupleSource {
	i := 0
	return func() (Tuple, bool, error) {
		if i >= len(tuples) {
			return nil, false, nil
		}
		t := tuples[i]
		i++
		return t, true, nil
	}
}

func TestGenerateRunsEmptyInputProducesOneEmptyRun(t *testing.T) {
	dir := t.TempDir()
	tapes := make([]*SortTape, 2)
	for i := range tapes {
		tp, err := OpenScratchTape(dir, i)
		require.NoError(t, err)
		defer tp.Unlink()
		tapes[i] = tp
	}

	cmp := Comparator{Keys: []SortKey{{Column: 0}}}
	mem := NewMemoryAccountant(4)
	require.NoError(t, GenerateRuns(cmp, mem, sliceSource(nil), tapes))

	require.Equal(t, 1, tapes[0].RunCount)
	require.Equal(t, 0, tapes[1].RunCount)
}

func TestGenerateRunsProducesSortedRunsWithinMemoryBudget(t *testing.T) {
	dir := t.TempDir()
	tapes := make([]*SortTape, 2)
	for i := range tapes {
		tp, err := OpenScratchTape(dir, i)
		require.NoError(t, err)
		defer tp.Unlink()
		tapes[i] = tp
	}

	cmp := Comparator{Keys: []SortKey{{Column: 0}}}
	mem := NewMemoryAccountant(3)
	input := []Tuple{{5}, {3}, {1}, {4}, {2}}
	require.NoError(t, GenerateRuns(cmp, mem, sliceSource(input), tapes))

	total := tapes[0].RunCount + tapes[1].RunCount
	require.GreaterOrEqual(t, total, 1)

	for _, tp := range tapes {
		require.NoError(t, tp.Rewind())
		var last Tuple
		haveLast := false
		for {
			tup, sentinel, eof, err := tp.ReadRecord()
			require.NoError(t, err)
			if eof {
				break
			}
			if sentinel {
				haveLast = false
				continue
			}
			if haveLast {
				require.LessOrEqual(t, cmp.Compare(last, tup), 0, "each run must be internally sorted")
			}
			last, haveLast = tup, true
		}
	}
}
