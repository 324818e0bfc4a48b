package extsort

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTapeWriteReadRoundTrip(t *testing.T) {
	tape, err := OpenScratchTape(t.TempDir(), 0)
	require.NoError(t, err)
	defer tape.Unlink()

	require.NoError(t, tape.WriteRecord(Tuple{1, 2, 3}))
	require.NoError(t, tape.WriteRecord(Tuple{4, 5, 6}))
	require.NoError(t, tape.WriteSentinel())
	require.Equal(t, 1, tape.RunCount)

	require.NoError(t, tape.Rewind())

	tup, sentinel, eof, err := tape.ReadRecord()
	require.NoError(t, err)
	require.False(t, sentinel)
	require.False(t, eof)
	require.Equal(t, Tuple{1, 2, 3}, tup)

	tup, sentinel, eof, err = tape.ReadRecord()
	require.NoError(t, err)
	require.False(t, sentinel)
	require.False(t, eof)
	require.Equal(t, Tuple{4, 5, 6}, tup)

	_, sentinel, eof, err = tape.ReadRecord()
	require.NoError(t, err)
	require.True(t, sentinel)
	require.False(t, eof)

	_, sentinel, eof, err = tape.ReadRecord()
	require.NoError(t, err)
	require.False(t, sentinel)
	require.True(t, eof)
}

func TestTapeTruncateResetsForReuse(t *testing.T) {
	tape, err := OpenScratchTape(t.TempDir(), 0)
	require.NoError(t, err)
	defer tape.Unlink()

	require.NoError(t, tape.WriteRecord(Tuple{1}))
	require.NoError(t, tape.WriteSentinel())
	require.NoError(t, tape.Truncate())
	require.Equal(t, 0, tape.RunCount)

	_, _, eof, err := tape.ReadRecord()
	require.NoError(t, err)
	require.True(t, eof)
}
