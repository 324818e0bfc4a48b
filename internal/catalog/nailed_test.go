package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAndReadNailedFileRoundTrips(t *testing.T) {
	dir := t.TempDir()
	img := NailedImage{Descriptors: []NailedRecord{
		{RelID: 1, Name: "relation_catalog", Columns: []Column{
			{Name: "id", Number: 1, TypeID: 23},
			{Name: "name", Number: 2, TypeID: 25},
		}},
		{RelID: 2, Name: "column_catalog", Columns: []Column{
			{Name: "rel_id", Number: 1, TypeID: 23},
		}},
	}}

	require.NoError(t, WriteNailedFile(dir, img))

	got, m, err := ReadNailedFile(dir)
	require.NoError(t, err)
	defer m.Unmap()

	require.Len(t, got.Descriptors, 2)
	require.Equal(t, uint32(1), got.Descriptors[0].RelID)
	require.Equal(t, "relation_catalog", got.Descriptors[0].Name)
	require.Len(t, got.Descriptors[0].Columns, 2)
	require.Equal(t, "name", got.Descriptors[0].Columns[1].Name)
}

func TestWriteNailedFileIsIdempotentUnderDoubleCheck(t *testing.T) {
	dir := t.TempDir()
	img := NailedImage{Descriptors: []NailedRecord{{RelID: 1, Name: "r"}}}
	require.NoError(t, WriteNailedFile(dir, img))
	// A second writer finds the file already present and must not
	// corrupt it.
	require.NoError(t, WriteNailedFile(dir, NailedImage{}))

	got, m, err := ReadNailedFile(dir)
	require.NoError(t, err)
	defer m.Unmap()
	require.Len(t, got.Descriptors, 1)
}

func TestReadMissingNailedFileFails(t *testing.T) {
	dir := t.TempDir()
	_, _, err := ReadNailedFile(dir)
	require.Error(t, err)
}
