package dbmeta

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingReturnsNilNil(t *testing.T) {
	m, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	m := Default()
	m.ScratchSubdir = "sort-scratch"
	require.NoError(t, m.Save(dir))

	got, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, CurrentSchemaVersion, got.SchemaVersion)
	require.Equal(t, "sort-scratch", got.ScratchSubdir)
}

func TestNeedsUpgradeDetectsOlderVersion(t *testing.T) {
	m := &Meta{SchemaVersion: 0}
	require.True(t, m.NeedsUpgrade())
	require.False(t, Default().NeedsUpgrade())
}

func TestScratchDirDefaultsToScratchSubdirectory(t *testing.T) {
	m := &Meta{}
	require.Equal(t, "/var/lib/dbcore/scratch", m.ScratchDir("/var/lib/dbcore"))
}
