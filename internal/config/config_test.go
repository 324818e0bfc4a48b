package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, 6, s.TapeCount)
	require.Equal(t, "scratch", s.ScratchDir)
}

func TestLoadYamlOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tape-count: 10\ndatabase-dir: /var/lib/dbcore\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 10, s.TapeCount)
	require.Equal(t, "/var/lib/dbcore", s.DatabaseDir)
	require.Equal(t, "scratch", s.ScratchDir, "unset keys still fall back to defaults")
}

func TestLoadRejectsTooFewTapes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tape-count: 1\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestWriteDefaultTOMLRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dbcore.toml")
	require.NoError(t, WriteDefaultTOML(path))

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, defaults().TapeCount, s.TapeCount)
}
