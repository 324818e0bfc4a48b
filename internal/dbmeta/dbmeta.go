// Package dbmeta is the per-database-directory metadata sidecar: a small
// JSON file recording the catalog schema version in use and the name of
// the scratch subdirectory the external sorter should use, read once at
// catalog open time. Adapted from the teacher's configfile.Config
// (metadata.json), trimmed to the two fields this core actually needs.
package dbmeta

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the sidecar's name within a database directory.
const FileName = "dbcore_meta.json"

// CurrentSchemaVersion is bumped whenever the catalog table layout in
// internal/catalogstore changes in a way old databases can't read as-is.
const CurrentSchemaVersion = 1

// Meta is the sidecar's decoded contents.
type Meta struct {
	SchemaVersion int    `json:"schema_version"`
	ScratchSubdir string `json:"scratch_subdir"`
}

// Default returns a Meta for a freshly initialized database directory.
func Default() *Meta {
	return &Meta{SchemaVersion: CurrentSchemaVersion, ScratchSubdir: "scratch"}
}

// Path is the sidecar file's path within dbDir.
func Path(dbDir string) string {
	return filepath.Join(dbDir, FileName)
}

// Load reads the sidecar from dbDir. A missing file returns (nil, nil) —
// callers distinguish "not yet initialized" from a real read failure by
// checking for a nil Meta with a nil error, the same contract the
// teacher's configfile.Load uses.
func Load(dbDir string) (*Meta, error) {
	data, err := os.ReadFile(Path(dbDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dbmeta: reading %s: %w", Path(dbDir), err)
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("dbmeta: parsing %s: %w", Path(dbDir), err)
	}
	return &m, nil
}

// Save writes m to dbDir as the sidecar file.
func (m *Meta) Save(dbDir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("dbmeta: marshaling: %w", err)
	}
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("dbmeta: creating %s: %w", dbDir, err)
	}
	if err := os.WriteFile(Path(dbDir), data, 0o600); err != nil {
		return fmt.Errorf("dbmeta: writing %s: %w", Path(dbDir), err)
	}
	return nil
}

// ScratchDir is the absolute scratch directory this Meta designates within
// dbDir.
func (m *Meta) ScratchDir(dbDir string) string {
	if m.ScratchSubdir == "" {
		return filepath.Join(dbDir, "scratch")
	}
	return filepath.Join(dbDir, m.ScratchSubdir)
}

// NeedsUpgrade reports whether m's schema version predates what this build
// of the core understands.
func (m *Meta) NeedsUpgrade() bool {
	return m.SchemaVersion < CurrentSchemaVersion
}
