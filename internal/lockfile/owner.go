package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ownerLockName and ownerPIDName are the sidecar filenames the
// directory-based helpers below look for. A caller with its own lock
// file (catalog.WriteNailedFile, txnlog.Open) should use the *At variants
// against that same path instead, so the owner info lives next to the
// flock that actually guards it.
const (
	ownerLockName = "owner.lock"
	ownerPIDName  = "owner.pid"
)

// OwnerInfo records which worker holds a first-worker-wins lock, so that a
// later worker, or a diagnostic command, can name the holder without
// itself blocking on the lock. catalog.WriteNailedFile records one for the
// nailed-file regeneration race; txnlog.Open takes its bootstrap lock
// without recording an owner.
type OwnerInfo struct {
	PID       int       `json:"pid"`
	ParentPID int       `json:"parent_pid,omitempty"`
	Database  string    `json:"database,omitempty"`
	Version   string    `json:"version,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// WriteOwnerInfoAt serializes info as JSON to path. The caller is expected
// to already hold the exclusive lock on path.
func WriteOwnerInfoAt(path string, info OwnerInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("lockfile: marshal owner info: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadOwnerInfoAt reads path, accepting either the current JSON form or
// the legacy plain-PID text form.
func ReadOwnerInfoAt(path string) (*OwnerInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lockfile: read owner info: %w", err)
	}
	return parseOwnerInfo(data)
}

func parseOwnerInfo(data []byte) (*OwnerInfo, error) {
	var info OwnerInfo
	if err := json.Unmarshal(data, &info); err == nil && info.PID != 0 {
		return &info, nil
	}
	if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
		return &OwnerInfo{PID: pid}, nil
	}
	return nil, fmt.Errorf("lockfile: owner info is neither JSON nor a plain PID")
}

// TryOwnerLockAt reports whether another process currently holds the
// exclusive lock on path, and if so, the PID recorded in its OwnerInfo. It
// never blocks: it attempts a non-blocking exclusive flock to test
// occupancy, releasing immediately if acquired.
func TryOwnerLockAt(path string) (running bool, pid int) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return false, 0
	}
	defer f.Close()

	if err := FlockExclusiveNonBlocking(f); err != nil {
		info, perr := ReadOwnerInfoAt(path)
		if perr != nil {
			return false, 0
		}
		return true, info.PID
	}
	FlockUnlock(f)
	return false, 0
}

// WriteOwnerInfo serializes info as JSON to dir/owner.lock. The caller is
// expected to already hold the exclusive lock on that path.
func WriteOwnerInfo(dir string, info OwnerInfo) error {
	return WriteOwnerInfoAt(filepath.Join(dir, ownerLockName), info)
}

// ReadOwnerInfo reads dir/owner.lock, accepting either the current JSON
// form or the legacy plain-PID text form.
func ReadOwnerInfo(dir string) (*OwnerInfo, error) {
	return ReadOwnerInfoAt(filepath.Join(dir, ownerLockName))
}

// checkOwnerPIDFile reads dir/owner.pid and reports whether the PID it
// names is a live process. It is the fallback path used when no lock file
// is present to flock against.
func checkOwnerPIDFile(dir string) (running bool, pid int) {
	data, err := os.ReadFile(filepath.Join(dir, ownerPIDName))
	if err != nil {
		return false, 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0
	}
	if !isProcessRunning(n) {
		return false, 0
	}
	return true, n
}

// TryOwnerLock reports whether another process currently holds dir's
// owner lock (dir/owner.lock), falling back to dir/owner.pid when no lock
// file is present, or when the held lock's content can't be parsed as an
// OwnerInfo.
func TryOwnerLock(dir string) (running bool, pid int) {
	lockPath := filepath.Join(dir, ownerLockName)
	f, err := os.OpenFile(lockPath, os.O_RDWR, 0o644)
	if err != nil {
		return checkOwnerPIDFile(dir)
	}
	defer f.Close()

	if err := FlockExclusiveNonBlocking(f); err != nil {
		info, perr := ReadOwnerInfoAt(lockPath)
		if perr != nil {
			return checkOwnerPIDFile(dir)
		}
		return true, info.PID
	}
	FlockUnlock(f)
	return false, 0
}
