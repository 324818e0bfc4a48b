// Package lockfile wraps OS-level advisory file locking (flock on unix,
// LockFileEx on windows, a no-op on wasm) behind a handful of small
// functions, plus a JSON sidecar recording which worker currently holds a
// first-worker-wins lock (spec §5, §6; catalog.WriteNailedFile records one
// for the nailed-file regeneration race) so a later worker — or a
// diagnostic command — can tell who holds it without blocking on the lock
// itself.
package lockfile

import "errors"

// errProcessLocked is the sentinel the per-platform flockExclusive returns
// when another process already holds the lock.
var errProcessLocked = errors.New("lock held by another process")

// ErrLocked reports that a lock is held by another process.
var ErrLocked = errProcessLocked

// ErrLockBusy is returned when a non-blocking lock cannot be acquired
// because another process holds a conflicting lock.
var ErrLockBusy = errors.New("lock busy: held by another process")

// IsLocked returns true if err indicates a lock is held by another process.
func IsLocked(err error) bool {
	return err == errProcessLocked
}
