//go:build unix || linux || darwin

package lockfile

import (
	"syscall"
)

// isProcessRunning reports whether pid names a live process, used to tell
// a stale owner-lock sidecar (process died without releasing it) from one
// still held.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false // 0 would signal our process group, not a specific process
	}
	return syscall.Kill(pid, 0) == nil
}
