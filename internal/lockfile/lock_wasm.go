//go:build js && wasm

package lockfile

import "os"

// flockExclusive is a no-op in WASM: the runtime is single-process, so
// there is never a second holder to conflict with.
func flockExclusive(f *os.File) error {
	return nil
}

// FlockExclusiveNonBlocking is a no-op in WASM (single-process environment).
func FlockExclusiveNonBlocking(f *os.File) error {
	return nil
}

// FlockExclusiveBlocking is a no-op in WASM (single-process environment).
func FlockExclusiveBlocking(f *os.File) error {
	return nil
}

// FlockUnlock is a no-op in WASM.
func FlockUnlock(f *os.File) error {
	return nil
}
