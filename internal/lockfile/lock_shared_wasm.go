//go:build js && wasm

package lockfile

import "os"

// FlockSharedNonBlock is a no-op in WASM: single-process, so a
// DescriptorLock's shared mode never has anything to contend with.
func FlockSharedNonBlock(f *os.File) error {
	return nil
}

// FlockExclusiveNonBlock is a no-op in WASM: single-process, so a
// DescriptorLock's exclusive mode never has anything to contend with.
func FlockExclusiveNonBlock(f *os.File) error {
	return nil
}
