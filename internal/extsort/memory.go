package extsort

import "fmt"

// MemoryAccountant is the sorter's paired use/free-memory bookkeeping (spec
// §6's resource model): run generation consumes one block of budget per
// tuple resident in the heap and returns it once the tuple is written out.
type MemoryAccountant struct {
	totalBlocks int
	usedBlocks  int
}

// NewMemoryAccountant creates an accountant with the given block budget.
func NewMemoryAccountant(totalBlocks int) *MemoryAccountant {
	return &MemoryAccountant{totalBlocks: totalBlocks}
}

// UseMemory reserves n blocks, reporting false (not an error: a normal
// signal to stop growing the heap) if doing so would exceed the budget.
func (m *MemoryAccountant) UseMemory(n int) bool {
	if m.usedBlocks+n > m.totalBlocks {
		return false
	}
	m.usedBlocks += n
	return true
}

// FreeMemory releases n previously reserved blocks.
func (m *MemoryAccountant) FreeMemory(n int) {
	m.usedBlocks -= n
	if m.usedBlocks < 0 {
		panic(fmt.Sprintf("extsort: FreeMemory over-released (used=%d free=%d)", m.usedBlocks+n, n))
	}
}

// Available reports whether at least one block of free memory remains
// (spec §4.5: run generation terminates, dumping the current heap, once
// free memory falls below one block).
func (m *MemoryAccountant) Available() bool {
	return m.usedBlocks < m.totalBlocks
}
