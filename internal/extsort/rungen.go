package extsort

import "fmt"

// TupleSource yields the next input tuple, returning ok=false once the
// input is exhausted. A nil err on ok=false means a clean end of input; a
// non-nil err is fatal and aborts run generation immediately.
type TupleSource func() (tup Tuple, ok bool, err error)

// runGenerator implements replacement selection (spec §4.5): tuples flow
// through a memory-bounded heap and are written to output tapes in
// round-robin order, one run per tape-visit, using the generation-tag
// trick in heap.go in place of physically swapping two heaps.
type runGenerator struct {
	cmp     Comparator
	mem     *MemoryAccountant
	h       *genHeap
	outputs []*SortTape
}

func newRunGenerator(cmp Comparator, mem *MemoryAccountant, outputs []*SortTape) *runGenerator {
	return &runGenerator{cmp: cmp, mem: mem, h: newGenHeap(cmp), outputs: outputs}
}

// GenerateRuns drains src, producing sorted runs distributed round-robin
// across outputs, each run closed by a sentinel (spec §3's zero-length
// sentinel). Empty input produces a single empty run on the first output
// tape (spec §4.5's boundary case).
func GenerateRuns(cmp Comparator, mem *MemoryAccountant, src TupleSource, outputs []*SortTape) error {
	if len(outputs) == 0 {
		return fmt.Errorf("extsort: GenerateRuns requires at least one output tape")
	}
	g := newRunGenerator(cmp, mem, outputs)
	return g.run(src)
}

func (g *runGenerator) run(src TupleSource) error {
	tapeIdx := 0
	currentGen := 0
	var last Tuple
	haveLast := false

	fill := func() error {
		for g.mem.Available() {
			tup, ok, err := src()
			if err != nil {
				return fmt.Errorf("extsort: reading sort input: %w", err)
			}
			if !ok {
				return nil
			}
			if !g.mem.UseMemory(1) {
				break
			}
			gen := currentGen
			if haveLast && g.cmp.Compare(tup, last) < 0 {
				gen = currentGen + 1
			}
			g.h.push(leftistNode{tuple: tup, generation: gen})
		}
		return nil
	}

	if err := fill(); err != nil {
		return err
	}

	for !g.h.empty() {
		top := g.h.pop()
		g.mem.FreeMemory(1)

		if top.generation != currentGen {
			if err := g.outputs[tapeIdx].WriteSentinel(); err != nil {
				return err
			}
			tapeIdx = (tapeIdx + 1) % len(g.outputs)
			currentGen = top.generation
			haveLast = false
		}

		if err := g.outputs[tapeIdx].WriteRecord(top.tuple); err != nil {
			return err
		}
		last, haveLast = top.tuple, true

		if err := fill(); err != nil {
			return err
		}
	}

	return g.outputs[tapeIdx].WriteSentinel()
}
