package extsort

import "container/heap"

// leftistNode is one arena slot in the replacement-selection heap (spec §3's
// LeftistNode / §9's "arena of nodes, tree rotations move indices"). The
// arena itself is container/heap's backing slice; what spec §9 calls the
// "primary" and "next" heaps are not two physical trees but a single arena
// partitioned by generation tag, which is exactly what Less below encodes:
// every current-generation node sorts before every next-generation node,
// so "swap heaps" is nothing more than incrementing currentGen. No
// leftist-heap (or any other mergeable-heap) library appears anywhere in
// the retrieved corpus, so the merge operation leftist heaps exist for is
// replaced by this single-arena generation-tag trick and a plain binary
// heap (stdlib container/heap) over it — see DESIGN.md.
type leftistNode struct {
	tuple      Tuple
	sourceTape int // which input tape this tuple came from, used as a merge tie-break
	generation int
}

// genHeap is a container/heap.Interface over the arena, ordered first by
// generation (current-generation nodes drain before next-generation ones)
// and then by tuple order within a generation.
type genHeap struct {
	nodes []leftistNode
	cmp   Comparator
}

func (h genHeap) Len() int { return len(h.nodes) }

func (h genHeap) Less(i, j int) bool {
	a, b := h.nodes[i], h.nodes[j]
	if a.generation != b.generation {
		return a.generation < b.generation
	}
	if c := h.cmp.Compare(a.tuple, b.tuple); c != 0 {
		return c < 0
	}
	return a.sourceTape < b.sourceTape
}

func (h genHeap) Swap(i, j int) { h.nodes[i], h.nodes[j] = h.nodes[j], h.nodes[i] }

func (h *genHeap) Push(x any) { h.nodes = append(h.nodes, x.(leftistNode)) }

func (h *genHeap) Pop() any {
	old := h.nodes
	n := len(old)
	node := old[n-1]
	h.nodes = old[:n-1]
	return node
}

func newGenHeap(cmp Comparator) *genHeap {
	h := &genHeap{cmp: cmp}
	heap.Init(h)
	return h
}

func (h *genHeap) push(n leftistNode) { heap.Push(h, n) }
func (h *genHeap) pop() leftistNode   { return heap.Pop(h).(leftistNode) }
func (h *genHeap) peek() leftistNode  { return h.nodes[0] }
func (h *genHeap) empty() bool        { return len(h.nodes) == 0 }
