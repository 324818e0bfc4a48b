package extsort

import (
	"fmt"
)

// mergeOneRun merges exactly one run (one sentinel-delimited stretch) from
// every tape in ins that still has a real run pending, writing the merged,
// ordered result as a single run on out. Tapes whose next run is a dummy
// (empty) contribute nothing. The merge itself uses the same
// generation-tagged arena heap as run generation, keyed here purely by
// tuple order with source-tape number as a tie-break (spec §4.5).
func mergeOneRun(cmp Comparator, ins []*SortTape, out *SortTape) error {
	h := newGenHeap(cmp)
	advance := func(t *SortTape, idx int) error {
		tup, sentinel, eof, err := t.ReadRecord()
		if err != nil {
			return err
		}
		if eof {
			return fmt.Errorf("extsort: tape %d ended mid-run", t.Number)
		}
		if sentinel {
			return nil
		}
		h.push(leftistNode{tuple: tup, sourceTape: idx})
		return nil
	}

	for i, t := range ins {
		if t.RunCount <= 0 {
			continue
		}
		if err := advance(t, i); err != nil {
			return err
		}
	}

	wrote := false
	for !h.empty() {
		top := h.pop()
		if err := out.WriteRecord(top.tuple); err != nil {
			return err
		}
		wrote = true
		if err := advance(ins[top.sourceTape], top.sourceTape); err != nil {
			return err
		}
	}
	if !wrote {
		return nil
	}
	if err := out.WriteSentinel(); err != nil {
		return err
	}
	out.RunCount++
	return nil
}

// Merge drives the polyphase merge (spec §4.5) to completion: tapes holds
// the tapeCount working tapes loaded with their initial Fibonacci-dummy
// distribution plus one spare tape to receive the first round's merged
// runs. It returns the single tape left holding the fully sorted stream,
// rewound and ready to read.
func Merge(cmp Comparator, tapes []*SortTape, spare *SortTape) (*SortTape, error) {
	all := append(append([]*SortTape{}, tapes...), spare)
	outIdx := len(all) - 1

	remaining := func(t *SortTape) int { return t.RunCount + t.DummyRuns }

	nonEmpty := func() []int {
		var idx []int
		for i, t := range all {
			if remaining(t) > 0 {
				idx = append(idx, i)
			}
		}
		return idx
	}

	// "Continue until only one tape is non-empty" (spec §4.5 point 3): the
	// tape holding the fully merged stream need not stay labeled outIdx —
	// the last real merge can leave it sitting among the input tapes while
	// the just-rotated (and now permanently empty) output tape never gets
	// anything written to it again, so termination is judged over all of
	// all, not just relative to whichever tape currently plays output.
	for len(nonEmpty()) > 1 {
		ins := make([]*SortTape, 0, len(all)-1)
		for i, t := range all {
			if i != outIdx {
				ins = append(ins, t)
			}
		}

		// One round per iteration: a tape with dummy runs still pending
		// contributes nothing (a virtual merge, no I/O, just a bookkeeping
		// decrement); a tape with no dummy runs left contributes its next
		// real run. The phase ends the instant any input tape's quota
		// (RunCount+DummyRuns) is fully drained — that tape, not every
		// input, becomes the new output (spec §4.5 point 3).
		for {
			exhausted := false
			for _, t := range ins {
				if remaining(t) == 0 {
					exhausted = true
					break
				}
			}
			if exhausted {
				break
			}

			contributors := make([]*SortTape, 0, len(ins))
			for _, t := range ins {
				if t.DummyRuns == 0 {
					contributors = append(contributors, t)
				}
			}
			if len(contributors) > 0 {
				if err := mergeOneRun(cmp, contributors, all[outIdx]); err != nil {
					return nil, err
				}
			}
			for _, t := range ins {
				if t.DummyRuns > 0 {
					t.DummyRuns--
				} else if t.RunCount > 0 {
					t.RunCount--
				}
			}
		}

		exhaustedIdx := -1
		for i, t := range all {
			if i != outIdx && remaining(t) == 0 {
				exhaustedIdx = i
				break
			}
		}
		if exhaustedIdx == -1 {
			break
		}
		if err := all[outIdx].Rewind(); err != nil {
			return nil, err
		}
		if err := all[exhaustedIdx].Truncate(); err != nil {
			return nil, err
		}
		outIdx = exhaustedIdx
	}

	finalIdx := outIdx
	if idx := nonEmpty(); len(idx) == 1 {
		finalIdx = idx[0]
	}
	final := all[finalIdx]
	if err := final.Rewind(); err != nil {
		return nil, err
	}
	return final, nil
}
