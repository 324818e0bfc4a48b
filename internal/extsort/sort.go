package extsort

import "fmt"

// Config is the caller-supplied resource envelope for one sort (spec §6):
// how many tuples may be held in memory during run generation, how many
// tapes the polyphase merge gets to work with, and where scratch files are
// created.
type Config struct {
	MemoryBlocks int
	TapeCount    int // M-1 input tapes; a spare output tape is allocated in addition
	ScratchDir   string
}

// Result is a completed sort's output tape, rewound and ready to read, plus
// every scratch tape the sort allocated so the caller can clean them up.
type Result struct {
	Output    *SortTape
	allocated []*SortTape
}

// Close unlinks every scratch tape this sort allocated, including Output.
func (r *Result) Close() error {
	var firstErr error
	for _, t := range r.allocated {
		if err := t.Unlink(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Sort runs replacement-selection, Fibonacci tape distribution, and
// polyphase merge to completion against src, per spec §4.5. On any error,
// the caller must still call Close on a partial Result if one is returned;
// Sort itself unlinks its tapes before returning an error with no result.
func Sort(cmp Comparator, cfg Config, src TupleSource) (*Result, error) {
	if cfg.TapeCount < 2 {
		return nil, fmt.Errorf("extsort: TapeCount must be at least 2 (M-1 input tapes), got %d", cfg.TapeCount)
	}
	if cfg.MemoryBlocks < 1 {
		return nil, fmt.Errorf("extsort: MemoryBlocks must be at least 1, got %d", cfg.MemoryBlocks)
	}

	tapes := make([]*SortTape, cfg.TapeCount)
	var allocated []*SortTape
	cleanup := func() {
		for _, t := range allocated {
			t.Unlink()
		}
	}
	for i := range tapes {
		t, err := OpenScratchTape(cfg.ScratchDir, i)
		if err != nil {
			cleanup()
			return nil, err
		}
		tapes[i] = t
		allocated = append(allocated, t)
	}
	spare, err := OpenScratchTape(cfg.ScratchDir, cfg.TapeCount)
	if err != nil {
		cleanup()
		return nil, err
	}
	allocated = append(allocated, spare)

	mem := NewMemoryAccountant(cfg.MemoryBlocks)
	if err := GenerateRuns(cmp, mem, src, tapes); err != nil {
		cleanup()
		return nil, err
	}

	totalRuns := 0
	for _, t := range tapes {
		totalRuns += t.RunCount
	}
	if totalRuns == 0 {
		// No run was written at all. Empty input does not land here: run
		// generation writes one empty run to tapes[0], WriteSentinel counts
		// it, and that single run goes through Merge like any other input.
		if err := tapes[0].Rewind(); err != nil {
			cleanup()
			return nil, err
		}
		return &Result{Output: tapes[0], allocated: allocated}, nil
	}

	dist := FibonacciDistribution(cfg.TapeCount, totalRuns)
	for i, t := range tapes {
		t.DummyRuns = dist.DummyRuns[i]
		if err := t.Rewind(); err != nil {
			cleanup()
			return nil, err
		}
	}

	final, err := Merge(cmp, tapes, spare)
	if err != nil {
		cleanup()
		return nil, err
	}
	return &Result{Output: final, allocated: allocated}, nil
}
