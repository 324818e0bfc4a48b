package extsort

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// recordHeader values: -1 means physical end of file, 0 marks a run
// boundary (spec §3's zero-length sentinel), >0 is a tuple's column count.
const (
	headerEOF      int32 = -1
	headerSentinel int32 = 0
)

// SortTape is one scratch file plus the bookkeeping the distribution and
// merge phases need: how many real runs it currently holds (RunCount,
// incremented by WriteSentinel) and, counted separately, how many dummy
// (empty) runs pad it out to its Fibonacci target (DummyRuns). prevIndex
// is a slot for a link to the preceding tape in the cyclic ordering; no
// code in this package sets or reads it.
type SortTape struct {
	Number int

	file *os.File
	w    *bufWriter
	r    *bufReader

	RunCount  int
	DummyRuns int
	prevIndex int
}

// OpenScratchTape creates a fresh scratch file under dir for the given tape
// number (spec §6: "scratch files are created with a mktemp-style unique
// name under a configurable scratch directory").
func OpenScratchTape(dir string, number int) (*SortTape, error) {
	f, err := os.CreateTemp(dir, fmt.Sprintf("dbcore-sort-tape%02d-*", number))
	if err != nil {
		return nil, fmt.Errorf("extsort: create scratch tape %d: %w", number, err)
	}
	return &SortTape{Number: number, file: f}, nil
}

// Path is the underlying scratch file's path, for abort-time unlinking.
func (t *SortTape) Path() string { return t.file.Name() }

// Close closes the underlying file without unlinking it.
func (t *SortTape) Close() error {
	return t.file.Close()
}

// Unlink closes and removes the scratch file. Called on abort for every
// tape the sorter registered (spec §4.5's failure-mode: "the sorter unlinks
// every tape on its own registration list").
func (t *SortTape) Unlink() error {
	path := t.file.Name()
	t.file.Close()
	return os.Remove(path)
}

// Rewind seeks the tape back to its start and discards write/read buffers,
// switching the tape from write mode to read mode (or vice versa) for the
// next merge pass.
func (t *SortTape) Rewind() error {
	t.w = nil
	t.r = nil
	_, err := t.file.Seek(0, io.SeekStart)
	return err
}

// Truncate resets the tape to empty, for reuse as an output tape in the
// next merge pass.
func (t *SortTape) Truncate() error {
	if err := t.file.Truncate(0); err != nil {
		return err
	}
	_, err := t.file.Seek(0, io.SeekStart)
	t.w = nil
	t.r = nil
	t.RunCount = 0
	t.DummyRuns = 0
	return err
}

type bufWriter struct {
	f *os.File
}

func (t *SortTape) writer() *bufWriter {
	if t.w == nil {
		t.w = &bufWriter{f: t.file}
	}
	return t.w
}

// WriteRecord appends one tuple to the tape.
func (t *SortTape) WriteRecord(tup Tuple) error {
	w := t.writer()
	if err := binary.Write(w.f, binary.LittleEndian, int32(len(tup))); err != nil {
		return fmt.Errorf("extsort: write record header: %w", err)
	}
	if err := binary.Write(w.f, binary.LittleEndian, tup); err != nil {
		return fmt.Errorf("extsort: write record body: %w", err)
	}
	return nil
}

// WriteSentinel appends a run-boundary marker.
func (t *SortTape) WriteSentinel() error {
	w := t.writer()
	if err := binary.Write(w.f, binary.LittleEndian, headerSentinel); err != nil {
		return fmt.Errorf("extsort: write sentinel: %w", err)
	}
	t.RunCount++
	return nil
}

type bufReader struct {
	f *os.File
}

func (t *SortTape) reader() *bufReader {
	if t.r == nil {
		t.r = &bufReader{f: t.file}
	}
	return t.r
}

// ReadRecord reads the next token off the tape: a tuple, a run-boundary
// sentinel, or end of file. A truncated record (header present, body
// short) is a fatal read error (spec §4.5's failure modes), never treated
// as EOF.
func (t *SortTape) ReadRecord() (tup Tuple, sentinel bool, eof bool, err error) {
	r := t.reader()
	var n int32
	if rerr := binary.Read(r.f, binary.LittleEndian, &n); rerr != nil {
		if rerr == io.EOF {
			return nil, false, true, nil
		}
		return nil, false, false, fmt.Errorf("extsort: read record header: %w", rerr)
	}
	if n == headerEOF {
		return nil, false, true, nil
	}
	if n == headerSentinel {
		return nil, true, false, nil
	}
	tup = make(Tuple, n)
	if rerr := binary.Read(r.f, binary.LittleEndian, tup); rerr != nil {
		return nil, false, false, fmt.Errorf("extsort: truncated record body: %w", rerr)
	}
	return tup, false, false, nil
}
