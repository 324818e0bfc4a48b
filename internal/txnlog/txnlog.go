// Package txnlog is the Transaction Log Adapter (spec §2 item 2, §6): it
// records the committed/aborted outcome for every transaction id to durable
// storage and hands out fresh transaction ids. It does not hand out command
// ids; those are counted per transaction by xact.Worker. The outcome file
// holds one byte per xid, at offset xid-1, with the value in-progress,
// committed or aborted (not packed into bits), plus a parallel file of
// commit wall-clock times.
//
// The lock-acquire, double-check, write-or-read sequencing below is adapted
// from the teacher's bootstrap.go (acquireBootstrapLock / doltExists /
// performBootstrap): first worker to open the log directory creates the
// files under an exclusive flock; every subsequent worker opens the
// existing files directly.
package txnlog

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/relcore/dbcore/internal/coreerr"
	"github.com/relcore/dbcore/internal/lockfile"
	"github.com/relcore/dbcore/internal/xid"
)

const (
	outcomeFile = "pg_xlog_status"
	timeFile    = "pg_xlog_commit_time"
	lockFile    = "pg_xlog.lock"
)

// Outcome is the recorded fate of a transaction.
type Outcome byte

const (
	// OutcomeInProgress is the zero value: no outcome recorded yet.
	OutcomeInProgress Outcome = 0
	OutcomeCommitted  Outcome = 1
	OutcomeAborted    Outcome = 2
)

// Log is the durable per-xid outcome and commit-time store, plus the
// xid/cid generators that sit on top of it.
type Log struct {
	mu        sync.Mutex
	dir       string
	outcomes  *os.File
	times     *os.File
	lock      *os.File
	xidGen    *xid.Generator
}

// Open opens (creating if absent) the transaction log rooted at dir. The
// first worker to find no existing log file initializes it under an
// exclusive flock; later workers open the existing files directly, mirroring
// bootstrap.go's "double-check after acquiring the lock" pattern so two
// workers racing to initialize never corrupt each other's file.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("txnlog: mkdir %s: %w", dir, err)
	}

	lf, err := os.OpenFile(filepath.Join(dir, lockFile), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("txnlog: open lockfile: %w", err)
	}
	if err := lockfile.FlockExclusiveBlocking(lf); err != nil {
		lf.Close()
		return nil, fmt.Errorf("txnlog: acquire lock: %w", err)
	}
	defer lockfile.FlockUnlock(lf)

	outPath := filepath.Join(dir, outcomeFile)
	timePath := filepath.Join(dir, timeFile)

	needInit := false
	if _, err := os.Stat(outPath); os.IsNotExist(err) {
		needInit = true
	}

	outF, err := os.OpenFile(outPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		lf.Close()
		return nil, coreerr.Fatal("txnlog.open", err)
	}
	timeF, err := os.OpenFile(timePath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		outF.Close()
		lf.Close()
		return nil, coreerr.Fatal("txnlog.open", err)
	}

	if needInit {
		// Nothing further to do: an empty file reads back as
		// OutcomeInProgress for every xid, which is correct for a
		// brand-new log.
	}

	last, err := lastRecordedXid(outF)
	if err != nil {
		return nil, coreerr.Fatal("txnlog.scan", err)
	}

	return &Log{
		dir:      dir,
		outcomes: outF,
		times:    timeF,
		lock:     lf,
		xidGen:   xid.NewGenerator(last),
	}, nil
}

func lastRecordedXid(f *os.File) (xid.Xid, error) {
	info, err := f.Stat()
	if err != nil {
		return xid.DisabledXid, err
	}
	n := info.Size()
	if n == 0 {
		return xid.DisabledXid, nil
	}
	return xid.Xid(n), nil
}

// Close releases the log's file handles.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, f := range []*os.File{l.outcomes, l.times, l.lock} {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NextXid allocates and persists the next transaction id.
func (l *Log) NextXid() xid.Xid {
	x := l.xidGen.Next()
	l.mu.Lock()
	defer l.mu.Unlock()
	// Extend the outcome file so lastRecordedXid sees this id reserved
	// even before it is recorded committed or aborted.
	l.outcomes.WriteAt([]byte{byte(OutcomeInProgress)}, int64(x)-1)
	return x
}

// RecordCommitted marks x committed and stamps its commit wall-clock time.
// This is step 3 of the commit sequence (spec §4.1): the caller is
// responsible for flushing the buffer pool before and after this call so
// that data reaches stable storage before the log record, and the log
// record before the second flush completes the data-before-log invariant
// (spec §5).
func (l *Log) RecordCommitted(x xid.Xid, at time.Time) error {
	return l.record(x, OutcomeCommitted, at)
}

// RecordAborted marks x aborted.
func (l *Log) RecordAborted(x xid.Xid) error {
	return l.record(x, OutcomeAborted, time.Time{})
}

func (l *Log) record(x xid.Xid, outcome Outcome, at time.Time) error {
	if !x.Valid() {
		return coreerr.Fatal("txnlog.record", fmt.Errorf("cannot record outcome for disabled xid"))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.outcomes.WriteAt([]byte{byte(outcome)}, int64(x)-1); err != nil {
		return coreerr.Fatal("txnlog.record", err)
	}
	if outcome == OutcomeCommitted {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(at.UnixNano()))
		if _, err := l.times.WriteAt(buf[:], (int64(x)-1)*8); err != nil {
			return coreerr.Fatal("txnlog.record", err)
		}
	}
	return l.outcomes.Sync()
}

// Outcome returns the recorded outcome for x.
func (l *Log) Outcome(x xid.Xid) (Outcome, error) {
	if !x.Valid() {
		return OutcomeInProgress, fmt.Errorf("txnlog: disabled xid has no outcome")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var buf [1]byte
	n, err := l.outcomes.ReadAt(buf[:], int64(x)-1)
	if err != nil && n == 0 {
		return OutcomeInProgress, nil
	}
	return Outcome(buf[0]), nil
}

// CommitTime returns the recorded commit wall-clock time for x, or the zero
// time if x has no recorded commit.
func (l *Log) CommitTime(x xid.Xid) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var buf [8]byte
	n, err := l.times.ReadAt(buf[:], (int64(x)-1)*8)
	if err != nil && n < 8 {
		return time.Time{}, nil
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(buf[:]))), nil
}
