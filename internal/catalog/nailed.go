// nailed.go implements the persistent nailed-descriptor cache file (spec
// §4.2, §6: "pg_internal.init in the database directory"). The first
// worker to start with no valid file present regenerates it from the
// compile-time bootstrap schema under an exclusive lock; every subsequent
// worker mmaps it read-only. This is the database directory's one other
// inter-worker contact point besides the invalidation queue (spec §5).
//
// The lock-acquire / double-check-after-lock / write-or-read sequencing is
// adapted from the teacher's bootstrap.go (acquireBootstrapLock,
// doltExists+schemaReady, performBootstrap).
package catalog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/fsnotify/fsnotify"

	"github.com/relcore/dbcore/internal/lockfile"
)

const nailedFileName = "pg_internal.init"
const nailedLockFileName = "pg_internal.init.lock"

// NailedImage is the decoded contents of the persistent nailed-descriptor
// file: one record per nailed descriptor, byte layout per spec §6.
type NailedImage struct {
	Descriptors []NailedRecord
}

// NailedRecord mirrors one nailed-descriptor's serialized form: a
// descriptor body, an access-method body, a relation body, and one body per
// column, each length-prefixed per spec §6's byte layout.
type NailedRecord struct {
	RelID   uint32
	Name    string
	Columns []Column
}

// WriteNailedFile serializes img to dbDir/pg_internal.init. Called by the
// first worker to find the file missing or unreadable (spec §5: "written
// once (first worker to start rewrites it if absent or out of date)").
func WriteNailedFile(dbDir string, img NailedImage) error {
	lockPath := filepath.Join(dbDir, nailedLockFileName)
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("catalog: open nailed-file lock: %w", err)
	}
	defer lf.Close()
	if err := lockfile.FlockExclusiveBlocking(lf); err != nil {
		return fmt.Errorf("catalog: lock nailed file: %w", err)
	}
	defer lockfile.FlockUnlock(lf)
	_ = lockfile.WriteOwnerInfoAt(lockPath, lockfile.OwnerInfo{
		PID:       os.Getpid(),
		ParentPID: os.Getppid(),
		Database:  dbDir,
		StartedAt: time.Now(),
	})

	path := filepath.Join(dbDir, nailedFileName)
	// Double-check: another worker may have written it while we waited
	// for the lock.
	if existing, err := readNailedFile(path); err == nil && len(existing.Descriptors) > 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, rec := range img.Descriptors {
		body := encodeNailedRecord(rec)
		writeU32Prefixed(&buf, body)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("catalog: write nailed file: %w", err)
	}
	return os.Rename(tmp, path)
}

func encodeNailedRecord(rec NailedRecord) []byte {
	var buf bytes.Buffer
	writeU32(&buf, rec.RelID)
	writeU32Prefixed(&buf, []byte(rec.Name))
	// am-len / am bytes: empty for a non-index nailed descriptor.
	writeU32Prefixed(&buf, nil)
	// rel-len / rel bytes: the relation name doubles as the rel body in
	// this reduced on-disk form.
	writeU32Prefixed(&buf, []byte(rec.Name))
	for _, c := range rec.Columns {
		var cbuf bytes.Buffer
		writeU32(&cbuf, uint32(c.Number))
		writeU32Prefixed(&cbuf, []byte(c.Name))
		writeU32(&cbuf, c.TypeID)
		writeU32Prefixed(&buf, cbuf.Bytes())
	}
	// strategy-len / support-len: zero for ordinary relations.
	writeU32Prefixed(&buf, nil)
	writeU32Prefixed(&buf, nil)
	return buf.Bytes()
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU32Prefixed(buf *bytes.Buffer, body []byte) {
	writeU32(buf, uint32(len(body)))
	buf.Write(body)
}

// DescribeNailedLockOwner reports whether another worker currently holds
// dbDir's nailed-file regeneration lock, and if so, its PID. It never
// blocks: a diagnostic command can call this to explain a slow startup
// without itself waiting on the lock.
func DescribeNailedLockOwner(dbDir string) (running bool, pid int) {
	lockPath := filepath.Join(dbDir, nailedLockFileName)
	return lockfile.TryOwnerLockAt(lockPath)
}

// ReadNailedFile reads and decodes the persistent nailed-descriptor file,
// mmapping it read-only (spec §4.2: "mmapped-or-read back"). The returned
// mapping must be closed by the caller when the worker shuts down.
func ReadNailedFile(dbDir string) (*NailedImage, *mmap.MMap, error) {
	path := filepath.Join(dbDir, nailedFileName)
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: open nailed file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: stat nailed file: %w", err)
	}
	if info.Size() == 0 {
		return nil, nil, errors.New("catalog: nailed file is empty")
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: mmap nailed file: %w", err)
	}

	img, err := decodeNailedImage([]byte(m))
	if err != nil {
		m.Unmap()
		return nil, nil, err
	}
	return img, &m, nil
}

func readNailedFile(path string) (*NailedImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("catalog: nailed file is empty")
	}
	return decodeNailedImage(data)
}

func decodeNailedImage(data []byte) (*NailedImage, error) {
	var img NailedImage
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, errors.New("catalog: truncated nailed file")
		}
		n := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		if uint32(len(data)) < n {
			return nil, errors.New("catalog: truncated nailed record")
		}
		rec, err := decodeNailedRecord(data[:n])
		if err != nil {
			return nil, err
		}
		img.Descriptors = append(img.Descriptors, rec)
		data = data[n:]
	}
	return &img, nil
}

func decodeNailedRecord(body []byte) (NailedRecord, error) {
	var rec NailedRecord
	r := bytes.NewReader(body)
	relID, err := readU32(r)
	if err != nil {
		return rec, err
	}
	rec.RelID = relID

	name, err := readU32Prefixed(r)
	if err != nil {
		return rec, err
	}
	rec.Name = string(name)

	if _, err := readU32Prefixed(r); err != nil { // am bytes
		return rec, err
	}
	if _, err := readU32Prefixed(r); err != nil { // rel bytes
		return rec, err
	}

	for r.Len() > 0 {
		colBody, err := readU32Prefixed(r)
		if err != nil {
			return rec, err
		}
		if len(colBody) == 0 {
			// An empty column body ends the column list; the strategy-len /
			// support-len trailer after it is left unread.
			break
		}
		cr := bytes.NewReader(colBody)
		num, err := readU32(cr)
		if err != nil {
			return rec, err
		}
		cname, err := readU32Prefixed(cr)
		if err != nil {
			return rec, err
		}
		typeID, err := readU32(cr)
		if err != nil {
			return rec, err
		}
		rec.Columns = append(rec.Columns, Column{Name: string(cname), Number: int(num), TypeID: typeID})
	}
	return rec, nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readU32Prefixed(r *bytes.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// WatchNailedFile watches dbDir/pg_internal.init for regeneration by
// another worker, so a worker holding a stale mmap can drop it and reread.
// Returns the fsnotify.Watcher for the caller to Close on shutdown.
func WatchNailedFile(dbDir string, onChange func()) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("catalog: new watcher: %w", err)
	}
	if err := w.Add(dbDir); err != nil {
		w.Close()
		return nil, fmt.Errorf("catalog: watch %s: %w", dbDir, err)
	}
	target := filepath.Join(dbDir, nailedFileName)
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name == target && (ev.Op&(fsnotify.Write|fsnotify.Create) != 0) {
					onChange()
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return w, nil
}

// bootstrapLockWait is a default wait for the nailed-file lock. Nothing in
// this module uses it: WriteNailedFile blocks on the lock with no timeout.
const bootstrapLockWait = 10 * time.Second
