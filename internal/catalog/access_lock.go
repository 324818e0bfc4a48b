package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/relcore/dbcore/internal/lockfile"
)

// DescriptorLock is the per-descriptor advisory lock acquired on open
// (shared) and released on close (spec §5's locking discipline). It is
// adapted from the teacher's AccessLock: poll-with-timeout over flock,
// recorded as an OTel histogram.
type DescriptorLock struct {
	file *os.File
	path string
}

const lockPollInterval = 10 * time.Millisecond

// AcquireDescriptorLock acquires a shared or exclusive advisory lock on the
// descriptor-scoped lock file for relID within lockDir.
func AcquireDescriptorLock(lockDir string, relID uint32, exclusive bool, timeout time.Duration) (*DescriptorLock, error) {
	if err := os.MkdirAll(lockDir, 0o750); err != nil {
		return nil, fmt.Errorf("catalog: create lock dir: %w", err)
	}
	lockPath := filepath.Join(lockDir, fmt.Sprintf("rel-%d.lock", relID))

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("catalog: open descriptor lock: %w", err)
	}

	lockFn := lockfile.FlockSharedNonBlock
	if exclusive {
		lockFn = lockfile.FlockExclusiveNonBlock
	}

	start := time.Now()
	attrs := metric.WithAttributes(attribute.Bool("catalog.lock.exclusive", exclusive))

	if err := lockFn(f); err == nil {
		catalogMetrics.lockWaitMs.Record(context.Background(), 0, attrs)
		return &DescriptorLock{file: f, path: lockPath}, nil
	} else if !errors.Is(err, lockfile.ErrLockBusy) {
		_ = f.Close()
		return nil, fmt.Errorf("catalog: descriptor lock: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(lockPollInterval)
		if err := lockFn(f); err == nil {
			waitMs := float64(time.Since(start).Milliseconds())
			catalogMetrics.lockWaitMs.Record(context.Background(), waitMs, attrs)
			return &DescriptorLock{file: f, path: lockPath}, nil
		} else if !errors.Is(err, lockfile.ErrLockBusy) {
			_ = f.Close()
			return nil, fmt.Errorf("catalog: descriptor lock: %w", err)
		}
	}
	_ = f.Close()
	return nil, fmt.Errorf("catalog: descriptor lock timeout for relation %d: %w", relID, lockfile.ErrLockBusy)
}

// Release releases the lock and closes its file. Idempotent.
func (l *DescriptorLock) Release() {
	if l == nil || l.file == nil {
		return
	}
	_ = lockfile.FlockUnlock(l.file)
	_ = l.file.Close()
	l.file = nil
}
