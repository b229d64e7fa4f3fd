package fs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/notely/pkg/core"
)

// staleLockAge is how old a lock file must be before it is considered left
// behind by a writer that died while holding it. Writes hold it for milliseconds.
const staleLockAge = 30 * time.Second

// fileLock serializes writers of every process sharing the store directory.
type fileLock struct {
	path       string
	timeout    time.Duration
	staleAfter time.Duration
}

func newFileLock(path string, timeout time.Duration) *fileLock {
	return &fileLock{path: path, timeout: timeout, staleAfter: staleLockAge}
}

// Acquire blocks until the lock file could be created, ctx is done or the
// timeout elapsed. A lock file older than staleAfter is broken. The returned
// func releases the lock.
func (l *fileLock) Acquire(ctx context.Context) (func(), error) {
	deadline := time.Now().Add(l.timeout)
	token := []byte(fmt.Sprintf("%d %d\n", os.Getpid(), time.Now().UnixNano()))

	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0666)
		if err == nil {
			_, werr := f.Write(token)
			f.Close()
			if werr != nil {
				os.Remove(l.path)
				return nil, fmt.Errorf("failed to write lock: %w", werr)
			}
			return func() { l.release(token) }, nil
		}

		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		if l.breakStale() {
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%s held for more than %s: %w", l.path, l.timeout, core.ErrLockTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// breakStale removes the lock file when its mtime is older than staleAfter.
func (l *fileLock) breakStale() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		// Released in the meantime.
		return os.IsNotExist(err)
	}
	if time.Since(info.ModTime()) < l.staleAfter {
		return false
	}
	return os.Remove(l.path) == nil
}

// release removes the lock file unless another writer already broke it and
// holds a lock of its own.
func (l *fileLock) release(token []byte) {
	current, err := os.ReadFile(l.path)
	if err != nil || !bytes.Equal(current, token) {
		return
	}
	os.Remove(l.path)
}
