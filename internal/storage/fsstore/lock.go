package fsstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LockName is the lock file taken in the root directory by an open Store.
const LockName = ".restorepoint.lock"

// ErrLocked is returned by New when another Store, in this or another
// process, holds the directory.
var ErrLocked = errors.New("fsstore: directory is in use by another process")

// dirLock is an exclusive advisory lock on root/LockName.
type dirLock struct {
	f *os.File
}

func acquireLock(root string) (*dirLock, error) {
	f, err := os.OpenFile(filepath.Join(root, LockName), os.O_CREATE|os.O_RDWR, filePerm)
	if err != nil {
		return nil, fmt.Errorf("fsstore: open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}
	return &dirLock{f: f}, nil
}

func (l *dirLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	uerr := unlockFile(l.f)
	cerr := l.f.Close()
	l.f = nil
	return errors.Join(uerr, cerr)
}
