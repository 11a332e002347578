// Package lockfile serializes work on shared directories, such as two
// processes installing the same tool version, with advisory file locks.
package lockfile

import (
	"os"
	"path/filepath"

	"toolv/internal/domain"
)

// Lock is a held advisory lock. The lock file itself is left in place on
// release; only the lock is dropped.
type Lock struct {
	path string
	file *os.File
}

// Acquire blocks until the lock at path is held. When another holder is in
// the way, onWait is called once before blocking so callers can report what
// they are waiting for.
func Acquire(path string, onWait func()) (*Lock, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	held, err := tryLock(f)
	if err != nil {
		f.Close()
		return nil, domain.Wrap(domain.CodeUnavailable, "lockfile.Acquire", "failed to lock "+path, err)
	}
	if !held {
		if onWait != nil {
			onWait()
		}
		if err := lockBlocking(f); err != nil {
			f.Close()
			return nil, domain.Wrap(domain.CodeUnavailable, "lockfile.Acquire", "failed to lock "+path, err)
		}
	}
	return &Lock{path: path, file: f}, nil
}

// TryAcquire attempts the lock without blocking. The second return reports
// whether the lock was obtained.
func TryAcquire(path string) (*Lock, bool, error) {
	f, err := open(path)
	if err != nil {
		return nil, false, err
	}
	held, err := tryLock(f)
	if err != nil {
		f.Close()
		return nil, false, domain.Wrap(domain.CodeUnavailable, "lockfile.TryAcquire", "failed to lock "+path, err)
	}
	if !held {
		f.Close()
		return nil, false, nil
	}
	return &Lock{path: path, file: f}, true, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unlock(l.file)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return err
	}
	return closeErr
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

func open(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, domain.Wrap(domain.CodeUnavailable, "lockfile", "failed to create lock directory", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, domain.Wrap(domain.CodeUnavailable, "lockfile", "failed to open "+path, err)
	}
	return f, nil
}
