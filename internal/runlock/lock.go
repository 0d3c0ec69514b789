// Package runlock implements the advisory lock that marks a run directory as
// owned by a live process.
//
// The lock file is created on Acquire and deleted on Release. A process that
// is killed never reaches Release, so its lock file stays on disk while nobody
// holds the lock. That leftover state is how later processes tell an aborted
// run from a clean one; Release must not be made crash-proof.
package runlock

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/gofrs/flock"

	"github.com/hugo-lorenzo-mato/investigator/internal/core"
	"github.com/hugo-lorenzo-mato/investigator/internal/fsutil"
)

// State describes a run directory as seen through its lock file.
type State int

const (
	// StateMissing means the directory has no lock file.
	StateMissing State = iota
	// StateAbandoned means the lock file exists and nobody holds it.
	StateAbandoned
	// StateHeld means a live process holds the lock.
	StateHeld
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateAbandoned:
		return "abandoned"
	case StateHeld:
		return "held"
	default:
		return "unknown"
	}
}

// Lock is a held exclusive lock on dir/run.lock.
type Lock struct {
	fl       *flock.Flock
	path     string
	mu       sync.Mutex
	released bool
}

// statFile is replaced in tests to interleave a peer between the steps of Probe.
var statFile = os.Stat

// FilePath returns the lock file path for a run directory.
func FilePath(dir string) string {
	return filepath.Join(dir, core.LockFileName)
}

// Acquire creates or opens dir/run.lock and takes the exclusive lock without
// blocking. It fails with CodeLockUnavailable when another holder owns it.
func Acquire(dir string) (*Lock, error) {
	path := FilePath(dir)
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, core.ErrIO(core.CodeLockIO, "lock file", path, err)
	}
	if !locked {
		return nil, core.ErrLockUnavailable(path)
	}
	return &Lock{fl: fl, path: path}, nil
}

// Probe inspects the lock of a foreign run directory. For StateAbandoned the
// caller owns the returned lock and must call Unlock; the lock file is left in
// place. Probe never creates a lock file: a file or directory that disappears
// while probing reads as StateMissing, and a lock file replaced while probing
// reads as StateHeld. Other errors are returned.
func Probe(dir string) (State, *Lock, error) {
	path := FilePath(dir)
	before, err := statFile(path)
	if err != nil {
		if fsutil.Classify(err) == fsutil.KindNotFound {
			return StateMissing, nil, nil
		}
		return StateMissing, nil, core.ErrIO(core.CodeLockIO, "open lock file", path, err)
	}

	fl := flock.New(path, flock.SetFlag(probeFlag()))
	locked, err := fl.TryLock()
	if err != nil {
		if fsutil.Classify(err) == fsutil.KindNotFound {
			return StateMissing, nil, nil
		}
		return StateMissing, nil, core.ErrIO(core.CodeLockIO, "lock file", path, err)
	}
	if !locked {
		return StateHeld, nil, nil
	}

	// The owner deletes its lock file before unlocking it, so a lock won on
	// a file that is no longer at path belongs to a run that exited cleanly.
	after, err := statFile(path)
	switch {
	case err == nil && os.SameFile(before, after):
		return StateAbandoned, &Lock{fl: fl, path: path}, nil
	case err == nil:
		_ = fl.Close()
		return StateHeld, nil, nil
	case fsutil.Classify(err) == fsutil.KindNotFound:
		_ = fl.Close()
		return StateMissing, nil, nil
	default:
		_ = fl.Close()
		return StateMissing, nil, core.ErrIO(core.CodeLockIO, "lock file", path, err)
	}
}

// probeFlag opens an existing lock file without creating one. Some systems
// refuse exclusive locks on read-only descriptors.
func probeFlag() int {
	switch runtime.GOOS {
	case "aix", "solaris", "illumos":
		return os.O_RDWR
	default:
		return os.O_RDONLY
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Unlock releases the lock and keeps the lock file.
func (l *Lock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.released = true
	return l.fl.Close()
}

// Release deletes the lock file and releases the lock. Safe to call more than
// once.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.released = true

	// Windows refuses to delete a file with an open handle.
	if runtime.GOOS == "windows" {
		closeErr := l.fl.Close()
		if err := os.Remove(l.path); err != nil && fsutil.Classify(err) != fsutil.KindNotFound {
			return err
		}
		return closeErr
	}

	removeErr := os.Remove(l.path)
	if err := l.fl.Close(); err != nil {
		return err
	}
	if removeErr != nil && fsutil.Classify(removeErr) != fsutil.KindNotFound {
		return removeErr
	}
	return nil
}
