package procdir

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/investigator/internal/core"
	"github.com/hugo-lorenzo-mato/investigator/internal/fsutil"
	"github.com/hugo-lorenzo-mato/investigator/internal/runlock"
)

// maxNameAttempts bounds the suffixes tried when processes start within the
// same second.
const maxNameAttempts = 100

// Retention prunes the default failure directory after triage.
type Retention interface {
	CleanupDefault(maxKeep int) ([]string, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used to name the run directory.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRetention runs r.CleanupDefault(maxKeep) after every triage pass.
func WithRetention(r Retention, maxKeep int) Option {
	return func(m *Manager) {
		m.retention = r
		m.maxKeep = maxKeep
	}
}

// Manager owns the run directory of the current process. The directory is
// created, locked and triaged on first use; every later caller observes the
// same result.
type Manager struct {
	layout    Layout
	now       func() time.Time
	logger    *slog.Logger
	retention Retention
	maxKeep   int

	once   sync.Once
	mu     sync.Mutex
	path   string
	err    error
	lock   *runlock.Lock
	triage TriageResult
	done   bool
}

// NewManager creates a manager for the given layout.
func NewManager(layout Layout, opts ...Option) *Manager {
	m := &Manager{
		layout:  layout,
		now:     time.Now,
		maxKeep: core.DefaultMaxKeep,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Layout returns the directory layout.
func (m *Manager) Layout() Layout {
	return m.layout
}

// Current returns the run directory, creating it on first call. Errors are
// startup-fatal (see core.IsFatal) and are returned to every caller.
func (m *Manager) Current() (string, error) {
	m.once.Do(func() {
		path, lock, result, err := m.initialize()
		m.mu.Lock()
		m.path, m.lock, m.triage, m.err, m.done = path, lock, result, err, true
		m.mu.Unlock()
	})
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path, m.err
}

// MustCurrent is Current for callers that cannot continue without a run
// directory.
func (m *Manager) MustCurrent() string {
	path, err := m.Current()
	if err != nil {
		panic(fmt.Sprintf("run directory unavailable: %v", err))
	}
	return path
}

// Set uses path as the run directory instead of a generated one. It must be
// called before Current and at most once. The directory is created but not
// locked or triaged.
func (m *Manager) Set(path string) error {
	ran := false
	var err error
	m.once.Do(func() {
		ran = true
		if mkErr := os.MkdirAll(path, 0o750); mkErr != nil {
			err = core.ErrIO(core.CodeRunDirCreate, "create run directory", path, mkErr)
		}
		m.mu.Lock()
		m.path, m.err, m.done = path, err, true
		m.mu.Unlock()
	})
	if !ran {
		return core.ErrState(core.CodeAlreadyInitialized, "run directory already initialized")
	}
	return err
}

// Path returns the run directory if it was initialized.
func (m *Manager) Path() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.done || m.err != nil {
		return "", false
	}
	return m.path, true
}

// TriageResult returns what the startup triage relocated.
func (m *Manager) TriageResult() TriageResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triage
}

// Remove deletes the run directory. Its contents go first while the lock is
// still held, so peers keep seeing a live run until only the lock file is
// left. It is a no-op when the directory was never initialized.
func (m *Manager) Remove() error {
	path, ok := m.Path()
	if !ok {
		return nil
	}
	contentsErr := removeContents(path, core.LockFileName)
	if err := m.releaseLock(); err != nil && m.logger != nil {
		m.logger.Warn("cannot release run lock", "path", path, "error", err)
	}
	if contentsErr != nil {
		return core.ErrIO(core.CodeRemoveFailed, "remove run directory", path, contentsErr)
	}
	if err := os.RemoveAll(path); err != nil {
		return core.ErrIO(core.CodeRemoveFailed, "remove run directory", path, err)
	}
	return nil
}

// removeContents deletes every child of dir except keep.
func removeContents(dir, keep string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if fsutil.Classify(err) == fsutil.KindNotFound {
			return nil
		}
		return err
	}
	var errs []error
	for _, e := range entries {
		if e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases the lock and keeps the directory. The next process finds it
// without a lock file and moves it to the failure registry.
func (m *Manager) Close() error {
	return m.releaseLock()
}

// WriteExitReport records why the process is ending in exit_report.txt.
func (m *Manager) WriteExitReport(text string) error {
	path, ok := m.Path()
	if !ok {
		return core.ErrState(core.CodeReportWriteFailed, "run directory not initialized")
	}
	report := filepath.Join(path, core.ExitReportFileName)
	if err := fsutil.WriteFileAtomic(report, []byte(text), 0o600); err != nil {
		return core.ErrIO(core.CodeReportWriteFailed, "write exit report", report, err)
	}
	return nil
}

func (m *Manager) releaseLock() error {
	m.mu.Lock()
	lock := m.lock
	m.lock = nil
	m.mu.Unlock()
	if lock == nil {
		return nil
	}
	return lock.Release()
}

func (m *Manager) initialize() (string, *runlock.Lock, TriageResult, error) {
	path, err := createRunDir(m.layout.ProcRoot(), core.RunDirName(m.now()))
	if err != nil {
		return "", nil, TriageResult{}, core.ErrIO(core.CodeRunDirCreate, "create run directory", path, err)
	}

	lock, err := runlock.Acquire(path)
	if err != nil {
		return "", nil, TriageResult{}, core.ErrIO(core.CodeRunDirLock, "lock run directory", path, err)
	}

	result, err := Triage(m.layout, path, m.logger)
	if err != nil {
		if relErr := lock.Release(); relErr != nil && m.logger != nil {
			m.logger.Warn("cannot release run lock", "path", path, "error", relErr)
		}
		return "", nil, result, core.ErrIO(core.CodeTriageFailed, "triage run directories", m.layout.ProcRoot(), err)
	}

	if m.retention != nil {
		if removed, err := m.retention.CleanupDefault(m.maxKeep); err != nil {
			if m.logger != nil {
				m.logger.Warn("failed runs cleanup failed", "error", err)
			}
		} else if len(removed) > 0 && m.logger != nil {
			m.logger.Info("removed old failed runs", "count", len(removed))
		}
	}

	if m.logger != nil {
		m.logger.Debug("run directory ready", "path", path, "relocated", result.Relocated())
	}
	return path, lock, result, nil
}

// createRunDir creates root/name, or root/name_N when a process started in
// the same second already took the plain name. Suffixed names still sort
// between their second and the next.
func createRunDir(root, name string) (string, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return root, err
	}
	path := filepath.Join(root, name)
	for i := 1; ; i++ {
		err := os.Mkdir(path, 0o750)
		if err == nil {
			return path, nil
		}
		if fsutil.Classify(err) != fsutil.KindExists || i >= maxNameAttempts {
			return path, err
		}
		path = filepath.Join(root, fmt.Sprintf("%s_%d", name, i))
	}
}
