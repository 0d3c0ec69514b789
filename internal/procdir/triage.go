package procdir

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hugo-lorenzo-mato/investigator/internal/core"
	"github.com/hugo-lorenzo-mato/investigator/internal/fsutil"
	"github.com/hugo-lorenzo-mato/investigator/internal/runlock"
)

// TriageResult lists what a triage pass did with each sibling directory.
type TriageResult struct {
	ErrorRuns   []string `json:"error_runs,omitempty" yaml:"error_runs,omitempty"`
	AbortedRuns []string `json:"aborted_runs,omitempty" yaml:"aborted_runs,omitempty"`
	InUse       []string `json:"in_use,omitempty" yaml:"in_use,omitempty"`
}

// Relocated returns the number of directories moved into the failure registry.
func (r TriageResult) Relocated() int {
	return len(r.ErrorRuns) + len(r.AbortedRuns)
}

// errVanished marks a source that a concurrent triage already relocated.
var errVanished = errors.New("run directory vanished")

// Triage walks the run directories under layout.ProcRoot() other than
// current and moves the abandoned ones into layout.FailedRoot():
//
//   - no lock file: the run ended without a clean cleanup (error run)
//   - lock file acquirable: the owner died holding it (aborted run); an
//     aborted report is added unless a report already exists
//   - lock held: a live process owns it; left alone
//
// Any I/O failure other than a missing file aborts the pass.
func Triage(layout Layout, current string, logger *slog.Logger) (TriageResult, error) {
	var result TriageResult
	root := layout.ProcRoot()

	entries, err := os.ReadDir(root)
	if err != nil {
		if fsutil.Classify(err) == fsutil.KindNotFound {
			return result, nil
		}
		return result, core.ErrIO(core.CodeTriageFailed, "list run directories", root, err)
	}
	if err := layout.EnsureFailedRoot(); err != nil {
		return result, core.ErrIO(core.CodeTriageFailed, "create failed runs directory", layout.FailedRoot(), err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if current != "" && filepath.Clean(dir) == filepath.Clean(current) {
			continue
		}

		state, lock, err := runlock.Probe(dir)
		if err != nil {
			return result, core.ErrIO(core.CodeTriageFailed, "inspect run directory", dir, err)
		}

		switch state {
		case runlock.StateHeld:
			result.InUse = append(result.InUse, dir)
			if logger != nil {
				logger.Debug("run directory in use", "path", dir)
			}

		case runlock.StateMissing:
			dest, err := relocate(layout, dir)
			if errors.Is(err, errVanished) {
				continue
			}
			if err != nil {
				return result, err
			}
			promoteCrashOutput(dest, logger)
			result.ErrorRuns = append(result.ErrorRuns, dest)
			if logger != nil {
				logger.Info("relocated failed run", "from", dir, "to", dest)
			}

		case runlock.StateAbandoned:
			dest, err := triageAborted(layout, dir, lock, logger)
			if errors.Is(err, errVanished) {
				continue
			}
			if err != nil {
				return result, err
			}
			promoteCrashOutput(dest, logger)
			result.AbortedRuns = append(result.AbortedRuns, dest)
			if logger != nil {
				logger.Info("relocated aborted run", "from", dir, "to", dest)
			}
		}
	}

	return result, nil
}

// triageAborted writes the aborted report and relocates dir while holding its
// lock, so a concurrent triage in another process skips it.
func triageAborted(layout Layout, dir string, lock *runlock.Lock, logger *slog.Logger) (string, error) {
	defer func() {
		if err := lock.Unlock(); err != nil && logger != nil {
			logger.Warn("cannot unlock aborted run", "path", dir, "error", err)
		}
	}()

	report := filepath.Join(dir, core.ExitReportFileName)
	err := fsutil.WriteFileExclusive(report, []byte(core.AbortedReportText), 0o600)
	switch fsutil.Classify(err) {
	case fsutil.KindNone, fsutil.KindExists:
	case fsutil.KindNotFound:
		return "", errVanished
	default:
		return "", core.ErrIO(core.CodeReportWriteFailed, "write exit report", report, err)
	}

	return relocate(layout, dir)
}

// relocate renames dir into the failed root keeping its base name. An
// existing destination is a hard error.
func relocate(layout Layout, dir string) (string, error) {
	dest := filepath.Join(layout.FailedRoot(), filepath.Base(dir))
	if _, err := os.Lstat(dest); err == nil {
		return "", core.ErrIO(core.CodeRelocateCollision, "relocate failed run", dest, os.ErrExist)
	} else if fsutil.Classify(err) != fsutil.KindNotFound {
		return "", core.ErrIO(core.CodeTriageFailed, "inspect failed run destination", dest, err)
	}

	if err := os.Rename(dir, dest); err != nil {
		if _, statErr := os.Lstat(dir); fsutil.Classify(statErr) == fsutil.KindNotFound {
			return "", errVanished
		}
		return "", core.ErrIO(core.CodeTriageFailed, "move failed run to "+dest, dir, err)
	}
	return dest, nil
}

// promoteCrashOutput turns the runtime crash output of a dead process into a
// panic record so the run counts as carrying forensic evidence. An empty
// crash output file is dropped.
func promoteCrashOutput(dir string, logger *slog.Logger) {
	path := filepath.Join(dir, core.CrashOutputFileName)
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	if info.Size() == 0 {
		_ = os.Remove(path)
		return
	}

	dest := filepath.Join(dir, core.PanicFileName(info.ModTime().UTC()))
	if _, err := os.Lstat(dest); err == nil {
		return
	}
	if err := os.Rename(path, dest); err != nil && logger != nil {
		logger.Warn("cannot promote crash output", "path", path, "error", err)
	}
}
