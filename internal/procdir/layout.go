// Package procdir owns the per-process run directory and the startup triage
// of run directories left behind by earlier processes.
//
// Layout under the data root:
//
//	{data}/proc/{2006-01-02_15_04_05}/run.lock
//	{data}/proc/{...}/exit_report.txt
//	{data}/proc/{...}/{RFC3339}.panic
//	{data}/proc_failed/{relocated run directories}
package procdir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hugo-lorenzo-mato/investigator/internal/core"
)

// Layout resolves the fixed directories below a data root.
type Layout struct {
	DataDir string
}

// NewLayout returns the layout rooted at dataDir.
func NewLayout(dataDir string) Layout {
	return Layout{DataDir: filepath.Clean(dataDir)}
}

// ProcRoot is the parent of all live and abandoned run directories.
func (l Layout) ProcRoot() string {
	return filepath.Join(l.DataDir, core.ProcDirName)
}

// FailedRoot is the default failure registry directory.
func (l Layout) FailedRoot() string {
	return filepath.Join(l.DataDir, core.FailedDirName)
}

// EnsureFailedRoot creates the failure registry directory.
func (l Layout) EnsureFailedRoot() error {
	if err := os.MkdirAll(l.FailedRoot(), 0o750); err != nil {
		return fmt.Errorf("creating failed runs directory: %w", err)
	}
	return nil
}
