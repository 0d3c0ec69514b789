package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hugo-lorenzo-mato/investigator/internal/core"
)

// DataRoot is a data directory populated with run directories the way
// earlier processes leave them behind.
type DataRoot struct {
	t   *testing.T
	Dir string
}

// NewDataRoot creates an empty data root in a temp directory.
func NewDataRoot(t *testing.T) *DataRoot {
	t.Helper()
	return &DataRoot{t: t, Dir: t.TempDir()}
}

// ProcRoot returns {data}/proc.
func (d *DataRoot) ProcRoot() string {
	return filepath.Join(d.Dir, core.ProcDirName)
}

// FailedRoot returns {data}/proc_failed.
func (d *DataRoot) FailedRoot() string {
	return filepath.Join(d.Dir, core.FailedDirName)
}

// ErrorRun creates a run directory without a lock file, as left by a
// process that reported its failure and released the lock.
func (d *DataRoot) ErrorRun(name string, files map[string]string) string {
	d.t.Helper()
	return d.run(d.ProcRoot(), name, files)
}

// AbandonedRun creates a run directory whose lock file is still present but
// not held, as left by a killed process.
func (d *DataRoot) AbandonedRun(name string, files map[string]string) string {
	d.t.Helper()
	dir := d.run(d.ProcRoot(), name, files)
	TempFile(d.t, dir, core.LockFileName, "")
	return dir
}

// FailedRun creates a run directory that triage already relocated.
func (d *DataRoot) FailedRun(name string, files map[string]string) string {
	d.t.Helper()
	return d.run(d.FailedRoot(), name, files)
}

// PanicRun creates a relocated run holding a panic record.
func (d *DataRoot) PanicRun(name string) string {
	d.t.Helper()
	return d.FailedRun(name, map[string]string{
		"2024-01-01T00:00:00Z" + core.PanicFileExt: "goroutine 1 panicked at 'boom'\n",
	})
}

func (d *DataRoot) run(parent, name string, files map[string]string) string {
	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		d.t.Fatalf("creating run %s: %v", dir, err)
	}
	WriteTree(d.t, dir, files)
	return dir
}

// Children returns the base names below dir; a missing dir has none.
func Children(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("listing %s: %v", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
