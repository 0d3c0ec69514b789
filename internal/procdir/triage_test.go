package procdir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/investigator/internal/core"
	"github.com/hugo-lorenzo-mato/investigator/internal/runlock"
)

// makeRun creates a sibling run directory. withLock leaves an unheld lock
// file behind, which is what a killed process leaves.
func makeRun(t *testing.T, layout Layout, name string, withLock bool) string {
	t.Helper()
	dir := filepath.Join(layout.ProcRoot(), name)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.log"), []byte("log line\n"), 0o600))
	if withLock {
		require.NoError(t, os.WriteFile(filepath.Join(dir, core.LockFileName), nil, 0o600))
	}
	return dir
}

func TestTriage_MissingProcRoot(t *testing.T) {
	result, err := Triage(NewLayout(t.TempDir()), "", nil)
	require.NoError(t, err)
	assert.Zero(t, result.Relocated())
}

func TestTriage_ErrorRunIsRelocated(t *testing.T) {
	layout := NewLayout(t.TempDir())
	src := makeRun(t, layout, "2024-01-01_10_00_00", false)

	result, err := Triage(layout, "", nil)
	require.NoError(t, err)

	dest := filepath.Join(layout.FailedRoot(), "2024-01-01_10_00_00")
	assert.Equal(t, []string{dest}, result.ErrorRuns)
	assert.NoDirExists(t, src)
	assert.FileExists(t, filepath.Join(dest, "app.log"))
	assert.NoFileExists(t, filepath.Join(dest, core.ExitReportFileName), "error runs get no synthetic report")
}

func TestTriage_AbortedRunGetsReport(t *testing.T) {
	layout := NewLayout(t.TempDir())
	makeRun(t, layout, "2024-01-01_10_00_00", true)

	result, err := Triage(layout, "", nil)
	require.NoError(t, err)

	dest := filepath.Join(layout.FailedRoot(), "2024-01-01_10_00_00")
	assert.Equal(t, []string{dest}, result.AbortedRuns)

	data, err := os.ReadFile(filepath.Join(dest, core.ExitReportFileName))
	require.NoError(t, err)
	assert.Equal(t, core.AbortedReportText, string(data))
	assert.True(t, strings.Contains(string(data), "aborted unexpectedly"))

	state, lock, err := runlock.Probe(dest)
	require.NoError(t, err)
	assert.Equal(t, runlock.StateAbandoned, state, "triage must not keep the lock")
	require.NoError(t, lock.Unlock())
}

func TestTriage_ExistingReportIsNeverOverwritten(t *testing.T) {
	layout := NewLayout(t.TempDir())
	src := makeRun(t, layout, "2024-01-01_10_00_00", true)
	require.NoError(t, os.WriteFile(filepath.Join(src, core.ExitReportFileName), []byte("exit code 3\n"), 0o600))

	_, err := Triage(layout, "", nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(layout.FailedRoot(), "2024-01-01_10_00_00", core.ExitReportFileName))
	require.NoError(t, err)
	assert.Equal(t, "exit code 3\n", string(data))
}

func TestTriage_LiveRunIsLeftAlone(t *testing.T) {
	layout := NewLayout(t.TempDir())
	live := makeRun(t, layout, "2024-01-01_10_00_00", false)
	holder, err := runlock.Acquire(live)
	require.NoError(t, err)
	t.Cleanup(func() { _ = holder.Release() })

	result, err := Triage(layout, "", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{live}, result.InUse)
	assert.Zero(t, result.Relocated())
	assert.DirExists(t, live)
	assert.NoFileExists(t, filepath.Join(live, core.ExitReportFileName))
}

func TestTriage_SkipsCurrentAndFiles(t *testing.T) {
	layout := NewLayout(t.TempDir())
	current := makeRun(t, layout, "2024-01-02_10_00_00", false)
	require.NoError(t, os.WriteFile(filepath.Join(layout.ProcRoot(), "stray.txt"), nil, 0o600))

	result, err := Triage(layout, current, nil)
	require.NoError(t, err)

	assert.Zero(t, result.Relocated())
	assert.DirExists(t, current)
	assert.FileExists(t, filepath.Join(layout.ProcRoot(), "stray.txt"))
}

func TestTriage_CollisionIsHardError(t *testing.T) {
	layout := NewLayout(t.TempDir())
	src := makeRun(t, layout, "2024-01-01_10_00_00", false)
	existing := filepath.Join(layout.FailedRoot(), "2024-01-01_10_00_00")
	require.NoError(t, os.MkdirAll(existing, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(existing, "keep"), []byte("x"), 0o600))

	_, err := Triage(layout, "", nil)
	require.Error(t, err)
	assert.Equal(t, core.CodeRelocateCollision, core.GetCode(err))
	assert.DirExists(t, src)
	assert.FileExists(t, filepath.Join(existing, "keep"))
}

func TestTriage_MixedSiblings(t *testing.T) {
	layout := NewLayout(t.TempDir())
	makeRun(t, layout, "2024-01-01_10_00_00", false)
	makeRun(t, layout, "2024-01-01_11_00_00", true)
	live := makeRun(t, layout, "2024-01-01_12_00_00", false)
	holder, err := runlock.Acquire(live)
	require.NoError(t, err)
	t.Cleanup(func() { _ = holder.Release() })

	result, err := Triage(layout, "", nil)
	require.NoError(t, err)

	assert.Len(t, result.ErrorRuns, 1)
	assert.Len(t, result.AbortedRuns, 1)
	assert.Len(t, result.InUse, 1)
	assert.Equal(t, 2, result.Relocated())
}

func TestTriage_PromotesCrashOutput(t *testing.T) {
	layout := NewLayout(t.TempDir())
	src := makeRun(t, layout, "2024-01-01_10_00_00", true)
	crash := filepath.Join(src, core.CrashOutputFileName)
	require.NoError(t, os.WriteFile(crash, []byte("fatal error: concurrent map writes\n"), 0o600))
	modTime := time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(crash, modTime, modTime))

	_, err := Triage(layout, "", nil)
	require.NoError(t, err)

	dest := filepath.Join(layout.FailedRoot(), "2024-01-01_10_00_00")
	assert.NoFileExists(t, filepath.Join(dest, core.CrashOutputFileName))
	assert.FileExists(t, filepath.Join(dest, core.PanicFileName(modTime)))
}

func TestTriage_DropsEmptyCrashOutput(t *testing.T) {
	layout := NewLayout(t.TempDir())
	src := makeRun(t, layout, "2024-01-01_10_00_00", false)
	require.NoError(t, os.WriteFile(filepath.Join(src, core.CrashOutputFileName), nil, 0o600))

	_, err := Triage(layout, "", nil)
	require.NoError(t, err)

	dest := filepath.Join(layout.FailedRoot(), "2024-01-01_10_00_00")
	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, core.IsPanicFileName(e.Name()))
		assert.NotEqual(t, core.CrashOutputFileName, e.Name())
	}
}
