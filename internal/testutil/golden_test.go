package testutil_test

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/hugo-lorenzo-mato/investigator/internal/core"
	"github.com/hugo-lorenzo-mato/investigator/internal/testutil"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"CRLF to LF", "line1\r\nline2\r\n", "line1\nline2"},
		{"trailing whitespace", "line1   \nline2\t\n", "line1\nline2"},
		{"trailing newlines", "line1\nline2\n\n\n", "line1\nline2"},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertEqual(t, testutil.Normalize(tt.input), tt.want)
		})
	}
}

func TestScrubTimestamps(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"rfc3339", "at 2024-01-15T10:30:00Z done", "at [TIMESTAMP] done"},
		{"rfc3339 offset", "at 2024-01-15T10:30:00+02:00", "at [TIMESTAMP]"},
		{"panic file", "2024-01-15T10-30-00Z.panic", "[TIMESTAMP].panic"},
		{"run dir", "proc/2024-01-15_10_30_00/run.lock", "proc/[TIMESTAMP]/run.lock"},
		{"run dir suffix", "proc/2024-01-15_10_30_00_2", "proc/[TIMESTAMP]"},
		{"clock", "10:30:00 INF ready", "[TIMESTAMP] INF ready"},
		{"no timestamp", "nothing here", "nothing here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testutil.AssertEqual(t, testutil.ScrubTimestamps(tt.input), tt.want)
		})
	}
}

func TestScrubAll(t *testing.T) {
	got := testutil.ScrubAll("/tmp/data/proc/2024-01-15_10_30_00  \r\n", "/tmp/data")
	testutil.AssertEqual(t, got, "[DATA]/proc/[TIMESTAMP]")
}

func TestGolden_Assert(t *testing.T) {
	dir := t.TempDir()
	testutil.TempFile(t, dir, "out.golden", "expected\n")

	testutil.NewGolden(t, dir).AssertString("out", "expected\n")
}

func TestWriteTreeReadTree(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"a.txt":       "a",
		"sub/b.txt":   "b",
		"empty/":      "",
		"sub/deep/c":  "c",
		"sub/deeper/": "",
	}
	testutil.WriteTree(t, root, files)

	got := testutil.ReadTree(t, root)
	if len(got) != len(files) {
		t.Fatalf("ReadTree returned %v, want %v", got, files)
	}
	for name, content := range files {
		testutil.AssertEqual(t, got[name], content)
	}
}

func TestDataRoot(t *testing.T) {
	d := testutil.NewDataRoot(t)

	abandoned := d.AbandonedRun("2024-01-01_00_00_00", map[string]string{"log.txt": "x"})
	errored := d.ErrorRun("2024-01-01_00_00_01", nil)
	panicked := d.PanicRun("2024-01-01_00_00_02")

	testutil.AssertExists(t, filepath.Join(abandoned, core.LockFileName))
	testutil.AssertNotExists(t, filepath.Join(errored, core.LockFileName))
	testutil.AssertEqual(t, filepath.Dir(panicked), d.FailedRoot())

	names := testutil.Children(t, d.ProcRoot())
	sort.Strings(names)
	if len(names) != 2 || names[0] != "2024-01-01_00_00_00" {
		t.Errorf("unexpected proc children %v", names)
	}
	if got := testutil.Children(t, filepath.Join(d.Dir, "missing")); got != nil {
		t.Errorf("missing dir should have no children, got %v", got)
	}
}

func TestMockTrasher(t *testing.T) {
	dir := t.TempDir()
	keep := testutil.TempFile(t, dir, "keep", "")
	drop := testutil.TempFile(t, dir, "drop", "")

	m := testutil.NewMockTrasher().FailOn(keep)
	if err := m.Trash(drop); err != nil {
		t.Fatal(err)
	}
	if err := m.Trash(keep); err == nil {
		t.Fatal("expected failure")
	}

	testutil.AssertNotExists(t, drop)
	testutil.AssertExists(t, keep)
	testutil.AssertEqual(t, len(m.Trashed()), 1)
}
