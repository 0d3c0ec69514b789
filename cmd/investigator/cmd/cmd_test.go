package cmd

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/investigator/internal/clip"
	"github.com/hugo-lorenzo-mato/investigator/internal/core"
	"github.com/hugo-lorenzo-mato/investigator/internal/testutil"
)

// resetFlags restores every flag to its default; cobra keeps parsed values
// between Execute calls.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// run executes the CLI against data with an empty config file.
func run(t *testing.T, data *testutil.DataRoot, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	resetFlags(rootCmd)
	appConfig = nil

	cfg := testutil.TempFile(t, t.TempDir(), "config.yaml", "")
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{
		"--config", cfg,
		"--data-dir", data.Dir,
		"--locale", "en",
		"--log-format", "text",
	}, args...))
	err = rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRootCmd_Structure(t *testing.T) {
	assert.Equal(t, "investigator", rootCmd.Use)
	assert.True(t, rootCmd.SilenceUsage)

	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"status", "report", "export", "trash", "clean", "exec", "sysinfo", "inspect", "config", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestVersionCommand(t *testing.T) {
	SetVersion("v1.2.3", "abc123def", "2024-01-15")
	defer SetVersion("", "", "")

	out, _, err := run(t, testutil.NewDataRoot(t), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "investigator v1.2.3")
	assert.Contains(t, out, "commit: abc123def")
	assert.Contains(t, out, "built:  2024-01-15")
	assert.Equal(t, "v1.2.3", GetVersion())
}

func TestStatus_EmptyDataDir(t *testing.T) {
	data := testutil.NewDataRoot(t)

	out, _, err := run(t, data, "status")
	require.NoError(t, err)
	testutil.NewGolden(t, "testdata").AssertString("status_empty", testutil.ScrubAll(out, data.Dir))

	// The status run cleaned up after itself.
	assert.Empty(t, testutil.Children(t, data.ProcRoot()))
}

func TestStatus_YAML(t *testing.T) {
	data := testutil.NewDataRoot(t)
	data.AbandonedRun("2024-01-01_00_00_00", nil)
	data.PanicRun("2024-01-02_00_00_00")

	out, _, err := run(t, data, "status", "--format", "yaml")
	require.NoError(t, err)

	var st struct {
		Relocated        int      `yaml:"relocated"`
		FailedRuns       []string `yaml:"failed_runs"`
		ForensicEvidence bool     `yaml:"forensic_evidence"`
		MaxKeep          int      `yaml:"max_keep"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &st))
	assert.Equal(t, 1, st.Relocated)
	assert.Len(t, st.FailedRuns, 2)
	assert.True(t, st.ForensicEvidence)
	assert.Equal(t, core.DefaultMaxKeep, st.MaxKeep)
}

func TestStatus_UnknownFormat(t *testing.T) {
	data := testutil.NewDataRoot(t)

	_, _, err := run(t, data, "status", "--format", "xml")
	require.Error(t, err)

	// The failed invocation is kept and reported by the next one.
	out, _, err := run(t, data, "status", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"relocated": 1`)
}

type fakeCopier struct{ copied []string }

func (f *fakeCopier) Copy(text string) (clip.Method, error) {
	f.copied = append(f.copied, text)
	return clip.MethodNative, nil
}

func TestReport(t *testing.T) {
	data := testutil.NewDataRoot(t)
	data.FailedRun("2024-01-01_00_00_00", map[string]string{"exit_report.txt": "boom\n"})
	data.AbandonedRun("2024-01-02_00_00_00", map[string]string{"work.txt": "w"})
	dest := filepath.Join(t.TempDir(), "report.zip")

	fake := &fakeCopier{}
	old := copier
	copier = fake
	defer func() { copier = old }()

	out, _, err := run(t, data, "report", "--output", dest, "--copy-path")
	require.NoError(t, err)
	assert.Equal(t, "Bug report written to "+dest+"\n", out)
	assert.Equal(t, []string{dest}, fake.copied)

	entries := testutil.ReadZip(t, dest)
	assert.Equal(t, "boom\n", entries["proc_failed/2024-01-01_00_00_00/exit_report.txt"])
	assert.Equal(t, core.AbortedReportText, entries["proc_failed/2024-01-02_00_00_00/exit_report.txt"])
	assert.Empty(t, testutil.Children(t, data.FailedRoot()))

	listing, _, err := run(t, data, "inspect", dest)
	require.NoError(t, err)
	assert.Contains(t, listing, "SIZE")
	assert.Contains(t, listing, "proc_failed/2024-01-02_00_00_00/work.txt")
}

func TestReport_NothingToReport(t *testing.T) {
	data := testutil.NewDataRoot(t)
	dest := filepath.Join(t.TempDir(), "report.zip")

	out, _, err := run(t, data, "report", "-o", dest)
	require.NoError(t, err)
	assert.Equal(t, "There are no bug reports.\n", out)
	testutil.AssertNotExists(t, dest)
}

func TestClean(t *testing.T) {
	data := testutil.NewDataRoot(t)
	data.FailedRun("2024-01-01_00_00_00", nil)
	data.FailedRun("2024-01-02_00_00_00", nil)
	data.FailedRun("2024-01-03_00_00_00", nil)
	data.PanicRun("2023-01-01_00_00_00")

	out, _, err := run(t, data, "clean", "--max-keep", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "2 failed runs removed")
	assert.ElementsMatch(t,
		[]string{"2023-01-01_00_00_00", "2024-01-03_00_00_00"},
		testutil.Children(t, data.FailedRoot()))

	_, _, err = run(t, data, "clean", "--max-keep", "-3")
	assert.Error(t, err)
}

func TestExec_FailedCommandIsReportedNextStart(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	data := testutil.NewDataRoot(t)

	_, _, err = run(t, data, "exec", "--", sh, "-c", "echo captured; exit 4")
	require.ErrorIs(t, err, errCommandFailed)

	_, _, err = run(t, data, "status")
	require.NoError(t, err)

	runs := testutil.Children(t, data.FailedRoot())
	require.Len(t, runs, 1)
	failed := filepath.Join(data.FailedRoot(), runs[0])

	report, err := os.ReadFile(filepath.Join(failed, core.ExitReportFileName))
	require.NoError(t, err)
	assert.Contains(t, string(report), "exited with status 4")

	stdout, err := os.ReadFile(filepath.Join(failed, "sh_stdout.txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(stdout), "captured\n"), "got %q", stdout)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "init", "--config", path})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "created "+path)
	testutil.AssertExists(t, path)

	resetFlags(rootCmd)
	out.Reset()
	rootCmd.SetArgs([]string{"config", "init", "--config", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "already exists")
}

func TestInvalidConfig(t *testing.T) {
	resetFlags(rootCmd)
	cfg := testutil.TempFile(t, t.TempDir(), "config.yaml", "archive:\n  compression: lzma\n")
	rootCmd.SetArgs([]string{"--config", cfg, "--data-dir", t.TempDir(), "status"})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive.compression")
}
