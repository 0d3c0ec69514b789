package diagnostics

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func requireShell(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestCommandCapture_WritesBothStreams(t *testing.T) {
	t.Parallel()
	sh := requireShell(t)
	dir := t.TempDir()
	c := NewCommandCapture(dir, nil, nil)

	cmd := exec.Command(sh, "-c", "echo out; echo err >&2; exit 3")
	if err := c.Run(cmd); err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}

	stdout, err := os.ReadFile(filepath.Join(dir, "sh_stdout.txt"))
	if err != nil {
		t.Fatal(err)
	}
	stderr, err := os.ReadFile(filepath.Join(dir, "sh_stderr.txt"))
	if err != nil {
		t.Fatal(err)
	}

	header := commandLine(cmd)
	if !strings.HasPrefix(string(stdout), header+"\n") {
		t.Errorf("stdout should start with the command line, got %q", stdout)
	}
	if !strings.HasSuffix(string(stdout), "out\n") {
		t.Errorf("unexpected stdout %q", stdout)
	}
	if !strings.HasPrefix(string(stderr), header+"\n") || !strings.HasSuffix(string(stderr), "err\n") {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestCommandCapture_AppendsAcrossRuns(t *testing.T) {
	t.Parallel()
	sh := requireShell(t)
	dir := t.TempDir()
	c := NewCommandCapture(dir, nil, nil)

	for i := 0; i < 2; i++ {
		if err := c.Run(exec.Command(sh, "-c", "echo run")); err != nil {
			t.Fatal(err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "sh_stdout.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "run\n"); n != 2 {
		t.Errorf("expected 2 runs, got %d in %q", n, data)
	}
}

func TestCommandCapture_StartFailure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c := NewCommandCapture(dir, nil, nil)

	cmd := exec.Command(filepath.Join(dir, "does-not-exist"))
	if err := c.Run(cmd); err == nil {
		t.Fatal("expected start error")
	}
	if _, err := os.Stat(filepath.Join(dir, "does-not-exist_stdout.txt")); err != nil {
		t.Errorf("output file should still record the attempt: %v", err)
	}
}

func TestCommandLine(t *testing.T) {
	t.Parallel()
	cmd := &exec.Cmd{Args: []string{"tool", "--flag", "two words", ""}}
	got := commandLine(cmd)
	want := `tool --flag "two words" ""`
	if got != want {
		t.Errorf("commandLine = %q, want %q", got, want)
	}
}
