package diagnostics

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CommandCapture runs external commands with their output appended to files
// in a run directory, so the output of helper tools ends up in bug reports.
type CommandCapture struct {
	dir      string
	logger   *slog.Logger
	recorder *PanicRecorder
}

// NewCommandCapture creates a capture writing into dir. recorder may be nil.
func NewCommandCapture(dir string, logger *slog.Logger, recorder *PanicRecorder) *CommandCapture {
	return &CommandCapture{dir: dir, logger: logger, recorder: recorder}
}

// OutputPaths returns the stdout and stderr files used for cmd.
func (c *CommandCapture) OutputPaths(cmd *exec.Cmd) (stdout, stderr string) {
	prog := filepath.Base(cmd.Path)
	if len(cmd.Args) > 0 {
		prog = filepath.Base(cmd.Args[0])
	}
	return filepath.Join(c.dir, prog+"_stdout.txt"), filepath.Join(c.dir, prog+"_stderr.txt")
}

// Run starts cmd and waits for it. Both output files start with the command
// line. A non-zero exit status is not an error; a command that cannot be
// started or waited for is logged and returned.
func (c *CommandCapture) Run(cmd *exec.Cmd) (err error) {
	if c.recorder != nil {
		defer c.recorder.RecoverAndReturn(&err)
	}

	if err := c.run(cmd); err != nil {
		if c.logger != nil {
			c.logger.Warn("cannot execute command", "command", cmd.String(), "error", err)
		}
		return err
	}
	return nil
}

func (c *CommandCapture) run(cmd *exec.Cmd) error {
	stdoutPath, stderrPath := c.OutputPaths(cmd)
	header := commandLine(cmd) + "\n"

	stdout, err := openAppend(stdoutPath, header)
	if err != nil {
		return err
	}
	defer stdout.Close()

	stderr, err := openAppend(stderrPath, header)
	if err != nil {
		return err
	}
	defer stderr.Close()

	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("cannot start %s: %w", cmd.Path, err)
	}
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if c.logger != nil {
				c.logger.Debug("command exited", "command", cmd.Path, "code", exitErr.ExitCode())
			}
			return nil
		}
		return fmt.Errorf("cannot wait for %s: %w", cmd.Path, err)
	}
	return nil
}

func openAppend(path, header string) (*os.File, error) {
	// #nosec G304 -- path is inside the run directory
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := f.WriteString(header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return f, nil
}

func commandLine(cmd *exec.Cmd) string {
	quoted := make([]string, 0, len(cmd.Args))
	for _, a := range cmd.Args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = fmt.Sprintf("%q", a)
		}
		quoted = append(quoted, a)
	}
	return strings.Join(quoted, " ")
}
