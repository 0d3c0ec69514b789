package cmd

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec -- command [args...]",
	Short: "Run a command with its output kept in a run directory",
	Long: `Run a command with stdout and stderr appended to files in a run directory.
When the command fails the run directory is kept; the next start moves it to
the failed runs so it can be reported.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

// errCommandFailed marks a captured command that ran but did not succeed.
var errCommandFailed = errors.New("command failed")

func init() {
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = s.finish(err) }()

	// A panic while capturing is recorded and returned by RunCaptured.
	if _, err := s.inv.InstallPanicRecorder(); err != nil {
		return err
	}

	c := exec.CommandContext(cmd.Context(), args[0], args[1:]...) // #nosec G204 -- running the user's command is the point
	if err := s.inv.RunCaptured(c); err != nil {
		return err
	}

	dir, _ := s.inv.CurrentRunDirectory()
	s.logger.Info("command output captured", "path", dir)
	if code := c.ProcessState.ExitCode(); code != 0 {
		return fmt.Errorf("%w: %s exited with status %d", errCommandFailed, args[0], code)
	}
	return nil
}
