package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/investigator/internal/config"
	"github.com/hugo-lorenzo-mato/investigator/internal/investigator"
	"github.com/hugo-lorenzo-mato/investigator/internal/logging"
)

// session is one command invocation backed by an Investigator. Every
// session owns a run directory for its lifetime.
type session struct {
	inv     *investigator.Investigator
	logger  *logging.Logger
	logFile io.Closer
}

func openSession(cmd *cobra.Command, opts ...investigator.Option) (*session, error) {
	cfg := appConfig
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}

	logger, logFile, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	base := []investigator.Option{
		investigator.WithLogger(logger),
		investigator.WithOutput(cmd.OutOrStdout()),
		investigator.WithStderr(cmd.ErrOrStderr()),
	}
	inv, err := investigator.New(cfg, append(base, opts...)...)
	if err != nil {
		closeQuietly(logFile)
		return nil, err
	}
	return &session{inv: inv, logger: logger, logFile: logFile}, nil
}

// finish ends the run: a clean run directory is deleted, a failed one is
// kept with err as its exit report so the next start reports it.
func (s *session) finish(err error) error {
	defer closeQuietly(s.logFile)

	if err != nil {
		if failErr := s.inv.Fail(err.Error() + "\n"); failErr != nil {
			s.logger.Debug("cannot keep failed run", "error", failErr)
		}
		return err
	}
	return s.inv.Cleanup()
}

func newLogger(cfg *config.Config, stderr io.Writer) (*logging.Logger, io.Closer, error) {
	out := stderr
	var closer io.Closer
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o750); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		// #nosec G304 -- log file path comes from the user's configuration
		f, err := os.OpenFile(cfg.Log.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out, closer = f, f
	}
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: out,
	}), closer, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// defaultOutput resolves --output, defaulting to name in the working
// directory.
func defaultOutput(flag, name string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolving working directory: %w", err)
	}
	return filepath.Join(wd, name), nil
}
