// Package investigator ties the run directory, the failure registry and the
// panic recorder of one process together. An application creates one
// Investigator at startup and passes it to the code that needs it.
package investigator

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/hugo-lorenzo-mato/investigator/internal/archive"
	"github.com/hugo-lorenzo-mato/investigator/internal/config"
	"github.com/hugo-lorenzo-mato/investigator/internal/core"
	"github.com/hugo-lorenzo-mato/investigator/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/investigator/internal/failures"
	"github.com/hugo-lorenzo-mato/investigator/internal/i18n"
	"github.com/hugo-lorenzo-mato/investigator/internal/logging"
	"github.com/hugo-lorenzo-mato/investigator/internal/procdir"
)

// Option configures an Investigator.
type Option func(*Investigator)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *logging.Logger) Option {
	return func(i *Investigator) {
		i.logger = logger
	}
}

// WithLocalizer overrides the localizer built from the configured locale.
func WithLocalizer(l i18n.Localizer) Option {
	return func(i *Investigator) {
		i.localize = l
	}
}

// WithOutput sets where user-facing messages are printed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(i *Investigator) {
		i.out = w
	}
}

// WithStderr sets where panic records are echoed. Defaults to stderr.
func WithStderr(w io.Writer) Option {
	return func(i *Investigator) {
		i.stderr = w
	}
}

// WithTrasher overrides the trash backend.
func WithTrasher(t failures.Trasher) Option {
	return func(i *Investigator) {
		i.trasher = t
	}
}

// WithRegistryOptions forwards options to the failure registry.
func WithRegistryOptions(opts ...failures.Option) Option {
	return func(i *Investigator) {
		i.registryOpts = append(i.registryOpts, opts...)
	}
}

// WithBeforeArchive registers a hook run right before ArchiveEverything
// assembles its archive, so the application can flush its own state into
// the run directory first.
func WithBeforeArchive(hook func() error) Option {
	return func(i *Investigator) {
		i.beforeArchive = hook
	}
}

// WithClock overrides the clock used to name the run directory and panic
// records.
func WithClock(now func() time.Time) Option {
	return func(i *Investigator) {
		i.now = now
	}
}

// Investigator owns the diagnostic state of one process.
type Investigator struct {
	cfg           *config.Config
	layout        procdir.Layout
	manager       *procdir.Manager
	registry      *failures.Registry
	archiveOpts   []archive.Option
	localize      i18n.Localizer
	out           io.Writer
	stderr        io.Writer
	trasher       failures.Trasher
	registryOpts  []failures.Option
	beforeArchive func() error
	now           func() time.Time

	runOnce  sync.Once
	mu       sync.Mutex
	base     *logging.Logger
	logger   *logging.Logger
	runLog   io.Closer
	recorder *diagnostics.PanicRecorder
}

// New validates cfg and wires the components. Nothing touches the disk
// until the run directory is first requested.
func New(cfg *config.Config, opts ...Option) (*Investigator, error) {
	if cfg == nil {
		return nil, core.ErrValidation(core.CodeConfigInvalid, "configuration is required")
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, core.ErrValidation(core.CodeConfigInvalid, "invalid configuration").WithCause(err)
	}

	i := &Investigator{
		cfg:    cfg,
		layout: procdir.NewLayout(cfg.DataDir),
		out:    os.Stdout,
		stderr: os.Stderr,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = logging.NewNop()
	}
	i.base = i.logger
	if i.localize == nil {
		i.localize = i18n.New(cfg.Locale)
	}

	i.archiveOpts = archiveOptions(cfg.Archive)
	registryOpts := []failures.Option{
		failures.WithLogger(i.logger.WithComponent("failures").Logger),
		failures.WithArchiveOptions(i.archiveOpts...),
	}
	if i.trasher != nil {
		registryOpts = append(registryOpts, failures.WithTrasher(i.trasher))
	}
	registryOpts = append(registryOpts, i.registryOpts...)
	i.registry = failures.NewRegistry(i.layout.FailedRoot(), registryOpts...)

	i.manager = procdir.NewManager(i.layout,
		procdir.WithClock(i.now),
		procdir.WithLogger(i.logger.WithComponent("procdir").Logger),
		procdir.WithRetention(i.registry, cfg.Retention.MaxKeep),
	)
	return i, nil
}

func archiveOptions(cfg config.ArchiveConfig) []archive.Option {
	opts := []archive.Option{archive.WithLevels(cfg.Levels)}
	if cfg.Compression == "deflate" {
		opts = append(opts, archive.WithMethod(zip.Deflate))
	}
	return opts
}

// Config returns the configuration in use.
func (i *Investigator) Config() *config.Config {
	return i.cfg
}

// Layout returns the directory layout of the data root.
func (i *Investigator) Layout() procdir.Layout {
	return i.layout
}

// Registry returns the failure registry, e.g. to add sources.
func (i *Investigator) Registry() *failures.Registry {
	return i.registry
}

// Logger returns the logger. Once the run directory exists it also writes
// to the run log.
func (i *Investigator) Logger() *logging.Logger {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.logger
}

// CurrentRunDirectory returns the run directory of this process. The first
// call creates and locks it and triages what earlier processes left behind.
// An error here is fatal: the process must not continue.
func (i *Investigator) CurrentRunDirectory() (string, error) {
	dir, err := i.manager.Current()
	if err != nil {
		return "", err
	}
	i.runOnce.Do(func() { i.startRun(dir) })
	return dir, nil
}

// SetRunDirectory uses dir as the run directory instead of a generated one.
// It must be called before anything else touches the run directory.
func (i *Investigator) SetRunDirectory(dir string) error {
	if err := i.manager.Set(dir); err != nil {
		return err
	}
	i.runOnce.Do(func() { i.startRun(dir) })
	return nil
}

// startRun attaches the run log and writes the optional startup evidence.
func (i *Investigator) startRun(dir string) {
	i.mu.Lock()
	teed, closer, err := i.logger.TeeToRunDir(dir)
	if err != nil {
		i.logger.Warn("cannot open run log", "path", dir, "error", err)
	} else {
		i.logger, i.runLog = teed, closer
	}
	logger := i.logger
	i.mu.Unlock()

	if relocated := i.manager.TriageResult().Relocated(); relocated > 0 {
		logger.Info("moved failed runs", "count", relocated, "path", i.layout.FailedRoot())
	}
	if i.cfg.Diagnostics.Sysinfo {
		// Best effort; the dumper logs its own failure.
		_ = diagnostics.NewSysinfoDumper(dir, logger.WithComponent("sysinfo").Logger).Dump()
	}
}

// Cleanup ends a successful run: the panic recorder is uninstalled, the run
// directory is deleted and old failed runs are pruned.
func (i *Investigator) Cleanup() error {
	i.shutdown()
	if err := i.manager.Remove(); err != nil {
		return err
	}
	i.prune()
	return nil
}

// Fail ends a run that failed in a way the application noticed: reason is
// written to the exit report and the directory is kept for the next
// process to pick up.
func (i *Investigator) Fail(reason string) error {
	werr := i.manager.WriteExitReport(reason)
	i.shutdown()
	return errors.Join(werr, i.manager.Close())
}

func (i *Investigator) shutdown() {
	i.mu.Lock()
	recorder, runLog := i.recorder, i.runLog
	i.recorder, i.runLog = nil, nil
	i.logger = i.base
	i.mu.Unlock()

	if recorder != nil {
		recorder.Uninstall()
	}
	if runLog != nil {
		if err := runLog.Close(); err != nil {
			i.base.Warn("cannot close run log", "error", err)
		}
	}
}

func (i *Investigator) prune() {
	removed, err := i.registry.CleanupDefault(i.cfg.Retention.MaxKeep)
	if err != nil {
		i.Logger().Warn("failed runs cleanup failed", "error", err)
		return
	}
	if len(removed) > 0 {
		i.Logger().Debug("removed old failed runs", "count", len(removed))
	}
}

// ArchiveFailed writes every failed run into dest and deletes them. It
// prints whether a report was written. An empty registry is not an error:
// nothing is created and the outcome says so.
func (i *Investigator) ArchiveFailed(dest string) (failures.Outcome, error) {
	outcome, err := i.registry.ArchiveAndRemove(dest)
	switch {
	case outcome.Archived:
		i.println(i.localize(i18n.KeyBugReportWrittenTo, dest))
		if n := len(outcome.Leftover); n > 0 {
			i.println(i.localize(i18n.KeyReportLeftover, n))
		}
	case err == nil:
		i.println(i.localize(i18n.KeyNoBugReports))
	}
	return outcome, err
}

// TrashFailed moves every failed run to the trash.
func (i *Investigator) TrashFailed() error {
	empty, err := i.registry.IsEmpty()
	if err != nil {
		return err
	}
	if empty {
		i.println(i.localize(i18n.KeyNoBugReports))
		return nil
	}
	if err := i.registry.MoveToTrash(); err != nil {
		return err
	}
	i.println(i.localize(i18n.KeyFailedRunsTrashed))
	return nil
}

// ArchiveEverything writes the current run directory and every failed run
// into dest without deleting anything. The before-archive hook runs first;
// its failure is logged and does not stop the archive.
func (i *Investigator) ArchiveEverything(dest string) error {
	current, err := i.CurrentRunDirectory()
	if err != nil {
		return err
	}
	if i.beforeArchive != nil {
		if err := i.beforeArchive(); err != nil {
			i.Logger().Warn("before-archive hook failed", "error", err)
		}
	}

	failed, err := i.registry.Entries()
	if err != nil {
		return err
	}
	sources := append([]string{current}, failed...)

	opts := append([]archive.Option{archive.WithLogger(i.Logger().WithComponent("archive").Logger)}, i.archiveOpts...)
	if err := archive.Build(sources, dest, opts...); err != nil {
		return err
	}
	i.println(i.localize(i18n.KeyBugReportWrittenTo, dest))
	return nil
}

// IsFailureRegistryEmpty reports whether there are no failed runs.
func (i *Investigator) IsFailureRegistryEmpty() (bool, error) {
	return i.registry.IsEmpty()
}

// HasForensicEvidence reports whether a failed run holds a panic record.
func (i *Investigator) HasForensicEvidence() (bool, error) {
	return i.registry.HasForensicEvidence()
}

// InstallPanicRecorder creates the panic recorder for the run directory and,
// unless panics are disabled in the configuration, routes fatal runtime
// output into it. The run directory is created if needed. Repeated calls
// return the same recorder.
func (i *Investigator) InstallPanicRecorder() (*diagnostics.PanicRecorder, error) {
	dir, err := i.CurrentRunDirectory()
	if err != nil {
		return nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.recorder != nil {
		return i.recorder, nil
	}
	rec := diagnostics.NewPanicRecorder(dir,
		diagnostics.WithRecorderLogger(i.logger.WithComponent("panic").Logger),
		diagnostics.WithStderr(i.stderr),
		diagnostics.WithCrashOutput(i.cfg.Panic.CrashOutput),
		diagnostics.WithRecorderClock(i.now),
	)
	if i.cfg.Panic.Enabled {
		if err := rec.Install(); err != nil {
			return nil, err
		}
	}
	i.recorder = rec
	return rec, nil
}

// DumpSysinfo appends a description of the host to the run directory.
func (i *Investigator) DumpSysinfo() (string, error) {
	dir, err := i.CurrentRunDirectory()
	if err != nil {
		return "", err
	}
	d := diagnostics.NewSysinfoDumper(dir, i.Logger().WithComponent("sysinfo").Logger)
	return d.Path(), d.Dump()
}

// RunCaptured runs cmd with its output stored in the run directory.
func (i *Investigator) RunCaptured(cmd *exec.Cmd) error {
	dir, err := i.CurrentRunDirectory()
	if err != nil {
		return err
	}
	i.mu.Lock()
	recorder := i.recorder
	i.mu.Unlock()
	return diagnostics.NewCommandCapture(dir, i.Logger().WithComponent("exec").Logger, recorder).Run(cmd)
}

func (i *Investigator) println(msg string) {
	if i.out == nil {
		return
	}
	_, _ = fmt.Fprintln(i.out, msg)
}

// Status is a snapshot of the data root.
type Status struct {
	DataDir          string   `json:"data_dir" yaml:"data_dir"`
	RunDirectory     string   `json:"run_directory" yaml:"run_directory"`
	Relocated        int      `json:"relocated" yaml:"relocated"`
	Sources          []string `json:"sources" yaml:"sources"`
	FailedRuns       []string `json:"failed_runs" yaml:"failed_runs"`
	ForensicEvidence bool     `json:"forensic_evidence" yaml:"forensic_evidence"`
	MaxKeep          int      `json:"max_keep" yaml:"max_keep"`
}

// Status triages the data root and describes the failed runs found.
func (i *Investigator) Status() (Status, error) {
	dir, err := i.CurrentRunDirectory()
	if err != nil {
		return Status{}, err
	}
	failed, err := i.registry.Entries()
	if err != nil {
		return Status{}, err
	}
	evidence, err := i.registry.HasForensicEvidence()
	if err != nil {
		return Status{}, err
	}
	return Status{
		DataDir:          i.layout.DataDir,
		RunDirectory:     dir,
		Relocated:        i.manager.TriageResult().Relocated(),
		Sources:          i.registry.Sources(),
		FailedRuns:       failed,
		ForensicEvidence: evidence,
		MaxKeep:          i.cfg.Retention.MaxKeep,
	}, nil
}
