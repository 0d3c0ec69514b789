// Package failures keeps the set of directories that hold the leftovers of
// failed runs and turns them into reports.
package failures

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/investigator/internal/archive"
	"github.com/hugo-lorenzo-mato/investigator/internal/core"
	"github.com/hugo-lorenzo-mato/investigator/internal/fsutil"
)

// Outcome describes what ArchiveAndRemove did.
type Outcome struct {
	// Archived is false when there was nothing to report; no file was written.
	Archived bool
	// Path is the archive written, empty when nothing was archived.
	Path string
	// Entries counts the top-level entries put into the archive.
	Entries int
	// Leftover lists entries that were archived but could not be removed.
	Leftover []string
}

// NothingToReport reports whether the registry was empty.
func (o Outcome) NothingToReport() bool {
	return !o.Archived
}

// Option configures a Registry.
type Option func(*Registry)

// WithTrasher sets the trash backend used by MoveToTrash.
func WithTrasher(t Trasher) Option {
	return func(r *Registry) {
		r.trasher = t
	}
}

// WithArchiveOptions forwards options to archive.Build.
func WithArchiveOptions(opts ...archive.Option) Option {
	return func(r *Registry) {
		r.archiveOpts = append(r.archiveOpts, opts...)
	}
}

// WithRemover replaces the function that deletes failed runs.
func WithRemover(remove func(path string) error) Option {
	return func(r *Registry) {
		r.remove = remove
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// Registry is the set of failure directories of a data root. The default
// directory is always a source; more can be added with AddSource. Every
// operation reads the source list under a shared lock.
type Registry struct {
	mu         sync.RWMutex
	defaultDir string
	extra      []string

	trasher     Trasher
	remove      func(path string) error
	archiveOpts []archive.Option
	logger      *slog.Logger
}

// NewRegistry creates a registry whose default source is defaultDir.
func NewRegistry(defaultDir string, opts ...Option) *Registry {
	r := &Registry{defaultDir: defaultDir}
	for _, opt := range opts {
		opt(r)
	}
	if r.trasher == nil {
		r.trasher = DefaultTrasher()
	}
	if r.remove == nil {
		r.remove = fsutil.RemoveEntry
	}
	return r
}

// DefaultDir returns the directory triage relocates failed runs into.
func (r *Registry) DefaultDir() string {
	return r.defaultDir
}

// AddSource registers another directory whose children count as failures.
// Adding the same path twice is a no-op.
func (r *Registry) AddSource(path string) {
	path = filepath.Clean(path)

	r.mu.Lock()
	defer r.mu.Unlock()
	if path == filepath.Clean(r.defaultDir) {
		return
	}
	for _, p := range r.extra {
		if p == path {
			return
		}
	}
	r.extra = append(r.extra, path)
}

// Sources returns the default directory followed by the added sources.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.extra)+1)
	out = append(out, r.defaultDir)
	return append(out, r.extra...)
}

// IsEmpty reports whether no source holds any entry. Missing sources are
// empty.
func (r *Registry) IsEmpty() (bool, error) {
	for _, src := range r.Sources() {
		empty, err := fsutil.IsDirEmpty(src)
		if err != nil {
			return false, core.ErrIO(core.CodeRegistryReadFailed, "inspect failure directory", src, err)
		}
		if !empty {
			return false, nil
		}
	}
	return true, nil
}

// HasForensicEvidence reports whether any failed run in any source contains a
// panic record. Sources are scanned concurrently.
func (r *Registry) HasForensicEvidence() (bool, error) {
	sources := r.Sources()
	found := make([]bool, len(sources))

	g, ctx := errgroup.WithContext(context.Background())
	for i, src := range sources {
		g.Go(func() error {
			children, err := fsutil.ListChildren(src)
			if err != nil {
				return core.ErrIO(core.CodeRegistryReadFailed, "list failure directory", src, err)
			}
			for _, child := range children {
				if ctx.Err() != nil {
					return nil
				}
				ok, err := hasPanicRecord(child)
				if err != nil {
					return core.ErrIO(core.CodeRegistryReadFailed, "inspect failed run", child, err)
				}
				if ok {
					found[i] = true
					return nil
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	for _, f := range found {
		if f {
			return true, nil
		}
	}
	return false, nil
}

// hasPanicRecord reports whether path is a directory with a panic file in it.
func hasPanicRecord(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if fsutil.Classify(err) == fsutil.KindNotFound {
			return false, nil
		}
		return false, err
	}
	if !info.IsDir() {
		return false, nil
	}
	return fsutil.HasFileWithExt(path, core.PanicFileExt)
}

// Entries lists the children of every source.
func (r *Registry) Entries() ([]string, error) {
	var all []string
	for _, src := range r.Sources() {
		children, err := fsutil.ListChildren(src)
		if err != nil {
			return nil, core.ErrIO(core.CodeRegistryReadFailed, "list failure directory", src, err)
		}
		all = append(all, children...)
	}
	return all, nil
}

// ArchiveAndRemove archives every failed run into dest and then deletes
// them. With nothing to report no file is created. An entry that cannot be
// deleted is returned in Outcome.Leftover together with a REMOVE_FAILED
// error; the archive is kept.
func (r *Registry) ArchiveAndRemove(dest string) (Outcome, error) {
	entries, err := r.Entries()
	if err != nil {
		return Outcome{}, err
	}
	if len(entries) == 0 {
		return Outcome{}, nil
	}

	opts := append([]archive.Option{archive.WithLogger(r.logger)}, r.archiveOpts...)
	if err := archive.Build(entries, dest, opts...); err != nil {
		return Outcome{}, err
	}
	out := Outcome{Archived: true, Path: dest, Entries: len(entries)}
	if r.logger != nil {
		r.logger.Info("failure report written", "path", dest, "entries", len(entries))
	}

	var firstErr error
	for _, entry := range entries {
		if err := r.remove(entry); err != nil && fsutil.Classify(err) != fsutil.KindNotFound {
			out.Leftover = append(out.Leftover, entry)
			if firstErr == nil {
				firstErr = core.ErrIO(core.CodeRemoveFailed, "remove archived run", entry, err)
			}
		}
	}
	return out, firstErr
}

// MoveToTrash hands every failed run to the trash backend. The first
// failure aborts the batch.
func (r *Registry) MoveToTrash() error {
	entries, err := r.Entries()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := r.trasher.Trash(entry); err != nil {
			return core.ErrIO(core.CodeTrashFailed, "move failed run to trash", entry, err)
		}
		if r.logger != nil {
			r.logger.Info("moved failed run to trash", "path", entry)
		}
	}
	return nil
}

// CleanupDefault deletes the oldest failed runs of the default directory
// until at most maxKeep remain. Runs holding a panic record are never
// deleted and do not count against maxKeep. Names sort chronologically, so
// the lexicographically smallest go first.
func (r *Registry) CleanupDefault(maxKeep int) ([]string, error) {
	if maxKeep < 0 {
		maxKeep = 0
	}
	children, err := fsutil.ListChildren(r.defaultDir)
	if err != nil {
		return nil, core.ErrIO(core.CodeRemoveFailed, "list failure directory", r.defaultDir, err)
	}

	eligible := make([]string, 0, len(children))
	for _, child := range children {
		evidence, err := hasPanicRecord(child)
		if err != nil {
			return nil, core.ErrIO(core.CodeRemoveFailed, "inspect failed run", child, err)
		}
		if !evidence {
			eligible = append(eligible, child)
		}
	}
	if len(eligible) <= maxKeep {
		return nil, nil
	}
	sort.Strings(eligible)

	var removed []string
	for _, victim := range eligible[:len(eligible)-maxKeep] {
		if err := r.remove(victim); err != nil && fsutil.Classify(err) != fsutil.KindNotFound {
			return removed, core.ErrIO(core.CodeRemoveFailed, "remove old failed run", victim, err)
		}
		removed = append(removed, victim)
		if r.logger != nil {
			r.logger.Debug("removed old failed run", "path", victim)
		}
	}
	return removed, nil
}
