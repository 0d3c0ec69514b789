// Package archive bundles run directories into a single zip container.
//
// Entries are compressed with bzip2 (zip method 12) unless configured
// otherwise. Names are slash-separated and relative to an ancestor of each
// source directory, so a failed run archives as proc_failed/<run>/... and
// keeps the bucket it came from.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zip"

	"github.com/hugo-lorenzo-mato/investigator/internal/core"
)

// MethodBzip2 is the zip compression method id for bzip2.
const MethodBzip2 uint16 = 12

// DefaultLevels is how many directories above a source the entry names start.
const DefaultLevels = 2

const copyBufferSize = 32 * 1024

// Option configures Build.
type Option func(*builder)

// WithLevels sets the ancestor depth used to relativize entry names. Values
// below 1 are treated as 1 (the source's parent).
func WithLevels(levels int) Option {
	return func(b *builder) {
		if levels < 1 {
			levels = 1
		}
		b.levels = levels
	}
}

// WithMethod selects the compression method (MethodBzip2 or zip.Deflate).
func WithMethod(method uint16) Option {
	return func(b *builder) {
		b.method = method
	}
}

// WithLogger logs each added entry at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(b *builder) {
		b.logger = logger
	}
}

type builder struct {
	levels int
	method uint16
	logger *slog.Logger
	zw     *zip.Writer
	buf    []byte
}

// Build writes every file and directory below sources into a new zip file at
// dest. A failed build removes the partial file.
func Build(sources []string, dest string, opts ...Option) (err error) {
	if len(sources) == 0 {
		return core.ErrValidation(core.CodeArchiveEmptySources, "cannot archive empty list of directories").WithPath(dest)
	}

	b := &builder{
		levels: DefaultLevels,
		method: MethodBzip2,
		buf:    make([]byte, copyBufferSize),
	}
	for _, opt := range opts {
		opt(b)
	}

	// #nosec G304 -- destination is chosen by the caller
	out, err := os.Create(dest)
	if err != nil {
		return core.ErrIO(core.CodeArchiveFailed, "create archive", dest, err)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(dest)
		}
	}()

	b.zw = zip.NewWriter(out)
	b.zw.RegisterCompressor(MethodBzip2, newBzip2Writer)

	for _, src := range sources {
		if err := b.addTree(src); err != nil {
			return err
		}
	}

	if err := b.zw.Close(); err != nil {
		return core.ErrIO(core.CodeArchiveFailed, "finish archive", dest, err)
	}
	if err := out.Close(); err != nil {
		return core.ErrIO(core.CodeArchiveFailed, "close archive", dest, err)
	}
	return nil
}

func newBzip2Writer(w io.Writer) (io.WriteCloser, error) {
	return bzip2.NewWriter(w, nil)
}

// ancestor returns the directory levels above path.
func ancestor(path string, levels int) string {
	base := filepath.Clean(path)
	for i := 0; i < levels; i++ {
		parent := filepath.Dir(base)
		if parent == base {
			break
		}
		base = parent
	}
	return base
}

func (b *builder) addTree(src string) error {
	base := ancestor(src, b.levels)

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable entries are skipped rather than failing the report.
			if b.logger != nil {
				b.logger.Warn("skipping unreadable archive entry", "path", path, "error", walkErr)
			}
			if d != nil && d.IsDir() && path != src {
				return fs.SkipDir
			}
			if path == src {
				return core.ErrIO(core.CodeArchiveFailed, "read directory", src, walkErr)
			}
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return core.ErrIO(core.CodeArchiveFailed, "relativize path", path, err)
		}
		name := filepath.ToSlash(rel)
		if name == "." {
			name = ""
		}

		switch {
		case d.IsDir():
			// Only if not root; some unzip tools choke on an empty name.
			if name == "" {
				return nil
			}
			return b.addDir(path, name, d)
		case d.Type().IsRegular():
			return b.addFile(path, name, d)
		default:
			return nil
		}
	})
}

func (b *builder) addDir(path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return core.ErrIO(core.CodeArchiveFailed, "stat directory", path, err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return core.ErrIO(core.CodeArchiveFailed, "add directory to archive", path, err)
	}
	header.Name = strings.TrimSuffix(name, "/") + "/"
	header.Method = zip.Store

	if b.logger != nil {
		b.logger.Debug("adding directory", "path", path, "name", header.Name)
	}
	if _, err := b.zw.CreateHeader(header); err != nil {
		return core.ErrIO(core.CodeArchiveFailed, "add directory to archive", name, err)
	}
	return nil
}

func (b *builder) addFile(path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return core.ErrIO(core.CodeArchiveFailed, "stat file", path, err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return core.ErrIO(core.CodeArchiveFailed, "add file to archive", path, err)
	}
	header.Name = name
	header.Method = b.method

	if b.logger != nil {
		b.logger.Debug("adding file", "path", path, "name", name)
	}
	w, err := b.zw.CreateHeader(header)
	if err != nil {
		return core.ErrIO(core.CodeArchiveFailed, "add file to archive", name, err)
	}

	f, err := os.Open(path) // #nosec G304 -- path comes from walking a run directory
	if err != nil {
		return core.ErrIO(core.CodeArchiveFailed, "open file for archive", path, err)
	}
	defer f.Close()

	if _, err := io.CopyBuffer(w, f, b.buf); err != nil {
		return core.ErrIO(core.CodeArchiveFailed, "write file to archive", path, err)
	}
	return nil
}

// Entry describes one member of an archive.
type Entry struct {
	Name  string
	Dir   bool
	Size  uint64
	Bytes uint64
}

// Open opens an archive for reading with bzip2 support.
func Open(path string) (*zip.ReadCloser, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	rc.RegisterDecompressor(MethodBzip2, newBzip2Reader)
	return rc, nil
}

func newBzip2Reader(r io.Reader) io.ReadCloser {
	br, err := bzip2.NewReader(r, nil)
	if err != nil {
		return errReadCloser{err: err}
	}
	return br
}

type errReadCloser struct{ err error }

func (e errReadCloser) Read([]byte) (int, error) { return 0, e.err }
func (e errReadCloser) Close() error             { return nil }

// List returns the entries of the archive at path in stored order.
func List(path string) ([]Entry, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	entries := make([]Entry, 0, len(rc.File))
	for _, f := range rc.File {
		entries = append(entries, Entry{
			Name:  f.Name,
			Dir:   strings.HasSuffix(f.Name, "/"),
			Size:  f.UncompressedSize64,
			Bytes: f.CompressedSize64,
		})
	}
	return entries, nil
}

// Extract unpacks the archive at path into dir. Entry names escaping dir are
// rejected.
func Extract(path, dir string) error {
	rc, err := Open(path)
	if err != nil {
		return err
	}
	defer rc.Close()

	root, err := os.OpenRoot(dir)
	if err != nil {
		return fmt.Errorf("opening extraction root: %w", err)
	}
	defer root.Close()

	for _, f := range rc.File {
		name := filepath.FromSlash(strings.TrimSuffix(f.Name, "/"))
		if !filepath.IsLocal(name) {
			return fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}
		if strings.HasSuffix(f.Name, "/") {
			if err := mkdirAllIn(root, name); err != nil {
				return err
			}
			continue
		}
		if err := mkdirAllIn(root, filepath.Dir(name)); err != nil {
			return err
		}
		if err := extractFile(root, name, f); err != nil {
			return err
		}
	}
	return nil
}

func mkdirAllIn(root *os.Root, name string) error {
	if name == "." || name == "" {
		return nil
	}
	if err := mkdirAllIn(root, filepath.Dir(name)); err != nil {
		return err
	}
	if err := root.Mkdir(name, 0o750); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	return nil
}

func extractFile(root *os.Root, name string, f *zip.File) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening entry %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil { // #nosec G110 -- archives are produced locally
		_ = dst.Close()
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	return dst.Close()
}

// ReportFileName is the default name of a failure report archive.
func ReportFileName(binary string) string {
	return fmt.Sprintf("%s_problem_report.%s", binary, core.ArchiveSuffix)
}

// FullReportFileName is the default name of a full diagnostic archive.
func FullReportFileName(binary string) string {
	return fmt.Sprintf("%s_report.%s", binary, core.ArchiveSuffix)
}
