// Package fsutil holds the filesystem helpers shared by the run directory,
// triage and failure registry code. Error classification happens here so the
// callers switch on an explicit Kind instead of inspecting error types.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"
)

// Kind classifies an I/O error at the filesystem boundary.
type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindExists
	KindOther
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "not_found"
	case KindExists:
		return "exists"
	default:
		return "other"
	}
}

// Classify maps err onto a Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, fs.ErrExist):
		return KindExists
	default:
		return KindOther
	}
}

// ReadFileScoped reads a file by opening a root at the file's directory.
// This scopes access to the intended directory and avoids path traversal.
func ReadFileScoped(path string) ([]byte, error) {
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid file path: %q", path)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	file, err := root.Open(base)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

// WriteFileAtomic replaces path with data so readers never see a torn file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}

// WriteFileExclusive creates path with data and fails with a KindExists error
// when the file is already present. Existing content is never touched.
func WriteFileExclusive(path string, data []byte, perm os.FileMode) error {
	// #nosec G304 -- path is built from a run directory under the data root
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ListChildren returns the absolute paths of the immediate children of dir,
// sorted by name. A missing dir has no children.
func ListChildren(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if Classify(err) == KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	children := make([]string, 0, len(entries))
	for _, e := range entries {
		children = append(children, filepath.Join(dir, e.Name()))
	}
	sort.Strings(children)
	return children, nil
}

// IsDirEmpty reports whether dir has no entries. A missing dir is empty.
func IsDirEmpty(dir string) (bool, error) {
	f, err := os.Open(dir) // #nosec G304 -- registry directories are caller supplied
	if err != nil {
		if Classify(err) == KindNotFound {
			return true, nil
		}
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

// HasFileWithExt reports whether dir directly contains a regular file whose
// name ends in ext.
func HasFileWithExt(dir, ext string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if Classify(err) == KindNotFound {
			return false, nil
		}
		return false, err
	}
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ext) {
			return true, nil
		}
	}
	return false, nil
}

// RemoveEntry deletes a file or a directory tree.
func RemoveEntry(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}
