package failures

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hugo-lorenzo-mato/investigator/internal/fsutil"
)

// Trasher moves a file or directory into a recoverable trash location.
type Trasher interface {
	Trash(path string) error
}

// ErrTrashUnsupported is returned by the trash backend of platforms without
// a known trash location.
var ErrTrashUnsupported = errors.New("trash is not supported on this platform")

const trashInfoExt = ".trashinfo"

// maxTrashNames bounds the numeric suffixes tried for a colliding name.
const maxTrashNames = 1000

// DirTrash moves entries into FilesDir. When InfoDir is set a freedesktop.org
// .trashinfo record is written for each entry so desktop trash tools can
// restore it.
type DirTrash struct {
	FilesDir string
	InfoDir  string
	Now      func() time.Time
}

// NewFreedesktopTrash returns the trash of the given XDG data home.
func NewFreedesktopTrash(dataHome string) *DirTrash {
	root := filepath.Join(dataHome, "Trash")
	return &DirTrash{
		FilesDir: filepath.Join(root, "files"),
		InfoDir:  filepath.Join(root, "info"),
		Now:      time.Now,
	}
}

// Trash moves path into the trash. The rename must stay on one filesystem.
func (t *DirTrash) Trash(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(abs); err != nil {
		return err
	}
	if err := os.MkdirAll(t.FilesDir, 0o700); err != nil {
		return fmt.Errorf("creating trash: %w", err)
	}
	if t.InfoDir != "" {
		if err := os.MkdirAll(t.InfoDir, 0o700); err != nil {
			return fmt.Errorf("creating trash info: %w", err)
		}
	}

	name, info, err := t.reserve(abs)
	if err != nil {
		return err
	}
	if err := os.Rename(abs, filepath.Join(t.FilesDir, name)); err != nil {
		if info != "" {
			_ = os.Remove(info)
		}
		return fmt.Errorf("moving to trash: %w", err)
	}
	return nil
}

// reserve picks a free name in the trash. With an info directory the name
// is claimed by creating its .trashinfo file exclusively.
func (t *DirTrash) reserve(abs string) (name, info string, err error) {
	base := filepath.Base(abs)
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	record := trashInfo(abs, now())

	for i := 1; i <= maxTrashNames; i++ {
		name = base
		if i > 1 {
			name = base + "." + strconv.Itoa(i)
		}
		if _, err := os.Lstat(filepath.Join(t.FilesDir, name)); err == nil {
			continue
		}
		if t.InfoDir == "" {
			return name, "", nil
		}
		info = filepath.Join(t.InfoDir, name+trashInfoExt)
		err := fsutil.WriteFileExclusive(info, []byte(record), 0o600)
		switch fsutil.Classify(err) {
		case fsutil.KindNone:
			return name, info, nil
		case fsutil.KindExists:
			continue
		default:
			return "", "", fmt.Errorf("writing trash info: %w", err)
		}
	}
	return "", "", fmt.Errorf("no free trash name for %s", base)
}

func trashInfo(abs string, deleted time.Time) string {
	u := url.URL{Path: filepath.ToSlash(abs)}
	return fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		u.EscapedPath(), deleted.Format("2006-01-02T15:04:05"))
}

type unsupportedTrash struct{}

func (unsupportedTrash) Trash(string) error { return ErrTrashUnsupported }
