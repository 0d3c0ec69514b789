//go:build darwin

package failures

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// DefaultTrasher returns the user's ~/.Trash.
func DefaultTrasher() Trasher {
	return &DirTrash{FilesDir: filepath.Join(xdg.Home, ".Trash"), Now: time.Now}
}
