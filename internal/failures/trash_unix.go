//go:build !darwin && !windows

package failures

import "github.com/adrg/xdg"

// DefaultTrasher returns the freedesktop.org home trash.
func DefaultTrasher() Trasher {
	return NewFreedesktopTrash(xdg.DataHome)
}
