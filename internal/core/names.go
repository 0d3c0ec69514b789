package core

import (
	"runtime"
	"strings"
	"time"
)

// RunDirName returns the run directory name for a start time.
func RunDirName(t time.Time) string {
	return t.Format(RunDirTimeFormat)
}

// PanicFileName returns the name of a panic record written at t. The stamp is
// RFC 3339; Windows does not allow ':' in file names, so it becomes '-' there.
func PanicFileName(t time.Time) string {
	stamp := t.Format(time.RFC3339)
	if runtime.GOOS == "windows" {
		stamp = strings.ReplaceAll(stamp, ":", "-")
	}
	return stamp + PanicFileExt
}

// IsPanicFileName reports whether name carries the panic record extension.
func IsPanicFileName(name string) bool {
	return strings.HasSuffix(name, PanicFileExt)
}
