package testutil

import (
	"io"
	"testing"

	"github.com/hugo-lorenzo-mato/investigator/internal/archive"
)

// ReadZip returns the entries of a report archive: file contents by name and
// directory entries with an empty value.
func ReadZip(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := archive.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer zr.Close()

	out := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			out[f.Name] = ""
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("opening %s in %s: %v", f.Name, path, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatalf("reading %s in %s: %v", f.Name, path, err)
		}
		out[f.Name] = string(data)
	}
	return out
}
