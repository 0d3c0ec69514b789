//go:build windows

package failures

// DefaultTrasher returns a backend that always fails; the recycle bin needs
// the shell API.
func DefaultTrasher() Trasher {
	return unsupportedTrash{}
}
