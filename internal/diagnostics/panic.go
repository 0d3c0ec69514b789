package diagnostics

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/investigator/internal/core"
)

// PanicRecord contains everything captured for one panic.
type PanicRecord struct {
	Timestamp time.Time `json:"timestamp"`
	ProcessID int       `json:"process_id"`
	GoVersion string    `json:"go_version"`
	GOOS      string    `json:"goos"`
	GOARCH    string    `json:"goarch"`

	Goroutine     string `json:"goroutine"`
	PanicValue    string `json:"panic_value"`
	PanicLocation string `json:"panic_location,omitempty"`
	StackTrace    string `json:"stack_trace,omitempty"`

	NumGoroutine int    `json:"num_goroutine"`
	HeapAlloc    uint64 `json:"heap_alloc"`
}

// Format renders the record as the human-readable dump written to disk.
func (r *PanicRecord) Format() string {
	var b strings.Builder
	location := r.PanicLocation
	if location == "" {
		location = "unknown location"
	}
	fmt.Fprintf(&b, "%s panicked at '%s', %s\n", r.Goroutine, r.PanicValue, location)
	fmt.Fprintf(&b, "time:       %s\n", r.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "pid:        %d\n", r.ProcessID)
	fmt.Fprintf(&b, "go:         %s %s/%s\n", r.GoVersion, r.GOOS, r.GOARCH)
	fmt.Fprintf(&b, "goroutines: %d\n", r.NumGoroutine)
	fmt.Fprintf(&b, "heap:       %d bytes\n", r.HeapAlloc)
	if r.StackTrace != "" {
		b.WriteString("stack backtrace:\n")
		b.WriteString(r.StackTrace)
		if !strings.HasSuffix(r.StackTrace, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// RecorderOption configures a PanicRecorder.
type RecorderOption func(*PanicRecorder)

// WithRecorderLogger sets the logger.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(p *PanicRecorder) {
		p.logger = logger
	}
}

// WithStderr replaces the error stream the dump is echoed to.
func WithStderr(w io.Writer) RecorderOption {
	return func(p *PanicRecorder) {
		p.stderr = w
	}
}

// WithCrashOutput controls whether Install routes the runtime's fatal error
// output into the run directory.
func WithCrashOutput(enabled bool) RecorderOption {
	return func(p *PanicRecorder) {
		p.crashOutput = enabled
	}
}

// WithRecorderClock overrides the time source used to stamp records.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(p *PanicRecorder) {
		p.now = now
	}
}

// PanicRecorder persists panics as {RFC3339}.panic files inside a run
// directory. The directory is fixed when the recorder is created.
//
// Go has no process-wide panic hook. Panics recovered through Recover or
// RecoverAndReturn are recorded directly; unrecovered panics and fatal
// runtime errors reach the crash output file set by Install, which the next
// start turns into a panic record.
type PanicRecorder struct {
	dir         string
	logger      *slog.Logger
	stderr      io.Writer
	crashOutput bool
	now         func() time.Time

	mu        sync.Mutex
	installed bool
	crashPath string
}

// NewPanicRecorder creates a recorder writing into dir.
func NewPanicRecorder(dir string, opts ...RecorderOption) *PanicRecorder {
	p := &PanicRecorder{
		dir:         dir,
		stderr:      os.Stderr,
		crashOutput: true,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dir returns the run directory records are written to.
func (p *PanicRecorder) Dir() string {
	return p.dir
}

// Install routes runtime crash output into the run directory. Calling it
// again is a no-op.
func (p *PanicRecorder) Install() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.installed {
		return nil
	}
	if p.crashOutput {
		path := filepath.Join(p.dir, core.CrashOutputFileName)
		// #nosec G304 -- path is inside the run directory
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return core.ErrIO(core.CodePanicWriteFailed, "open crash output", path, err)
		}
		// SetCrashOutput duplicates the descriptor.
		defer f.Close()
		if err := debug.SetCrashOutput(f, debug.CrashOptions{}); err != nil {
			return core.ErrIO(core.CodePanicWriteFailed, "set crash output", path, err)
		}
		p.crashPath = path
	}
	p.installed = true
	return nil
}

// Uninstall stops routing crash output into the run directory and drops the
// crash output file if nothing was written to it.
func (p *PanicRecorder) Uninstall() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.installed {
		return
	}
	if p.crashPath != "" {
		_ = debug.SetCrashOutput(nil, debug.CrashOptions{})
		if info, err := os.Stat(p.crashPath); err == nil && info.Size() == 0 {
			_ = os.Remove(p.crashPath)
		}
		p.crashPath = ""
	}
	p.installed = false
}

// RecordedPanic is what Recover re-panics with once the panic is on disk.
// Recorders further up the same stack pass it on without recording it again.
// Value is what was originally passed to panic.
type RecordedPanic struct {
	Value any
}

func (r *RecordedPanic) Error() string {
	return fmt.Sprint(r.Value)
}

// Unwrap returns Value when it is an error.
func (r *RecordedPanic) Unwrap() error {
	err, _ := r.Value.(error)
	return err
}

// Recover records a panic and re-panics with a *RecordedPanic wrapping it.
// Usage: defer recorder.Recover()
func (p *PanicRecorder) Recover() {
	r := recover()
	if r == nil {
		return
	}
	if recorded, ok := r.(*RecordedPanic); ok {
		panic(recorded)
	}
	_, _ = p.Record(r, debug.Stack())
	panic(&RecordedPanic{Value: r})
}

// RecoverAndReturn records a panic and turns it into an error.
// Usage: defer recorder.RecoverAndReturn(&err)
//
//nolint:gocritic // ptrToRefParam: errPtr must be a pointer to modify the caller's error variable
func (p *PanicRecorder) RecoverAndReturn(errPtr *error) {
	r := recover()
	if r == nil {
		return
	}
	if recorded, ok := r.(*RecordedPanic); ok {
		*errPtr = fmt.Errorf("panic: %w", recorded)
		return
	}
	path, _ := p.Record(r, debug.Stack())
	*errPtr = fmt.Errorf("panic: %v (record: %s)", r, path)
}

// Record writes the dump for value to the error stream and to a panic file
// in the run directory. Every call is one panic event; a *RecordedPanic is
// already on disk and is skipped. Failures are reported on the error stream
// only; Record never panics.
func (p *PanicRecorder) Record(value any, stack []byte) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recording panic: %v", r)
			p.echo(fmt.Sprintf("cannot record panic: %v\n", r))
		}
	}()

	if _, ok := value.(*RecordedPanic); ok {
		return "", nil
	}
	rec := p.build(value, stack)

	p.mu.Lock()
	defer p.mu.Unlock()

	text := rec.Format()
	p.echo(text)

	path = filepath.Join(p.dir, core.PanicFileName(rec.Timestamp))
	if err := appendFile(path, []byte(text)); err != nil {
		werr := core.ErrIO(core.CodePanicWriteFailed, "write panic record", path, err)
		p.echo(fmt.Sprintf("%v\n", werr))
		return "", werr
	}
	if p.logger != nil {
		p.logger.Error("panic recorded", "path", path, "panic", rec.PanicValue, "location", rec.PanicLocation)
	}
	return path, nil
}

func (p *PanicRecorder) echo(s string) {
	if p.stderr != nil {
		_, _ = io.WriteString(p.stderr, s)
	}
}

func (p *PanicRecorder) build(value any, stack []byte) *PanicRecord {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return &PanicRecord{
		Timestamp:     p.now().UTC(),
		ProcessID:     os.Getpid(),
		GoVersion:     runtime.Version(),
		GOOS:          runtime.GOOS,
		GOARCH:        runtime.GOARCH,
		Goroutine:     goroutineName(stack),
		PanicValue:    fmt.Sprintf("%v", value),
		PanicLocation: panicLocation(stack),
		StackTrace:    string(stack),
		NumGoroutine:  runtime.NumGoroutine(),
		HeapAlloc:     ms.HeapAlloc,
	}
}

// appendFile keeps earlier records when two panics land in the same second.
func appendFile(path string, data []byte) error {
	// #nosec G304 -- path is inside the run directory
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// goroutineName extracts "goroutine N" from the stack header.
func goroutineName(stack []byte) string {
	line, _, _ := bytes.Cut(stack, []byte("\n"))
	if name, _, ok := bytes.Cut(line, []byte(" [")); ok && bytes.HasPrefix(name, []byte("goroutine ")) {
		return string(name)
	}
	return "goroutine ?"
}

// panicLocation returns file:line of the frame that called panic.
func panicLocation(stack []byte) string {
	lines := strings.Split(string(stack), "\n")
	for i, line := range lines {
		if !strings.HasPrefix(line, "panic(") {
			continue
		}
		// panic( / its file / caller / caller's file
		if i+3 >= len(lines) {
			return ""
		}
		loc := strings.TrimSpace(lines[i+3])
		if idx := strings.LastIndex(loc, " +0x"); idx > 0 {
			loc = loc[:idx]
		}
		return loc
	}
	return ""
}
