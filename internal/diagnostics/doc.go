// Package diagnostics collects evidence for bug reports inside a run
// directory.
//
//   - PanicRecorder: writes {RFC3339}.panic dumps for recovered panics and
//     routes the runtime's fatal error output into crash-output.log.
//
//   - SysinfoDumper: appends a description of the machine to sysinfo.txt.
//
//   - CommandCapture: runs helper commands with their output appended to
//     {prog}_stdout.txt and {prog}_stderr.txt.
//
// All writers are best effort from the caller's point of view: failures are
// logged and returned, never escalated.
package diagnostics
