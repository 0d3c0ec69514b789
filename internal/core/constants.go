// Package core provides the shared constants and structured errors of the
// run directory subsystem. The file names and formats below are an on-disk
// contract with earlier and concurrent processes: changing them breaks triage
// of directories written by other versions.
package core

// Directory layout under the data root.
const (
	ProcDirName   = "proc"
	FailedDirName = "proc_failed"
)

// Files inside a run directory.
const (
	LockFileName        = "run.lock"
	ExitReportFileName  = "exit_report.txt"
	SysinfoFileName     = "sysinfo.txt"
	CrashOutputFileName = "crash-output.log"
	PanicFileExt        = ".panic"
)

// RunDirTimeFormat names run directories. Field widths are fixed so names sort
// chronologically.
const RunDirTimeFormat = "2006-01-02_15_04_05"

// AbortedReportText is written into runs whose owner died holding the lock.
const AbortedReportText = "Application aborted unexpectedly.\n"

// Archive properties.
const (
	ArchiveSuffix   = "zip"
	ArchiveMIMEType = "application/x-zip"
)

// DefaultMaxKeep bounds the number of failed runs kept without panic evidence.
const DefaultMaxKeep = 20
