package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/investigator/internal/archive"
	"github.com/hugo-lorenzo-mato/investigator/internal/clip"
	"github.com/hugo-lorenzo-mato/investigator/internal/config"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Archive failed runs into a bug report",
	Long: `Write every failed run into a zip archive and delete them afterwards.
Nothing is written when there are no failed runs.`,
	RunE: runReport,
}

var (
	reportOutput   string
	reportCopyPath bool
)

// copier is replaced in tests.
var copier interface {
	Copy(text string) (clip.Method, error)
} = clip.New()

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "",
		"archive path (default: ./"+archive.ReportFileName(config.AppName)+")")
	reportCmd.Flags().BoolVar(&reportCopyPath, "copy-path", false,
		"copy the archive path to the clipboard")
}

func runReport(cmd *cobra.Command, _ []string) (err error) {
	dest, err := defaultOutput(reportOutput, archive.ReportFileName(config.AppName))
	if err != nil {
		return err
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = s.finish(err) }()

	// Triage first so runs killed since the last start are included.
	if _, err := s.inv.CurrentRunDirectory(); err != nil {
		return err
	}

	outcome, err := s.inv.ArchiveFailed(dest)
	if err != nil {
		return err
	}
	if outcome.Archived && reportCopyPath {
		if method, err := copier.Copy(dest); err != nil {
			s.logger.Warn("cannot copy report path", "error", err)
		} else {
			s.logger.Debug("copied report path", "method", string(method))
		}
	}
	return nil
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Archive this run and all failed runs without deleting them",
	RunE:  runExport,
}

var exportOutput string

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"archive path (default: ./"+archive.FullReportFileName(config.AppName)+")")
}

func runExport(cmd *cobra.Command, _ []string) (err error) {
	dest, err := defaultOutput(exportOutput, archive.FullReportFileName(config.AppName))
	if err != nil {
		return err
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = s.finish(err) }()

	// Startup already described the machine when sysinfo is enabled.
	if !s.inv.Config().Diagnostics.Sysinfo {
		if _, err := s.inv.DumpSysinfo(); err != nil {
			s.logger.Warn("cannot describe system", "error", err)
		}
	}
	return s.inv.ArchiveEverything(dest)
}

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "Move failed runs to the trash",
	RunE:  runTrash,
}

func init() {
	rootCmd.AddCommand(trashCmd)
}

func runTrash(cmd *cobra.Command, _ []string) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = s.finish(err) }()

	if _, err := s.inv.CurrentRunDirectory(); err != nil {
		return err
	}
	return s.inv.TrashFailed()
}
