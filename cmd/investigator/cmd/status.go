package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/investigator/internal/investigator"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show failed runs",
	Long: `Triage the data directory and list the failed runs waiting to be reported.
Runs holding a panic record are marked; they are never pruned automatically.`,
	RunE: runStatus,
}

var statusFormat string

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusFormat, "format", "text", "Output format (text, json, yaml)")
}

func runStatus(cmd *cobra.Command, _ []string) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = s.finish(err) }()

	st, err := s.inv.Status()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch statusFormat {
	case "json":
		return outputJSON(out, st)
	case "yaml":
		return outputYAML(out, st)
	case "text":
		printStatus(out, st)
		return nil
	default:
		return fmt.Errorf("unknown format %q (text, json, yaml)", statusFormat)
	}
}

func printStatus(w io.Writer, st investigator.Status) {
	evidence := "no"
	if st.ForensicEvidence {
		evidence = "yes"
	}
	fmt.Fprintf(w, "Data directory:    %s\n", st.DataDir)
	fmt.Fprintf(w, "Run directory:     %s\n", st.RunDirectory)
	fmt.Fprintf(w, "Moved this start:  %d\n", st.Relocated)
	fmt.Fprintf(w, "Forensic evidence: %s\n", evidence)
	fmt.Fprintf(w, "Failed runs:       %d (keeping %d without panic record)\n", len(st.FailedRuns), st.MaxKeep)
	for _, run := range st.FailedRuns {
		fmt.Fprintf(w, "  %s\n", run)
	}
}
