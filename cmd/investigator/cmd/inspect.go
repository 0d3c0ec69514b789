package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/investigator/internal/archive"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <archive>",
	Short: "List or extract the contents of a report archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var inspectExtract string

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVarP(&inspectExtract, "extract", "x", "", "extract into this directory")
}

func runInspect(cmd *cobra.Command, args []string) error {
	if inspectExtract != "" {
		if err := archive.Extract(args[0], inspectExtract); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "extracted %s into %s\n", args[0], inspectExtract)
		return nil
	}

	entries, err := archive.List(args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SIZE\tNAME")
	for _, e := range entries {
		size := "-"
		if !e.Dir {
			size = fmt.Sprintf("%d", e.Size)
		}
		fmt.Fprintf(w, "%s\t%s\n", size, e.Name)
	}
	return w.Flush()
}
