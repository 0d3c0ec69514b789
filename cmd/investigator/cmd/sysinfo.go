package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/investigator/internal/diagnostics"
)

var sysinfoCmd = &cobra.Command{
	Use:   "sysinfo",
	Short: "Print the system description added to bug reports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := diagnostics.CollectSysinfo()
		if sysinfoSummary {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), info.Summary())
			return err
		}
		_, err := info.WriteTo(cmd.OutOrStdout())
		return err
	},
}

var sysinfoSummary bool

func init() {
	rootCmd.AddCommand(sysinfoCmd)
	sysinfoCmd.Flags().BoolVar(&sysinfoSummary, "summary", false, "print a single line")
}
