package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete the oldest failed runs",
	Long: `Delete the oldest failed runs of the default directory until at most
--max-keep remain. Runs holding a panic record are kept and not counted.`,
	RunE: runClean,
}

var cleanMaxKeep int

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().IntVar(&cleanMaxKeep, "max-keep", -1,
		"failed runs to keep (default: retention.max_keep)")
}

func runClean(cmd *cobra.Command, _ []string) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() { err = s.finish(err) }()

	if _, err := s.inv.CurrentRunDirectory(); err != nil {
		return err
	}

	maxKeep := s.inv.Config().Retention.MaxKeep
	if cmd.Flags().Changed("max-keep") {
		if cleanMaxKeep < 0 {
			return fmt.Errorf("--max-keep must be non-negative, got %d", cleanMaxKeep)
		}
		maxKeep = cleanMaxKeep
	}

	removed, err := s.inv.Registry().CleanupDefault(maxKeep)
	if err != nil {
		return err
	}
	for _, path := range removed {
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", path)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d failed runs removed\n", len(removed))
	return nil
}
