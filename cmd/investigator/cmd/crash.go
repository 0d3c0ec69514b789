package cmd

import (
	"github.com/spf13/cobra"
)

// crashCmd dies with an unrecovered panic after installing the recorder, to
// check that the next start files the crash as forensic evidence.
var crashCmd = &cobra.Command{
	Use:    "crash",
	Short:  "Panic without cleaning up",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		if _, err := s.inv.InstallPanicRecorder(); err != nil {
			return s.finish(err)
		}
		done := make(chan struct{})
		go func() {
			defer close(done)
			panic("crash requested")
		}()
		<-done
		return nil
	},
}

func init() {
	rootCmd.AddCommand(crashCmd)
}
