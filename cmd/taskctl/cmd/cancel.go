package cmd

import (
	"github.com/spf13/cobra"
)

var cancelAttempt int

var cancelCmd = &cobra.Command{
	Use:   "cancel [flow/run/step/task]",
	Short: "Terminate a still-running attempt",
	Long: `Explicitly terminate the remote job of an attempt. Monitoring never
kills a job on its own; this command is the caller-side policy for ending
one early.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identityArg(args[0], cancelAttempt)
		if err != nil {
			return err
		}

		clusterClient, err := newCluster()
		if err != nil {
			return err
		}
		handle, err := clusterClient.Lookup(cmd.Context(), id.JobName())
		if err != nil {
			return err
		}
		if err := handle.Cancel(cmd.Context()); err != nil {
			return err
		}
		cmd.Printf("Cancelled job %s\n", handle.ID())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
	cancelCmd.Flags().IntVar(&cancelAttempt, "attempt", 0, "attempt counter to cancel")
}
