package cmd

import (
	"github.com/spf13/cobra"
)

var statusAttempt int

var statusCmd = &cobra.Command{
	Use:   "status [flow/run/step/task]",
	Short: "Show the current state of a submitted attempt",
	Long:  `Look up a previously submitted attempt on the cluster backend and print a point-in-time snapshot of its state: the backend's own phase wording, whether it is running or done, and the failure reason and exit code once terminal.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identityArg(args[0], statusAttempt)
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
		snap, err := handle.Status(cmd.Context())
		if err != nil {
			return err
		}

		cmd.Printf("Job:      %s\n", handle.ID())
		cmd.Printf("Phase:    %s\n", snap.Phase)
		cmd.Printf("Running:  %t\n", snap.Running)
		cmd.Printf("Done:     %t\n", snap.Done)
		cmd.Printf("Failed:   %t\n", snap.Failed)
		if snap.Reason != "" {
			cmd.Printf("Reason:   %s\n", snap.Reason)
		}
		if snap.Done {
			cmd.Printf("ExitCode: %d\n", snap.ExitCode)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVar(&statusAttempt, "attempt", 0, "attempt counter to inspect")
}
