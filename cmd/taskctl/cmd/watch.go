package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskplane/internal/logger"
)

var watchAttempt int

var watchCmd = &cobra.Command{
	Use:   "watch [flow/run/step/task]",
	Short: "Monitor a previously submitted attempt to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identityArg(args[0], watchAttempt)
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
		store, err := newStore()
		if err != nil {
			return err
		}

		ctx := logger.WithPathspec(cmd.Context(), id.Pathspec())
		m := newMonitor(store, id, viper.GetString("datastore-sysroot"))
		m.Logger = logger.FromContext(ctx, logger.New())

		result, err := m.Run(ctx, handle)
		if err != nil {
			return err
		}
		return result.Err()
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().IntVar(&watchAttempt, "attempt", 0, "attempt counter to watch")
}
