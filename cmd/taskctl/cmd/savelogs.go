package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taskplane/internal/config"
	"taskplane/internal/task"
	"taskplane/internal/tasklog"
)

var saveLogsCmd = &cobra.Command{
	Use:    "save-logs",
	Short:  "Persist the complete captured logs of the finished task",
	Hidden: true,
	Long: `Final flush of the structured log channel: read the complete local
capture of both streams, mark every line persisted and replace the durable
locations atomically. Runs after the task command has exited, whatever its
status; a hard kill of the container skips it and leaves provisional logs
behind.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		id, err := identityFromEnv()
		if err != nil {
			return err
		}
		store, err := storeFromEnv(cfg)
		if err != nil {
			return err
		}

		for _, stream := range []task.Stream{task.StreamStdout, task.StreamStderr} {
			local, err := os.Open(localPathFromEnv(stream))
			if os.IsNotExist(err) {
				// Nothing was captured on this stream.
				continue
			}
			if err != nil {
				return fmt.Errorf("opening local %s log: %w", stream, err)
			}
			saveErr := tasklog.Save(cmd.Context(), store, id.LogLocation(cfg.DatastoreSysroot, stream), local, nil)
			local.Close()
			if saveErr != nil {
				return saveErr
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(saveLogsCmd)
}
