package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"taskplane/internal/config"
	"taskplane/internal/logger"
	"taskplane/internal/logstore"
	"taskplane/internal/logstore/postgres"
	"taskplane/internal/task"
	"taskplane/internal/tasklog"
)

// identityFromEnv reconstructs the task identity inside the container from
// the variables the command assembler exported.
func identityFromEnv() (task.Identity, error) {
	id, err := task.ParsePathspec(os.Getenv(tasklog.EnvPathspec))
	if err != nil {
		return task.Identity{}, fmt.Errorf("reading %s: %w", tasklog.EnvPathspec, err)
	}
	attempt, err := strconv.Atoi(os.Getenv(tasklog.EnvAttempt))
	if err != nil {
		return task.Identity{}, fmt.Errorf("reading %s: %w", tasklog.EnvAttempt, err)
	}
	id.Attempt = attempt
	return id, id.Validate()
}

// storeFromEnv builds the durable store the way the in-container commands
// see it: from environment only, no flags.
func storeFromEnv(cfg *config.Config) (logstore.Store, error) {
	if cfg.DatastoreType == "postgres" {
		return postgres.New(cfg.DatabaseURL)
	}
	// Log locations already embed the sysroot, so the store roots at /.
	return logstore.NewFileStore("/"), nil
}

func localPathFromEnv(stream task.Stream) string {
	if stream == task.StreamStdout {
		if p := os.Getenv(tasklog.EnvStdoutPath); p != "" {
			return p
		}
	} else if p := os.Getenv(tasklog.EnvStderrPath); p != "" {
		return p
	}
	return tasklog.LocalPath(stream)
}

var teeCmd = &cobra.Command{
	Use:    "tee [stdout|stderr]",
	Short:  "Capture one output stream of the running task",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stream := task.Stream(args[0])
		if stream != task.StreamStdout && stream != task.StreamStderr {
			return fmt.Errorf("unknown stream %q: want stdout or stderr", args[0])
		}

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

		local, err := os.OpenFile(localPathFromEnv(stream), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening local log file: %w", err)
		}
		defer local.Close()

		diag := logger.FromContext(logger.WithPathspec(cmd.Context(), id.Pathspec()), logger.New())
		tee := &tasklog.Tee{
			Source:   tasklog.SourceTask,
			Local:    local,
			Store:    store,
			Location: id.LogLocation(cfg.DatastoreSysroot, stream),
			OnMirrorError: func(err error) {
				diag.Warn("log mirror append failed", "stream", string(stream), "error", err)
			},
		}
		return tee.Run(cmd.Context(), cmd.InOrStdin())
	},
}

func init() {
	rootCmd.AddCommand(teeCmd)
}
