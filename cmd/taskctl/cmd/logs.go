package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskplane/internal/logstore"
	"taskplane/internal/task"
	"taskplane/internal/tasklog"
)

var (
	logsAttempt int
	logsStream  string
	logsFollow  bool
)

var logsCmd = &cobra.Command{
	Use:   "logs [flow/run/step/task]",
	Short: "Print the captured logs of an attempt",
	Long: `Print the log streams of an attempt from the datastore. Lines still
provisional (the attempt has not flushed its final logs yet) are prefixed
with the job name; persisted lines print as captured.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identityArg(args[0], logsAttempt)
		if err != nil {
			return err
		}
		store, err := newStore()
		if err != nil {
			return err
		}

		sysroot := viper.GetString("datastore-sysroot")
		var tailers []*logstore.Tailer
		streams := []task.Stream{task.StreamStdout, task.StreamStderr}
		if logsStream != "" && logsStream != "both" {
			streams = []task.Stream{task.Stream(logsStream)}
		}
		for _, s := range streams {
			tailers = append(tailers, logstore.NewTailer(store, id.LogLocation(sysroot, s)))
		}

		// Trap Ctrl+C to exit gracefully
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			os.Exit(0)
		}()

		prefix := []byte("[" + id.JobName() + "] ")
		for {
			fresh := 0
			for _, tail := range tailers {
				lines, err := tail.Next(cmd.Context())
				if err != nil {
					cmd.PrintErrf("Error fetching logs: %v\n", err)
					if !logsFollow {
						return err
					}
					time.Sleep(2 * time.Second) // Retry backoff
					continue
				}
				for _, line := range lines {
					cmd.Println(string(tasklog.Refine(line, prefix)))
				}
				fresh += len(lines)
			}

			if !logsFollow {
				if fresh == 0 {
					return nil
				}
				// Got lines; loop immediately to drain the rest.
				continue
			}
			time.Sleep(1 * time.Second)
		}
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().IntVar(&logsAttempt, "attempt", 0, "attempt counter to read")
	logsCmd.Flags().StringVar(&logsStream, "stream", "both", "stream to print: stdout, stderr or both")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
}
