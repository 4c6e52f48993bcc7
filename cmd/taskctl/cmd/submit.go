package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskplane/internal/config"
	"taskplane/internal/launch"
)

var (
	submitAttempt   int
	submitImage     string
	submitCommands  []string
	submitCPU       string
	submitMemory    string
	submitGPU       int
	submitTimeLimit time.Duration
	submitEnv       []string
	submitCodeURL   string
	submitCodeSHA   string
)

var submitCmd = &cobra.Command{
	Use:   "submit [flow/run/step/task]",
	Short: "Launch a task attempt without waiting for it",
	Long: `Submit a task attempt to the cluster backend and return as soon as the
backend has accepted it. Attach later with 'taskctl watch' or 'taskctl logs'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identityArg(args[0], submitAttempt)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		clusterClient, err := newCluster()
		if err != nil {
			return err
		}
		env, err := parseEnvVars(submitEnv)
		if err != nil {
			return err
		}

		receipt, err := newLauncher(cfg, clusterClient).Launch(cmd.Context(), launch.Params{
			Identity:       id,
			Image:          submitImage,
			Commands:       submitCommands,
			CPU:            submitCPU,
			Memory:         submitMemory,
			GPU:            submitGPU,
			TimeLimit:      submitTimeLimit,
			Namespace:      viper.GetString("namespace"),
			ServiceAccount: viper.GetString("service-account"),
			Env:            env,
			Code: launch.CodePackage{
				URL:           submitCodeURL,
				SHA:           submitCodeSHA,
				DatastoreType: viper.GetString("default-datastore"),
			},
		})
		if err != nil {
			return err
		}

		cmd.Printf("Submitted job %s\n", receipt.Handle.ID())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().IntVar(&submitAttempt, "attempt", 0, "attempt counter of this launch")
	submitCmd.Flags().StringVar(&submitImage, "image", "", "container image the task runs in")
	submitCmd.Flags().StringArrayVar(&submitCommands, "cmd", nil, "task shell command (repeatable, joined with &&)")
	submitCmd.Flags().StringVar(&submitCPU, "cpu", "", "cpu limit, e.g. 500m")
	submitCmd.Flags().StringVar(&submitMemory, "memory", "", "memory limit, e.g. 512Mi")
	submitCmd.Flags().IntVar(&submitGPU, "gpu", 0, "gpu count")
	submitCmd.Flags().DurationVar(&submitTimeLimit, "time-limit", 0, "wall-clock limit enforced by the scheduler")
	submitCmd.Flags().StringArrayVar(&submitEnv, "env", nil, "extra env var NAME=VALUE (repeatable, may shadow core vars)")
	submitCmd.Flags().StringVar(&submitCodeURL, "code-url", "", "code package location")
	submitCmd.Flags().StringVar(&submitCodeSHA, "code-sha", "", "code package sha256 digest")
	submitCmd.MarkFlagRequired("image")
	submitCmd.MarkFlagRequired("cmd")
}
