package cmd

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskplane/internal/config"
	"taskplane/internal/launch"
	"taskplane/internal/logger"
	"taskplane/internal/observability"
	"taskplane/pkg/api"
)

var (
	runAttempt      int
	runImage        string
	runCommands     []string
	runCPU          string
	runMemory       string
	runGPU          int
	runTimeLimit    time.Duration
	runEnv          []string
	runCodeURL      string
	runCodeSHA      string
	runKillOnCancel bool
)

var runCmd = &cobra.Command{
	Use:   "run [flow/run/step/task]",
	Short: "Launch a task attempt and monitor it to completion",
	Long: `Launch a task attempt as a cluster job and stream its output until it
reaches a terminal state. The command exits non-zero when the task fails or
is killed; interrupting it stops monitoring but leaves the remote job
running unless --kill-on-cancel is set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identityArg(args[0], runAttempt)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		ctx = logger.WithPathspec(ctx, id.Pathspec())
		diag := logger.FromContext(ctx, logger.New())

		shutdownTracer, err := observabilitySetup(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				diag.Warn("tracer shutdown failed", "error", err)
			}
		}()

		store, err := newStore()
		if err != nil {
			return err
		}
		clusterClient, err := newCluster()
		if err != nil {
			return err
		}

		env, err := parseEnvVars(runEnv)
		if err != nil {
			return err
		}

		launcher := newLauncher(cfg, clusterClient)
		launcher.Logger = diag
		receipt, err := launcher.Launch(ctx, launch.Params{
			Identity:       id,
			Image:          runImage,
			Commands:       runCommands,
			CPU:            runCPU,
			Memory:         runMemory,
			GPU:            runGPU,
			TimeLimit:      runTimeLimit,
			Namespace:      viper.GetString("namespace"),
			ServiceAccount: viper.GetString("service-account"),
			Env:            env,
			Code: launch.CodePackage{
				URL:           runCodeURL,
				SHA:           runCodeSHA,
				DatastoreType: viper.GetString("default-datastore"),
			},
		})
		if err != nil {
			return err
		}

		// An interrupt stops monitoring; killing the remote job on top of
		// that is the caller's policy, not the monitor's.
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		go func() {
			<-sigChan
			if runKillOnCancel {
				killCtx, killCancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer killCancel()
				if err := receipt.Handle.Cancel(killCtx); err != nil {
					diag.Warn("failed to cancel job on interrupt", "job", receipt.Handle.ID(), "error", err)
				}
			}
			cancel()
		}()

		m := newMonitor(store, id, viper.GetString("datastore-sysroot"))
		m.Logger = diag
		result, err := m.Run(ctx, receipt.Handle)
		if err != nil {
			return err
		}
		launcher.ReportCompletion(ctx, receipt.AttemptID, api.CompleteAttemptRequest{
			Outcome:  string(result.Outcome),
			ExitCode: result.ExitCode,
			Reason:   result.Reason,
		})
		return result.Err()
	},
}

// observabilitySetup initializes tracing and, when configured, serves
// metrics on a side port for scrapes during long monitoring sessions.
func observabilitySetup(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	shutdownTracer, err := observability.InitTracer(ctx, "taskctl", cfg.OTELEndpoint)
	if err != nil {
		return nil, err
	}

	if cfg.MetricsAddr != "" {
		metricsHandler, _, err := observability.InitMetrics()
		if err != nil {
			return nil, err
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metricsHandler)
			log.Printf("Metrics listening on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}
	return shutdownTracer, nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&runAttempt, "attempt", 0, "attempt counter of this launch")
	runCmd.Flags().StringVar(&runImage, "image", "", "container image the task runs in")
	runCmd.Flags().StringArrayVar(&runCommands, "cmd", nil, "task shell command (repeatable, joined with &&)")
	runCmd.Flags().StringVar(&runCPU, "cpu", "", "cpu limit, e.g. 500m")
	runCmd.Flags().StringVar(&runMemory, "memory", "", "memory limit, e.g. 512Mi")
	runCmd.Flags().IntVar(&runGPU, "gpu", 0, "gpu count")
	runCmd.Flags().DurationVar(&runTimeLimit, "time-limit", 0, "wall-clock limit enforced by the scheduler")
	runCmd.Flags().StringArrayVar(&runEnv, "env", nil, "extra env var NAME=VALUE (repeatable, may shadow core vars)")
	runCmd.Flags().StringVar(&runCodeURL, "code-url", "", "code package location")
	runCmd.Flags().StringVar(&runCodeSHA, "code-sha", "", "code package sha256 digest")
	runCmd.Flags().BoolVar(&runKillOnCancel, "kill-on-cancel", false, "cancel the remote job when interrupted")
	runCmd.MarkFlagRequired("image")
	runCmd.MarkFlagRequired("cmd")
}
