package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "taskctl",
	Short: "Taskctl launches and monitors single task attempts on a cluster backend",
	Long: `taskctl is the command-line interface for taskplane.

taskplane launches one attempt of one workflow step ("task") as a container
job on a cluster backend, observes its lifecycle to completion, and streams
its output back in near-real time. Retry orchestration lives above this
layer: a submitted job never retries at the scheduler level.

Common workflows:

  Launch a task and stream it to completion:
    taskctl run MyFlow/1771/start/3212 --image python:3.11 --cmd "python main.py"

  Launch without waiting:
    taskctl submit MyFlow/1771/start/3212 --image python:3.11 --cmd "python main.py"

  Attach to a previously submitted attempt:
    taskctl watch MyFlow/1771/start/3212

  Check status, tail logs, or cancel:
    taskctl status MyFlow/1771/start/3212
    taskctl logs MyFlow/1771/start/3212 --follow
    taskctl cancel MyFlow/1771/start/3212

Configuration:
  Settings come from flags, a config file, or TASKPLANE_* environment
  variables:
    TASKPLANE_BACKEND             kubernetes, docker or local
    TASKPLANE_DEFAULT_DATASTORE   file or postgres
    TASKPLANE_DATASTORE_SYSROOT   root for derived log locations
    TASKPLANE_SERVICE_URL         tag registry endpoint (optional)`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".taskctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".taskctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "TASKPLANE_VARNAME"
	viper.SetEnvPrefix("TASKPLANE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.taskctl.yaml)")

	rootCmd.PersistentFlags().String("backend", "kubernetes", "cluster backend: kubernetes, docker or local")
	viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))

	rootCmd.PersistentFlags().String("default-datastore", "file", "log datastore: file or postgres")
	viper.BindPFlag("default-datastore", rootCmd.PersistentFlags().Lookup("default-datastore"))

	rootCmd.PersistentFlags().String("datastore-sysroot", "/var/tmp/taskplane", "root under which log locations are derived")
	viper.BindPFlag("datastore-sysroot", rootCmd.PersistentFlags().Lookup("datastore-sysroot"))

	rootCmd.PersistentFlags().String("database-url", "", "connection string for the postgres datastore")
	viper.BindPFlag("database-url", rootCmd.PersistentFlags().Lookup("database-url"))

	rootCmd.PersistentFlags().String("namespace", "default", "namespace for kubernetes jobs")
	viper.BindPFlag("namespace", rootCmd.PersistentFlags().Lookup("namespace"))

	rootCmd.PersistentFlags().String("service-account", "", "service account for kubernetes job pods")
	viper.BindPFlag("service-account", rootCmd.PersistentFlags().Lookup("service-account"))

	rootCmd.PersistentFlags().String("service-url", "", "tag registry service URL (empty uses static tags)")
	viper.BindPFlag("service-url", rootCmd.PersistentFlags().Lookup("service-url"))
}
