package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/viper"

	"taskplane/internal/cluster"
	"taskplane/internal/config"
	"taskplane/internal/launch"
	"taskplane/internal/logstore"
	"taskplane/internal/logstore/postgres"
	"taskplane/internal/monitor"
	"taskplane/internal/registry"
	"taskplane/internal/task"
)

// newStore builds the log datastore selected by configuration.
func newStore() (logstore.Store, error) {
	switch ds := viper.GetString("default-datastore"); ds {
	case "", "file":
		// Log locations already embed the sysroot, so the store roots at /.
		return logstore.NewFileStore("/"), nil
	case "postgres":
		dbURL := viper.GetString("database-url")
		if dbURL == "" {
			return nil, fmt.Errorf("the postgres datastore needs --database-url or TASKPLANE_DATABASE_URL")
		}
		return postgres.New(dbURL)
	default:
		return nil, fmt.Errorf("unknown datastore %q: want file or postgres", ds)
	}
}

// newCluster builds the cluster backend selected by configuration.
func newCluster() (cluster.Client, error) {
	switch backend := viper.GetString("backend"); backend {
	case "", "kubernetes":
		return cluster.NewKubernetesClient(cluster.KubernetesConfig{
			Namespace:      viper.GetString("namespace"),
			ServiceAccount: viper.GetString("service-account"),
		})
	case "docker":
		return cluster.NewDockerClient()
	case "local":
		return cluster.NewLocalClient(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q: want kubernetes, docker or local", backend)
	}
}

// newRegistry builds the tag registry client, falling back to static tags
// when no service is configured.
func newRegistry(cfg *config.Config) registry.Registry {
	if cfg.ServiceURL != "" {
		return registry.NewClient(cfg.ServiceURL, cfg.ServiceHeaders)
	}
	return &registry.Static{User: cfg.User}
}

// newLauncher wires the launcher from configuration.
func newLauncher(cfg *config.Config, c cluster.Client) *launch.Launcher {
	return &launch.Launcher{
		Cluster:  c,
		Registry: newRegistry(cfg),
		Settings: launch.Settings{
			Backend:          viper.GetString("backend"),
			ServiceURL:       cfg.ServiceURL,
			ServiceHeaders:   cfg.ServiceHeaders,
			DatastoreType:    viper.GetString("default-datastore"),
			DatastoreSysroot: viper.GetString("datastore-sysroot"),
			DatabaseURL:      viper.GetString("database-url"),
			User:             cfg.User,
		},
	}
}

var (
	stderrColor = color.New(color.FgRed)
	noticeColor = color.New(color.Faint)
)

// newEchoSink returns a monitor.EchoSink writing task stdout to out and
// everything else to errOut. stderr lines print red; monitor notices, which
// carry no task payload, print faint.
func newEchoSink(out, errOut io.Writer) monitor.EchoSink {
	return func(text string, stream task.Stream, jobID string) {
		if stream == task.StreamStdout {
			fmt.Fprintln(out, text)
			return
		}
		if strings.HasPrefix(text, "[") {
			stderrColor.Fprintln(errOut, text)
			return
		}
		noticeColor.Fprintln(errOut, text)
	}
}

// identityArg parses the pathspec argument plus the --attempt flag.
func identityArg(pathspec string, attempt int) (task.Identity, error) {
	id, err := task.ParsePathspec(pathspec)
	if err != nil {
		return task.Identity{}, err
	}
	id.Attempt = attempt
	if err := id.Validate(); err != nil {
		return task.Identity{}, err
	}
	return id, nil
}

// parseEnvVars converts repeated NAME=VALUE flag values into env entries,
// preserving order.
func parseEnvVars(pairs []string) ([]cluster.EnvVar, error) {
	out := make([]cluster.EnvVar, 0, len(pairs))
	for _, pair := range pairs {
		name, value, found := strings.Cut(pair, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid env entry %q: want NAME=VALUE", pair)
		}
		out = append(out, cluster.EnvVar{Name: name, Value: value})
	}
	return out, nil
}

// newMonitor wires a monitor for one attempt against the configured store.
func newMonitor(store logstore.Store, id task.Identity, sysroot string) *monitor.Monitor {
	return &monitor.Monitor{
		Stdout: logstore.NewTailer(store, id.LogLocation(sysroot, task.StreamStdout)),
		Stderr: logstore.NewTailer(store, id.LogLocation(sysroot, task.StreamStderr)),
		Echo:   newEchoSink(os.Stdout, os.Stderr),
	}
}
