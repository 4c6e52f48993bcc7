// Package config handles environment variable loading for datastore roots,
// cluster backends, service coordinates, etc. The same TASKPLANE_* variables
// are read by the CLI on the submitting side and by the in-container
// plumbing commands, which receive them through the assembled job command.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds all configuration values for the application.
type Config struct {
	// Datastore type for task logs: "file" or "postgres"
	DatastoreType string

	// Root under which all log locations are derived
	DatastoreSysroot string

	// Database connection string, required for the postgres datastore
	DatabaseURL string

	// Cluster backend jobs are submitted to: "kubernetes", "docker" or "local"
	Backend string

	// Kubernetes namespace and service account for job pods
	Namespace      string
	ServiceAccount string

	// URL of the tag registry service; empty selects the static registry
	ServiceURL string

	// Extra headers sent with every registry request, typically auth
	ServiceHeaders map[string]string

	// OTLP collector endpoint for traces
	OTELEndpoint string

	// Address of the optional metrics side server; empty disables it
	MetricsAddr string

	// User recorded as creator when the registry reports none
	User string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	datastore := os.Getenv("TASKPLANE_DEFAULT_DATASTORE")
	if datastore == "" {
		datastore = "file"
	}
	if datastore != "file" && datastore != "postgres" {
		return nil, fmt.Errorf("invalid TASKPLANE_DEFAULT_DATASTORE %q: want file or postgres", datastore)
	}

	sysroot := os.Getenv("TASKPLANE_DATASTORE_SYSROOT")
	if sysroot == "" {
		sysroot = "/var/tmp/taskplane"
	}

	dbURL := os.Getenv("TASKPLANE_DATABASE_URL")
	if datastore == "postgres" && dbURL == "" {
		return nil, fmt.Errorf("TASKPLANE_DATABASE_URL is required for the postgres datastore")
	}

	backend := os.Getenv("TASKPLANE_BACKEND")
	if backend == "" {
		backend = "kubernetes"
	}

	namespace := os.Getenv("TASKPLANE_NAMESPACE")
	if namespace == "" {
		namespace = "default"
	}

	var headers map[string]string
	if raw := os.Getenv("TASKPLANE_SERVICE_HEADERS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &headers); err != nil {
			return nil, fmt.Errorf("invalid TASKPLANE_SERVICE_HEADERS: %w", err)
		}
	}

	otelEndpoint := os.Getenv("TASKPLANE_OTEL_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "localhost:4317"
	}

	user := os.Getenv("TASKPLANE_USER")
	if user == "" {
		user = os.Getenv("USER")
	}

	return &Config{
		DatastoreType:    datastore,
		DatastoreSysroot: sysroot,
		DatabaseURL:      dbURL,
		Backend:          backend,
		Namespace:        namespace,
		ServiceAccount:   os.Getenv("TASKPLANE_SERVICE_ACCOUNT"),
		ServiceURL:       os.Getenv("TASKPLANE_SERVICE_URL"),
		ServiceHeaders:   headers,
		OTELEndpoint:     otelEndpoint,
		MetricsAddr:      os.Getenv("TASKPLANE_METRICS_ADDR"),
		User:             user,
	}, nil
}
