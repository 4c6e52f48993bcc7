// Package cluster provides the job execution backends a task attempt can be
// submitted to. Implementations include Kubernetes, Docker and raw process
// execution.
package cluster

import (
	"context"
	"time"
)

// Client submits jobs to one execution backend and looks up previously
// submitted ones.
type Client interface {
	// Submit triggers execution of the described job and returns without
	// waiting for it to start.
	Submit(ctx context.Context, desc Descriptor) (JobHandle, error)

	// Lookup returns a handle for a job submitted earlier under name.
	Lookup(ctx context.Context, name string) (JobHandle, error)
}

// JobHandle represents one submitted job.
type JobHandle interface {
	// ID returns the backend identifier of the job.
	ID() string

	// Status observes the job's current remote state. The state may
	// change asynchronously between calls; callers must tolerate missing
	// intermediate states.
	Status(ctx context.Context) (Snapshot, error)

	// Cancel terminates the remote job. Idempotent on already-finished
	// jobs where the backend allows it.
	Cancel(ctx context.Context) error
}

// Snapshot is a point-in-time observation of a job's state. Phase is the
// backend's own wording; Running, Done and Failed are the normalized
// contract callers drive on.
type Snapshot struct {
	Phase    string
	Running  bool
	Done     bool
	Failed   bool
	Reason   string
	ExitCode int
}

// EnvVar is one environment entry. Order is preserved through submission so
// descriptors stay deterministic.
type EnvVar struct {
	Name  string
	Value string
}

// Descriptor fully describes one job submission. Values are final: backends
// apply them without defaulting or reordering.
type Descriptor struct {
	Name           string
	Namespace      string
	ServiceAccount string
	Image          string
	Command        []string
	CPU            string
	Memory         string
	GPU            int
	TimeLimit      time.Duration
	Env            []EnvVar
	Labels         map[string]string
	// Retries is the scheduler-level retry budget. The launcher pins it
	// to zero; retry orchestration lives above this layer.
	Retries int
}
