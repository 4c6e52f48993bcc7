package launch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"taskplane/internal/cluster"
	"taskplane/internal/registry"
	"taskplane/internal/task"
	"taskplane/pkg/api"
)

// Settings carries the service and datastore coordinates stamped into every
// launched job.
type Settings struct {
	// Backend names the cluster backend jobs go to, for attempt metadata.
	Backend          string
	ServiceURL       string
	ServiceHeaders   map[string]string
	DatastoreType    string
	DatastoreSysroot string
	// DatabaseURL is stamped into the job when the datastore is postgres so
	// the in-container capture commands can reach the store.
	DatabaseURL string
	// User is the fallback creator when the registry reports none.
	User string
}

// Params describes one task attempt to launch.
type Params struct {
	Identity task.Identity
	Image    string
	// Commands are the shell commands that run the task, joined with '&&'
	// inside the capture wrapper.
	Commands       []string
	CPU            string
	Memory         string
	GPU            int
	TimeLimit      time.Duration
	Namespace      string
	ServiceAccount string
	// Env is overlaid onto the core environment and may shadow it.
	Env  []cluster.EnvVar
	Code CodePackage
}

// SubmissionError wraps a backend rejection of a job submission. Submission
// failures are fatal to the attempt; nothing below the caller retries them.
type SubmissionError struct {
	JobName string
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("job %s submission failed: %s", e.JobName, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Receipt is what a successful launch hands back: the live job handle plus
// the registry's id for the attempt. AttemptID is empty when registration
// failed; completion reporting is skipped for such attempts.
type Receipt struct {
	Handle    cluster.JobHandle
	AttemptID string
}

// Launcher submits task attempts to a cluster backend.
type Launcher struct {
	Cluster  cluster.Client
	Registry registry.Registry
	Env      Environment
	Settings Settings
	Logger   *slog.Logger
}

func (l *Launcher) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// Launch assembles the command and descriptor for the attempt and submits
// it. It returns as soon as the backend has accepted the job; it never waits
// for the job to start.
func (l *Launcher) Launch(ctx context.Context, p Params) (Receipt, error) {
	if err := p.Identity.Validate(); err != nil {
		return Receipt{}, err
	}
	if len(p.Commands) == 0 {
		return Receipt{}, fmt.Errorf("task %s: no commands to run", p.Identity)
	}
	if p.Image == "" {
		return Receipt{}, fmt.Errorf("task %s: image is required", p.Identity)
	}
	if l.Settings.DatastoreType == "postgres" && l.Settings.DatabaseURL == "" && !hasEnv(p.Env, "TASKPLANE_DATABASE_URL") {
		return Receipt{}, fmt.Errorf("task %s: the postgres datastore needs a database URL, or the job's log capture cannot reach the store", p.Identity)
	}

	tracer := otel.Tracer("taskplane-launch")
	ctx, span := tracer.Start(ctx, "launch_task",
		trace.WithAttributes(
			attribute.String("task.pathspec", p.Identity.Pathspec()),
			attribute.Int("task.attempt", p.Identity.Attempt),
			attribute.String("task.image", p.Image),
		),
	)
	defer span.End()

	tags, err := l.Registry.RunTags(ctx, p.Identity.FlowName, p.Identity.RunID)
	if err != nil {
		span.RecordError(err)
		return Receipt{}, fmt.Errorf("fetching run tags: %w", err)
	}
	user := tags.User
	if user == "" {
		user = l.Settings.User
	}

	command := AssembleCommand(p.Identity, l.environment(), l.Settings.DatastoreType, p.Code, p.Commands)
	desc := l.buildDescriptor(p, user, tags, command)

	handle, err := l.Cluster.Submit(ctx, desc)
	if err != nil {
		span.RecordError(err)
		return Receipt{}, &SubmissionError{JobName: desc.Name, Err: err}
	}
	span.SetAttributes(attribute.String("task.job_name", handle.ID()))

	// Attempt registration is advisory; a registry outage must not strand
	// a job that is already running.
	attemptID, err := l.Registry.RegisterAttempt(ctx, api.RegisterAttemptRequest{
		Pathspec: p.Identity.Pathspec(),
		Attempt:  p.Identity.Attempt,
		JobName:  handle.ID(),
		Backend:  l.Settings.Backend,
		Image:    p.Image,
	})
	if err != nil {
		attemptID = ""
		l.logger().Warn("attempt registration failed",
			"task", p.Identity.String(), "error", err)
	}

	return Receipt{Handle: handle, AttemptID: attemptID}, nil
}

// ReportCompletion records an attempt's terminal outcome with the registry.
// Like registration it is advisory: failures are logged, never returned, and
// an empty attemptID (registration failed at launch) is a no-op.
func (l *Launcher) ReportCompletion(ctx context.Context, attemptID string, req api.CompleteAttemptRequest) {
	if attemptID == "" {
		return
	}
	if req.CompletedAt == nil {
		now := time.Now().UTC()
		req.CompletedAt = &now
	}
	if err := l.Registry.CompleteAttempt(ctx, attemptID, req); err != nil {
		l.logger().Warn("attempt completion report failed",
			"attempt_id", attemptID, "error", err)
	}
}

func hasEnv(env []cluster.EnvVar, name string) bool {
	for _, e := range env {
		if e.Name == name {
			return true
		}
	}
	return false
}

func (l *Launcher) environment() Environment {
	if l.Env != nil {
		return l.Env
	}
	return DefaultEnvironment{}
}
