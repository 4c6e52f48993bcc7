// Package monitor waits for a submitted task attempt to finish, echoing its
// log output in near-real time, and classifies the terminal outcome.
//
// One Monitor runs one cooperative loop per attempt: it alternates between a
// bounded interruptible sleep and a small batch of synchronous work (one
// status query, then up to two log pulls). Log pulls follow an adaptive
// backoff curve that grows with elapsed time, while completion detection is
// independently capped so a finished job is never observed late just because
// the log cadence has grown coarse.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"taskplane/internal/cluster"
	"taskplane/internal/logstore"
	"taskplane/internal/task"
	"taskplane/internal/tasklog"
)

// Cadence defaults. Launch polls are frequent and cheap; the 30s heartbeat
// keeps a human watching a slow scheduler informed; the 5s cap bounds how
// long a finished job can go unnoticed.
const (
	DefaultLaunchPollEvery = 200 * time.Millisecond
	DefaultLaunchHeartbeat = 30 * time.Second
	DefaultCompletionCap   = 5 * time.Second
)

// Outcome is the terminal classification of one monitoring session.
type Outcome string

const (
	Succeeded Outcome = "SUCCEEDED"
	Failed    Outcome = "FAILED"
	Killed    Outcome = "KILLED"
)

// Result is the outcome of one monitoring session, produced exactly once.
type Result struct {
	Outcome  Outcome
	ExitCode int
	// Reason is the best available failure explanation; empty on success.
	Reason string
}

// Err converts the result into the error taxonomy: nil for Succeeded,
// *TaskFailedError for Failed, *TaskKilledError for Killed. The caller
// decides whether a result becomes an error.
func (r Result) Err() error {
	switch r.Outcome {
	case Failed:
		return &TaskFailedError{Reason: r.Reason}
	case Killed:
		return &TaskKilledError{}
	default:
		return nil
	}
}

// TaskFailedError reports a job the backend marked failed. Retrying the
// attempt is expected to be safe; the message says so.
type TaskFailedError struct {
	Reason string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("%s. This could be a transient error; retrying the attempt may succeed", e.Reason)
}

// TaskKilledError reports a job that stopped reporting progress without a
// clean terminal signal. Unlike TaskFailedError, a retry is not guaranteed
// to be safe: the remote process may still be running.
type TaskKilledError struct{}

func (e *TaskKilledError) Error() string {
	return "task was killed or stopped reporting status without a terminal signal"
}

// EchoSink receives every notice and log line the Monitor produces, in
// observation order. stream names the logical stream the text belongs to;
// notices go to stderr.
type EchoSink func(text string, stream task.Stream, jobID string)

var (
	meter           = otel.Meter("taskplane-monitor")
	linesEchoed, _  = meter.Int64Counter("taskplane.monitor.lines_echoed")
	pullErrors, _   = meter.Int64Counter("taskplane.monitor.transient_pull_errors")
	sessionsDone, _ = meter.Int64Counter("taskplane.monitor.sessions")
)

// Monitor observes one submitted job to completion. The job handle and the
// tailers are read-only from its perspective; independent Monitors may run
// concurrently against the same backends.
type Monitor struct {
	Stdout *logstore.Tailer
	Stderr *logstore.Tailer
	Echo   EchoSink
	Logger *slog.Logger

	// Delay maps elapsed time since monitoring began to the log-pull
	// interval. Must be monotonically non-decreasing. Defaults to
	// UpdateDelay.
	Delay func(elapsed time.Duration) time.Duration

	// LaunchPollEvery, LaunchHeartbeat and CompletionCap default to the
	// package constants when zero.
	LaunchPollEvery time.Duration
	LaunchHeartbeat time.Duration
	CompletionCap   time.Duration

	// Now and Sleep exist for tests. Sleep must return early with the
	// context error when ctx is cancelled.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (m *Monitor) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Monitor) sleep(ctx context.Context, d time.Duration) error {
	if m.Sleep != nil {
		return m.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) delay(elapsed time.Duration) time.Duration {
	if m.Delay != nil {
		return m.Delay(elapsed)
	}
	return UpdateDelay(elapsed)
}

func (m *Monitor) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Run drives the state machine LAUNCHING -> RUNNING -> terminal against
// handle and returns the terminal classification. Errors from the job
// handle's status queries propagate and abort monitoring; transient log
// pull errors are echoed as warnings and never do. Cancelling ctx stops
// monitoring without touching the remote job; terminating it early is the
// caller's decision via handle.Cancel.
func (m *Monitor) Run(ctx context.Context, handle cluster.JobHandle) (Result, error) {
	tracer := otel.Tracer("taskplane-monitor")
	ctx, span := tracer.Start(ctx, "monitor_task",
		trace.WithAttributes(attribute.String("task.job_name", handle.ID())),
	)
	defer span.End()

	if err := m.waitForLaunch(ctx, handle); err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	if err := m.waitForCompletion(ctx, handle); err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	// The job may have finished between the last scheduled pull and the
	// completion check; drain whatever is left on both streams.
	m.pull(ctx, m.Stdout, task.StreamStdout, handle.ID())
	m.pull(ctx, m.Stderr, task.StreamStderr, handle.ID())

	result, err := m.classify(ctx, handle)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	span.SetAttributes(attribute.String("task.outcome", string(result.Outcome)))
	sessionsDone.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(result.Outcome)),
	))
	return result, nil
}

// waitForLaunch is the LAUNCHING state: poll until the handle reports
// running or done (a short job may pass straight through running between
// polls), echoing a notice on every status change and on a fixed heartbeat
// even without one.
func (m *Monitor) waitForLaunch(ctx context.Context, handle cluster.JobHandle) error {
	pollEvery := m.LaunchPollEvery
	if pollEvery <= 0 {
		pollEvery = DefaultLaunchPollEvery
	}
	heartbeat := m.LaunchHeartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultLaunchHeartbeat
	}

	snap, err := handle.Status(ctx)
	if err != nil {
		return fmt.Errorf("querying job status: %w", err)
	}
	m.notice(handle.ID(), "Task is starting (status %s)...", snap.Phase)
	lastPhase := snap.Phase
	lastNotice := m.now()

	for {
		if snap.Running || snap.Done {
			return nil
		}
		if err := m.sleep(ctx, pollEvery); err != nil {
			return err
		}
		snap, err = handle.Status(ctx)
		if err != nil {
			return fmt.Errorf("querying job status: %w", err)
		}
		if snap.Phase != lastPhase || m.now().Sub(lastNotice) > heartbeat {
			m.notice(handle.ID(), "Task is starting (status %s)...", snap.Phase)
			lastPhase = snap.Phase
			lastNotice = m.now()
		}
	}
}

// waitForCompletion is the RUNNING state: pull fresh log lines on the
// adaptive schedule and check the handle every wakeup, sleeping at most
// CompletionCap so completion detection never waits on the log cadence.
func (m *Monitor) waitForCompletion(ctx context.Context, handle cluster.JobHandle) error {
	completionCap := m.CompletionCap
	if completionCap <= 0 {
		completionCap = DefaultCompletionCap
	}

	start := m.now()
	nextPull := start
	pullDelay := m.delay(0)

	for {
		if !m.now().Before(nextPull) {
			m.pull(ctx, m.Stdout, task.StreamStdout, handle.ID())
			m.pull(ctx, m.Stderr, task.StreamStderr, handle.ID())
			now := m.now()
			pullDelay = m.delay(now.Sub(start))
			nextPull = now.Add(pullDelay)
		}

		snap, err := handle.Status(ctx)
		if err != nil {
			return fmt.Errorf("querying job status: %w", err)
		}
		if !snap.Running {
			return nil
		}

		d := pullDelay
		if d > completionCap {
			d = completionCap
		}
		if err := m.sleep(ctx, d); err != nil {
			return err
		}
	}
}

// classify takes a fresh snapshot and maps it to the terminal outcome. The
// fallback order for a failure reason is fixed and evaluated once: the
// backend's reason, then a generic crash message for jobs that died without
// leaving one.
func (m *Monitor) classify(ctx context.Context, handle cluster.JobHandle) (Result, error) {
	snap, err := handle.Status(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("querying job status: %w", err)
	}

	switch {
	case snap.Failed:
		reason := firstNonEmpty(snap.Reason, "task crashed")
		m.notice(handle.ID(), "Task failed: %s. This could be a transient error; retrying the attempt may succeed.", reason)
		return Result{Outcome: Failed, ExitCode: snap.ExitCode, Reason: reason}, nil
	case snap.Running:
		// The running-wait loop saw the job stop, yet the handle claims
		// it is running again. Treat the contradiction as a kill rather
		// than silently succeeding.
		m.notice(handle.ID(), "Task is in an ambiguous state and is considered killed.")
		return Result{Outcome: Killed, Reason: "job stopped reporting a terminal state"}, nil
	default:
		m.notice(handle.ID(), "Task finished with exit code %d.", snap.ExitCode)
		return Result{Outcome: Succeeded, ExitCode: snap.ExitCode}, nil
	}
}

// pull echoes every line the tailer has accumulated since the previous
// pull. A failed pull is a warning, not an abort: the tailer keeps its
// cursor and the next scheduled pull picks up where this one left off.
func (m *Monitor) pull(ctx context.Context, tail *logstore.Tailer, stream task.Stream, jobID string) {
	if tail == nil {
		return
	}
	lines, err := tail.Next(ctx)
	if err != nil {
		pullErrors.Add(ctx, 1)
		m.logger().Warn("log pull failed", "job", jobID, "stream", string(stream), "error", err)
		m.notice(jobID, "[ temporary error in fetching logs: %v ]", err)
		return
	}
	prefix := []byte("[" + jobID + "] ")
	for _, line := range lines {
		m.echo(string(tasklog.Refine(line, prefix)), stream, jobID)
	}
}

func (m *Monitor) notice(jobID, format string, args ...any) {
	m.echo(fmt.Sprintf(format, args...), task.StreamStderr, jobID)
}

func (m *Monitor) echo(text string, stream task.Stream, jobID string) {
	linesEchoed.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("stream", string(stream)),
	))
	if m.Echo != nil {
		m.Echo(text, stream, jobID)
	}
}

func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
