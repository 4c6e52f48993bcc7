// Package task defines the identity of a single task attempt and the
// deterministic names derived from it.
package task

import (
	"fmt"
	"strconv"
	"strings"
)

// Stream is a logical output stream of a task.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Identity identifies one attempt of one step of one run of one flow.
// It is immutable once a Launcher or Monitor has been constructed from it.
type Identity struct {
	FlowName string
	RunID    string
	StepName string
	TaskID   string
	Attempt  int
}

// Validate checks that all identity fields are set and the attempt is
// non-negative.
func (id Identity) Validate() error {
	for _, f := range []struct {
		name, value string
	}{
		{"flow name", id.FlowName},
		{"run id", id.RunID},
		{"step name", id.StepName},
		{"task id", id.TaskID},
	} {
		if f.value == "" {
			return fmt.Errorf("task identity: %s is required", f.name)
		}
	}
	if id.Attempt < 0 {
		return fmt.Errorf("task identity: attempt must be >= 0, got %d", id.Attempt)
	}
	return nil
}

// AttemptString renders the attempt counter the way it appears in job names,
// environment variables and datastore paths.
func (id Identity) AttemptString() string {
	return strconv.Itoa(id.Attempt)
}

// Pathspec returns the flow/run/step/task path of this identity, without the
// attempt.
func (id Identity) Pathspec() string {
	return strings.Join([]string{id.FlowName, id.RunID, id.StepName, id.TaskID}, "/")
}

// ParsePathspec parses a flow/run/step/task pathspec into an Identity with
// attempt 0.
func ParsePathspec(s string) (Identity, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 4 {
		return Identity{}, fmt.Errorf("task identity: malformed pathspec %q", s)
	}
	id := Identity{
		FlowName: parts[0],
		RunID:    parts[1],
		StepName: parts[2],
		TaskID:   parts[3],
	}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// String includes the attempt so that log output is unambiguous across
// retries.
func (id Identity) String() string {
	return id.Pathspec() + "/" + id.AttemptString()
}

// JobName returns the name the submitted job is created under: the lowercase
// hyphen-join of all identity fields. Schedulers may reject or rewrite
// non-compliant names; callers must not assume the name round-trips.
func (id Identity) JobName() string {
	return strings.ToLower(strings.Join([]string{
		id.FlowName,
		id.RunID,
		id.StepName,
		id.TaskID,
		id.AttemptString(),
	}, "-"))
}

// LogLocation is the durable address of one output stream of one task
// attempt. It is derived once from the identity and never mutated.
type LogLocation string

// LogLocation returns the datastore location of the given stream under
// sysroot. The same identity, attempt and stream always map to the same
// location, and no two streams of the same attempt share one. Joining is
// plain "/" so that URL-style sysroots such as s3://bucket/prefix survive.
func (id Identity) LogLocation(sysroot string, stream Stream) LogLocation {
	return LogLocation(strings.Join([]string{
		strings.TrimRight(sysroot, "/"),
		id.FlowName,
		id.RunID,
		id.StepName,
		id.TaskID,
		id.AttemptString(),
		"logs",
		"task_" + string(stream) + ".log",
	}, "/"))
}
