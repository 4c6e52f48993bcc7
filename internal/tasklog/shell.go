package tasklog

import (
	"fmt"
	"strings"

	"taskplane/internal/task"
)

// Environment variables exported inside the task container for the capture
// commands.
const (
	EnvPathspec   = "TASKPLANE_PATHSPEC"
	EnvAttempt    = "TASKPLANE_ATTEMPT"
	EnvDatastore  = "TASKPLANE_DATASTORE"
	EnvStdoutPath = "TASKPLANE_STDOUT_PATH"
	EnvStderrPath = "TASKPLANE_STDERR_PATH"
)

// LogDir is the ephemeral log directory inside the task container.
const LogDir = "/logs"

// Executable is the binary name the in-container commands are invoked
// under; the task image carries it on PATH.
const Executable = "taskctl"

// LocalPath returns the in-container file a stream is teed to before it is
// persisted.
func LocalPath(stream task.Stream) string {
	return LogDir + "/task_" + string(stream) + ".log"
}

// ExportEnvVars returns the shell fragment exporting the channel variables
// the tee and save-logs commands read to locate themselves.
func ExportEnvVars(id task.Identity, datastoreType string) string {
	exports := []struct{ k, v string }{
		{EnvPathspec, id.Pathspec()},
		{EnvAttempt, id.AttemptString()},
		{EnvDatastore, datastoreType},
		{EnvStdoutPath, LocalPath(task.StreamStdout)},
		{EnvStderrPath, LocalPath(task.StreamStderr)},
	}
	parts := make([]string, len(exports))
	for i, e := range exports {
		parts[i] = "export " + e.k + "=" + shellQuote(e.v)
	}
	return strings.Join(parts, " && ")
}

// CaptureLogs wraps expr so that its stdout and stderr flow through the tee
// command, which decorates every line and mirrors it to the durable store.
// Process substitution keeps the exit status of expr observable to the
// surrounding script.
func CaptureLogs(expr string) string {
	return fmt.Sprintf("(%s) 1>> >(%s) 2>> >(%s >&2)",
		expr,
		Executable+" tee "+string(task.StreamStdout),
		Executable+" tee "+string(task.StreamStderr))
}

// SaveLogsCommand returns the final flush invocation. The assembler places
// it after the task expression's exit status has been captured, so it runs
// when the task fails but not when the container is hard-killed.
func SaveLogsCommand() string {
	return Executable + " save-logs"
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
