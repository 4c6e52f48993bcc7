package launch

import (
	"strings"

	"taskplane/internal/task"
	"taskplane/internal/tasklog"
)

// AssembleCommand builds the container command for one attempt:
//
//	["bash", "-c", script]
//
// The script exports the channel variables, runs the environment's package
// commands with their output uncaptured, then the bootstrap and task
// commands wrapped in log capture, and finally flushes the captured logs.
// The flush is chained with ';' rather than '&&' so it runs when the task
// fails, while a hard kill of the container skips it. The task's own exit
// status is preserved through the flush. The leading 'true' keeps the script
// well-formed for entrypoints that eval their arguments as a single command.
func AssembleCommand(id task.Identity, env Environment, datastoreType string, code CodePackage, taskCmds []string) []string {
	parts := []string{
		"true",
		"mkdir -p " + tasklog.LogDir,
		tasklog.ExportEnvVars(id, datastoreType),
	}
	if pkg := env.PackageCommands(code); len(pkg) > 0 {
		parts = append(parts, strings.Join(pkg, " && "))
	}
	captured := append(env.BootstrapCommands(id.StepName), taskCmds...)
	parts = append(parts, tasklog.CaptureLogs(strings.Join(captured, " && ")))

	script := strings.Join(parts, " && ") +
		"; c=$?; " + tasklog.SaveLogsCommand() + "; exit $c"
	return []string{"bash", "-c", script}
}
