// Package launch turns a task description into a submitted cluster job: it
// assembles the container command around the log capture machinery, builds
// the job descriptor and submits it.
package launch

import (
	"taskplane/internal/tasklog"
)

// CodePackage locates the archived user code a task runs from.
type CodePackage struct {
	URL           string
	SHA           string
	DatastoreType string
}

// Environment supplies the commands that prepare a task container before
// the task command itself runs.
type Environment interface {
	// PackageCommands downloads and unpacks the code package.
	PackageCommands(code CodePackage) []string
	// BootstrapCommands prepares the step's runtime.
	BootstrapCommands(stepName string) []string
}

// DefaultEnvironment fetches the code package with the in-container CLI,
// which verifies the digest before the archive is unpacked.
type DefaultEnvironment struct{}

func (DefaultEnvironment) PackageCommands(code CodePackage) []string {
	if code.URL == "" {
		return nil
	}
	return []string{
		"echo 'Setting up task environment.'",
		tasklog.Executable + " fetch-code",
		"tar -xf code.tar",
	}
}

func (DefaultEnvironment) BootstrapCommands(stepName string) []string {
	return nil
}
