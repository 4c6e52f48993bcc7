// Package main is the entry point for taskctl.
// taskctl launches task attempts on a cluster backend, monitors them to
// completion and carries the in-container log plumbing commands.
package main

import (
	"os"

	"taskplane/cmd/taskctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
