package cluster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// LocalClient implements Client by running the job command as a bare
// subprocess. Development and tests only: the image, namespace and resource
// fields of the descriptor are ignored.
type LocalClient struct {
	mu   sync.Mutex
	jobs map[string]*localHandle
}

// NewLocalClient creates a process-backed client.
func NewLocalClient() *LocalClient {
	return &LocalClient{jobs: make(map[string]*localHandle)}
}

// localHandle represents a started process.
type localHandle struct {
	name string
	cmd  *exec.Cmd

	mu       sync.Mutex
	done     bool
	exitCode int
	waitErr  error
}

// Submit starts the command. The process is deliberately not bound to ctx:
// cancelling the submitting context must not kill a job that is already
// running, that is what Cancel is for.
func (c *LocalClient) Submit(ctx context.Context, desc Descriptor) (JobHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(desc.Command) == 0 {
		return nil, fmt.Errorf("empty command for job %s", desc.Name)
	}

	cmd := exec.Command(desc.Command[0], desc.Command[1:]...)
	cmd.Env = append(os.Environ(), envList(desc.Env)...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process for job %s: %w", desc.Name, err)
	}

	h := &localHandle{name: desc.Name, cmd: cmd}
	go h.wait()

	c.mu.Lock()
	c.jobs[desc.Name] = h
	c.mu.Unlock()
	return h, nil
}

// Lookup returns the handle of a job submitted through this client.
func (c *LocalClient) Lookup(ctx context.Context, name string) (JobHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.jobs[name]
	if !ok {
		return nil, fmt.Errorf("unknown job %s", name)
	}
	return h, nil
}

func (h *localHandle) wait() {
	err := h.cmd.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.done = true
	if err == nil {
		h.exitCode = 0
		return
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// -1 when the process was killed by a signal.
		h.exitCode = exitErr.ExitCode()
	} else {
		h.exitCode = -1
		h.waitErr = err
	}
}

func (h *localHandle) ID() string {
	return h.name
}

func (h *localHandle) Status(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.done {
		return Snapshot{Phase: "running", Running: true}, nil
	}
	snap := Snapshot{Phase: "exited", Done: true, ExitCode: h.exitCode}
	if h.exitCode != 0 || h.waitErr != nil {
		snap.Failed = true
		if h.waitErr != nil {
			snap.Reason = h.waitErr.Error()
		}
	}
	return snap, nil
}

func (h *localHandle) Cancel(ctx context.Context) error {
	err := h.cmd.Process.Kill()
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process for job %s: %w", h.name, err)
	}
	return nil
}
