package cluster

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// DockerClient implements Client on the Docker Engine API. It exists for
// development runs on a single host: namespaces, service accounts and
// resource limits in the descriptor are not applied.
type DockerClient struct {
	client *client.Client
}

// dockerHandle represents a submitted container.
type dockerHandle struct {
	client      *client.Client
	containerID string
	name        string
}

// NewDockerClient creates a Docker-backed client from the standard
// environment variables (DOCKER_HOST, etc.).
func NewDockerClient() (*DockerClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerClient{client: cli}, nil
}

func envList(env []EnvVar) []string {
	out := make([]string, 0, len(env))
	for _, e := range env {
		out = append(out, e.Name+"="+e.Value)
	}
	return out
}

// Submit pulls the image if it is not present locally, then creates and
// starts a container named after the descriptor.
func (d *DockerClient) Submit(ctx context.Context, desc Descriptor) (JobHandle, error) {
	if _, _, err := d.client.ImageInspectWithRaw(ctx, desc.Image); err != nil {
		reader, err := d.client.ImagePull(ctx, desc.Image, image.PullOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to pull image %s: %w", desc.Image, err)
		}
		defer reader.Close()
		io.Copy(io.Discard, reader)
	}

	containerConfig := &container.Config{
		Image:  desc.Image,
		Cmd:    desc.Command,
		Env:    envList(desc.Env),
		Labels: desc.Labels,
	}
	created, err := d.client.ContainerCreate(ctx, containerConfig, nil, nil, nil, desc.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	return &dockerHandle{
		client:      d.client,
		containerID: created.ID,
		name:        desc.Name,
	}, nil
}

// Lookup resolves a container by the name it was submitted under.
func (d *DockerClient) Lookup(ctx context.Context, name string) (JobHandle, error) {
	inspect, err := d.client.ContainerInspect(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up container %s: %w", name, err)
	}
	return &dockerHandle{
		client:      d.client,
		containerID: inspect.ID,
		name:        name,
	}, nil
}

func (h *dockerHandle) ID() string {
	return h.name
}

func (h *dockerHandle) Status(ctx context.Context) (Snapshot, error) {
	inspect, err := h.client.ContainerInspect(ctx, h.containerID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to inspect container %s: %w", h.containerID, err)
	}

	st := inspect.State
	if st == nil {
		return Snapshot{Phase: "unknown"}, nil
	}
	switch {
	case st.Running:
		return Snapshot{Phase: st.Status, Running: true}, nil
	case st.Status == "created":
		return Snapshot{Phase: st.Status}, nil
	default:
		snap := Snapshot{
			Phase:    st.Status,
			Done:     true,
			ExitCode: st.ExitCode,
		}
		if st.ExitCode != 0 || st.OOMKilled {
			snap.Failed = true
			switch {
			case st.OOMKilled:
				snap.Reason = "OOMKilled"
			case st.Error != "":
				snap.Reason = st.Error
			}
		}
		return snap, nil
	}
}

func (h *dockerHandle) Cancel(ctx context.Context) error {
	timeout := 5
	return h.client.ContainerStop(ctx, h.containerID, container.StopOptions{Timeout: &timeout})
}
