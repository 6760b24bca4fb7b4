// Package dockersource adapts a docker engine container to the log-source
// and exec interfaces consumed by the wait-for-logs machinery. It is the only
// package that talks to the engine API directly.
package dockersource

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"wharf/pkg/logstream"
)

// NewClient creates a docker API client configured from the environment
// (DOCKER_HOST, DOCKER_TLS_VERIFY, ...) with API version negotiation.
func NewClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return cli, nil
}

// ContainerSource exposes one container's output as a logstream.Source.
type ContainerSource struct {
	cli         client.APIClient
	containerID string
}

var _ logstream.Source = (*ContainerSource)(nil)

// NewContainerSource binds a source to a container by ID or name.
func NewContainerSource(cli client.APIClient, containerID string) *ContainerSource {
	return &ContainerSource{cli: cli, containerID: containerID}
}

// ContainerID returns the bound container's ID or name.
func (s *ContainerSource) ContainerID() string {
	return s.containerID
}

// Tail fetches already-produced output without following. The engine returns
// it in multiplexed framing, which is demultiplexed here into a single blob.
func (s *ContainerSource) Tail(ctx context.Context, opts logstream.TailOptions) ([]byte, error) {
	rc, err := s.cli.ContainerLogs(ctx, s.containerID, container.LogsOptions{
		ShowStdout: opts.Stdout,
		ShowStderr: opts.Stderr,
		Tail:       opts.Tail,
	})
	if err != nil {
		return nil, containerErr("fetch logs", s.containerID, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return nil, fmt.Errorf("demultiplex logs for container %s: %w", s.containerID, err)
	}
	return buf.Bytes(), nil
}

// Live opens the raw multiplexed stream of output produced from now on
// (Tail=0 suppresses history; the historical prefix is a separate Tail call
// made by the stream layer).
func (s *ContainerSource) Live(ctx context.Context, opts logstream.StreamOptions) (io.ReadCloser, error) {
	rc, err := s.cli.ContainerLogs(ctx, s.containerID, container.LogsOptions{
		ShowStdout: opts.Stdout,
		ShowStderr: opts.Stderr,
		Follow:     true,
		Tail:       "0",
	})
	if err != nil {
		return nil, containerErr("stream logs", s.containerID, err)
	}
	return rc, nil
}

func containerErr(op, containerID string, err error) error {
	if errdefs.IsNotFound(err) {
		return fmt.Errorf("%s: container %s not found: %w", op, containerID, err)
	}
	return fmt.Errorf("%s for container %s: %w", op, containerID, err)
}
