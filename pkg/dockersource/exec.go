package dockersource

import (
	"bytes"
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// ExecResult holds the combined output and exit code of a command run inside
// a container.
type ExecResult struct {
	Output   []byte
	ExitCode int
}

// Exec runs cmd inside the container and waits for it to finish, capturing
// combined stdout and stderr.
func Exec(ctx context.Context, cli client.APIClient, containerID string, cmd []string) (ExecResult, error) {
	created, err := cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, containerErr("create exec", containerID, err)
	}

	attach, err := cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, containerErr("attach exec", containerID, err)
	}
	defer attach.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, attach.Reader); err != nil {
		return ExecResult{}, fmt.Errorf("read exec output for container %s: %w", containerID, err)
	}

	inspect, err := cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, containerErr("inspect exec", containerID, err)
	}

	return ExecResult{Output: buf.Bytes(), ExitCode: inspect.ExitCode}, nil
}

// ExecOutput runs cmd inside the bound container and returns its combined
// output. A nonzero exit code is an error.
func (s *ContainerSource) ExecOutput(ctx context.Context, cmd []string) ([]byte, error) {
	result, err := Exec(ctx, s.cli, s.containerID, cmd)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("command %v exited with code %d in container %s: %s",
			cmd, result.ExitCode, s.containerID, bytes.TrimSpace(result.Output))
	}
	return result.Output, nil
}
