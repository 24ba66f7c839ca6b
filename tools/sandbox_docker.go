package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"dsa-agent/config"
	apperrors "dsa-agent/errors"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DockerSandbox runs each snippet in a throwaway container with no network,
// a read-only root filesystem and a memory cap.
type DockerSandbox struct {
	cli       *client.Client
	image     string
	timeout   time.Duration
	memory    int64
	maxOutput int
	logger    *zap.Logger
}

func NewDockerSandbox(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*DockerSandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, apperrors.Tag(apperrors.ErrServiceUnavailable, fmt.Errorf("docker daemon unreachable: %w", err))
	}
	logger.Info("Docker sandbox initialized", zap.String("image", cfg.DockerImage))
	return &DockerSandbox{
		cli:       cli,
		image:     cfg.DockerImage,
		timeout:   cfg.SandboxTimeout,
		memory:    cfg.SandboxMemoryMB * 1024 * 1024,
		maxOutput: cfg.SandboxMaxOutput,
		logger:    logger,
	}, nil
}

func (s *DockerSandbox) Execute(ctx context.Context, code string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	name := "dsa-sandbox-" + uuid.NewString()
	pids := int64(64)
	cfg := &container.Config{
		Image:           s.image,
		Cmd:             []string{"python", "-c", code},
		Env:             []string{"PYTHONDONTWRITEBYTECODE=1", "PYTHONUNBUFFERED=1"},
		User:            "nobody",
		NetworkDisabled: true,
		Labels:          map[string]string{"dsa.sandbox": "true"},
	}
	hostCfg := &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,noexec,nosuid,size=16m"},
		Resources: container.Resources{
			Memory:    s.memory,
			PidsLimit: &pids,
		},
	}

	resp, err := s.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if client.IsErrNotFound(err) {
		reader, pullErr := s.cli.ImagePull(ctx, s.image, image.PullOptions{})
		if pullErr != nil {
			return "", apperrors.Tag(apperrors.ErrCodeExecution, fmt.Errorf("pull image %s: %w", s.image, pullErr))
		}
		_, _ = io.Copy(io.Discard, reader)
		_ = reader.Close()
		resp, err = s.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	}
	if err != nil {
		return "", apperrors.Tag(apperrors.ErrCodeExecution, fmt.Errorf("create container: %w", err))
	}
	defer func() {
		// removal must outlive the request context
		rmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.cli.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true}); err != nil {
			s.logger.Warn("Failed to remove sandbox container", zap.String("container", name), zap.Error(err))
		}
	}()

	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", apperrors.Tag(apperrors.ErrCodeExecution, fmt.Errorf("start container: %w", err))
	}

	statusCh, errCh := s.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if ctx.Err() != nil {
			return fmt.Sprintf("Error: execution timed out after %s", s.timeout), nil
		}
		return "", apperrors.Tag(apperrors.ErrCodeExecution, fmt.Errorf("wait for container: %w", err))
	case st := <-statusCh:
		exitCode = st.StatusCode
	}

	logs, err := s.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", apperrors.Tag(apperrors.ErrCodeExecution, fmt.Errorf("read container logs: %w", err))
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return "", apperrors.Tag(apperrors.ErrCodeExecution, fmt.Errorf("demux container logs: %w", err))
	}

	s.logger.Debug("Sandbox run finished", zap.String("container", name), zap.Int64("exit_code", exitCode))
	return combineOutput(stdout.String(), stderr.String(), s.maxOutput), nil
}

func (s *DockerSandbox) Close() error {
	return s.cli.Close()
}
