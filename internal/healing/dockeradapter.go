package healing

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/hivemind-sh/hivemind/internal/common/config"
	"github.com/hivemind-sh/hivemind/internal/common/logger"
)

const recycleStopTimeout = 10 * time.Second

// DockerController implements ContainerController against the local Docker
// daemon.
type DockerController struct {
	cli    *client.Client
	logger *logger.Logger
}

// NewDockerController creates a Docker-backed container controller.
func NewDockerController(cfg config.DockerConfig, log *logger.Logger) (*DockerController, error) {
	opts := []client.Opt{
		client.WithAPIVersionNegotiation(),
	}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	if cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(cfg.APIVersion))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerController{cli: cli, logger: log}, nil
}

// Restart restarts the container in place.
func (d *DockerController) Restart(ctx context.Context, containerID string) error {
	d.logger.Info("Restarting container", zap.String("container_id", containerID))
	if err := d.cli.ContainerRestart(ctx, containerID, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to restart container %s: %w", containerID, err)
	}
	return nil
}

// Recycle stops and then starts the container to clear accumulated state.
func (d *DockerController) Recycle(ctx context.Context, containerID string) error {
	d.logger.Info("Recycling container", zap.String("container_id", containerID))

	timeoutSeconds := int(recycleStopTimeout.Seconds())
	if err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeoutSeconds}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", containerID, err)
	}
	if err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", containerID, err)
	}
	return nil
}

// Close closes the underlying Docker client.
func (d *DockerController) Close() error {
	return d.cli.Close()
}
