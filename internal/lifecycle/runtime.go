package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/hivemind-sh/hivemind/internal/common/config"
	"github.com/hivemind-sh/hivemind/internal/common/logger"
)

// Runtime provisions and tears down agent sandboxes. A nil Runtime on the
// manager means simulated deployments.
type Runtime interface {
	Deploy(ctx context.Context, agentID string, impl Implementation) (containerID string, err error)
	Teardown(ctx context.Context, containerID string) error
}

const teardownStopTimeout = 10 * time.Second

// DockerRuntime runs agents as Docker containers.
type DockerRuntime struct {
	cli     *client.Client
	network string
	logger  *logger.Logger
}

// NewDockerRuntime creates a Docker-backed runtime.
func NewDockerRuntime(cfg config.DockerConfig, log *logger.Logger) (*DockerRuntime, error) {
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
	return &DockerRuntime{cli: cli, network: cfg.Network, logger: log}, nil
}

// Deploy pulls the implementation image and starts a labeled container for
// the agent.
func (r *DockerRuntime) Deploy(ctx context.Context, agentID string, impl Implementation) (string, error) {
	reader, err := r.cli.ImagePull(ctx, impl.Image, image.PullOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to pull image %s: %w", impl.Image, err)
	}
	defer reader.Close()

	env := make([]string, 0, len(impl.Environment)+1)
	for k, v := range impl.Environment {
		env = append(env, k+"="+v)
	}
	env = append(env, "HIVEMIND_AGENT_ID="+agentID)

	labels := make(map[string]string, len(impl.Labels)+1)
	for k, v := range impl.Labels {
		labels[k] = v
	}
	labels["hivemind.agent_id"] = agentID

	containerCfg := &container.Config{
		Image:  impl.Image,
		Env:    env,
		Labels: labels,
	}
	hostCfg := &container.HostConfig{
		NetworkMode:   container.NetworkMode(r.network),
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}

	resp, err := r.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "agent_"+agentID)
	if err != nil {
		return "", fmt.Errorf("failed to create agent container: %w", err)
	}
	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start agent container: %w", err)
	}

	r.logger.Info("agent container started",
		zap.String("agent_id", agentID),
		zap.String("container_id", resp.ID))
	return resp.ID, nil
}

// Teardown stops and removes an agent container.
func (r *DockerRuntime) Teardown(ctx context.Context, containerID string) error {
	timeoutSeconds := int(teardownStopTimeout.Seconds())
	if err := r.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeoutSeconds}); err != nil {
		return fmt.Errorf("failed to stop agent container %s: %w", containerID, err)
	}
	if err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		return fmt.Errorf("failed to remove agent container %s: %w", containerID, err)
	}
	return nil
}

// Close closes the underlying Docker client.
func (r *DockerRuntime) Close() error {
	return r.cli.Close()
}
