package exec

import (
	"context"
	"fmt"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog/log"
)

const (
	nameLabel   = "funcship_container"
	imageLabel  = "funcship_image"
	stopTimeout = 10
)

// dockerAPI is the part of client.APIClient the executor needs.
type dockerAPI interface {
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	Close() error
}

func NewDockerExecutor(cfg Config) (Executor, error) {
	clientOpts := []client.Opt{
		client.WithAPIVersionNegotiation(),
	}

	if cfg.FromEnv {
		clientOpts = append(clientOpts, client.FromEnv)
	} else if cfg.Url != "" {
		clientOpts = append(clientOpts, client.WithHost(cfg.Url))
	}

	dc, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create docker client: %w", err)
	}

	return &docker{dc: dc}, nil
}

type docker struct {
	dc dockerAPI
}

func (d *docker) Run(ctx context.Context, spec RunSpec) (*Execution, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	if _, _, err := d.dc.ImageInspectWithRaw(ctx, spec.Image); err != nil {
		if client.IsErrNotFound(err) {
			return nil, fmt.Errorf("image %s has not been built", spec.Image)
		}
		return nil, fmt.Errorf("unable to inspect image: %w", err)
	}

	if spec.Name != "" {
		// -- a leftover container with the same name would make create fail
		if err := d.ensureAbsent(ctx, spec.Name); err != nil {
			return nil, err
		}
	}

	cfg, hostCfg := toDockerContainerConfig(spec)
	resp, err := d.dc.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("unable to create container: %w", err)
	}

	if err := d.dc.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// -- auto remove only kicks in for containers that ran
		if rerr := d.dc.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true}); rerr != nil && !client.IsErrNotFound(rerr) {
			log.Warn().Err(rerr).Str("id", resp.ID).Msg("unable to remove container that failed to start")
		}
		return nil, fmt.Errorf("unable to start container: %w", err)
	}

	log.Info().Str("image", spec.Image).Str("container", spec.Name).Str("id", resp.ID).Msg("container started")

	ex, err := d.getExecution(ctx, resp.ID)
	if err != nil {
		return nil, err
	}
	if ex == nil {
		return nil, fmt.Errorf("container %s (%s) exited right after start", spec.Name, resp.ID)
	}
	return ex, nil
}

func (d *docker) Stop(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("container name is required")
	}

	return d.ensureAbsent(ctx, name)
}

func (d *docker) Close() error {
	return d.dc.Close()
}

func (d *docker) getExecution(ctx context.Context, execId string) (*Execution, error) {
	res, err := d.dc.ContainerInspect(ctx, execId)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, nil
		}

		return nil, err
	}

	var state ExecutionState
	if res.ContainerJSONBase == nil || res.State == nil {
		state = AbsentState
	} else {
		switch res.State.Status {
		case "created":
			state = PresentState
		case "restarting", "running":
			state = StartedState
		case "paused", "exited", "dead":
			state = StoppedState
		default:
			state = AbsentState
		}
	}

	ex := &Execution{Id: execId, Status: state}
	if res.Config != nil {
		ex.Name = res.Config.Labels[nameLabel]
		ex.Image = res.Config.Labels[imageLabel]
	}
	return ex, nil
}

func (d *docker) findExecutionId(ctx context.Context, name string) (*string, error) {
	f := filters.NewArgs()
	f.Add("label", fmt.Sprintf("%s=%s", nameLabel, name))

	containers, err := d.dc.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("error retrieving container: %w", err)
	}

	if len(containers) == 0 {
		return nil, nil
	}

	result := containers[0].ID
	return &result, nil
}

func (d *docker) ensureAbsent(ctx context.Context, name string) error {
	execId, err := d.findExecutionId(ctx, name)
	if err != nil {
		return err
	}

	if execId == nil {
		return nil
	}

	timeout := stopTimeout
	if err := d.dc.ContainerStop(ctx, *execId, container.StopOptions{Timeout: &timeout}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("unable to stop container: %w", err)
	}

	// -- auto removed containers may already be gone
	if err := d.dc.ContainerRemove(ctx, *execId, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("unable to remove container: %w", err)
	}

	log.Info().Str("container", name).Msg("container stopped")
	return nil
}

func toDockerContainerConfig(spec RunSpec) (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image: spec.Image,
		Labels: map[string]string{
			nameLabel:  spec.Name,
			imageLabel: spec.Image,
		},
	}
	hostCfg := &container.HostConfig{AutoRemove: true}

	if spec.ContainerPort != 0 {
		port := nat.Port(strconv.Itoa(spec.ContainerPort) + "/tcp")
		cfg.ExposedPorts = nat.PortSet{port: struct{}{}}
		hostCfg.PortBindings = nat.PortMap{
			port: []nat.PortBinding{{HostPort: strconv.Itoa(spec.HostPort)}},
		}
	}

	return cfg, hostCfg
}
