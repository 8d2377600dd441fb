// Package container manages per-project execution containers: at most one
// live container per project, at most five live globally, backed by the
// Docker Engine API. Grounded on the per-project container manager this
// module's behavior was distilled from.
package container

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/apperr"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/config"
)

const componentLabel = "component"
const componentLabelValue = "clarity-project"
const projectIDLabel = "project_id"
const createdLabel = "created"
const ttlDaysLabel = "ttl_days"

const noopForegroundCommand = "tail -f /dev/null"

type registryEntry struct {
	containerID string
}

// Manager is the in-process, registry-backed container lifecycle manager.
// clientMu guards lazy Docker client construction; registryMu guards the
// in-process tracking map and is held only for O(1) operations.
type Manager struct {
	cfg    *config.ContainerConfig
	logger *slog.Logger

	clientMu sync.Mutex
	client   DockerAPI

	registryMu sync.Mutex
	registry   map[string]registryEntry // project_id -> entry
}

// DockerAPI is the subset of *client.Client the manager drives, narrowed so
// tests can substitute a fake.
type DockerAPI interface {
	ContainerCreate(ctx context.Context, cfg *container.Config, host *container.HostConfig, net *network.NetworkingConfig, platform any, name string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, id string, opts container.StartOptions) error
	ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error)
	ContainerList(ctx context.Context, opts container.ListOptions) ([]container.Summary, error)
	ContainerRemove(ctx context.Context, id string, opts container.RemoveOptions) error
	ContainerExecCreate(ctx context.Context, id string, opts container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, opts container.ExecAttachOptions) (dockerclient.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	NetworkCreate(ctx context.Context, name string, opts network.CreateOptions) (network.CreateResponse, error)
	NetworkList(ctx context.Context, opts network.ListOptions) ([]network.Summary, error)
	VolumeCreate(ctx context.Context, opts volume.CreateOptions) (volume.Volume, error)
	VolumeList(ctx context.Context, opts volume.ListOptions) (volume.ListResponse, error)
	VolumeRemove(ctx context.Context, name string, force bool) error
}

func NewManager(cfg *config.ContainerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		registry: make(map[string]registryEntry),
	}
}

// dockerAPI lazily constructs the Docker Engine API client, matching the
// original's lazy docker_client property.
func (m *Manager) dockerAPI() (DockerAPI, error) {
	m.clientMu.Lock()
	defer m.clientMu.Unlock()
	if m.client != nil {
		return m.client, nil
	}

	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, apperr.Wrap(apperr.ContainerErr, "failed to initialize docker client", err)
	}
	m.client = cli
	return m.client, nil
}

// StartOrReuse implements start_or_reuse(project_id, execution_id, timeout).
func (m *Manager) StartOrReuse(ctx context.Context, projectID, executionID string) (result *Result, err error) {
	if err := ValidateProjectID(projectID); err != nil {
		return nil, err
	}

	reserved, reserveErr := m.reserveSlot(projectID)
	if reserveErr != nil {
		return nil, reserveErr
	}
	if reserved {
		defer func() {
			if err != nil {
				m.unregister(projectID)
			}
		}()
	}

	api, err := m.dockerAPI()
	if err != nil {
		return nil, err
	}

	name := projectScopedName(m.cfg.ContainerPrefix, projectID)
	volName := projectScopedName(m.cfg.VolumePrefix, projectID)

	existing, err := m.findByName(ctx, api, name)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		checks, err := m.runHealthChecks(ctx, existing)
		if err == nil && checks.Overall() {
			m.register(projectID, existing)
			return &Result{ContainerID: existing, ContainerName: name, ContainerStatus: "reused", HealthChecks: checks.AsMap()}, nil
		}
		if err := api.ContainerRemove(ctx, existing, container.RemoveOptions{Force: true}); err != nil {
			m.logger.Warn("failed to remove unhealthy container", "container_id", existing, "error", err)
		}
	}

	if err := m.ensureNetwork(ctx, api); err != nil {
		return nil, err
	}
	if err := m.ensureVolume(ctx, api, volName, projectID); err != nil {
		return nil, err
	}

	id, err := m.createContainer(ctx, api, name, volName, projectID)
	if err != nil {
		return nil, err
	}

	if err := api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return nil, apperr.Wrap(apperr.ContainerErr, "failed to start container", err)
	}

	checks, err := m.runHealthChecks(ctx, id)
	if err != nil || !checks.Overall() {
		if rmErr := api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); rmErr != nil {
			m.logger.Warn("failed to remove unhealthy new container", "container_id", id, "error", rmErr)
		}
		return nil, apperr.New(apperr.ContainerErr, "new container failed health checks")
	}

	m.register(projectID, id)
	return &Result{ContainerID: id, ContainerName: name, ContainerStatus: "started", HealthChecks: checks.AsMap()}, nil
}

// Result mirrors the documented start_or_reuse return shape.
type Result struct {
	ContainerID     string
	ContainerName   string
	ContainerStatus string
	HealthChecks    map[string]bool
}

// reserveSlot atomically checks the global container cap and, if the
// project has no live container yet, reserves its slot in the same
// critical section as the check — closing the race where two concurrent
// StartOrReuse calls for different new projects both read the count
// before either registers. Returns reserved=true if this call placed the
// reservation and is therefore responsible for releasing it on failure.
func (m *Manager) reserveSlot(projectID string) (reserved bool, err error) {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()

	if _, ok := m.registry[projectID]; ok {
		return false, nil
	}
	if len(m.registry) >= m.cfg.MaxGlobalContainers {
		return false, apperr.New(apperr.ContainerErr, "global container limit reached")
	}
	m.registry[projectID] = registryEntry{}
	return true, nil
}

func (m *Manager) register(projectID, containerID string) {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	m.registry[projectID] = registryEntry{containerID: containerID}
}

func (m *Manager) unregister(projectID string) {
	m.registryMu.Lock()
	defer m.registryMu.Unlock()
	delete(m.registry, projectID)
}

func (m *Manager) findByName(ctx context.Context, api DockerAPI, name string) (string, error) {
	summaries, err := api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return "", apperr.Wrap(apperr.ContainerErr, "failed to list containers", err)
	}
	for _, s := range summaries {
		for _, n := range s.Names {
			if n == "/"+name || n == name {
				return s.ID, nil
			}
		}
	}
	return "", nil
}

func (m *Manager) isRunning(ctx context.Context, id string) (bool, error) {
	api, err := m.dockerAPI()
	if err != nil {
		return false, err
	}
	info, err := api.ContainerInspect(ctx, id)
	if err != nil {
		return false, apperr.Wrap(apperr.ContainerErr, "failed to inspect container", err)
	}
	return info.State != nil && info.State.Status == "running", nil
}

func (m *Manager) ensureNetwork(ctx context.Context, api DockerAPI) error {
	nets, err := api.NetworkList(ctx, network.ListOptions{Filters: filters.NewArgs(filters.Arg("name", m.cfg.NetworkName))})
	if err != nil {
		return apperr.Wrap(apperr.ContainerErr, "failed to list networks", err)
	}
	if len(nets) > 0 {
		return nil
	}
	_, err = api.NetworkCreate(ctx, m.cfg.NetworkName, network.CreateOptions{
		Labels: map[string]string{componentLabel: componentLabelValue},
	})
	if err != nil {
		return apperr.Wrap(apperr.ContainerErr, "failed to create network", err)
	}
	return nil
}

func (m *Manager) ensureVolume(ctx context.Context, api DockerAPI, volName, projectID string) error {
	vols, err := api.VolumeList(ctx, volume.ListOptions{Filters: filters.NewArgs(filters.Arg("name", volName))})
	if err != nil {
		return apperr.Wrap(apperr.ContainerErr, "failed to list volumes", err)
	}
	if len(vols.Volumes) > 0 {
		return nil
	}
	_, err = api.VolumeCreate(ctx, volume.CreateOptions{
		Name: volName,
		Labels: map[string]string{
			componentLabel: componentLabelValue,
			projectIDLabel: projectID,
			createdLabel:   time.Now().UTC().Format(time.RFC3339),
			ttlDaysLabel:   fmt.Sprintf("%d", config.DefaultRetentionConfig().ContainerTTLDays),
		},
	})
	if err != nil {
		return apperr.Wrap(apperr.ContainerErr, "failed to create volume", err)
	}
	return nil
}

func (m *Manager) createContainer(ctx context.Context, api DockerAPI, name, volName, projectID string) (string, error) {
	env := m.buildEnv()

	resp, err := api.ContainerCreate(ctx,
		&container.Config{
			Image:  m.cfg.BaseImage,
			Env:    env,
			Cmd:    []string{"sh", "-c", noopForegroundCommand},
			Labels: map[string]string{
				componentLabel: componentLabelValue,
				projectIDLabel: projectID,
				createdLabel:   time.Now().UTC().Format(time.RFC3339),
				ttlDaysLabel:   fmt.Sprintf("%d", config.DefaultRetentionConfig().ContainerTTLDays),
			},
		},
		&container.HostConfig{
			Mounts: []mount.Mount{{Type: mount.TypeVolume, Source: volName, Target: "/workspace"}},
			Resources: container.Resources{
				NanoCPUs: m.cfg.CPUCount * 1_000_000_000,
				Memory:   m.cfg.MemoryBytes,
			},
			NetworkMode: container.NetworkMode(m.cfg.NetworkName),
		},
		&network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{m.cfg.NetworkName: {}},
		},
		nil,
		name,
	)
	if err != nil {
		return "", apperr.Wrap(apperr.ContainerErr, "failed to create container", err)
	}
	return resp.ID, nil
}

func (m *Manager) buildEnv() []string {
	env := []string{
		"NODE_ENV=development",
		"CONTAINER_TYPE=clarity-project",
		fmt.Sprintf("CONTAINER_TTL_DAYS=%d", config.DefaultRetentionConfig().ContainerTTLDays),
	}
	for _, key := range m.cfg.GitTokenEnvVars {
		if v := os.Getenv(key); v != "" {
			env = append(env, key+"="+v)
		}
	}
	return env
}

// Exec runs a one-shot command inside a running container and returns its
// captured stdout, stderr, and exit code.
func (m *Manager) Exec(ctx context.Context, containerID string, cmd []string) (string, string, int, error) {
	api, err := m.dockerAPI()
	if err != nil {
		return "", "", -1, err
	}

	created, err := api.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", "", -1, apperr.Wrap(apperr.ContainerErr, "failed to create exec", err)
	}

	attached, err := api.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", "", -1, apperr.Wrap(apperr.ContainerErr, "failed to attach exec", err)
	}
	defer attached.Close()

	var stdout, stderr writeBuffer
	_, _ = stdcopy.StdCopy(&stdout, &stderr, attached.Reader)

	inspect, err := api.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return stdout.String(), stderr.String(), -1, apperr.Wrap(apperr.ContainerErr, "failed to inspect exec", err)
	}
	return stdout.String(), stderr.String(), inspect.ExitCode, nil
}

type writeBuffer struct {
	data []byte
}

func (w *writeBuffer) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *writeBuffer) String() string { return string(w.data) }

var _ io.Writer = (*writeBuffer)(nil)
