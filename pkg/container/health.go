package container

import "context"

// HealthChecks is the result of the four required probes. Overall reports
// whether every probe passed.
type HealthChecks struct {
	ContainerRunning    bool
	GitAvailable        bool
	NodeAvailable       bool
	WorkspaceAccessible bool
}

func (h HealthChecks) Overall() bool {
	return h.ContainerRunning && h.GitAvailable && h.NodeAvailable && h.WorkspaceAccessible
}

func (h HealthChecks) AsMap() map[string]bool {
	return map[string]bool{
		"container_running":    h.ContainerRunning,
		"git_available":        h.GitAvailable,
		"node_available":       h.NodeAvailable,
		"workspace_accessible": h.WorkspaceAccessible,
	}
}

// runHealthChecks executes the four probes against a running container.
// It short-circuits after the container_running check: if the container
// isn't running, the exec-based probes would error pointlessly.
func (m *Manager) runHealthChecks(ctx context.Context, containerID string) (HealthChecks, error) {
	running, err := m.isRunning(ctx, containerID)
	if err != nil {
		return HealthChecks{}, err
	}
	checks := HealthChecks{ContainerRunning: running}
	if !running {
		return checks, nil
	}

	if _, _, exit, err := m.Exec(ctx, containerID, []string{"git", "--version"}); err == nil {
		checks.GitAvailable = exit == 0
	}
	if _, _, exit, err := m.Exec(ctx, containerID, []string{"node", "--version"}); err == nil {
		checks.NodeAvailable = exit == 0
	}
	if _, _, exit, err := m.Exec(ctx, containerID, []string{"ls", "/workspace"}); err == nil {
		checks.WorkspaceAccessible = exit == 0
	}
	return checks, nil
}
