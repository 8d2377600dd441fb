package workflow

import "context"

// ContainerResult is the outcome of provisioning a project's execution
// container, mirroring start_or_reuse's documented return shape.
type ContainerResult struct {
	ContainerID     string
	ContainerName   string
	ContainerStatus string // "started" or "reused"
	HealthChecks    map[string]bool
}

// ContainerProvisioner is the subset of the container manager (C3) that the
// automation workflow's ProvisionNode and PushNode depend on. Implemented
// by pkg/container.Manager.
type ContainerProvisioner interface {
	StartOrReuse(ctx context.Context, projectID, executionID string) (*ContainerResult, error)
	Exec(ctx context.Context, containerID string, cmd []string) (stdout, stderr string, exitCode int, err error)
}

// CommandResult is the outcome of one bounded-retry command execution.
type CommandResult struct {
	Success      bool
	Attempts     int
	Stdout       string
	Stderr       string
	FilesChanged []string
}

// CommandRunner is the subset of the command executor (C4) that the
// install/build execution nodes depend on. Implemented by
// pkg/executor.Executor. repoURL/branch may be empty when the task has no
// associated repository to check out.
type CommandRunner interface {
	Execute(ctx context.Context, projectID, kind, command, repoURL, branch string) (*CommandResult, error)
}
