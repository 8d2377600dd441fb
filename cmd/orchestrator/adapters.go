package main

import (
	"context"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/container"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/executor"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/workflow"
)

// containerProvisioner adapts *container.Manager to workflow.ContainerProvisioner.
// The method sets already match; only the named result type differs.
type containerProvisioner struct {
	mgr *container.Manager
}

func (p *containerProvisioner) StartOrReuse(ctx context.Context, projectID, executionID string) (*workflow.ContainerResult, error) {
	result, err := p.mgr.StartOrReuse(ctx, projectID, executionID)
	if err != nil {
		return nil, err
	}
	return &workflow.ContainerResult{
		ContainerID:     result.ContainerID,
		ContainerName:   result.ContainerName,
		ContainerStatus: result.ContainerStatus,
		HealthChecks:    result.HealthChecks,
	}, nil
}

func (p *containerProvisioner) Exec(ctx context.Context, containerID string, cmd []string) (string, string, int, error) {
	return p.mgr.Exec(ctx, containerID, cmd)
}

// commandRunner adapts *executor.Executor to workflow.CommandRunner.
type commandRunner struct {
	exec *executor.Executor
}

func (r *commandRunner) Execute(ctx context.Context, projectID, kind, command, repoURL, branch string) (*workflow.CommandResult, error) {
	result, err := r.exec.Execute(ctx, projectID, kind, command, repoURL, branch)
	if err != nil {
		return nil, err
	}
	return &workflow.CommandResult{
		Success:      result.Success,
		Attempts:     result.AttemptCount,
		Stdout:       result.StdoutOutput,
		Stderr:       result.StderrOutput,
		FilesChanged: result.FilesModified,
	}, nil
}
