package workflow

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/apperr"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/taskcontext"
)

// SelectNode records a fixed execution plan. It exists so a pipeline that
// fails downstream still leaves a well-formed projection past "idle".
type SelectNode struct{}

func (SelectNode) Name() string { return "SelectNode" }

func (SelectNode) Run(_ context.Context, tc *taskcontext.TaskContext) (*taskcontext.TaskContext, error) {
	tc.SetNodeResult("SelectNode", map[string]any{
		"plan": []string{"provision", "install", "build", "push"},
	})
	return tc, nil
}

// PrepNode asserts the metadata minimum required for execution nodes to
// run: project_id and task_id.
type PrepNode struct{}

func (PrepNode) Name() string { return "PrepNode" }

func (PrepNode) Run(_ context.Context, tc *taskcontext.TaskContext) (*taskcontext.TaskContext, error) {
	if tc.ProjectID() == "" {
		return tc, apperr.New(apperr.Validation, "task_context.metadata.project_id is required")
	}
	if tc.ExecutionID() == "" {
		return tc, apperr.New(apperr.Validation, "task_context.metadata.execution_id is required")
	}
	tc.Metadata["status"] = "running"
	return tc, nil
}

// ProvisionNode starts or reuses the project's execution container.
type ProvisionNode struct {
	Container ContainerProvisioner
}

func (ProvisionNode) Name() string { return "ProvisionNode" }

func (n ProvisionNode) Run(ctx context.Context, tc *taskcontext.TaskContext) (*taskcontext.TaskContext, error) {
	result, err := n.Container.StartOrReuse(ctx, tc.ProjectID(), tc.ExecutionID())
	if err != nil {
		return tc, err
	}
	tc.Metadata["container_id"] = result.ContainerID
	tc.Metadata["container_name"] = result.ContainerName
	tc.SetNodeResult("ProvisionNode", map[string]any{
		"container_id":     result.ContainerID,
		"container_status": result.ContainerStatus,
		"health_checks":    result.HealthChecks,
	})
	return tc, nil
}

// InstallNode runs the dependency-install command under the bounded-retry
// command executor.
type InstallNode struct {
	Executor CommandRunner
	Command  string
}

func (InstallNode) Name() string { return "InstallNode" }

func (n InstallNode) Run(ctx context.Context, tc *taskcontext.TaskContext) (*taskcontext.TaskContext, error) {
	command := n.Command
	if command == "" {
		command = "npm ci"
	}
	return runCommandNode(ctx, n.Executor, tc, "InstallNode", "install", command)
}

// repoCheckoutInfo pulls the optional repository location out of the
// submitted event payload. repo_url is absent from the strict ingestion
// schema, so a missing value just skips the checkout step rather than
// failing the node; branch defaults to what PushNode would otherwise push.
func repoCheckoutInfo(tc *taskcontext.TaskContext) (repoURL, branch string) {
	repoURL, _ = tc.Event["repo_url"].(string)
	branch, _ = tc.Metadata["branch"].(string)
	if branch == "" {
		branch = "main"
	}
	return repoURL, branch
}

// BuildNode runs the project build command under the bounded-retry command
// executor.
type BuildNode struct {
	Executor CommandRunner
	Command  string
}

func (BuildNode) Name() string { return "BuildNode" }

func (n BuildNode) Run(ctx context.Context, tc *taskcontext.TaskContext) (*taskcontext.TaskContext, error) {
	command := n.Command
	if command == "" {
		command = "npm run build"
	}
	return runCommandNode(ctx, n.Executor, tc, "BuildNode", "build", command)
}

func runCommandNode(ctx context.Context, executor CommandRunner, tc *taskcontext.TaskContext, nodeName, kind, command string) (*taskcontext.TaskContext, error) {
	repoURL, branch := repoCheckoutInfo(tc)
	result, err := executor.Execute(ctx, tc.ProjectID(), kind, command, repoURL, branch)
	if err != nil {
		return tc, err
	}
	if !result.Success {
		return tc, apperr.New(apperr.AiderExecution, fmt.Sprintf("%s did not succeed after %d attempts", kind, result.Attempts))
	}

	existing, _ := tc.Metadata["files_modified"].([]string)
	tc.Metadata["files_modified"] = append(existing, result.FilesChanged...)
	tc.SetNodeResult(nodeName, map[string]any{
		"attempts": result.Attempts,
		"stdout":   result.Stdout,
	})
	return tc, nil
}

// PushNode pushes the working tree back to its remote. Unlike install/build
// it is not subject to the 2-attempt command-executor contract (§4.5 scopes
// that to install/build); a push failure is a single-shot business error.
type PushNode struct {
	Container ContainerProvisioner
}

func (PushNode) Name() string { return "PushNode" }

func (n PushNode) Run(ctx context.Context, tc *taskcontext.TaskContext) (*taskcontext.TaskContext, error) {
	containerID, _ := tc.Metadata["container_id"].(string)
	if containerID == "" {
		return tc, apperr.New(apperr.ContainerErr, "no provisioned container to push from")
	}

	branch, _ := tc.Metadata["branch"].(string)
	if branch == "" {
		branch = "main"
	}

	stdout, stderr, exitCode, err := n.Container.Exec(ctx, containerID, []string{"git", "push", "origin", branch})
	if err != nil {
		return tc, apperr.Wrap(apperr.ContainerErr, "failed to exec git push", err)
	}
	if exitCode != 0 {
		return tc, apperr.New(apperr.Repository, fmt.Sprintf("git push exited %d: %s", exitCode, truncate(stderr, 500)))
	}

	tc.Metadata["status"] = "completed"
	tc.SetNodeResult("PushNode", map[string]any{"stdout": stdout})
	return tc, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func newAutomationNodes(deps *Dependencies) []Node {
	return []Node{
		SelectNode{},
		PrepNode{},
		ProvisionNode{Container: deps.Container},
		InstallNode{Executor: deps.Executor},
		BuildNode{Executor: deps.Executor},
		PushNode{Container: deps.Container},
	}
}

// RegisterAutomation installs the DEVTEAM_AUTOMATION workflow into reg.
func RegisterAutomation(reg *Registry) {
	reg.Register(AutomationWorkflowType, newAutomationNodes)
}
