package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/apperr"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/taskcontext"
)

// Dependencies are the shared collaborators node factories close over:
// the container manager, command executor, and anything else execution
// nodes need. Kept as an untyped bag of fields here; concrete fields are
// added as each execution node is wired in pkg/workflow/nodes_automation.go.
type Dependencies struct {
	Container ContainerProvisioner
	Executor  CommandRunner
}

// Runtime resolves a workflow by type and drives its nodes to completion.
type Runtime struct {
	registry *Registry
	deps     *Dependencies
	logger   *slog.Logger
}

func NewRuntime(registry *Registry, deps *Dependencies, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{registry: registry, deps: deps, logger: logger}
}

// Run seeds task_context from payload and the given workflow/execution
// identity, executes every node of workflowType in order, and returns the
// final task_context. Node errors stop the pipeline but are captured into
// task_context rather than returned — only registry/seeding failures
// propagate as errors, matching the dispatcher's business-error-vs-
// infrastructure-error split (spec §4.2).
//
// eventID is the dispatcher's own message_id for this claim — in this
// single-table-as-queue architecture the Event row itself is the message.
// taskId/executionId are derived from it unconditionally (spec.md §4.2
// step 4), independent of whatever the submission payload's optional
// task.id happens to contain. enqueueLatencyMs is the time between the
// event's creation and this claim.
func (r *Runtime) Run(ctx context.Context, workflowType string, payload map[string]any, projectID string, eventID uuid.UUID, priority int, enqueueLatencyMs int64) (*taskcontext.TaskContext, error) {
	factory, ok := r.registry.Resolve(workflowType)
	if !ok {
		factory, ok = r.registry.Resolve(PlaceholderWorkflowType)
		if !ok {
			return nil, apperr.New(apperr.Service, "no factory registered for placeholder workflow")
		}
		workflowType = PlaceholderWorkflowType
	}

	executionID := "exec_" + eventID.String()

	tc := taskcontext.Empty()
	tc.SeedFromSubmission(payload, executionID)
	tc.Metadata["correlationId"] = correlationIDFromPayload(payload, executionID)
	tc.Metadata["taskId"] = eventID.String()
	tc.Metadata["executionId"] = executionID
	tc.Metadata["enqueueLatencyMs"] = enqueueLatencyMs
	tc.Metadata["priority"] = priority
	tc.Metadata["workflow_type"] = workflowType
	tc.Metadata["status"] = "prepared"
	if projectID != "" {
		tc.Metadata["project_id"] = projectID
	}

	nodes := factory(r.deps)
	for _, node := range nodes {
		tc.SetNodeResult(node.Name(), map[string]any{"status": "running"})

		next, err := runNode(ctx, node, tc)
		if err != nil {
			r.logger.Error("workflow node failed", "node", node.Name(), "workflow_type", workflowType, "error", err)
			tc.SetNodeResult(node.Name(), map[string]any{
				"status":  "error",
				"message": err.Error(),
			})
			tc.Metadata["status"] = "error"
			break
		}

		tc = next
		result := tc.NodeResult(node.Name())
		if result == nil {
			result = map[string]any{}
		}
		result["status"] = "completed"
		tc.SetNodeResult(node.Name(), result)
	}

	if tc.Metadata["status"] != "error" {
		tc.Metadata["status"] = terminalStatus(tc, nodes)
	}
	tc.Metadata["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	return tc, nil
}

// runNode recovers a panicking node into an error so one misbehaving node
// cannot take down the dispatcher goroutine.
func runNode(ctx context.Context, node Node, tc *taskcontext.TaskContext) (next *taskcontext.TaskContext, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = apperr.New(apperr.Service, "node panicked")
		}
	}()
	return node.Run(ctx, tc)
}

// correlationIDFromPayload prefers the submission's metadata.correlation_id
// (spec §4.1: "correlation_id ... from metadata.correlation_id or the
// UUID"), falling back to the execution's own identity when absent.
func correlationIDFromPayload(payload map[string]any, fallback string) string {
	if meta, ok := payload["metadata"].(map[string]any); ok {
		if id, ok := meta["correlation_id"].(string); ok && id != "" {
			return id
		}
	}
	if fallback != "" {
		return fallback
	}
	return uuid.New().String()
}

func terminalStatus(tc *taskcontext.TaskContext, nodes []Node) string {
	if len(nodes) == 0 {
		return "completed"
	}
	for _, n := range nodes {
		result := tc.NodeResult(n.Name())
		if result == nil || result["status"] != "completed" {
			return "running"
		}
	}
	return "completed"
}
