package workflow

import (
	"context"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/taskcontext"
)

// NoopNode is the single step of the PLACEHOLDER workflow: it records that
// the event was seen and does nothing else. Unrecognized payload.type
// values and unregistered workflow_type values on replay both land here.
type NoopNode struct{}

func (NoopNode) Name() string { return "NoopNode" }

func (NoopNode) Run(_ context.Context, tc *taskcontext.TaskContext) (*taskcontext.TaskContext, error) {
	return tc, nil
}

func newPlaceholderNodes(_ *Dependencies) []Node {
	return []Node{NoopNode{}}
}

// RegisterPlaceholder installs the PLACEHOLDER workflow into reg.
func RegisterPlaceholder(reg *Registry) {
	reg.Register(PlaceholderWorkflowType, newPlaceholderNodes)
}
