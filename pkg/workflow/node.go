package workflow

import (
	"context"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/taskcontext"
)

// Node is one step of a workflow. Run is pure over task_context modulo the
// I/O side effects it declares (container calls, command execution); it
// must not mutate tc in place, returning the next value instead, and must
// be safe to re-run with an equivalent tc (at-least-once delivery).
type Node interface {
	Name() string
	Run(ctx context.Context, tc *taskcontext.TaskContext) (*taskcontext.TaskContext, error)
}
