package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/taskcontext"
)

type fakeNode struct {
	name string
	err  error
}

func (n fakeNode) Name() string { return n.name }

func (n fakeNode) Run(_ context.Context, tc *taskcontext.TaskContext) (*taskcontext.TaskContext, error) {
	if n.err != nil {
		return tc, n.err
	}
	tc.SetNodeResult(n.name, map[string]any{"ran": true})
	return tc, nil
}

func TestRuntime_Run_AllNodesSucceed(t *testing.T) {
	reg := NewRegistry()
	reg.Register("TEST", func(_ *Dependencies) []Node {
		return []Node{fakeNode{name: "a"}, fakeNode{name: "b"}}
	})
	rt := NewRuntime(reg, &Dependencies{}, nil)
	eventID := uuid.New()

	tc, err := rt.Run(context.Background(), "TEST", map[string]any{"k": "v"}, "proj-1", eventID, 5, 42)
	require.NoError(t, err)
	assert.Equal(t, "completed", tc.Metadata["status"])
	assert.Equal(t, "completed", tc.NodeResult("a")["status"])
	assert.Equal(t, "completed", tc.NodeResult("b")["status"])
	assert.Equal(t, "proj-1", tc.ProjectID())
	assert.Equal(t, eventID.String(), tc.Metadata["taskId"])
	assert.Equal(t, "exec_"+eventID.String(), tc.Metadata["executionId"])
	assert.Equal(t, int64(42), tc.Metadata["enqueueLatencyMs"])
}

func TestRuntime_Run_StopsOnNodeError(t *testing.T) {
	reg := NewRegistry()
	reg.Register("TEST", func(_ *Dependencies) []Node {
		return []Node{fakeNode{name: "a"}, fakeNode{name: "b", err: errors.New("boom")}, fakeNode{name: "c"}}
	})
	rt := NewRuntime(reg, &Dependencies{}, nil)

	tc, err := rt.Run(context.Background(), "TEST", map[string]any{}, "proj-1", uuid.New(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "error", tc.Metadata["status"])
	assert.Equal(t, "completed", tc.NodeResult("a")["status"])
	assert.Equal(t, "error", tc.NodeResult("b")["status"])
	assert.Nil(t, tc.NodeResult("c"))
}

func TestRuntime_Run_UnknownWorkflowTypeFallsBackToPlaceholder(t *testing.T) {
	reg := NewRegistry()
	RegisterPlaceholder(reg)
	rt := NewRuntime(reg, &Dependencies{}, nil)

	tc, err := rt.Run(context.Background(), "NOT_REGISTERED", map[string]any{}, "proj-1", uuid.New(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderWorkflowType, tc.Metadata["workflow_type"])
	assert.Equal(t, "completed", tc.NodeResult("NoopNode")["status"])
}

func TestRuntime_Run_NoFactoriesAtAllReturnsError(t *testing.T) {
	reg := NewRegistry()
	rt := NewRuntime(reg, &Dependencies{}, nil)

	_, err := rt.Run(context.Background(), "NOT_REGISTERED", map[string]any{}, "proj-1", uuid.New(), 0, 0)
	require.Error(t, err)
}

func TestRuntime_Run_RecoversPanickingNode(t *testing.T) {
	reg := NewRegistry()
	reg.Register("TEST", func(_ *Dependencies) []Node {
		return []Node{panickingNode{}}
	})
	rt := NewRuntime(reg, &Dependencies{}, nil)

	tc, err := rt.Run(context.Background(), "TEST", map[string]any{}, "proj-1", uuid.New(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "error", tc.Metadata["status"])
}

type panickingNode struct{}

func (panickingNode) Name() string { return "panicker" }
func (panickingNode) Run(_ context.Context, tc *taskcontext.TaskContext) (*taskcontext.TaskContext, error) {
	panic("node exploded")
}
