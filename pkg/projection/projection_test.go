package projection

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProject_EmptyTaskContextIsIdle(t *testing.T) {
	p := Project(json.RawMessage(`{}`), "exec-1", "proj-1")
	assert.Equal(t, StatusIdle, p.Status)
	assert.Equal(t, 0, p.Progress)
	assert.Empty(t, p.CurrentTask)
}

func TestProject_PreparedIsInitializing(t *testing.T) {
	tc := []byte(`{"metadata":{"status":"prepared","task_id":"t1"},"nodes":{}}`)
	p := Project(tc, "exec-1", "proj-1")
	assert.Equal(t, StatusInitializing, p.Status)
}

func TestProject_RunningNodeIsRunning(t *testing.T) {
	tc := []byte(`{"metadata":{"status":"running","task_id":"t1"},"nodes":{"a":{"status":"completed"},"b":{"status":"running"}}}`)
	p := Project(tc, "exec-1", "proj-1")
	assert.Equal(t, StatusRunning, p.Status)
	assert.Equal(t, 50, p.Progress)
	assert.Equal(t, "t1", p.CurrentTask)
}

func TestProject_RunningFallsBackToCamelCaseTaskId(t *testing.T) {
	tc := []byte(`{"metadata":{"status":"running","taskId":"evt-123"},"nodes":{"a":{"status":"running"}}}`)
	p := Project(tc, "exec-1", "proj-1")
	assert.Equal(t, StatusRunning, p.Status)
	assert.Equal(t, "evt-123", p.CurrentTask)
}

func TestProject_SnakeCaseTaskIdTakesPrecedenceOverCamelCase(t *testing.T) {
	tc := []byte(`{"metadata":{"status":"running","task_id":"t1","taskId":"evt-123"},"nodes":{"a":{"status":"running"}}}`)
	p := Project(tc, "exec-1", "proj-1")
	assert.Equal(t, "t1", p.CurrentTask)
}

func TestProject_AllCompletedIsCompleted(t *testing.T) {
	tc := []byte(`{"metadata":{},"nodes":{"a":{"status":"completed"},"b":{"status":"completed"}}}`)
	p := Project(tc, "exec-1", "proj-1")
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, 100, p.Progress)
}

func TestProject_AnyErrorNodeTakesPrecedence(t *testing.T) {
	tc := []byte(`{"metadata":{},"nodes":{"a":{"status":"completed"},"b":{"status":"error"}}}`)
	p := Project(tc, "exec-1", "proj-1")
	assert.Equal(t, StatusError, p.Status)
}

func TestProject_MalformedJSONDegradesToError(t *testing.T) {
	p := Project(json.RawMessage(`not json`), "exec-1", "proj-1")
	assert.Equal(t, StatusError, p.Status)
	assert.Equal(t, 0, p.Progress)
}

func TestProject_NonObjectMetadataAndNodesTreatedAsEmpty(t *testing.T) {
	tc := []byte(`{"metadata":"oops","nodes":[1,2,3]}`)
	p := Project(tc, "exec-1", "proj-1")
	assert.Equal(t, StatusIdle, p.Status)
	assert.Equal(t, 0, p.Progress)
}

func TestProject_CustomerIDFromSlash(t *testing.T) {
	p := Project(json.RawMessage(`{}`), "exec-1", "acme/widget-factory")
	assert.Equal(t, "acme", p.CustomerID)
}

func TestProject_NoCustomerIDWithoutSlash(t *testing.T) {
	p := Project(json.RawMessage(`{}`), "exec-1", "widget-factory")
	assert.Empty(t, p.CustomerID)
}

func TestTransitionAllowed(t *testing.T) {
	assert.True(t, TransitionAllowed(StatusIdle, StatusInitializing))
	assert.True(t, TransitionAllowed(StatusRunning, StatusPaused))
	assert.False(t, TransitionAllowed(StatusError, StatusRunning))
	assert.False(t, TransitionAllowed(StatusCompleted, StatusRunning))
	assert.False(t, TransitionAllowed("bogus", StatusRunning))
}

func TestValidTransitions_ListsSortedTargets(t *testing.T) {
	targets := ValidTransitions(StatusRunning)
	assert.NotEmpty(t, targets)
	assert.True(t, sort.StringsAreSorted(targets))
	for _, target := range targets {
		assert.True(t, TransitionAllowed(StatusRunning, target))
	}
}

func TestValidTransitions_EmptyForTerminalOrUnknownStatus(t *testing.T) {
	assert.Empty(t, ValidTransitions(StatusError))
	assert.Empty(t, ValidTransitions("bogus"))
}
