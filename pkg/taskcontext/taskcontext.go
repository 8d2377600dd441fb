// Package taskcontext defines the shape of an Event's task_context blob and
// the helpers workflow nodes use to read and mutate it. task_context starts
// empty and is seeded on first run, then carried forward, full-replace, by
// every subsequent dispatch (see pkg/eventstore.Store.ReplaceTaskContext).
package taskcontext

import (
	"encoding/json"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/apperr"
)

// TaskContext is the mutable working state threaded through a workflow run.
// Event holds the original submission payload, Metadata holds runtime-derived
// fields (project_id, execution_id, timestamps), and Nodes holds one entry
// per node that has executed, keyed by node name.
type TaskContext struct {
	Event    map[string]any            `json:"event"`
	Metadata map[string]any            `json:"metadata"`
	Nodes    map[string]map[string]any `json:"nodes"`
}

// Empty returns a well-formed, zero-value TaskContext.
func Empty() *TaskContext {
	return &TaskContext{
		Event:    map[string]any{},
		Metadata: map[string]any{},
		Nodes:    map[string]map[string]any{},
	}
}

// IsEmpty reports whether raw is the literal empty-object placeholder a
// freshly created Event carries before its first dispatch.
func IsEmpty(raw json.RawMessage) bool {
	trimmed := trimSpace(raw)
	return len(trimmed) == 0 || string(trimmed) == "{}" || string(trimmed) == "null"
}

func trimSpace(raw json.RawMessage) json.RawMessage {
	start, end := 0, len(raw)
	for start < end && isSpace(raw[start]) {
		start++
	}
	for end > start && isSpace(raw[end-1]) {
		end--
	}
	return raw[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// Decode parses raw into a TaskContext, seeding an empty one if raw is the
// empty placeholder. Returns a Validation error on malformed JSON rather than
// panicking, per the robustness requirement that no node input crashes the
// runtime.
func Decode(raw json.RawMessage) (*TaskContext, error) {
	if IsEmpty(raw) {
		return Empty(), nil
	}

	var tc TaskContext
	if err := json.Unmarshal(raw, &tc); err != nil {
		return nil, apperr.Wrap(apperr.Validation, "task_context is not a well-formed object", err)
	}
	if tc.Event == nil {
		tc.Event = map[string]any{}
	}
	if tc.Metadata == nil {
		tc.Metadata = map[string]any{}
	}
	if tc.Nodes == nil {
		tc.Nodes = map[string]map[string]any{}
	}
	return &tc, nil
}

// Encode serializes tc back to the wire form persisted in events.task_context.
func Encode(tc *TaskContext) (json.RawMessage, error) {
	raw, err := json.Marshal(tc)
	if err != nil {
		return nil, apperr.Wrap(apperr.Service, "failed to encode task_context", err)
	}
	return raw, nil
}

// SeedFromSubmission populates Event and the project_id/execution_id
// metadata fields on first dispatch (spec §4.3 step 1).
func (tc *TaskContext) SeedFromSubmission(submission map[string]any, executionID string) {
	tc.Event = submission
	if tc.Metadata == nil {
		tc.Metadata = map[string]any{}
	}
	if projectID, ok := submission["project_id"]; ok {
		tc.Metadata["project_id"] = projectID
	}
	tc.Metadata["execution_id"] = executionID
}

// ProjectID returns the project_id metadata field, or "" if unset.
func (tc *TaskContext) ProjectID() string {
	return stringField(tc.Metadata, "project_id")
}

// ExecutionID returns the execution_id metadata field, or "" if unset.
func (tc *TaskContext) ExecutionID() string {
	return stringField(tc.Metadata, "execution_id")
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// NodeResult returns the recorded output of a previously run node, or nil.
func (tc *TaskContext) NodeResult(name string) map[string]any {
	if tc.Nodes == nil {
		return nil
	}
	return tc.Nodes[name]
}

// SetNodeResult records a node's output, creating the Nodes map if needed.
func (tc *TaskContext) SetNodeResult(name string, result map[string]any) {
	if tc.Nodes == nil {
		tc.Nodes = map[string]map[string]any{}
	}
	tc.Nodes[name] = result
}
