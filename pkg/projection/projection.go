// Package projection derives the public status of a running execution from
// its task_context, grounded on the status projection service this module's
// precedence rules were distilled from. Unlike the source, status precedence
// here is error > completed > running > initializing > idle (see DESIGN.md);
// the source's idle-first ordering is a documented defect, not replicated.
package projection

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
)

// Artifacts holds the file/log side-channel of an execution.
type Artifacts struct {
	RepoPath      string   `json:"repo_path,omitempty"`
	Branch        string   `json:"branch,omitempty"`
	Logs          []string `json:"logs"`
	FilesModified []string `json:"files_modified"`
}

// Totals summarizes node completion counts.
type Totals struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// StatusProjection is the public, read-only view of an execution.
type StatusProjection struct {
	ExecutionID string    `json:"execution_id"`
	ProjectID   string    `json:"project_id"`
	CustomerID  string    `json:"customer_id,omitempty"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	CurrentTask string    `json:"current_task,omitempty"`
	Totals      Totals    `json:"totals"`
	Branch      string    `json:"branch,omitempty"`
	Artifacts   Artifacts `json:"artifacts"`
	StartedAt   string    `json:"started_at,omitempty"`
	UpdatedAt   string    `json:"updated_at"`
}

const (
	StatusIdle         = "idle"
	StatusInitializing = "initializing"
	StatusRunning      = "running"
	StatusPaused       = "paused"
	StatusStopping     = "stopping"
	StatusStopped      = "stopped"
	StatusCompleted    = "completed"
	StatusError        = "error"
)

// transitions is the allowed state-change table C10 validates requests
// against.
var transitions = map[string]map[string]bool{
	StatusIdle:         {StatusInitializing: true, StatusError: true},
	StatusInitializing: {StatusRunning: true, StatusError: true},
	StatusRunning:      {StatusPaused: true, StatusStopping: true, StatusCompleted: true, StatusError: true},
	StatusPaused:       {StatusRunning: true, StatusError: true},
	StatusStopping:     {StatusStopped: true, StatusError: true},
	StatusStopped:      {StatusError: true},
	StatusCompleted:    {StatusError: true},
	StatusError:        {},
}

// TransitionAllowed reports whether from -> to is a permitted status change.
func TransitionAllowed(from, to string) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// ValidTransitions returns the sorted set of statuses reachable from from,
// for surfacing in a 409 response body (spec §8 scenario 5).
func ValidTransitions(from string) []string {
	next, ok := transitions[from]
	if !ok || len(next) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(next))
	for to := range next {
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}

// Project derives a StatusProjection from raw task_context bytes. It never
// panics or returns an error: malformed input degrades to a status=error,
// progress=0 projection with empty artifacts, logged at warn level.
func Project(taskContext json.RawMessage, executionID, projectID string) (projection StatusProjection) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("status projection recovered from panic", "error", r, "execution_id", executionID)
			projection = errorProjection(executionID, projectID)
		}
	}()

	var envelope struct {
		Metadata json.RawMessage `json:"metadata"`
		Nodes    json.RawMessage `json:"nodes"`
	}
	if len(taskContext) > 0 {
		if err := json.Unmarshal(taskContext, &envelope); err != nil {
			slog.Warn("status projection failed to parse task_context", "error", err, "execution_id", executionID)
			return errorProjection(executionID, projectID)
		}
	}

	parsed := struct {
		Metadata map[string]any
		Nodes    map[string]map[string]any
	}{
		Metadata: decodeMetadata(envelope.Metadata),
		Nodes:    decodeNodes(envelope.Nodes),
	}

	completed, total, hasError, hasRunning := 0, 0, false, false
	for _, node := range parsed.Nodes {
		total++
		status, _ := node["status"].(string)
		switch status {
		case "error":
			hasError = true
		case "completed":
			completed++
		case "running":
			hasRunning = true
		}
	}

	status := deriveStatus(hasError, completed, total, hasRunning, stringField(parsed.Metadata, "status"))

	progress := 0
	if total > 0 {
		progress = clamp(100*completed/total, 0, 100)
	}

	currentTask := stringFieldWithFallbacks(parsed.Metadata, "task_id", "taskId")
	if status == StatusIdle {
		currentTask = ""
	}

	customerID := ""
	if projectID != "" && strings.Contains(projectID, "/") {
		customerID = strings.SplitN(projectID, "/", 2)[0]
	}

	return StatusProjection{
		ExecutionID: executionID,
		ProjectID:   projectID,
		CustomerID:  customerID,
		Status:      status,
		Progress:    progress,
		CurrentTask: currentTask,
		Totals:      Totals{Completed: completed, Total: total},
		Branch:      stringField(parsed.Metadata, "branch"),
		Artifacts: Artifacts{
			RepoPath:      stringField(parsed.Metadata, "repo_path"),
			Branch:        stringField(parsed.Metadata, "branch"),
			Logs:          stringSliceField(parsed.Metadata, "logs"),
			FilesModified: stringSliceField(parsed.Metadata, "files_modified"),
		},
		StartedAt: stringField(parsed.Metadata, "started_at"),
		UpdatedAt: stringField(parsed.Metadata, "updated_at"),
	}
}

// decodeMetadata returns an empty map if raw is absent or not a JSON object.
func decodeMetadata(raw json.RawMessage) map[string]any {
	m := map[string]any{}
	if len(raw) == 0 {
		return m
	}
	_ = json.Unmarshal(raw, &m)
	return m
}

// decodeNodes returns an empty map if raw is absent or not a JSON object of
// objects; individual malformed entries are dropped rather than failing
// the whole projection.
func decodeNodes(raw json.RawMessage) map[string]map[string]any {
	nodes := map[string]map[string]any{}
	if len(raw) == 0 {
		return nodes
	}
	var rawNodes map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rawNodes); err != nil {
		return nodes
	}
	for name, nodeRaw := range rawNodes {
		var node map[string]any
		if err := json.Unmarshal(nodeRaw, &node); err != nil {
			continue
		}
		nodes[name] = node
	}
	return nodes
}

func deriveStatus(hasError bool, completed, total int, hasRunning bool, metadataStatus string) string {
	switch {
	case hasError:
		return StatusError
	case total > 0 && completed == total:
		return StatusCompleted
	case hasRunning || completed > 0:
		return StatusRunning
	case metadataStatus == "prepared":
		return StatusInitializing
	default:
		return StatusIdle
	}
}

func errorProjection(executionID, projectID string) StatusProjection {
	return StatusProjection{
		ExecutionID: executionID,
		ProjectID:   projectID,
		Status:      StatusError,
		Progress:    0,
		Totals:      Totals{},
		Artifacts:   Artifacts{},
	}
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// stringFieldWithFallbacks tries each key in order and returns the first
// non-empty string found, matching the original projection's tolerance for
// a field recorded under more than one casing.
func stringFieldWithFallbacks(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringField(m, key); s != "" {
			return s
		}
	}
	return ""
}

func stringSliceField(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	raw, ok := m[key]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
