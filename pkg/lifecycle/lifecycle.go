// Package lifecycle implements the C10 control surface: initialize,
// status, pause, resume, stop, scoped by project_id.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/apperr"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/eventstore"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/projection"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/taskcontext"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/workflow"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/wshub"
)

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9_/-]+$`)

const recentEventScanLimit = 100

// InitializeRequest is the minimal submission shape lifecycle.initialize
// builds on the caller's behalf.
type InitializeRequest struct {
	ProjectID string
	Task      map[string]any
	Priority  int
	Options   map[string]any
}

// InitializeResult is returned on successful initialize.
type InitializeResult struct {
	ExecutionID string
	EventID     uuid.UUID
}

// Service implements the lifecycle control endpoints.
type Service struct {
	store             *eventstore.Store
	hub               *wshub.Hub
	log               *slog.Logger
	idempotencyWindow time.Duration
}

func New(store *eventstore.Store, hub *wshub.Hub, idempotencyWindow time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, hub: hub, idempotencyWindow: idempotencyWindow, log: logger}
}

// IdempotentReplayError is returned by Initialize when options.idempotency_key
// matches an Event created within the idempotency window. The caller (the
// ingestion handler) maps this to a 409 replay response.
type IdempotentReplayError struct {
	ExecutionID string
	EventID     uuid.UUID
}

func (e *IdempotentReplayError) Error() string {
	return fmt.Sprintf("idempotency_key already bound to execution %s", e.ExecutionID)
}

func executionIDFromData(data []byte) string {
	var submission struct {
		ExecutionID string `json:"execution_id"`
	}
	_ = json.Unmarshal(data, &submission)
	return submission.ExecutionID
}

func ValidateProjectID(projectID string) error {
	if projectID == "" || len(projectID) > 100 || !projectIDPattern.MatchString(projectID) {
		return apperr.New(apperr.Validation, "project_id is invalid")
	}
	return nil
}

// Initialize persists a temporary Event to obtain a stable event_id, then
// overwrites its data with the full submission payload (spec §4.1).
func (s *Service) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	if err := ValidateProjectID(req.ProjectID); err != nil {
		return nil, err
	}

	var idempotencyKey *string
	if key, ok := req.Options["idempotency_key"].(string); ok && key != "" {
		existing, err := s.store.FindByIdempotencyKey(ctx, key, s.idempotencyWindow)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, &IdempotentReplayError{
				ExecutionID: executionIDFromData(existing.Data),
				EventID:     existing.ID,
			}
		}
		idempotencyKey = &key
	}

	executionID := "exec_" + uuid.New().String()

	placeholder, err := s.store.Create(ctx, []byte(`{}`), workflow.AutomationWorkflowType, idempotencyKey)
	if err != nil {
		return nil, err
	}

	submission := map[string]any{
		"id":           placeholder.ID.String(),
		"type":         workflow.AutomationWorkflowType,
		"execution_id": executionID,
		"project_id":   req.ProjectID,
		"task":         req.Task,
		"priority":     req.Priority,
		"options":      req.Options,
	}
	data, err := json.Marshal(submission)
	if err != nil {
		return nil, apperr.Wrap(apperr.Service, "failed to encode submission", err)
	}
	if err := s.store.OverwriteData(ctx, placeholder.ID, data); err != nil {
		return nil, err
	}

	return &InitializeResult{ExecutionID: executionID, EventID: placeholder.ID}, nil
}

// Status projects the current status of project_id's most recent event.
func (s *Service) Status(ctx context.Context, projectID string) (*projection.StatusProjection, error) {
	if err := ValidateProjectID(projectID); err != nil {
		return nil, err
	}

	evt, err := s.store.FindRecentByProject(ctx, projectID, recentEventScanLimit)
	if err != nil {
		return nil, err
	}
	if evt == nil {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("no event found for project %s", projectID))
	}

	p := projection.Project(evt.TaskContext, evt.ID.String(), projectID)
	return &p, nil
}

// Pause, Resume, and Stop each validate project_id, load the most recent
// event, check the transition table, record the transition, and broadcast
// an execution-update. They differ only in their target status.
func (s *Service) Pause(ctx context.Context, projectID string) (*projection.StatusProjection, error) {
	return s.transition(ctx, projectID, projection.StatusPaused)
}

func (s *Service) Resume(ctx context.Context, projectID string) (*projection.StatusProjection, error) {
	return s.transition(ctx, projectID, projection.StatusRunning)
}

func (s *Service) Stop(ctx context.Context, projectID string) (*projection.StatusProjection, error) {
	return s.transition(ctx, projectID, projection.StatusStopping)
}

func (s *Service) transition(ctx context.Context, projectID, target string) (*projection.StatusProjection, error) {
	if err := ValidateProjectID(projectID); err != nil {
		return nil, err
	}

	evt, err := s.store.FindRecentByProject(ctx, projectID, recentEventScanLimit)
	if err != nil {
		return nil, err
	}
	if evt == nil {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("no event found for project %s", projectID))
	}

	current := projection.Project(evt.TaskContext, evt.ID.String(), projectID)
	if !projection.TransitionAllowed(current.Status, target) {
		return nil, apperr.New(apperr.Conflict, fmt.Sprintf("cannot transition from %s to %s", current.Status, target)).
			WithField("from", current.Status).WithField("to", target).
			WithDetails(map[string]any{"valid_transitions": projection.ValidTransitions(current.Status)})
	}

	tc, err := taskcontext.Decode(evt.TaskContext)
	if err != nil {
		return nil, err
	}
	tc.Metadata["status"] = target
	tc.Metadata["transitioned_at"] = time.Now().UTC().Format(time.RFC3339)

	raw, err := taskcontext.Encode(tc)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceTaskContext(ctx, evt.ID, raw); err != nil {
		return nil, err
	}

	s.broadcastUpdate(projectID, evt.ID.String(), target)

	updated := projection.Project(raw, evt.ID.String(), projectID)
	return &updated, nil
}

func (s *Service) broadcastUpdate(projectID, executionID, status string) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{"execution_id": executionID, "status": status})
	if err != nil {
		return
	}
	if err := s.hub.Broadcast(wshub.Envelope{
		Type:      "execution-update",
		Ts:        time.Now().UTC().Format(time.RFC3339Nano),
		ProjectID: projectID,
		Payload:   payload,
	}); err != nil {
		s.log.Warn("failed to broadcast transition", "project_id", projectID, "error", err)
	}
}
