package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/apperr"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/lifecycle"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/workflow"
)

// submitEventRequest mirrors the submission payload shape (spec §3): only
// the fields the ingestion path inspects are typed, everything else rides
// along in the raw body persisted to the Event.
type submitEventRequest struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	ProjectID string         `json:"project_id"`
	Metadata  map[string]any `json:"metadata"`
}

type submitEventResponse struct {
	EventID       string  `json:"event_id"`
	TaskID        *string `json:"task_id"`
	CorrelationID string  `json:"correlation_id"`
	Status        string  `json:"status"`
	EventType     string  `json:"event_type"`
}

// submitEventHandler handles POST /events. It validates the body is a JSON
// object, resolves workflow_type (falling back to PLACEHOLDER), persists
// the Event, and returns 202. There is no separate queue to enqueue into —
// the persisted row is itself what the dispatcher polls, so "enqueue
// failure" (spec §4.1) cannot occur independently of the Create call.
func (s *Server) submitEventHandler(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		respondError(c, apperr.Wrap(apperr.Validation, "failed to read request body", err))
		return
	}

	var req submitEventRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		respondError(c, apperr.Wrap(apperr.Validation, "request body must be a JSON object", err))
		return
	}
	if err := lifecycle.ValidateProjectID(req.ProjectID); err != nil {
		respondError(c, apperr.New(apperr.Validation, "project_id is invalid").WithField("project_id", "must match ^[A-Za-z0-9_/-]+$"))
		return
	}

	workflowType := resolveWorkflowType(req.Type)

	evt, err := s.store.Create(c.Request.Context(), raw, workflowType, nil)
	if err != nil {
		respondError(c, err)
		return
	}

	correlationID := ""
	if req.Metadata != nil {
		if v, ok := req.Metadata["correlation_id"].(string); ok {
			correlationID = v
		}
	}
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	taskID := evt.ID.String()
	c.JSON(http.StatusAccepted, ok(submitEventResponse{
		EventID:       evt.ID.String(),
		TaskID:        &taskID,
		CorrelationID: correlationID,
		Status:        "accepted",
		EventType:     workflowType,
	}))
}

// resolveWorkflowType maps the submission's type discriminator to a
// registered workflow type, falling back to PLACEHOLDER for anything
// unrecognized (spec §4.1: "unknown values fall back to PLACEHOLDER").
func resolveWorkflowType(t string) string {
	switch t {
	case workflow.AutomationWorkflowType:
		return workflow.AutomationWorkflowType
	case workflow.PlaceholderWorkflowType:
		return workflow.PlaceholderWorkflowType
	default:
		return workflow.PlaceholderWorkflowType
	}
}
