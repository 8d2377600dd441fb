package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/apperr"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/lifecycle"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/projection"
)

type initializeRequest struct {
	ProjectID string         `json:"project_id"`
	Task      map[string]any `json:"task"`
	Priority  int            `json:"priority"`
	Options   map[string]any `json:"options"`
}

type initializeResponse struct {
	ExecutionID string `json:"execution_id"`
	EventID     string `json:"event_id"`
}

// initializeHandler handles POST /api/devteam/automation/initialize.
func (s *Server) initializeHandler(c *gin.Context) {
	var req initializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.Validation, "invalid request body", err))
		return
	}

	result, err := s.lifecycle.Initialize(c.Request.Context(), lifecycle.InitializeRequest{
		ProjectID: req.ProjectID,
		Task:      req.Task,
		Priority:  req.Priority,
		Options:   req.Options,
	})
	if err != nil {
		var replay *lifecycle.IdempotentReplayError
		if errors.As(err, &replay) {
			c.JSON(http.StatusConflict, okMessage("idempotency_key already processed", initializeResponse{
				ExecutionID: replay.ExecutionID,
				EventID:     replay.EventID.String(),
			}))
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, ok(initializeResponse{
		ExecutionID: result.ExecutionID,
		EventID:     result.EventID.String(),
	}))
}

// statusHandler handles GET /api/devteam/automation/status/:project_id.
func (s *Server) statusHandler(c *gin.Context) {
	status, err := s.lifecycle.Status(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ok(status))
}

// pauseHandler handles POST /api/devteam/automation/pause/:project_id.
func (s *Server) pauseHandler(c *gin.Context) {
	s.transitionHandler(c, s.lifecycle.Pause)
}

// resumeHandler handles POST /api/devteam/automation/resume/:project_id.
func (s *Server) resumeHandler(c *gin.Context) {
	s.transitionHandler(c, s.lifecycle.Resume)
}

// stopHandler handles POST /api/devteam/automation/stop/:project_id.
func (s *Server) stopHandler(c *gin.Context) {
	s.transitionHandler(c, s.lifecycle.Stop)
}

func (s *Server) transitionHandler(c *gin.Context, transition func(ctx context.Context, projectID string) (*projection.StatusProjection, error)) {
	status, err := transition(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ok(status))
}
