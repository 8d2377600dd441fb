package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/apperr"
)

// statusForKind maps an apperr.Kind to the HTTP status code the edge
// returns for it.
func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusUnprocessableEntity
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.CancelledKind:
		return http.StatusGone
	case apperr.ContainerErr, apperr.AiderExecution, apperr.Repository, apperr.Service:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the standard error envelope for err, logging
// unexpected (Service-kind, non-*apperr.Error) failures server-side.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusForKind(kind)

	if status == http.StatusInternalServerError {
		slog.Error("unhandled request error", "error", err)
	}

	resp := fail(string(kind), err.Error())
	resp.Data = apperr.DetailsOf(err)
	c.JSON(status, resp)
}
