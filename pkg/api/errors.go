package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// respondError maps an internal error to an HTTP status and the
// {ok:false, error:{...}} envelope, matching the teacher's
// mapServiceError pattern: known error shapes get a specific status,
// anything else is logged and returns 500.
func respondError(c *gin.Context, err error) {
	msg := err.Error()
	status := http.StatusInternalServerError
	kind := "internal_error"

	switch {
	case strings.Contains(msg, "not found"):
		status, kind = http.StatusNotFound, "not_found"
	case strings.Contains(msg, "terminal"), strings.Contains(msg, "already"), strings.Contains(msg, "not paused"), strings.Contains(msg, "cannot step"):
		status, kind = http.StatusConflict, "invalid_state"
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		status, kind = http.StatusBadRequest, "invalid_request"
	default:
		slog.Error("unhandled api error", "error", err)
	}

	c.JSON(status, errBody(kind, msg, ""))
}
