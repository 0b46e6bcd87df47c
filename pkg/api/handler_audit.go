package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/reasonctl/pkg/audit"
)

// getAuditLogHandler handles GET /audit/log, filtering by the query
// parameters named in spec.md §6.
func (s *Server) getAuditLogHandler(c *gin.Context) {
	q := audit.Query{
		EventType:    audit.EventType(c.Query("event_type")),
		SimulationID: c.Query("simulation_id"),
		Persona:      c.Query("persona"),
	}
	if stageStr := c.Query("stage"); stageStr != "" {
		stage, err := strconv.Atoi(stageStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, errBody("invalid_request", "stage must be an integer", stageStr))
			return
		}
		q.Stage = &stage
	}
	if afterStr := c.Query("after"); afterStr != "" {
		after, err := time.Parse(time.RFC3339, afterStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, errBody("invalid_request", "after must be RFC3339", afterStr))
			return
		}
		q.AfterTS = after
	}
	if beforeStr := c.Query("before"); beforeStr != "" {
		before, err := time.Parse(time.RFC3339, beforeStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, errBody("invalid_request", "before must be RFC3339", beforeStr))
			return
		}
		q.BeforeTS = before
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, errBody("invalid_request", "limit must be an integer", limitStr))
			return
		}
		q.Limit = limit
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, errBody("invalid_request", "offset must be an integer", offsetStr))
			return
		}
		q.Offset = offset
	}

	entries := s.auditLog.Query(q)
	c.JSON(http.StatusOK, okBody(gin.H{"entries": entries, "count": len(entries)}))
}

// getAuditBundleHandler handles GET /audit/bundle, a point-in-time export
// of the audit trail for a simulation (or all simulations).
func (s *Server) getAuditBundleHandler(c *gin.Context) {
	var since time.Time
	if sinceStr := c.Query("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, errBody("invalid_request", "since must be RFC3339", sinceStr))
			return
		}
		since = parsed
	}

	bundle := s.auditLog.SnapshotBundle(c.Query("simulation_id"), since)
	c.JSON(http.StatusOK, okBody(gin.H{"bundle": bundle}))
}
