package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// startSimulationHandler handles POST /simulation/start.
func (s *Server) startSimulationHandler(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errBody("invalid_request", err.Error(), ""))
		return
	}

	result, err := s.exec.Run(c.Request.Context(), req.Prompt, req.UserID, 0)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, okBody(gin.H{
		"session_id":   result.Session.ID,
		"run_id":       result.RunID,
		"status":       result.Session.Status,
		"final_output": result.FinalOutput,
	}))
}

// stepSimulationHandler handles POST /simulation/step/{id}.
func (s *Server) stepSimulationHandler(c *gin.Context) {
	id := c.Param("id")

	result, err := s.exec.Step(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, okBody(gin.H{
		"confidence": result.Confidence,
		"escalate":   result.Escalate,
		"output":     result.Output,
	}))
}

// getSessionHandler handles GET /simulation/session/{id}.
func (s *Server) getSessionHandler(c *gin.Context) {
	id := c.Param("id")

	sess, found := s.sessions.Get(id)
	if !found {
		c.JSON(http.StatusNotFound, errBody("not_found", "session not found", id))
		return
	}

	c.JSON(http.StatusOK, okBody(gin.H{"session": sess}))
}

// pauseSimulationHandler handles POST /simulation/pause/{id}.
func (s *Server) pauseSimulationHandler(c *gin.Context) {
	id := c.Param("id")
	if err := s.exec.Pause(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, okBody(nil))
}

// resumeSimulationHandler handles POST /simulation/resume/{id}.
func (s *Server) resumeSimulationHandler(c *gin.Context) {
	id := c.Param("id")
	if err := s.exec.Resume(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, okBody(nil))
}

// containSimulationHandler handles POST /simulation/contain/{id}.
func (s *Server) containSimulationHandler(c *gin.Context) {
	id := c.Param("id")

	var req ContainRequest
	_ = c.ShouldBindJSON(&req) // body is optional; empty reason is fine
	if req.Reason == "" {
		req.Reason = "operator requested containment"
	}

	if err := s.exec.Contain(id, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, okBody(nil))
}
