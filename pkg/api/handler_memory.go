package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/reasonctl/pkg/coordinate"
)

// getMemoryCellHandler handles GET /memory/cell?coordinate=<encoded>.
func (s *Server) getMemoryCellHandler(c *gin.Context) {
	encoded := c.Query("coordinate")
	if encoded == "" {
		c.JSON(http.StatusBadRequest, errBody("invalid_request", "coordinate query parameter is required", ""))
		return
	}
	coord, err := coordinate.Parse(encoded)
	if err != nil {
		c.JSON(http.StatusBadRequest, errBody("invalid_request", err.Error(), ""))
		return
	}

	cell, found := s.mem.Get(coord, c.Query("persona"))
	if !found {
		c.JSON(http.StatusNotFound, errBody("not_found", "no cell at coordinate", encoded))
		return
	}
	c.JSON(http.StatusOK, okBody(gin.H{"cell": cell}))
}

// patchMemoryHandler handles POST /memory/patch.
func (s *Server) patchMemoryHandler(c *gin.Context) {
	var req PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errBody("invalid_request", err.Error(), ""))
		return
	}

	coord := coordinate.Coordinate{
		Pillar:         req.Pillar,
		Sector:         req.Sector,
		Honeycomb:      req.Honeycomb,
		Branch:         req.Branch,
		Node:           req.Node,
		Regulatory:     req.Regulatory,
		Compliance:     req.Compliance,
		RoleKnowledge:  req.RoleKnowledge,
		RoleSector:     req.RoleSector,
		RoleRegulatory: req.RoleRegulatory,
		RoleCompliance: req.RoleCompliance,
		Location:       req.Location,
		Temporal:       req.Temporal,
	}
	if err := coord.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, errBody("invalid_request", err.Error(), ""))
		return
	}

	cell := s.mem.Patch(coord, req.Value, req.Meta, req.Persona)
	c.JSON(http.StatusOK, okBody(gin.H{"cell": cell}))
}
