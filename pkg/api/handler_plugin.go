package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// reloadPluginsHandler handles POST /plugin/ka/reload: re-reads every
// manifest in the KA directory and atomically swaps the registry table.
func (s *Server) reloadPluginsHandler(c *gin.Context) {
	if err := s.kaLoader.Load(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, okBody(gin.H{"names": s.ka.Names()}))
}

// listPluginsHandler handles GET /plugin/ka/list.
func (s *Server) listPluginsHandler(c *gin.Context) {
	names := s.ka.Names()
	metas := make([]gin.H, 0, len(names))
	for _, name := range names {
		meta, ok := s.ka.GetMeta(name)
		if !ok {
			continue
		}
		metas = append(metas, gin.H{
			"name":        meta.Name,
			"description": meta.Description,
			"version":     meta.Version,
			"author":      meta.Author,
		})
	}
	c.JSON(http.StatusOK, okBody(gin.H{"plugins": metas}))
}

// runPluginHandler handles POST /plugin/ka/run/:name. A missing or
// crashing KA is not an HTTP error: Registry.Call always returns a
// well-formed Result (spec.md §8 scenario E), so this always answers 200.
func (s *Server) runPluginHandler(c *gin.Context) {
	name := c.Param("name")

	var body struct {
		SliceInput map[string]any `json:"slice_input"`
		Context    map[string]any `json:"context"`
	}
	_ = c.ShouldBindJSON(&body)

	result := s.ka.Call(name, body.SliceInput, body.Context)
	c.JSON(http.StatusOK, gin.H{
		"output":     result.Output,
		"confidence": result.Confidence,
		"entropy":    result.Entropy,
		"trace":      result.Trace,
	})
}
