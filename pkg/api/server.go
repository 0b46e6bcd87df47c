// Package api provides the gin HTTP/WebSocket surface for reasonctl,
// translated from tarsy's echo-based handlers (pkg/api/server.go,
// handler_ws.go) to gin, the stack cmd/tarsy/main.go itself uses for
// its own minimal router.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/reasonctl/pkg/audit"
	"github.com/codeready-toolchain/reasonctl/pkg/compliance"
	"github.com/codeready-toolchain/reasonctl/pkg/config"
	"github.com/codeready-toolchain/reasonctl/pkg/hub"
	"github.com/codeready-toolchain/reasonctl/pkg/memory"
	"github.com/codeready-toolchain/reasonctl/pkg/pipeline"
	"github.com/codeready-toolchain/reasonctl/pkg/plugin"
	"github.com/codeready-toolchain/reasonctl/pkg/sessionstore"
)

// Server is the HTTP/WebSocket API server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	cfg        *config.Config
	sessions   *sessionstore.Store
	mem        *memory.Graph
	auditLog   *audit.Log
	compliance *compliance.Engine
	ka         *plugin.Registry
	kaLoader   *plugin.Loader
	hub        *hub.Hub
	exec       *pipeline.Executor
}

// NewServer wires a Server from the process-wide singletons (spec.md §6
// "Process-wide state") and registers all routes.
func NewServer(
	cfg *config.Config,
	sessions *sessionstore.Store,
	mem *memory.Graph,
	auditLog *audit.Log,
	complianceEngine *compliance.Engine,
	ka *plugin.Registry,
	kaLoader *plugin.Loader,
	h *hub.Hub,
	exec *pipeline.Executor,
) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(), securityHeaders())

	s := &Server{
		engine:     engine,
		cfg:        cfg,
		sessions:   sessions,
		mem:        mem,
		auditLog:   auditLog,
		compliance: complianceEngine,
		ka:         ka,
		kaLoader:   kaLoader,
		hub:        h,
		exec:       exec,
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers every route named in spec.md §6's indicative
// HTTP surface.
func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)

	sim := s.engine.Group("/simulation")
	sim.POST("/start", s.startSimulationHandler)
	sim.POST("/step/:id", s.stepSimulationHandler)
	sim.GET("/session/:id", s.getSessionHandler)
	sim.POST("/pause/:id", s.pauseSimulationHandler)
	sim.POST("/resume/:id", s.resumeSimulationHandler)
	sim.POST("/contain/:id", s.containSimulationHandler)

	mem := s.engine.Group("/memory")
	mem.GET("/cell", s.getMemoryCellHandler)
	mem.POST("/patch", s.patchMemoryHandler)

	auditGroup := s.engine.Group("/audit")
	auditGroup.GET("/log", s.getAuditLogHandler)
	auditGroup.GET("/bundle", s.getAuditBundleHandler)

	pl := s.engine.Group("/plugin/ka")
	pl.POST("/reload", s.reloadPluginsHandler)
	pl.GET("/list", s.listPluginsHandler)
	pl.POST("/run/:name", s.runPluginHandler)

	s.engine.GET("/ws", s.wsHandler)
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener.
// Used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.engine}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	_ = reqCtx

	c.JSON(http.StatusOK, gin.H{
		"ok":     true,
		"status": "healthy",
		"stats":  s.cfg.Stats(),
	})
}
