// Package api provides the HTTP surface of the orchestrator: raw event
// ingestion, the lifecycle control endpoints, the WebSocket upgrade, and
// the liveness probe, grounded on this module's gin-based router.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/devteam-orchestrator/pkg/config"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/database"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/eventstore"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/lifecycle"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/version"
	"github.com/codeready-toolchain/devteam-orchestrator/pkg/wshub"
)

// Server is the HTTP API server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	cfg        *config.Config
	dbClient   *database.Client
	store      *eventstore.Store
	lifecycle  *lifecycle.Service
	hub        *wshub.Hub
	ingestRate *ingestLimiter
}

// NewServer builds the gin engine and registers every route.
func NewServer(cfg *config.Config, dbClient *database.Client, store *eventstore.Store, lc *lifecycle.Service, hub *wshub.Hub) *Server {
	gin.SetMode(cfg.Server.GinMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), securityHeaders())

	s := &Server{
		engine:     engine,
		cfg:        cfg,
		dbClient:   dbClient,
		store:      store,
		lifecycle:  lc,
		hub:        hub,
		ingestRate: newIngestLimiter(cfg.Server.IngestRatePerSecond, cfg.Server.IngestBurst),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.healthHandler)

	s.engine.POST("/events", s.ingestRate.middleware(), s.submitEventHandler)

	automation := s.engine.Group("/api/devteam/automation")
	automation.Use(s.ingestRate.middleware())
	automation.POST("/initialize", s.initializeHandler)
	automation.GET("/status/:project_id", s.statusHandler)
	automation.POST("/pause/:project_id", s.pauseHandler)
	automation.POST("/resume/:project_id", s.resumeHandler)
	automation.POST("/stop/:project_id", s.stopHandler)

	ws := s.engine.Group("/api/v1/ws")
	ws.Use(serviceAuth(s.cfg.WebSocket.ServiceKey))
	ws.GET("/devteam", s.wsHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
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

	checks := map[string]string{}
	status := "healthy"
	httpStatus := http.StatusOK

	if _, err := database.Health(reqCtx, s.dbClient.DB()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
		checks["database"] = err.Error()
	} else {
		checks["database"] = "ok"
	}

	c.JSON(httpStatus, ok(HealthResponse{
		Status:  status,
		Version: version.Full(),
		Checks:  checks,
	}))
}
