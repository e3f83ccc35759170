// Package api exposes the workflow CRUD and run-invocation HTTP surface.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/internal/validation"
)

// Server holds the dependencies for the API server.
type Server struct {
	store     store.Store
	validator *validation.DocumentValidator
	simRunner *engine.Runner
	runner    *engine.Runner // nil when no live backend is configured
	logger    *slog.Logger

	echo *echo.Echo
}

// NewServer creates a Server. runner may be nil; live run requests then
// answer 503.
func NewServer(st store.Store, validator *validation.DocumentValidator, simRunner, runner *engine.Runner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:     st,
		validator: validator,
		simRunner: simRunner,
		runner:    runner,
		logger:    logger,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s.registerRoutes(e)
	s.echo = e
	return s
}

func (s *Server) registerRoutes(e *echo.Echo) {
	g := e.Group("/api")

	g.GET("/health", s.Health)

	g.POST("/workflows", s.CreateWorkflow)
	g.GET("/workflows", s.ListWorkflows)
	g.POST("/workflows/validate", s.ValidateWorkflow)
	g.GET("/workflows/:id", s.GetWorkflow)
	g.PUT("/workflows/:id", s.UpdateWorkflow)
	g.DELETE("/workflows/:id", s.DeleteWorkflow)

	g.POST("/workflows/:id/run", s.RunWorkflow)
	g.POST("/workflows/:id/simulate", s.SimulateWorkflow)
	g.GET("/workflows/:id/runs", s.ListWorkflowRuns)

	g.GET("/runs/:id", s.GetRun)
	g.GET("/exports/:id", s.GetExport)
}

// Handler returns the underlying HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Start blocks serving HTTP on addr until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.echo.Start(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.echo.Shutdown(context.Background())
	}
}

// Health reports liveness.
// (GET /api/health)
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}
