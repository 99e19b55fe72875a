// Package httpapi provides the HTTP API of the planner.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/agents"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/config"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/runtime"
	"github.com/jeeves-cluster-organization/crewplanner/coreengine/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Server provides HTTP endpoints for planning runs.
type Server struct {
	echo   *echo.Echo
	runner *runtime.Runner
	runs   runtime.RunReader
	logger agents.Logger
}

// NewServer creates a new HTTP server. runs may be nil, in which case the
// read endpoints answer 501. DELETE is served when runs also implements
// runtime.RunDeleter.
func NewServer(runner *runtime.Runner, runs runtime.RunReader, logger agents.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		runner: runner,
		runs:   runs,
		logger: logger.Bind("component", "http_server"),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.logRequests)

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/flows", s.handlePlan)
	v1.GET("/flows", s.handleListRuns)
	v1.GET("/flows/:id", s.handleGetRun)
	v1.DELETE("/flows/:id", s.handleDeleteRun)
}

func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.Info("http_request",
			"method", c.Request().Method,
			"uri", c.Request().RequestURI,
			"status", c.Response().Status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		)
		return nil
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// RunSummary is one entry of GET /api/v1/flows.
type RunSummary struct {
	RunID          string                  `json:"run_id"`
	Status         envelope.RunStatus      `json:"status"`
	Task           string                  `json:"task,omitempty"`
	TerminalReason envelope.TerminalReason `json:"terminal_reason,omitempty"`
	FinalScore     *int                    `json:"final_score,omitempty"`
	Degraded       bool                    `json:"degraded"`
	StartedAt      time.Time               `json:"started_at"`
	FinishedAt     *time.Time              `json:"finished_at,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handlePlan runs a flow synchronously and answers with its artifact.
func (s *Server) handlePlan(c echo.Context) error {
	var body map[string]any
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object")
	}

	cfg, err := s.runner.ConfigFromRequest(body)
	if err != nil {
		return toHTTPError(err)
	}

	artifact, err := s.runner.Plan(c.Request().Context(), cfg)
	if err != nil {
		if artifact != nil && errors.Is(err, context.Canceled) {
			s.logger.Warn("plan_cancelled", "run_id", artifact.RunID)
		}
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, artifact)
}

func (s *Server) handleGetRun(c echo.Context) error {
	if s.runs == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "run store is not configured")
	}
	rec, err := s.runs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// handleDeleteRun removes a stored run. Stores that cannot delete answer 501.
func (s *Server) handleDeleteRun(c echo.Context) error {
	deleter, ok := s.runs.(runtime.RunDeleter)
	if !ok {
		return echo.NewHTTPError(http.StatusNotImplemented, "run store does not support deletion")
	}
	runID := c.Param("id")
	if err := deleter.Delete(c.Request().Context(), runID); err != nil {
		return toHTTPError(err)
	}
	s.logger.Info("run_deleted", "run_id", runID)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListRuns(c echo.Context) error {
	if s.runs == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "run store is not configured")
	}

	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxListLimit)
	}

	recs, err := s.runs.List(c.Request().Context(), limit)
	if err != nil {
		return toHTTPError(err)
	}

	out := make([]RunSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, summarize(rec))
	}
	return c.JSON(http.StatusOK, out)
}

func summarize(rec envelope.RunRecord) RunSummary {
	sum := RunSummary{
		RunID:      rec.RunID,
		Status:     rec.Status,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	}
	if task, ok := rec.Config["task"].(string); ok {
		sum.Task = task
	}
	if rec.Artifact != nil {
		sum.TerminalReason = rec.Artifact.TerminalReason
		sum.FinalScore = rec.Artifact.FinalScore
		sum.Degraded = rec.Artifact.Degraded
	}
	return sum
}

// toHTTPError maps domain errors onto HTTP status codes.
func toHTTPError(err error) *echo.HTTPError {
	switch {
	case config.IsConfigError(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled):
		// 499 Client Closed Request
		return echo.NewHTTPError(499, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve serves on lis until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.echo.Listener = lis
	s.logger.Info("http_server_started", "address", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start("")
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("http_server_stopping")
		return s.echo.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Start listens on address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, address string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}
