// Package server exposes the orchestrator as an HTTP step service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/petasbytes/buildfile-agent/internal/bedrock"
	"github.com/petasbytes/buildfile-agent/internal/metrics"
	"github.com/petasbytes/buildfile-agent/internal/orchestrator"
	"github.com/petasbytes/buildfile-agent/tools"
)

// Server provides HTTP endpoints for step routing.
type Server struct {
	echo    *echo.Echo
	orch    *orchestrator.Orchestrator
	bedrock *bedrock.Handler
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	// MaxBodyBytes caps request bodies; <= 0 means the default of 32 MiB.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// defaultMaxBodyBytes admits a full ReadFile result (100 paths of 100k
// characters each, JSON-escaped) so oversized tool output reaches the
// orchestrator and is truncated there.
const defaultMaxBodyBytes = 32 << 20

// NewServer creates a new HTTP server. toolDefs supply the schemas advertised
// in Bedrock model requests.
func NewServer(orch *orchestrator.Orchestrator, toolDefs []tools.ToolDefinition, logger *zap.Logger, cfg *Config) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		orch:    orch,
		bedrock: &bedrock.Handler{Orch: orch, Tools: toolDefs, Observe: observe},
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/step", s.handleStep)
	v1.POST("/bedrock", s.handleBedrock)
}

// Handler returns the HTTP handler, for embedding and tests.
func (s *Server) Handler() http.Handler { return s.echo }

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) decode(c echo.Context, v any) error {
	body := http.MaxBytesReader(c.Response(), c.Request().Body, s.config.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		s.logger.Warn("invalid request body", zap.String("uri", c.Request().RequestURI), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

func (s *Server) badState(err error) error {
	if errors.Is(err, orchestrator.ErrUnhandledState) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

// handleStep routes one invocation and answers with its envelope.
func (s *Server) handleStep(c echo.Context) error {
	var inv orchestrator.Invocation
	if err := s.decode(c, &inv); err != nil {
		return err
	}
	step, err := inv.StepContext()
	if err != nil {
		return s.badState(err)
	}
	res, err := s.orch.Route(step)
	if err != nil {
		return s.badState(err)
	}
	observe(step.State, res)

	env, err := res.Envelope()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.JSON(http.StatusOK, env)
}

// handleBedrock serves the Bedrock custom orchestration contract.
func (s *Server) handleBedrock(c echo.Context) error {
	var ev bedrock.Event
	if err := s.decode(c, &ev); err != nil {
		return err
	}
	resp, err := s.bedrock.Handle(c.Request().Context(), ev)
	if err != nil {
		return s.badState(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func observe(state orchestrator.StateTag, res orchestrator.Result) {
	var reason string
	if f, ok := res.Action.(orchestrator.Finish); ok {
		reason = string(f.Reason)
	}
	metrics.ObserveStep(state.String(), string(res.Action.Kind()), reason, res.Stats.ToolOutputTruncated)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
