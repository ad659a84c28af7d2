// Package http provides the admin HTTP API of the task stack controller.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
	"github.com/fyrsmithlabs/taskstack/internal/logging"
	"github.com/fyrsmithlabs/taskstack/internal/loop"
	"github.com/fyrsmithlabs/taskstack/internal/manager"
	"github.com/fyrsmithlabs/taskstack/internal/primitive"
	"github.com/fyrsmithlabs/taskstack/internal/task"
	"github.com/fyrsmithlabs/taskstack/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TaskManager is the part of the task manager exposed over HTTP.
type TaskManager interface {
	ID() string

	SetTask(ctx context.Context, spec manager.TaskSpec, state *kinematics.RobotState) error
	RemoveTask(ctx context.Context, name string) error
	RemoveAllTasks(ctx context.Context) error
	ActivateTask(ctx context.Context, name string) error
	DeactivateTask(ctx context.Context, name string) error
	MonitorTask(ctx context.Context, name string) error
	DemonitorTask(ctx context.Context, name string) error

	RemovePriorityLevel(ctx context.Context, priority uint) error
	ActivatePriorityLevel(ctx context.Context, priority uint) error
	DeactivatePriorityLevel(ctx context.Context, priority uint) error
	MonitorPriorityLevel(ctx context.Context, priority uint) error
	DemonitorPriorityLevel(ctx context.Context, priority uint) error

	ListTasks(ctx context.Context) ([]manager.TaskInfo, error)
	GetTaskMeasures(ctx context.Context) ([]task.Measures, error)

	SetPrimitive(ctx context.Context, spec primitive.Spec) error
	RemovePrimitive(ctx context.Context, name string) error
	RemoveAllPrimitives(ctx context.Context) error
	ListPrimitives(ctx context.Context) ([]*primitive.Primitive, error)
	RenderPrimitives(ctx context.Context) error
}

// StateSource supplies the robot state new tasks are initialized against.
type StateSource interface {
	State() *kinematics.RobotState
}

// LoopStats reports control loop counters.
type LoopStats interface {
	Stats() loop.Stats
}

// TelemetryHealth reports exporter health.
type TelemetryHealth interface {
	Health() telemetry.HealthStatus
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Option configures a Server.
type Option func(*Server)

// WithStateSource sets where SetTask takes its robot state from. Without
// one the manager's latest state is used.
func WithStateSource(src StateSource) Option {
	return func(s *Server) { s.state = src }
}

// WithLoopStats adds loop counters to /health.
func WithLoopStats(src LoopStats) Option {
	return func(s *Server) { s.loop = src }
}

// WithTelemetry adds exporter health to /health.
func WithTelemetry(src TelemetryHealth) Option {
	return func(s *Server) { s.telemetry = src }
}

// WithGatherer serves g at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithHTTPMetrics records request metrics.
func WithHTTPMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	tm     TaskManager
	logger *zap.Logger
	config *Config

	state     StateSource
	loop      LoopStats
	telemetry TelemetryHealth
	gatherer  prometheus.Gatherer
	metrics   *HTTPMetrics
}

// NewServer creates a new HTTP server.
func NewServer(tm TaskManager, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if tm == nil {
		return nil, fmt.Errorf("task manager cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 9190,
		}
	}

	s := &Server{
		tm:     tm,
		logger: logger,
		config: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext)
	if s.metrics != nil {
		e.Use(s.metrics.MetricsMiddleware())
	}
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

	s.echo = e
	s.registerRoutes()

	return s, nil
}

// requestContext carries the request id into the handler context so the
// manager's logs can be correlated with the request.
func requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		}
		return next(c)
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")

	v1.GET("/tasks", s.handleListTasks)
	v1.DELETE("/tasks", s.handleRemoveAllTasks)
	v1.PUT("/tasks/:name", s.handleSetTask)
	v1.DELETE("/tasks/:name", s.handleRemoveTask)
	for op, fn := range map[string]func(context.Context, string) error{
		"activate":   s.tm.ActivateTask,
		"deactivate": s.tm.DeactivateTask,
		"monitor":    s.tm.MonitorTask,
		"demonitor":  s.tm.DemonitorTask,
	} {
		v1.POST("/tasks/:name/"+op, s.taskOp(fn))
	}

	v1.DELETE("/levels/:priority", s.levelOp(s.tm.RemovePriorityLevel))
	for op, fn := range map[string]func(context.Context, uint) error{
		"activate":   s.tm.ActivatePriorityLevel,
		"deactivate": s.tm.DeactivatePriorityLevel,
		"monitor":    s.tm.MonitorPriorityLevel,
		"demonitor":  s.tm.DemonitorPriorityLevel,
	} {
		v1.POST("/levels/:priority/"+op, s.levelOp(fn))
	}

	v1.GET("/primitives", s.handleListPrimitives)
	v1.DELETE("/primitives", s.handleRemoveAllPrimitives)
	v1.PUT("/primitives/:name", s.handleSetPrimitive)
	v1.DELETE("/primitives/:name", s.handleRemovePrimitive)

	v1.GET("/measures", s.handleMeasures)
	v1.POST("/render", s.handleRender)
	v1.POST("/stack", s.handleApplyStack)
}

// ServeHTTP lets the server be mounted or driven by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
