package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/fyrsmithlabs/taskstack/internal/faults"
	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
	"github.com/fyrsmithlabs/taskstack/internal/manager"
	"github.com/fyrsmithlabs/taskstack/internal/primitive"
	"github.com/fyrsmithlabs/taskstack/internal/stackfile"
	"github.com/fyrsmithlabs/taskstack/internal/task"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// maxStackSize bounds POST /api/v1/stack bodies.
const maxStackSize = 1 << 20

// errBadRequest marks malformed requests.
var errBadRequest = fmt.Errorf("%w: bad request", faults.ErrValidation)

// httpStatus maps a fault status to the HTTP status code.
func httpStatus(status int) int {
	switch status {
	case faults.StatusOK:
		return http.StatusOK
	case faults.StatusValidation:
		return http.StatusBadRequest
	case faults.StatusNotFound:
		return http.StatusNotFound
	case faults.StatusKinematic, faults.StatusConsistency, faults.StatusHandleExpired:
		return http.StatusUnprocessableEntity
	case faults.StatusUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// reply writes the envelope for err.
func (s *Server) reply(c echo.Context, err error) error {
	status := manager.StatusCode(err)
	resp := Response{Status: status}
	if err != nil {
		resp.Error = err.Error()
		s.logger.Debug("request failed",
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	return c.JSON(httpStatus(status), resp)
}

// handleError renders echo's own errors (unknown route, method not allowed)
// in the response envelope.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	status := faults.StatusInternal
	switch code {
	case http.StatusNotFound:
		status = faults.StatusNotFound
	case http.StatusBadRequest, http.StatusMethodNotAllowed, http.StatusRequestEntityTooLarge:
		status = faults.StatusValidation
	}
	if err := c.JSON(code, Response{Status: status, Error: msg}); err != nil {
		s.logger.Warn("write error response", zap.Error(err))
	}
}

func (s *Server) robotState() *kinematics.RobotState {
	if s.state == nil {
		return nil
	}
	return s.state.State()
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	resp := HealthResponse{
		ControllerID: s.tm.ID(),
		Counts:       s.counts(ctx),
	}
	if s.loop != nil {
		stats := s.loop.Stats()
		resp.Loop = &stats
	}
	if s.telemetry != nil {
		h := s.telemetry.Health()
		resp.Telemetry = &h
	}
	if resp.Counts.Tasks < 0 {
		resp.Status = faults.StatusUnavailable
		resp.Error = manager.ErrClosed.Error()
	}
	return c.JSON(httpStatus(resp.Status), resp)
}

// counts returns the registry sizes, or -1 for both when the manager does
// not answer.
func (s *Server) counts(ctx context.Context) Counts {
	tasks, err := s.tm.ListTasks(ctx)
	if err != nil {
		return Counts{Tasks: -1, Primitives: -1}
	}
	prims, err := s.tm.ListPrimitives(ctx)
	if err != nil {
		return Counts{Tasks: -1, Primitives: -1}
	}
	return Counts{Tasks: len(tasks), Primitives: len(prims)}
}

func (s *Server) handleListTasks(c echo.Context) error {
	tasks, err := s.tm.ListTasks(c.Request().Context())
	if err != nil {
		return s.reply(c, err)
	}
	if tasks == nil {
		tasks = []manager.TaskInfo{}
	}
	return c.JSON(http.StatusOK, TasksResponse{Tasks: tasks})
}

func (s *Server) handleSetTask(c echo.Context) error {
	var spec manager.TaskSpec
	if err := c.Bind(&spec); err != nil {
		return s.reply(c, fmt.Errorf("%w: %v", errBadRequest, err))
	}
	name := c.Param("name")
	if spec.Name != "" && spec.Name != name {
		return s.reply(c, fmt.Errorf("%w: body names task %q, path names %q", errBadRequest, spec.Name, name))
	}
	spec.Name = name
	return s.reply(c, s.tm.SetTask(c.Request().Context(), spec, s.robotState()))
}

func (s *Server) handleRemoveTask(c echo.Context) error {
	return s.reply(c, s.tm.RemoveTask(c.Request().Context(), c.Param("name")))
}

func (s *Server) handleRemoveAllTasks(c echo.Context) error {
	return s.reply(c, s.tm.RemoveAllTasks(c.Request().Context()))
}

func (s *Server) taskOp(fn func(context.Context, string) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		return s.reply(c, fn(c.Request().Context(), c.Param("name")))
	}
}

func (s *Server) levelOp(fn func(context.Context, uint) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		priority, err := strconv.ParseUint(c.Param("priority"), 10, 0)
		if err != nil {
			return s.reply(c, fmt.Errorf("%w: priority %q", errBadRequest, c.Param("priority")))
		}
		return s.reply(c, fn(c.Request().Context(), uint(priority)))
	}
}

func (s *Server) handleListPrimitives(c echo.Context) error {
	prims, err := s.tm.ListPrimitives(c.Request().Context())
	if err != nil {
		return s.reply(c, err)
	}
	out := make([]PrimitiveInfo, 0, len(prims))
	for _, p := range prims {
		out = append(out, primitiveInfo(p))
	}
	return c.JSON(http.StatusOK, PrimitivesResponse{Primitives: out})
}

func (s *Server) handleSetPrimitive(c echo.Context) error {
	var spec primitive.Spec
	if err := c.Bind(&spec); err != nil {
		return s.reply(c, fmt.Errorf("%w: %v", errBadRequest, err))
	}
	name := c.Param("name")
	if spec.Name != "" && spec.Name != name {
		return s.reply(c, fmt.Errorf("%w: body names primitive %q, path names %q", errBadRequest, spec.Name, name))
	}
	spec.Name = name
	return s.reply(c, s.tm.SetPrimitive(c.Request().Context(), spec))
}

func (s *Server) handleRemovePrimitive(c echo.Context) error {
	return s.reply(c, s.tm.RemovePrimitive(c.Request().Context(), c.Param("name")))
}

func (s *Server) handleRemoveAllPrimitives(c echo.Context) error {
	return s.reply(c, s.tm.RemoveAllPrimitives(c.Request().Context()))
}

func (s *Server) handleMeasures(c echo.Context) error {
	measures, err := s.tm.GetTaskMeasures(c.Request().Context())
	if err != nil {
		return s.reply(c, err)
	}
	if measures == nil {
		measures = []task.Measures{}
	}
	return c.JSON(http.StatusOK, MeasuresResponse{Measures: measures})
}

func (s *Server) handleRender(c echo.Context) error {
	return s.reply(c, s.tm.RenderPrimitives(c.Request().Context()))
}

// handleApplyStack applies a TOML stack manifest posted as the body.
func (s *Server) handleApplyStack(c echo.Context) error {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxStackSize+1))
	if err != nil {
		return s.reply(c, fmt.Errorf("%w: %v", errBadRequest, err))
	}
	if len(data) > maxStackSize {
		return s.reply(c, fmt.Errorf("%w: manifest exceeds %d bytes", errBadRequest, maxStackSize))
	}
	m, err := stackfile.Parse(data)
	if err != nil {
		return s.reply(c, err)
	}
	return s.reply(c, stackfile.Apply(c.Request().Context(), s.tm, m, s.robotState()))
}
