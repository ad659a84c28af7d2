// Package manager owns the task hierarchy of one controller: the task map, the
// shared primitive registry and the solver that turns the active tasks into a
// joint-velocity command each control cycle.
//
// A Manager is a single-owner actor. Every operation is posted as a closure to
// one goroutine and the caller waits for the reply, so tasks, definitions and
// the registry are never touched concurrently. A context only bounds how long
// a caller waits for its request to be accepted; an accepted request always
// runs to completion.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/taskstack/internal/collision"
	"github.com/fyrsmithlabs/taskstack/internal/faults"
	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
	"github.com/fyrsmithlabs/taskstack/internal/primitive"
	"github.com/fyrsmithlabs/taskstack/internal/solver"
	"github.com/fyrsmithlabs/taskstack/internal/task"
	"github.com/fyrsmithlabs/taskstack/internal/taskdef"
	"github.com/fyrsmithlabs/taskstack/internal/visual"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager errors.
var (
	ErrClosed        = fmt.Errorf("%w: task manager closed", faults.ErrUnavailable)
	ErrTaskNotFound  = fmt.Errorf("%w: task not found", faults.ErrNotFound)
	ErrLevelNotFound = fmt.Errorf("%w: no task at priority level", faults.ErrNotFound)
	ErrNoRobotState  = fmt.Errorf("%w: no robot state available", faults.ErrUnavailable)
	ErrBadControls   = fmt.Errorf("%w: solver returned wrong number of controls", faults.ErrConsistency)
)

// Level is one priority level handed to the solver.
type Level = solver.Level

// Solver resolves prioritized levels into nControls joint velocities.
type Solver interface {
	Solve(levels []Level, nControls int) ([]float64, error)
}

// StatusCode maps the result of any Manager operation to its wire status:
// zero on success, a negative code per error category otherwise.
func StatusCode(err error) int {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return faults.StatusUnavailable
	}
	return faults.Status(err)
}

// TaskSpec describes a task to register.
type TaskSpec struct {
	Name       string   `json:"name" toml:"name"`
	Priority   uint     `json:"priority" toml:"priority"`
	Active     bool     `json:"active" toml:"active"`
	Visible    bool     `json:"visible" toml:"visible"`
	Monitored  bool     `json:"monitored" toml:"monitored"`
	Definition []string `json:"definition" toml:"definition"`
	Dynamics   []string `json:"dynamics" toml:"dynamics"`
}

// TaskInfo is the listing record of a registered task.
type TaskInfo struct {
	Name       string   `json:"name"`
	Priority   uint     `json:"priority"`
	Active     bool     `json:"active"`
	Visible    bool     `json:"visible"`
	Monitored  bool     `json:"monitored"`
	Definition []string `json:"definition"`
	Dynamics   []string `json:"dynamics"`
	Rows       int      `json:"rows"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics sets the OpenTelemetry metrics.
func WithMetrics(m *Metrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *Logger) Option {
	return func(mgr *Manager) {
		mgr.logger = l
	}
}

// WithCollisionChecker sets the checker handed to avoidance tasks.
func WithCollisionChecker(c collision.Checker) Option {
	return func(mgr *Manager) {
		mgr.deps.Definition.Collision = c
	}
}

// WithVisualizer sets the sink for primitive and gradient rendering.
func WithVisualizer(v visual.Visualizer) Option {
	return func(mgr *Manager) {
		if v != nil {
			mgr.visualizer = v
		}
	}
}

// WithSafetyMargin sets the clearance subtracted by avoidance tasks.
func WithSafetyMargin(margin float64) Option {
	return func(mgr *Manager) {
		mgr.deps.Definition.SafetyMargin = margin
	}
}

// WithClock sets the clock used by time-parameterized dynamics.
func WithClock(now func() time.Time) Option {
	return func(mgr *Manager) {
		if now != nil {
			mgr.now = now
		}
	}
}

// WithRobotState seeds the state used by SetTask before the first cycle.
func WithRobotState(state *kinematics.RobotState) Option {
	return func(mgr *Manager) {
		if state != nil {
			mgr.state = state.Clone()
		}
	}
}

// Manager is the task orchestrator.
type Manager struct {
	id         string
	solver     Solver
	primitives *primitive.Registry
	tasks      map[string]*task.Task
	deps       task.Deps
	visualizer visual.Visualizer
	now        func() time.Time

	// state is the last robot state a cycle succeeded on.
	state *kinematics.RobotState
	cycle uint64

	metrics *Metrics
	logger  *Logger

	requests  chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Manager and starts its owner goroutine. A nil solver selects
// the default hierarchical solver.
func New(s Solver, opts ...Option) (*Manager, error) {
	if s == nil {
		h, err := solver.NewHierarchical(solver.DefaultConfig())
		if err != nil {
			return nil, err
		}
		s = h
	}

	// Create default metrics (using global meter provider)
	metrics, _ := NewMetrics(nil)

	m := &Manager{
		id:         uuid.NewString(),
		solver:     s,
		primitives: primitive.NewRegistry(),
		tasks:      make(map[string]*task.Task),
		visualizer: visual.Nop{},
		now:        time.Now,
		metrics:    metrics,
		logger:     NewLogger(nil),
		requests:   make(chan func()),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.deps.Definition.Primitives = m.primitives
	m.deps.Definition.Visualizer = m.visualizer
	m.deps.Dynamics.Now = m.now

	go m.run()
	return m, nil
}

// ID returns the controller instance id used in logs and spans.
func (m *Manager) ID() string { return m.id }

func (m *Manager) run() {
	defer close(m.done)
	for {
		select {
		case fn := <-m.requests:
			fn()
		case <-m.quit:
			return
		}
	}
}

// do runs fn on the owner goroutine and waits for it to finish.
func (m *Manager) do(ctx context.Context, fn func()) error {
	reply := make(chan struct{})
	req := func() {
		defer close(reply)
		fn()
	}
	select {
	case m.requests <- req:
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", faults.ErrUnavailable, ctx.Err())
	}
	<-reply
	return nil
}

// call is do for operations that produce an error of their own.
func (m *Manager) call(ctx context.Context, fn func() error) error {
	var err error
	if doErr := m.do(ctx, func() { err = fn() }); doErr != nil {
		return doErr
	}
	return err
}

// Close stops the owner goroutine and releases every task. Later operations
// fail with ErrClosed.
func (m *Manager) Close() error {
	var errs []error
	m.closeOnce.Do(func() {
		close(m.quit)
		<-m.done
		for _, name := range m.sortedNames(false) {
			if err := m.tasks[name].Close(); err != nil {
				errs = append(errs, fmt.Errorf("close task %q: %w", name, err))
			}
		}
		m.metrics.RecordTasks(context.Background(), -len(m.tasks))
		m.tasks = map[string]*task.Task{}
	})
	return errors.Join(errs...)
}

// sortedNames returns task names ordered by priority then name.
func (m *Manager) sortedNames(activeOnly bool) []string {
	names := make([]string, 0, len(m.tasks))
	for name, t := range m.tasks {
		if activeOnly && !t.Meta().Active {
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := m.tasks[names[i]].Priority(), m.tasks[names[j]].Priority()
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
	return names
}

// SetTask registers spec, replacing a task of the same name. The task is
// initialized against state, or against the state of the last successful
// cycle when state is nil. On failure an existing task is left untouched.
func (m *Manager) SetTask(ctx context.Context, spec TaskSpec, state *kinematics.RobotState) error {
	return m.call(ctx, func() error {
		if state == nil {
			state = m.state
		}
		if state == nil {
			m.metrics.RecordTaskOp(ctx, "set", false)
			return ErrNoRobotState
		}
		meta := taskdef.Meta{
			Name:      spec.Name,
			Priority:  spec.Priority,
			Active:    spec.Active,
			Visible:   spec.Visible,
			Monitored: spec.Monitored,
		}
		t, err := task.New(meta, m.deps, spec.Definition, spec.Dynamics, state)
		if err != nil {
			m.metrics.RecordTaskOp(ctx, "set", false)
			m.logger.TaskRejected(ctx, spec.Name, err)
			return fmt.Errorf("set task %q: %w", spec.Name, err)
		}

		if old, ok := m.tasks[spec.Name]; ok {
			if err := old.Close(); err != nil {
				m.logger.Error(ctx, "close replaced task", err, zap.String("task", spec.Name))
			}
		} else {
			m.metrics.RecordTasks(ctx, 1)
		}
		m.tasks[spec.Name] = t
		m.metrics.RecordTaskOp(ctx, "set", true)
		m.logger.TaskSet(ctx, spec.Name, spec.Priority, spec.Definition[0], spec.Dynamics[0])
		return nil
	})
}

// RemoveTask unregisters the named task.
func (m *Manager) RemoveTask(ctx context.Context, name string) error {
	return m.call(ctx, func() error {
		if _, ok := m.tasks[name]; !ok {
			return fmt.Errorf("%w: %q", ErrTaskNotFound, name)
		}
		m.remove(ctx, name)
		return nil
	})
}

// RemoveAllTasks unregisters every task.
func (m *Manager) RemoveAllTasks(ctx context.Context) error {
	return m.call(ctx, func() error {
		for _, name := range m.sortedNames(false) {
			m.remove(ctx, name)
		}
		return nil
	})
}

func (m *Manager) remove(ctx context.Context, name string) {
	if err := m.tasks[name].Close(); err != nil {
		m.logger.Error(ctx, "close removed task", err, zap.String("task", name))
	}
	delete(m.tasks, name)
	m.metrics.RecordTasks(ctx, -1)
	m.metrics.RecordTaskOp(ctx, "remove", true)
	m.logger.TaskRemoved(ctx, name)
}

// ActivateTask includes the named task in control cycles.
func (m *Manager) ActivateTask(ctx context.Context, name string) error {
	return m.setFlag(ctx, name, func(meta *taskdef.Meta) { meta.Active = true })
}

// DeactivateTask excludes the named task from control cycles.
func (m *Manager) DeactivateTask(ctx context.Context, name string) error {
	return m.setFlag(ctx, name, func(meta *taskdef.Meta) { meta.Active = false })
}

// MonitorTask includes the named task in GetTaskMeasures.
func (m *Manager) MonitorTask(ctx context.Context, name string) error {
	return m.setFlag(ctx, name, func(meta *taskdef.Meta) { meta.Monitored = true })
}

// DemonitorTask excludes the named task from GetTaskMeasures.
func (m *Manager) DemonitorTask(ctx context.Context, name string) error {
	return m.setFlag(ctx, name, func(meta *taskdef.Meta) { meta.Monitored = false })
}

func (m *Manager) setFlag(ctx context.Context, name string, edit func(*taskdef.Meta)) error {
	return m.call(ctx, func() error {
		t, ok := m.tasks[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrTaskNotFound, name)
		}
		meta := t.Meta()
		edit(&meta)
		t.SetMeta(meta)
		return nil
	})
}

// RemovePriorityLevel unregisters every task at priority.
func (m *Manager) RemovePriorityLevel(ctx context.Context, priority uint) error {
	return m.call(ctx, func() error {
		names, err := m.level(priority)
		if err != nil {
			return err
		}
		for _, name := range names {
			m.remove(ctx, name)
		}
		return nil
	})
}

// ActivatePriorityLevel activates every task at priority.
func (m *Manager) ActivatePriorityLevel(ctx context.Context, priority uint) error {
	return m.setLevelFlag(ctx, priority, func(meta *taskdef.Meta) { meta.Active = true })
}

// DeactivatePriorityLevel deactivates every task at priority.
func (m *Manager) DeactivatePriorityLevel(ctx context.Context, priority uint) error {
	return m.setLevelFlag(ctx, priority, func(meta *taskdef.Meta) { meta.Active = false })
}

// MonitorPriorityLevel monitors every task at priority.
func (m *Manager) MonitorPriorityLevel(ctx context.Context, priority uint) error {
	return m.setLevelFlag(ctx, priority, func(meta *taskdef.Meta) { meta.Monitored = true })
}

// DemonitorPriorityLevel stops monitoring every task at priority.
func (m *Manager) DemonitorPriorityLevel(ctx context.Context, priority uint) error {
	return m.setLevelFlag(ctx, priority, func(meta *taskdef.Meta) { meta.Monitored = false })
}

func (m *Manager) setLevelFlag(ctx context.Context, priority uint, edit func(*taskdef.Meta)) error {
	return m.call(ctx, func() error {
		names, err := m.level(priority)
		if err != nil {
			return err
		}
		for _, name := range names {
			t := m.tasks[name]
			meta := t.Meta()
			edit(&meta)
			t.SetMeta(meta)
		}
		return nil
	})
}

// level returns the names of the tasks at priority, sorted.
func (m *Manager) level(priority uint) ([]string, error) {
	var names []string
	for _, name := range m.sortedNames(false) {
		if m.tasks[name].Priority() == priority {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrLevelNotFound, priority)
	}
	return names, nil
}

// ListTasks returns every registered task ordered by priority then name.
func (m *Manager) ListTasks(ctx context.Context) ([]TaskInfo, error) {
	var out []TaskInfo
	err := m.do(ctx, func() {
		for _, name := range m.sortedNames(false) {
			t := m.tasks[name]
			meta := t.Meta()
			out = append(out, TaskInfo{
				Name:       meta.Name,
				Priority:   meta.Priority,
				Active:     meta.Active,
				Visible:    meta.Visible,
				Monitored:  meta.Monitored,
				Definition: t.DefinitionParams(),
				Dynamics:   t.DynamicsParams(),
				Rows:       t.Snapshot().Rows(),
			})
		}
	})
	return out, err
}

// GetTaskMeasures returns the measures of every monitored task ordered by
// priority then name.
func (m *Manager) GetTaskMeasures(ctx context.Context) ([]task.Measures, error) {
	var out []task.Measures
	err := m.do(ctx, func() {
		for _, name := range m.sortedNames(false) {
			if t := m.tasks[name]; t.Meta().Monitored {
				out = append(out, t.Monitor())
			}
		}
	})
	return out, err
}

// SetPrimitive registers or replaces a primitive. Tasks referencing a
// primitive of unchanged kind see the new parameters on the next cycle.
func (m *Manager) SetPrimitive(ctx context.Context, spec primitive.Spec) error {
	return m.call(ctx, func() error {
		before := m.primitives.Len()
		if _, err := m.primitives.Upsert(spec); err != nil {
			return fmt.Errorf("set primitive %q: %w", spec.Name, err)
		}
		m.metrics.RecordPrimitives(ctx, m.primitives.Len()-before)
		m.logger.PrimitiveSet(ctx, spec.Name, spec.Kind, spec.FrameID)
		return nil
	})
}

// RemovePrimitive unregisters the named primitive. Tasks still referencing it
// fail their next update.
func (m *Manager) RemovePrimitive(ctx context.Context, name string) error {
	return m.call(ctx, func() error {
		if err := m.primitives.Remove(name); err != nil {
			return err
		}
		m.metrics.RecordPrimitives(ctx, -1)
		m.logger.PrimitiveRemoved(ctx, name)
		return nil
	})
}

// RemoveAllPrimitives unregisters every primitive.
func (m *Manager) RemoveAllPrimitives(ctx context.Context) error {
	return m.call(ctx, func() error {
		n := m.primitives.Len()
		m.primitives.RemoveAll()
		m.metrics.RecordPrimitives(ctx, -n)
		return nil
	})
}

// ListPrimitives returns the registered primitives sorted by name.
func (m *Manager) ListPrimitives(ctx context.Context) ([]*primitive.Primitive, error) {
	var out []*primitive.Primitive
	err := m.do(ctx, func() { out = m.primitives.List() })
	return out, err
}

// RenderPrimitives sends every visible primitive to the visualizer.
func (m *Manager) RenderPrimitives(ctx context.Context) error {
	return m.do(ctx, func() {
		for _, p := range m.primitives.List() {
			if p.Visible {
				m.visualizer.RenderPrimitive(p)
			}
		}
	})
}
