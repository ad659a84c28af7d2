// Package task binds a task definition and a task dynamics under shared
// metadata and keeps the last consistent snapshot of their output.
package task

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/taskstack/internal/faults"
	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
	"github.com/fyrsmithlabs/taskstack/internal/taskdef"
	"github.com/fyrsmithlabs/taskstack/internal/taskdyn"
	"gonum.org/v1/gonum/mat"
)

// Task errors.
var (
	ErrEmptyDefinitionParams = fmt.Errorf("%w: empty definition parameters", faults.ErrValidation)
	ErrEmptyDynamicsParams   = fmt.Errorf("%w: empty dynamics parameters", faults.ErrValidation)
	ErrEmptyName             = fmt.Errorf("%w: empty task name", faults.ErrValidation)
	ErrInconsistent          = fmt.Errorf("%w: task dimensions", faults.ErrConsistency)
	ErrNotInitialized        = errors.New("task not initialized")
)

// Deps are handed to the definition and dynamics constructors.
type Deps struct {
	Definition taskdef.Deps
	Dynamics   taskdyn.Deps
}

// Snapshot is the committed output of a task for one control cycle.
type Snapshot struct {
	J        *mat.Dense
	E        []float64
	EDotStar []float64
	Types    []taskdef.RowType
}

// Rows returns the number of task rows.
func (s Snapshot) Rows() int { return len(s.E) }

// Measures is the monitoring record of one task.
type Measures struct {
	Name       string    `json:"name"`
	Priority   uint      `json:"priority"`
	E          []float64 `json:"e"`
	EDotStar   []float64 `json:"e_dot_star"`
	Definition []float64 `json:"definition_measures"`
	Dynamics   []float64 `json:"dynamics_measures"`
}

// Task is one control objective.
type Task struct {
	meta       taskdef.Meta
	defParams  []string
	dynParams  []string
	definition taskdef.Definition
	dynamics   taskdyn.Dynamics
	snapshot   Snapshot
}

// New constructs and initializes a task. On failure nothing is retained and
// any collaborator acquired by the definition is released.
func New(meta taskdef.Meta, deps Deps, defParams, dynParams []string, state *kinematics.RobotState) (*Task, error) {
	if meta.Name == "" {
		return nil, ErrEmptyName
	}
	if len(defParams) == 0 {
		return nil, ErrEmptyDefinitionParams
	}
	if len(dynParams) == 0 {
		return nil, ErrEmptyDynamicsParams
	}

	def, err := taskdef.New(deps.Definition, defParams)
	if err != nil {
		return nil, err
	}
	dyn, err := taskdyn.New(deps.Dynamics, dynParams)
	if err != nil {
		return nil, err
	}
	def.SetMeta(meta)
	dyn.SetMeta(meta)

	t := &Task{
		meta:       meta,
		defParams:  append([]string(nil), defParams...),
		dynParams:  append([]string(nil), dynParams...),
		definition: def,
		dynamics:   dyn,
	}
	if err := t.init(state); err != nil {
		_ = def.Close()
		return nil, err
	}
	return t, nil
}

func (t *Task) init(state *kinematics.RobotState) error {
	if err := taskdef.Initialize(t.definition, t.defParams, state); err != nil {
		return err
	}
	if err := t.dynamics.Init(t.dynParams, state, t.definition.InitialValue(), t.definition.FinalValue(state)); err != nil {
		return err
	}
	return t.evaluate(state)
}

// Update recomputes the task for state. On failure the previous snapshot is
// kept.
func (t *Task) Update(state *kinematics.RobotState) error {
	if t.definition == nil || t.dynamics == nil {
		return ErrNotInitialized
	}
	if err := t.definition.Update(state); err != nil {
		return fmt.Errorf("task %q: %w", t.meta.Name, err)
	}
	if err := t.evaluate(state); err != nil {
		return fmt.Errorf("task %q: %w", t.meta.Name, err)
	}
	return nil
}

// evaluate runs the dynamics on the definition's committed values, checks
// dimensions and commits the snapshot.
func (t *Task) evaluate(state *kinematics.RobotState) error {
	e, j, types := t.definition.Value(), t.definition.Jacobian(), t.definition.RowTypes()
	edot, err := t.dynamics.Update(state, e, j)
	if err != nil {
		return err
	}
	next := Snapshot{J: j, E: e, EDotStar: edot, Types: types}
	if err := checkConsistency(next, state.NumJoints()); err != nil {
		return err
	}
	t.snapshot = next
	return nil
}

func checkConsistency(s Snapshot, nControls int) error {
	if s.J == nil {
		return fmt.Errorf("%w: no Jacobian", ErrInconsistent)
	}
	rows, cols := s.J.Dims()
	if len(s.E) != rows || len(s.Types) != rows || len(s.EDotStar) != rows {
		return fmt.Errorf("%w: e has %d rows, J %d, types %d, de* %d", ErrInconsistent, len(s.E), rows, len(s.Types), len(s.EDotStar))
	}
	if cols != nControls {
		return fmt.Errorf("%w: J has %d columns for %d controls", ErrInconsistent, cols, nControls)
	}
	return nil
}

// Snapshot returns the last committed output.
func (t *Task) Snapshot() Snapshot { return t.snapshot }

// Monitor refreshes and returns the performance measures.
func (t *Task) Monitor() Measures {
	t.definition.Monitor()
	t.dynamics.Monitor()
	return Measures{
		Name:       t.meta.Name,
		Priority:   t.meta.Priority,
		E:          append([]float64(nil), t.snapshot.E...),
		EDotStar:   append([]float64(nil), t.snapshot.EDotStar...),
		Definition: t.definition.Measures(),
		Dynamics:   t.dynamics.Measures(),
	}
}

// Meta returns the task metadata.
func (t *Task) Meta() taskdef.Meta { return t.meta }

// SetMeta replaces the metadata of the task and its parts. Priority changes
// require a new task.
func (t *Task) SetMeta(m taskdef.Meta) {
	m.Name, m.Priority = t.meta.Name, t.meta.Priority
	t.meta = m
	t.definition.SetMeta(m)
	t.dynamics.SetMeta(m)
}

// Name returns the task name.
func (t *Task) Name() string { return t.meta.Name }

// Priority returns the task priority; lower is more important.
func (t *Task) Priority() uint { return t.meta.Priority }

// DefinitionParams returns the parameters the definition was built from.
func (t *Task) DefinitionParams() []string { return append([]string(nil), t.defParams...) }

// DynamicsParams returns the parameters the dynamics was built from.
func (t *Task) DynamicsParams() []string { return append([]string(nil), t.dynParams...) }

// Definition exposes the task definition.
func (t *Task) Definition() taskdef.Definition { return t.definition }

// Close releases collaborator resources held by the definition.
func (t *Task) Close() error { return t.definition.Close() }
