// Package taskdef implements task definitions: the task function e, its
// Jacobian J and the per-row constraint type that a control objective exposes
// to the solver.
//
// Definitions are created by type name through New and brought up with
// Initialize. Every Update computes into fresh buffers and commits them only
// when the whole computation succeeded, so a failing definition keeps
// reporting its last good values.
package taskdef

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"

	"github.com/fyrsmithlabs/taskstack/internal/collision"
	"github.com/fyrsmithlabs/taskstack/internal/faults"
	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
	"github.com/fyrsmithlabs/taskstack/internal/primitive"
	"github.com/fyrsmithlabs/taskstack/internal/visual"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Definition errors.
var (
	ErrEmptyParams               = fmt.Errorf("%w: empty definition parameters", faults.ErrValidation)
	ErrUnrecognizedType          = fmt.Errorf("%w: unrecognized definition type", faults.ErrValidation)
	ErrUnsupportedPrimitivePair  = fmt.Errorf("%w: unsupported primitive pair", faults.ErrValidation)
	ErrInvalidParameterCount     = fmt.Errorf("%w: invalid definition parameter count", faults.ErrValidation)
	ErrInvalidParameter          = fmt.Errorf("%w: invalid definition parameter", faults.ErrValidation)
	ErrNotAttachedToManipulator  = fmt.Errorf("%w: primitive not attached to a joint", faults.ErrKinematic)
	ErrInconsistent              = fmt.Errorf("%w: definition dimensions", faults.ErrConsistency)
	ErrCollisionCheckerMissing   = fmt.Errorf("%w: no collision checker configured", faults.ErrUnavailable)
	ErrPrimitiveRegistryRequired = fmt.Errorf("%w: no primitive registry configured", faults.ErrUnavailable)
)

// Type names accepted by New.
const (
	TypeFullPose  = "TDefFullPose"
	TypeJntConfig = "TDefJntConfig"
	TypeJntLimits = "TDefJntLimits"
	TypeGeomProj  = "TDefGeomProj"
	TypeGeomAlign = "TDefGeomAlign"
	TypeAvoidance = "TDefAvoidCollisionsSDF"
)

// DefaultMargin is the distance kept from obstacles when Deps.SafetyMargin is
// unset.
const DefaultMargin = 0.005

// Directions closer to parallel than this are treated as parallel.
const singularCutoff = 1e-9

// RowType is the constraint a task row imposes on the solver.
type RowType int

const (
	Equality RowType = iota
	LessEq
	GreaterEq
)

func (t RowType) String() string {
	switch t {
	case Equality:
		return "="
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	}
	return fmt.Sprintf("rowtype(%d)", int(t))
}

// ParseRowType parses a comparison operator.
func ParseRowType(op string) (RowType, error) {
	switch op {
	case "=", "==":
		return Equality, nil
	case "<", "<=":
		return LessEq, nil
	case ">", ">=":
		return GreaterEq, nil
	}
	return 0, fmt.Errorf("%w: operator %q", ErrInvalidParameter, op)
}

// Meta is the task metadata shared by a definition and its dynamics.
type Meta struct {
	Name      string
	Priority  uint
	Active    bool
	Visible   bool
	Monitored bool
}

// Deps are the collaborators a definition may consult. Zero values are
// replaced with defaults by New.
type Deps struct {
	Primitives   *primitive.Registry
	Collision    collision.Checker
	Visualizer   visual.Visualizer
	SafetyMargin float64
}

// Definition computes one task function.
type Definition interface {
	// Init parses params (params[0] is the type name) against state.
	Init(params []string, state *kinematics.RobotState) error
	// Update recomputes e and J for state.
	Update(state *kinematics.RobotState) error
	// Monitor refreshes the performance measures from the committed values.
	Monitor()
	// Close releases collaborator resources acquired by Init.
	Close() error

	InitialValue() []float64
	FinalValue(state *kinematics.RobotState) []float64
	Value() []float64
	Jacobian() *mat.Dense
	RowTypes() []RowType
	Measures() []float64
	Dim() int
	Meta() Meta
	SetMeta(m Meta)

	core() *base
}

type constructor func(deps Deps) Definition

var constructors = map[string]constructor{
	TypeFullPose:  func(Deps) Definition { return &FullPose{} },
	TypeJntConfig: func(Deps) Definition { return &JntConfig{} },
	TypeJntLimits: func(Deps) Definition { return &JntLimits{} },
	TypeGeomProj:  func(d Deps) Definition { return &GeomProj{geometric: geometric{deps: d}} },
	TypeGeomAlign: func(d Deps) Definition { return &GeomAlign{geometric: geometric{deps: d}} },
	TypeAvoidance: func(d Deps) Definition { return &AvoidCollisionsSDF{deps: d} },
}

// Types returns the registered definition type names, sorted.
func Types() []string {
	out := make([]string, 0, len(constructors))
	for name := range constructors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New selects the definition named by params[0]. Geometric types also check
// the primitive-kind pair in params[1:3] against the supported relations.
func New(deps Deps, params []string) (Definition, error) {
	if len(params) == 0 {
		return nil, ErrEmptyParams
	}
	ctor, ok := constructors[params[0]]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedType, params[0])
	}
	if deps.Visualizer == nil {
		deps.Visualizer = visual.Nop{}
	}
	if deps.SafetyMargin <= 0 {
		deps.SafetyMargin = DefaultMargin
	}

	switch params[0] {
	case TypeGeomProj, TypeGeomAlign:
		if err := checkPair(params); err != nil {
			return nil, err
		}
	}
	return ctor(deps), nil
}

// Initialize runs Init followed by a first Update and records the initial
// task value.
func Initialize(d Definition, params []string, state *kinematics.RobotState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	if err := d.Init(params, state); err != nil {
		return err
	}
	if err := d.Update(state); err != nil {
		return err
	}
	b := d.core()
	b.initial = slices.Clone(b.e)
	return nil
}

// base holds the committed values shared by every definition.
type base struct {
	meta     Meta
	rows     []RowType
	e        []float64
	j        *mat.Dense
	initial  []float64
	measures []float64
}

func (b *base) core() *base { return b }

func (b *base) Meta() Meta           { return b.meta }
func (b *base) SetMeta(m Meta)       { b.meta = m }
func (b *base) Dim() int             { return len(b.rows) }
func (b *base) Value() []float64     { return b.e }
func (b *base) Jacobian() *mat.Dense { return b.j }
func (b *base) RowTypes() []RowType  { return b.rows }
func (b *base) Measures() []float64  { return b.measures }

// InitialValue returns the task value captured by Initialize.
func (b *base) InitialValue() []float64 { return b.initial }

// FinalValue returns the steady-state task value, zero for every row.
func (b *base) FinalValue(*kinematics.RobotState) []float64 {
	return make([]float64, len(b.rows))
}

// Monitor records the Euclidean norm of e.
func (b *base) Monitor() {
	b.measures = []float64{floats.Norm(b.e, 2)}
}

func (b *base) Close() error { return nil }

// setRows fixes the row count and row types. Called once from Init.
func (b *base) setRows(n int, t RowType) {
	b.rows = make([]RowType, n)
	for i := range b.rows {
		b.rows[i] = t
	}
}

// commit publishes a freshly computed e and J.
func (b *base) commit(e []float64, j *mat.Dense) error {
	r, _ := j.Dims()
	if len(e) != len(b.rows) || r != len(b.rows) {
		return fmt.Errorf("%w: %d values and %d Jacobian rows for %d task rows", ErrInconsistent, len(e), r, len(b.rows))
	}
	b.e, b.j = e, j
	return nil
}

func parseFloats(params []string) ([]float64, error) {
	out := make([]float64, len(params))
	for i, p := range params {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %q is not a finite number", ErrInvalidParameter, p)
		}
		out[i] = v
	}
	return out, nil
}

func wantParams(params []string, min, max int) error {
	if len(params) < min || len(params) > max {
		return fmt.Errorf("%w: %s takes %d to %d parameters, got %d", ErrInvalidParameterCount, params[0], min-1, max-1, len(params)-1)
	}
	return nil
}
