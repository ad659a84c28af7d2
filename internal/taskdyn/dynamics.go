// Package taskdyn implements task dynamics: the feedback laws that turn a task
// value e into the desired task velocity de* handed to the solver.
package taskdyn

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/taskstack/internal/faults"
	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
	"github.com/fyrsmithlabs/taskstack/internal/taskdef"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Dynamics errors.
var (
	ErrEmptyParams           = fmt.Errorf("%w: empty dynamics parameters", faults.ErrValidation)
	ErrUnrecognizedType      = fmt.Errorf("%w: unrecognized dynamics type", faults.ErrValidation)
	ErrInvalidParameterCount = fmt.Errorf("%w: invalid dynamics parameter count", faults.ErrValidation)
	ErrInvalidParameter      = fmt.Errorf("%w: invalid dynamics parameter", faults.ErrValidation)
	ErrInconsistent          = fmt.Errorf("%w: dynamics dimensions", faults.ErrConsistency)
)

// Type names accepted by New.
const (
	TypeFirstOrder = "TDynFirstOrder"
	TypeJntLimits  = "TDynJntLimits"
	TypeMinJerk    = "TDynMinJerk"
)

// Deps are the collaborators a dynamics may consult.
type Deps struct {
	// Now is the clock used by time-parameterized laws. Defaults to time.Now.
	Now func() time.Time
}

// Dynamics computes the desired task velocity.
type Dynamics interface {
	// Init parses params (params[0] is the type name). eInitial and eFinal
	// are the task values at construction and at convergence.
	Init(params []string, state *kinematics.RobotState, eInitial, eFinal []float64) error
	// Update returns de* for the task value e and Jacobian j. The result has
	// the length of e.
	Update(state *kinematics.RobotState, e []float64, j *mat.Dense) ([]float64, error)
	// Monitor refreshes the performance measures.
	Monitor()

	Value() []float64
	Measures() []float64
	Meta() taskdef.Meta
	SetMeta(m taskdef.Meta)
}

var constructors = map[string]func(Deps) Dynamics{
	TypeFirstOrder: func(Deps) Dynamics { return &FirstOrder{} },
	TypeJntLimits:  func(Deps) Dynamics { return &JntLimits{} },
	TypeMinJerk:    func(d Deps) Dynamics { return &MinJerk{now: d.Now} },
}

// Types returns the registered dynamics type names, sorted.
func Types() []string {
	out := make([]string, 0, len(constructors))
	for name := range constructors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New selects the dynamics named by params[0].
func New(deps Deps, params []string) (Dynamics, error) {
	if len(params) == 0 {
		return nil, ErrEmptyParams
	}
	ctor, ok := constructors[params[0]]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedType, params[0])
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return ctor(deps), nil
}

type base struct {
	meta     taskdef.Meta
	dim      int
	value    []float64
	measures []float64
}

func (b *base) Meta() taskdef.Meta     { return b.meta }
func (b *base) SetMeta(m taskdef.Meta) { b.meta = m }
func (b *base) Value() []float64       { return b.value }
func (b *base) Measures() []float64    { return b.measures }

// Monitor records the norm of the last de*.
func (b *base) Monitor() {
	b.measures = []float64{floats.Norm(b.value, 2)}
}

func (b *base) check(e []float64) error {
	if len(e) != b.dim {
		return fmt.Errorf("%w: %d task values, dynamics built for %d", ErrInconsistent, len(e), b.dim)
	}
	return nil
}

// FirstOrder is exponential convergence: de* = -lambda * e.
//
//	TDynFirstOrder <lambda>
type FirstOrder struct {
	base
	lambda float64
}

// Init implements Dynamics.
func (d *FirstOrder) Init(params []string, _ *kinematics.RobotState, eInitial, _ []float64) error {
	values, err := parsePositive(params, 1)
	if err != nil {
		return err
	}
	d.lambda = values[0]
	d.dim = len(eInitial)
	return nil
}

// Update implements Dynamics.
func (d *FirstOrder) Update(_ *kinematics.RobotState, e []float64, _ *mat.Dense) ([]float64, error) {
	if err := d.check(e); err != nil {
		return nil, err
	}
	out := make([]float64, len(e))
	floats.ScaleTo(out, -d.lambda, e)
	d.value = out
	return out, nil
}

// JntLimits is a saturated proportional law for joint-limit rows:
// de*_k = clamp(-gain * e_k, -dqMax, dqMax).
//
//	TDynJntLimits <dq_max> <gain>
type JntLimits struct {
	base
	dqMax, gain float64
}

// Init implements Dynamics.
func (d *JntLimits) Init(params []string, _ *kinematics.RobotState, eInitial, _ []float64) error {
	values, err := parsePositive(params, 2)
	if err != nil {
		return err
	}
	d.dqMax, d.gain = values[0], values[1]
	d.dim = len(eInitial)
	return nil
}

// Update implements Dynamics.
func (d *JntLimits) Update(_ *kinematics.RobotState, e []float64, _ *mat.Dense) ([]float64, error) {
	if err := d.check(e); err != nil {
		return nil, err
	}
	out := make([]float64, len(e))
	for k, v := range e {
		out[k] = max(-d.dqMax, min(d.dqMax, -d.gain*v))
	}
	d.value = out
	return out, nil
}

// MinJerk tracks a minimal-jerk profile from the initial to the final task
// value over a fixed duration, with proportional correction toward the
// profile. After the duration it behaves like FirstOrder around eFinal.
//
//	TDynMinJerk <duration_seconds> <gain>
type MinJerk struct {
	base
	now      func() time.Time
	start    time.Time
	duration time.Duration
	gain     float64
	initial  []float64
	final    []float64
}

// Init implements Dynamics.
func (d *MinJerk) Init(params []string, _ *kinematics.RobotState, eInitial, eFinal []float64) error {
	values, err := parsePositive(params, 2)
	if err != nil {
		return err
	}
	if len(eFinal) != len(eInitial) {
		return fmt.Errorf("%w: initial value has %d rows, final %d", ErrInconsistent, len(eInitial), len(eFinal))
	}
	d.duration = time.Duration(values[0] * float64(time.Second))
	if d.duration <= 0 {
		return fmt.Errorf("%w: %s duration %gs is shorter than a nanosecond", ErrInvalidParameter, TypeMinJerk, values[0])
	}
	d.gain = values[1]
	d.initial = append([]float64(nil), eInitial...)
	d.final = append([]float64(nil), eFinal...)
	d.dim = len(eInitial)
	d.start = d.now()
	return nil
}

// Update implements Dynamics.
func (d *MinJerk) Update(_ *kinematics.RobotState, e []float64, _ *mat.Dense) ([]float64, error) {
	if err := d.check(e); err != nil {
		return nil, err
	}
	s := d.now().Sub(d.start).Seconds() / d.duration.Seconds()
	s = max(0, min(1, s))
	// p(s) = 10s^3 - 15s^4 + 6s^5 and its time derivative.
	p := s * s * s * (10 + s*(-15+6*s))
	dp := 30 * s * s * (1 + s*(-2+s)) / d.duration.Seconds()
	if s >= 1 {
		dp = 0
	}

	out := make([]float64, len(e))
	for k := range e {
		delta := d.final[k] - d.initial[k]
		ref := d.initial[k] + delta*p
		out[k] = delta*dp - d.gain*(e[k]-ref)
	}
	d.value = out
	return out, nil
}

// Progress returns the elapsed fraction of the profile in [0, 1].
func (d *MinJerk) Progress() float64 {
	s := d.now().Sub(d.start).Seconds() / d.duration.Seconds()
	return max(0, min(1, s))
}

// parsePositive parses exactly n positive numbers following the type name.
func parsePositive(params []string, n int) ([]float64, error) {
	if len(params) != n+1 {
		return nil, fmt.Errorf("%w: %s takes %d parameters, got %d", ErrInvalidParameterCount, params[0], n, len(params)-1)
	}
	out := make([]float64, n)
	for i, p := range params[1:] {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %q is not a finite number", ErrInvalidParameter, p)
		}
		if !(v > 0) {
			return nil, fmt.Errorf("%w: %s parameter %d must be positive, got %g", ErrInvalidParameter, params[0], i+1, v)
		}
		out[i] = v
	}
	return out, nil
}
