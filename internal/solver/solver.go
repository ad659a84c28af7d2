// Package solver resolves a stack of prioritized task levels into one
// joint-velocity command.
//
// Hierarchical solves the levels in order. Each level is solved in the null
// space of every level above it with a damped least-squares pseudo-inverse,
// so a lower level can never disturb a higher one. Inequality rows start
// inactive and are promoted to equalities at their bound as soon as a
// candidate solution violates them.
package solver

import (
	"errors"
	"fmt"
	"math"

	"github.com/fyrsmithlabs/taskstack/internal/faults"
	"github.com/fyrsmithlabs/taskstack/internal/taskdef"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Solver errors.
var (
	ErrInfeasible   = fmt.Errorf("%w: no finite solution", faults.ErrSolverInfeasible)
	ErrInconsistent = fmt.Errorf("%w: level dimensions", faults.ErrConsistency)
	ErrNoControls   = fmt.Errorf("%w: number of controls must be positive", faults.ErrValidation)
	ErrBadConfig    = errors.New("invalid solver configuration")
)

// Level is the stacked contribution of every task sharing one priority.
type Level struct {
	Priority uint
	J        *mat.Dense
	E        []float64
	EDotStar []float64
	Types    []taskdef.RowType
	Tasks    []string
}

// Rows returns the number of rows in the level.
func (l Level) Rows() int { return len(l.E) }

// Config tunes the hierarchical solver.
type Config struct {
	// Damping is the damped least-squares factor applied to every singular
	// value.
	Damping float64 `koanf:"damping"`

	// Cutoff drops singular values below it.
	Cutoff float64 `koanf:"cutoff"`

	// Tolerance is the slack allowed on inequality rows.
	Tolerance float64 `koanf:"tolerance"`

	// MaxIterations bounds active-set growth per level.
	MaxIterations int `koanf:"max_iterations"`

	// MaxJointVelocity scales the command down uniformly when any component
	// exceeds it. Zero disables scaling.
	MaxJointVelocity float64 `koanf:"max_joint_velocity"`
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		Damping:       1e-4,
		Cutoff:        1e-6,
		Tolerance:     1e-9,
		MaxIterations: 16,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Damping < 0 || c.Cutoff < 0 || c.Tolerance < 0 || c.MaxJointVelocity < 0 {
		return fmt.Errorf("%w: negative setting", ErrBadConfig)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations must be at least 1", ErrBadConfig)
	}
	return nil
}

// Hierarchical is a strict-priority null-space solver.
type Hierarchical struct {
	cfg Config
}

// NewHierarchical creates a solver. Zero fields of cfg take their default.
func NewHierarchical(cfg Config) (*Hierarchical, error) {
	def := DefaultConfig()
	if cfg.Damping == 0 {
		cfg.Damping = def.Damping
	}
	if cfg.Cutoff == 0 {
		cfg.Cutoff = def.Cutoff
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Hierarchical{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (h *Hierarchical) Config() Config { return h.cfg }

// Solve returns the joint velocities for levels, ordered from most to least
// important. No levels yields a zero command.
func (h *Hierarchical) Solve(levels []Level, nControls int) ([]float64, error) {
	if nControls <= 0 {
		return nil, ErrNoControls
	}
	for _, l := range levels {
		if err := check(l, nControls); err != nil {
			return nil, err
		}
	}

	active := make([][]bool, len(levels))
	for i, l := range levels {
		active[i] = make([]bool, l.Rows())
		for r, t := range l.Types {
			active[i][r] = t == taskdef.Equality
		}
	}

	var x []float64
	for k := range levels {
		for iter := 0; iter < h.cfg.MaxIterations; iter++ {
			x = h.cascade(levels[:k+1], active, nControls)
			if !h.promote(levels[:k+1], active, x) {
				break
			}
		}
	}
	if x == nil {
		x = make([]float64, nControls)
	}

	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrInfeasible
		}
	}
	if limit := h.cfg.MaxJointVelocity; limit > 0 {
		if peak := floats.Norm(x, math.Inf(1)); peak > limit {
			floats.Scale(limit/peak, x)
		}
	}
	return x, nil
}

func check(l Level, n int) error {
	if l.J == nil {
		return fmt.Errorf("%w: priority %d has no Jacobian", ErrInconsistent, l.Priority)
	}
	r, c := l.J.Dims()
	if c != n {
		return fmt.Errorf("%w: priority %d has %d columns for %d controls", ErrInconsistent, l.Priority, c, n)
	}
	if len(l.E) != r || len(l.EDotStar) != r || len(l.Types) != r {
		return fmt.Errorf("%w: priority %d has %d Jacobian rows, %d values, %d targets, %d types",
			ErrInconsistent, l.Priority, r, len(l.E), len(l.EDotStar), len(l.Types))
	}
	return nil
}

// promote activates every inactive inequality row that x violates and
// reports whether any changed.
func (h *Hierarchical) promote(levels []Level, active [][]bool, x []float64) bool {
	changed := false
	xv := mat.NewVecDense(len(x), x)
	for i, l := range levels {
		for r, t := range l.Types {
			if active[i][r] {
				continue
			}
			v := mat.Dot(l.J.RowView(r), xv)
			bound := l.EDotStar[r]
			if (t == taskdef.LessEq && v > bound+h.cfg.Tolerance) ||
				(t == taskdef.GreaterEq && v < bound-h.cfg.Tolerance) {
				active[i][r] = true
				changed = true
			}
		}
	}
	return changed
}

// cascade solves the active rows of levels in priority order, each in the
// null space left by the ones before it.
func (h *Hierarchical) cascade(levels []Level, active [][]bool, n int) []float64 {
	x := mat.NewVecDense(n, nil)
	null := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		null.Set(i, i, 1)
	}

	for i, l := range levels {
		a, b := activeRows(l, active[i])
		if a == nil {
			continue
		}
		var an mat.Dense
		an.Mul(a, null)
		pinv, rowSpace := h.pinv(&an)

		var residual mat.VecDense
		residual.MulVec(a, x)
		residual.SubVec(b, &residual)

		var step mat.VecDense
		step.MulVec(pinv, &residual)
		x.AddVec(x, &step)

		null.Sub(null, rowSpace)
	}
	return x.RawVector().Data
}

func activeRows(l Level, mask []bool) (*mat.Dense, *mat.VecDense) {
	var idx []int
	for r, on := range mask {
		if on {
			idx = append(idx, r)
		}
	}
	if len(idx) == 0 {
		return nil, nil
	}
	_, n := l.J.Dims()
	a := mat.NewDense(len(idx), n, nil)
	b := mat.NewVecDense(len(idx), nil)
	for k, r := range idx {
		a.SetRow(k, mat.Row(nil, r, l.J))
		b.SetVec(k, l.EDotStar[r])
	}
	return a, b
}

// pinv returns the damped pseudo-inverse V diag(s/(s^2+d^2)) U^T of m and
// the orthogonal projector onto its row space. The projector is undamped so
// the null space handed to lower levels stays exact.
func (h *Hierarchical) pinv(m *mat.Dense) (*mat.Dense, *mat.Dense) {
	rows, cols := m.Dims()
	out := mat.NewDense(cols, rows, nil)
	proj := mat.NewDense(cols, cols, nil)

	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDThin) {
		return out, proj
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	d2 := h.cfg.Damping * h.cfg.Damping
	for k, s := range values {
		if s < h.cfg.Cutoff {
			continue
		}
		w := s / (s*s + d2)
		for i := 0; i < cols; i++ {
			vik := v.At(i, k)
			for j := 0; j < rows; j++ {
				out.Set(i, j, out.At(i, j)+vik*w*u.At(j, k))
			}
			for j := 0; j < cols; j++ {
				proj.Set(i, j, proj.At(i, j)+vik*v.At(j, k))
			}
		}
	}
	return out, proj
}
