package taskdef

import (
	"fmt"

	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
	"gonum.org/v1/gonum/mat"
)

// FullPose drives every joint toward a desired configuration:
// e = q - q*, J = I.
//
//	TDefFullPose [q1 ... qn]
//
// Without values the desired configuration is all zeros.
type FullPose struct {
	base
	desired []float64
}

// Init implements Definition.
func (d *FullPose) Init(params []string, state *kinematics.RobotState) error {
	n := state.NumJoints()
	values, err := parseFloats(params[1:])
	if err != nil {
		return err
	}
	switch len(values) {
	case 0:
		d.desired = make([]float64, n)
	case n:
		d.desired = values
	default:
		return fmt.Errorf("%w: %s takes 0 or %d values, got %d", ErrInvalidParameterCount, TypeFullPose, n, len(values))
	}
	d.setRows(n, Equality)
	return nil
}

// Update implements Definition.
func (d *FullPose) Update(state *kinematics.RobotState) error {
	n := state.NumJoints()
	if n != len(d.desired) {
		return fmt.Errorf("%w: state has %d joints, task was built for %d", ErrInconsistent, n, len(d.desired))
	}
	e := make([]float64, n)
	j := mat.NewDense(n, n, nil)
	for q := 0; q < n; q++ {
		e[q] = state.Positions[q] - d.desired[q]
		j.Set(q, q, 1)
	}
	kinematics.MaskColumns(j, state)
	return d.commit(e, j)
}

// JntConfig drives the joint that moves a frame to a target position.
//
//	TDefJntConfig <frame> <q*>
type JntConfig struct {
	base
	joint   int
	desired float64
}

// Init implements Definition.
func (d *JntConfig) Init(params []string, state *kinematics.RobotState) error {
	if err := wantParams(params, 3, 3); err != nil {
		return err
	}
	joint, err := jointFor(state, params[1])
	if err != nil {
		return err
	}
	values, err := parseFloats(params[2:3])
	if err != nil {
		return err
	}
	d.joint, d.desired = joint, values[0]
	d.setRows(1, Equality)
	return nil
}

// Update implements Definition.
func (d *JntConfig) Update(state *kinematics.RobotState) error {
	n := state.NumJoints()
	if d.joint >= n {
		return fmt.Errorf("%w: joint %d out of range", ErrInconsistent, d.joint)
	}
	j := mat.NewDense(1, n, nil)
	j.Set(0, d.joint, 1)
	kinematics.MaskColumns(j, state)
	return d.commit([]float64{state.Positions[d.joint] - d.desired}, j)
}

// JntLimits keeps one joint inside [low, up]. The first row is
// q - low >= 0, the second q - up <= 0.
//
//	TDefJntLimits <frame> <q_low> <q_up>
type JntLimits struct {
	base
	joint   int
	low, up float64
}

// Init implements Definition.
func (d *JntLimits) Init(params []string, state *kinematics.RobotState) error {
	if err := wantParams(params, 4, 4); err != nil {
		return err
	}
	joint, err := jointFor(state, params[1])
	if err != nil {
		return err
	}
	values, err := parseFloats(params[2:4])
	if err != nil {
		return err
	}
	if values[0] >= values[1] {
		return fmt.Errorf("%w: lower limit %g not below upper limit %g", ErrInvalidParameter, values[0], values[1])
	}
	d.joint, d.low, d.up = joint, values[0], values[1]
	d.rows = []RowType{GreaterEq, LessEq}
	return nil
}

// Update implements Definition.
func (d *JntLimits) Update(state *kinematics.RobotState) error {
	n := state.NumJoints()
	if d.joint >= n {
		return fmt.Errorf("%w: joint %d out of range", ErrInconsistent, d.joint)
	}
	q := state.Positions[d.joint]
	j := mat.NewDense(2, n, nil)
	j.Set(0, d.joint, 1)
	j.Set(1, d.joint, 1)
	kinematics.MaskColumns(j, state)
	return d.commit([]float64{q - d.low, q - d.up}, j)
}

// Monitor reports the distance to the nearer limit.
func (d *JntLimits) Monitor() {
	if len(d.e) != 2 {
		d.measures = nil
		return
	}
	d.measures = []float64{min(d.e[0], -d.e[1])}
}

// jointFor returns the joint that moves frame.
func jointFor(state *kinematics.RobotState, frame string) (int, error) {
	if !state.Tree.HasFrame(frame) {
		return 0, fmt.Errorf("%w: %q", kinematics.ErrUnknownFrame, frame)
	}
	joint, ok := state.Tree.JointForFrame(frame)
	if !ok {
		return 0, fmt.Errorf("%w: frame %q is not moved by any joint", ErrNotAttachedToManipulator, frame)
	}
	return joint, nil
}
