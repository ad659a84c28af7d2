package loop

import (
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
)

// Robot is a simulated manipulator: commanded velocities are integrated
// into joint positions with no dynamics.
type Robot struct {
	mu    sync.RWMutex
	tree  *kinematics.Tree
	state *kinematics.RobotState
}

// NewRobot returns a robot resting at q0. A nil controlled mask marks every
// joint as controlled.
func NewRobot(tree *kinematics.Tree, q0 []float64, controlled []bool) (*Robot, error) {
	if q0 == nil {
		q0 = make([]float64, tree.NumJoints())
	}
	state := &kinematics.RobotState{
		Positions:  append([]float64(nil), q0...),
		Velocities: make([]float64, len(q0)),
		Controlled: append([]bool(nil), controlled...),
		Tree:       tree,
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("simulated robot: %w", err)
	}
	return &Robot{tree: tree, state: state}, nil
}

// State returns a snapshot of the robot.
func (r *Robot) State() *kinematics.RobotState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

// JointNames returns the link owning each joint.
func (r *Robot) JointNames() []string {
	return r.tree.JointNames()
}

// Apply integrates qdot over dt seconds. Uncontrolled joints do not move. A
// nil qdot stops the robot where it is.
func (r *Robot) Apply(qdot []float64, dt float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state
	if qdot == nil {
		for i := range s.Velocities {
			s.Velocities[i] = 0
		}
		return nil
	}
	if len(qdot) != len(s.Positions) {
		return fmt.Errorf("%w: %d velocities for %d joints", kinematics.ErrJointCount, len(qdot), len(s.Positions))
	}
	for i, v := range qdot {
		if !s.IsControlled(i) {
			v = 0
		}
		s.Velocities[i] = v
		s.Positions[i] += v * dt
	}
	return nil
}

// Reset moves the robot to q and stops it.
func (r *Robot) Reset(q []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(q) != len(r.state.Positions) {
		return fmt.Errorf("%w: %d positions for %d joints", kinematics.ErrJointCount, len(q), len(r.state.Positions))
	}
	copy(r.state.Positions, q)
	for i := range r.state.Velocities {
		r.state.Velocities[i] = 0
	}
	return nil
}
