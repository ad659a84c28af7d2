package kinematics

import "fmt"

// RobotState is the per-cycle snapshot of the robot handed to the controller.
// It is owned by the caller; the controller only reads it.
type RobotState struct {
	Positions  []float64
	Velocities []float64

	// Controlled marks joints under active control. A nil mask means every
	// joint is controlled.
	Controlled []bool

	Tree Kinematics
}

// NumJoints returns the joint count of the state.
func (s *RobotState) NumJoints() int {
	return len(s.Positions)
}

// IsControlled reports whether joint q is under active control.
func (s *RobotState) IsControlled(q int) bool {
	if q < 0 || q >= len(s.Positions) {
		return false
	}
	if s.Controlled == nil {
		return true
	}
	return s.Controlled[q]
}

// Validate checks the state is usable for a control cycle.
func (s *RobotState) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil state", ErrInvalidState)
	}
	if s.Tree == nil {
		return ErrNoKinematics
	}
	n := s.Tree.NumJoints()
	if len(s.Positions) != n {
		return fmt.Errorf("%w: %d positions for %d joints", ErrInvalidState, len(s.Positions), n)
	}
	if s.Velocities != nil && len(s.Velocities) != n {
		return fmt.Errorf("%w: %d velocities for %d joints", ErrInvalidState, len(s.Velocities), n)
	}
	if s.Controlled != nil && len(s.Controlled) != n {
		return fmt.Errorf("%w: control mask has %d entries for %d joints", ErrInvalidState, len(s.Controlled), n)
	}
	return nil
}

// Clone returns a deep copy of the joint vectors; the tree is shared.
func (s *RobotState) Clone() *RobotState {
	out := &RobotState{Tree: s.Tree}
	out.Positions = append([]float64(nil), s.Positions...)
	if s.Velocities != nil {
		out.Velocities = append([]float64(nil), s.Velocities...)
	}
	if s.Controlled != nil {
		out.Controlled = append([]bool(nil), s.Controlled...)
	}
	return out
}
