// Package kinematics holds the robot-side collaborators of the controller: the
// kinematic model, the per-cycle robot state and the Jacobian helpers shared by
// task definitions.
//
// Every Jacobian is expressed in the root (base) frame. A frame Jacobian is 6 x n:
// rows 0-2 map joint velocities to the linear velocity of the frame origin,
// rows 3-5 to the frame's angular velocity.
package kinematics

import (
	"fmt"

	"github.com/fyrsmithlabs/taskstack/internal/faults"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	ErrUnknownFrame = fmt.Errorf("%w: unknown frame", faults.ErrKinematic)
	ErrJointCount   = fmt.Errorf("%w: joint vector length mismatch", faults.ErrKinematic)
	ErrInvalidTree  = fmt.Errorf("%w: invalid kinematic tree", faults.ErrValidation)
	ErrInvalidState = fmt.Errorf("%w: invalid robot state", faults.ErrConsistency)
	ErrNoKinematics = fmt.Errorf("%w: robot state has no kinematic model", faults.ErrKinematic)
)

// Kinematics is the forward-kinematics collaborator.
type Kinematics interface {
	// PoseAndJacobian returns the base-frame pose of frameID and its 6 x n
	// Jacobian at joint positions q.
	PoseAndJacobian(q []float64, frameID string) (Pose, *mat.Dense, error)

	// JointForFrame returns the index of the nearest joint that moves frameID.
	// It reports false for frames rigidly attached to the root or unknown.
	JointForFrame(frameID string) (int, bool)

	// HasFrame reports whether frameID names a frame of the model.
	HasFrame(frameID string) bool

	// RootFrame returns the name of the base frame.
	RootFrame() string

	// NumJoints returns the number of movable joints.
	NumJoints() int
}

// LinearColumn returns the linear-velocity column q of a frame Jacobian.
func LinearColumn(j *mat.Dense, q int) r3.Vec {
	return r3.Vec{X: j.At(0, q), Y: j.At(1, q), Z: j.At(2, q)}
}

// AngularColumn returns the angular-velocity column q of a frame Jacobian.
func AngularColumn(j *mat.Dense, q int) r3.Vec {
	return r3.Vec{X: j.At(3, q), Y: j.At(4, q), Z: j.At(5, q)}
}

// PointVelocity returns the velocity contributed by joint q to a point rigidly
// attached to a frame whose origin is at origin: v + w x (point - origin).
func PointVelocity(j *mat.Dense, q int, origin, point r3.Vec) r3.Vec {
	return r3.Add(LinearColumn(j, q), r3.Cross(AngularColumn(j, q), r3.Sub(point, origin)))
}

// PointJacobian returns the 3 x n linear-velocity Jacobian of a point rigidly
// attached to a frame, shifting the reference point from origin to point.
func PointJacobian(j *mat.Dense, origin, point r3.Vec) *mat.Dense {
	_, n := j.Dims()
	out := mat.NewDense(3, n, nil)
	for q := 0; q < n; q++ {
		v := PointVelocity(j, q, origin, point)
		out.Set(0, q, v.X)
		out.Set(1, q, v.Y)
		out.Set(2, q, v.Z)
	}
	return out
}

// MaskColumns zeroes every column of j whose joint is not under active control.
func MaskColumns(j *mat.Dense, state *RobotState) {
	rows, cols := j.Dims()
	for q := 0; q < cols; q++ {
		if state.IsControlled(q) {
			continue
		}
		for r := 0; r < rows; r++ {
			j.Set(r, q, 0)
		}
	}
}
