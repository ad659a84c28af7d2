package kinematics

import "gonum.org/v1/gonum/spatial/r3"

// Pose is a rigid transform: a frame origin and orientation expressed in the
// parent (usually the base) frame.
type Pose struct {
	Position r3.Vec
	Rotation Rotation
}

// IdentityPose returns the transform that maps every point to itself.
func IdentityPose() Pose {
	return Pose{Rotation: Identity()}
}

// Apply maps a point expressed in the pose's frame into the parent frame.
func (p Pose) Apply(v r3.Vec) r3.Vec {
	return r3.Add(p.Position, p.Rotation.Apply(v))
}

// Compose returns p * o, the pose o expressed in p's parent frame.
func (p Pose) Compose(o Pose) Pose {
	return Pose{
		Position: p.Apply(o.Position),
		Rotation: p.Rotation.Mul(o.Rotation),
	}
}

// Inverse returns the transform from the parent frame into p.
func (p Pose) Inverse() Pose {
	rt := p.Rotation.Transpose()
	return Pose{
		Position: r3.Scale(-1, rt.Apply(p.Position)),
		Rotation: rt,
	}
}
