package kinematics

import "gonum.org/v1/gonum/spatial/r3"

// TestArmLinks describes a small four-joint arm used across package tests:
// yaw at link1, two pitch joints at link2 and link3, a prismatic extension at
// link4, a fixed tool frame and a camera frame fixed to the base.
func TestArmLinks() []Link {
	return []Link{
		{Name: "base", Joint: JointFixed, Origin: Pose{Position: r3.Vec{Z: 0.1}}},
		{Name: "camera", Parent: "base", Joint: JointFixed, Origin: Pose{Position: r3.Vec{X: -0.2, Z: 0.5}}},
		{Name: "link1", Parent: "base", Joint: JointRevolute, Axis: r3.Vec{Z: 1}, Origin: Pose{Position: r3.Vec{Z: 0.2}}},
		{Name: "link2", Parent: "link1", Joint: JointRevolute, Axis: r3.Vec{Y: 1}, Origin: Pose{Position: r3.Vec{Z: 0.3}}},
		{Name: "link3", Parent: "link2", Joint: JointRevolute, Axis: r3.Vec{Y: 1}, Origin: Pose{Position: r3.Vec{X: 0.3}}},
		{Name: "link4", Parent: "link3", Joint: JointPrismatic, Axis: r3.Vec{X: 1}, Origin: Pose{Position: r3.Vec{X: 0.2}, Rotation: FromEulerXYZ(0.1, 0, 0.2)}},
		{Name: "tool", Parent: "link4", Joint: JointFixed, Origin: Pose{Position: r3.Vec{X: 0.1, Z: 0.05}}},
	}
}

// NewTestArm builds the tree described by TestArmLinks rooted at "world".
func NewTestArm() *Tree {
	t, err := NewTree("world", TestArmLinks())
	if err != nil {
		panic(err)
	}
	return t
}

// NewTestState returns a state of the test arm at a non-singular configuration.
func NewTestState() *RobotState {
	return &RobotState{
		Positions:  []float64{0.3, -0.4, 0.7, 0.05},
		Velocities: make([]float64, 4),
		Tree:       NewTestArm(),
	}
}
