package kinematics

import (
	"errors"
	"math"
	"testing"

	"github.com/fyrsmithlabs/taskstack/internal/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func assertVecNear(t *testing.T, want, got r3.Vec, tol float64) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, tol, "x")
	assert.InDelta(t, want.Y, got.Y, tol, "y")
	assert.InDelta(t, want.Z, got.Z, tol, "z")
}

func TestNewTree(t *testing.T) {
	tests := []struct {
		name    string
		links   []Link
		wantErr bool
	}{
		{name: "test arm", links: TestArmLinks()},
		{name: "no links", links: nil, wantErr: true},
		{name: "only fixed", links: []Link{{Name: "a"}}, wantErr: true},
		{name: "duplicate", links: []Link{
			{Name: "a", Joint: JointRevolute, Axis: r3.Vec{Z: 1}},
			{Name: "a", Joint: JointRevolute, Axis: r3.Vec{Z: 1}},
		}, wantErr: true},
		{name: "undeclared parent", links: []Link{
			{Name: "a", Parent: "ghost", Joint: JointRevolute, Axis: r3.Vec{Z: 1}},
		}, wantErr: true},
		{name: "zero axis", links: []Link{{Name: "a", Joint: JointRevolute}}, wantErr: true},
		{name: "named like root", links: []Link{{Name: "world", Joint: JointRevolute, Axis: r3.Vec{Z: 1}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := NewTree("world", tt.links)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, faults.ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 4, tree.NumJoints())
			assert.Equal(t, "world", tree.RootFrame())
		})
	}
}

func TestTree_JointForFrame(t *testing.T) {
	tree := NewTestArm()

	tests := []struct {
		frame string
		joint int
		ok    bool
	}{
		{"world", -1, false},
		{"base", -1, false},
		{"camera", -1, false},
		{"link1", 0, true},
		{"link2", 1, true},
		{"link4", 3, true},
		{"tool", 3, true},
		{"missing", -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.frame, func(t *testing.T) {
			j, ok := tree.JointForFrame(tt.frame)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.joint, j)
		})
	}
	assert.Equal(t, []string{"link1", "link2", "link3", "link4"}, tree.JointNames())
}

func TestTree_ForwardKinematicsAtZero(t *testing.T) {
	tree, err := NewTree("world", []Link{
		{Name: "l1", Joint: JointRevolute, Axis: r3.Vec{Z: 1}},
		{Name: "l2", Parent: "l1", Joint: JointRevolute, Axis: r3.Vec{Z: 1}, Origin: Pose{Position: r3.Vec{X: 1}}},
		{Name: "tip", Parent: "l2", Origin: Pose{Position: r3.Vec{X: 1}}},
	})
	require.NoError(t, err)

	pose, _, err := tree.PoseAndJacobian([]float64{0, 0}, "tip")
	require.NoError(t, err)
	assertVecNear(t, r3.Vec{X: 2}, pose.Position, 1e-12)

	pose, jac, err := tree.PoseAndJacobian([]float64{math.Pi / 2, 0}, "tip")
	require.NoError(t, err)
	assertVecNear(t, r3.Vec{Y: 2}, pose.Position, 1e-12)
	// Rotating the first joint moves the tip along -x.
	assertVecNear(t, r3.Vec{X: -2}, LinearColumn(jac, 0), 1e-12)
	assertVecNear(t, r3.Vec{Z: 1}, AngularColumn(jac, 0), 1e-12)
}

func TestTree_JacobianMatchesFiniteDifferences(t *testing.T) {
	state := NewTestState()
	tree := state.Tree
	const h = 1e-7

	for _, frame := range []string{"link2", "link3", "tool"} {
		t.Run(frame, func(t *testing.T) {
			pose, jac, err := tree.PoseAndJacobian(state.Positions, frame)
			require.NoError(t, err)

			for q := 0; q < tree.NumJoints(); q++ {
				bumped := append([]float64(nil), state.Positions...)
				bumped[q] += h
				next, _, err := tree.PoseAndJacobian(bumped, frame)
				require.NoError(t, err)

				lin := r3.Scale(1/h, r3.Sub(next.Position, pose.Position))
				assertVecNear(t, lin, LinearColumn(jac, q), 1e-5)

				// Angular velocity from the rotation increment R_next * R^T.
				ang := r3.Scale(1/h, next.Rotation.Mul(pose.Rotation.Transpose()).Log())
				assertVecNear(t, ang, AngularColumn(jac, q), 1e-5)
			}
		})
	}
}

func TestTree_Errors(t *testing.T) {
	tree := NewTestArm()

	_, _, err := tree.PoseAndJacobian([]float64{0}, "tool")
	assert.ErrorIs(t, err, ErrJointCount)
	assert.ErrorIs(t, err, faults.ErrKinematic)

	_, _, err = tree.PoseAndJacobian(make([]float64, 4), "nope")
	assert.ErrorIs(t, err, ErrUnknownFrame)

	pose, jac, err := tree.PoseAndJacobian(make([]float64, 4), "world")
	require.NoError(t, err)
	assert.Equal(t, IdentityPose(), pose)
	r, c := jac.Dims()
	assert.Equal(t, 6, r)
	assert.Equal(t, 4, c)
}

func TestPointJacobianAndMask(t *testing.T) {
	state := NewTestState()
	pose, jac, err := state.Tree.PoseAndJacobian(state.Positions, "tool")
	require.NoError(t, err)

	offset := r3.Vec{X: 0.05, Y: -0.02}
	point := pose.Apply(offset)
	pj := PointJacobian(jac, pose.Position, point)

	const h = 1e-7
	for q := 0; q < 4; q++ {
		bumped := append([]float64(nil), state.Positions...)
		bumped[q] += h
		next, _, err := state.Tree.PoseAndJacobian(bumped, "tool")
		require.NoError(t, err)
		fd := r3.Scale(1/h, r3.Sub(next.Apply(offset), point))
		assertVecNear(t, fd, r3.Vec{X: pj.At(0, q), Y: pj.At(1, q), Z: pj.At(2, q)}, 1e-5)
	}

	state.Controlled = []bool{true, false, true, false}
	MaskColumns(pj, state)
	for r := 0; r < 3; r++ {
		assert.Zero(t, pj.At(r, 1))
		assert.Zero(t, pj.At(r, 3))
	}
	assert.NotZero(t, r3.Norm(r3.Vec{X: pj.At(0, 0), Y: pj.At(1, 0), Z: pj.At(2, 0)}))
}

func TestRobotState(t *testing.T) {
	state := NewTestState()
	require.NoError(t, state.Validate())
	assert.Equal(t, 4, state.NumJoints())
	assert.True(t, state.IsControlled(2))
	assert.False(t, state.IsControlled(4))

	clone := state.Clone()
	clone.Positions[0] = 9
	assert.NotEqual(t, 9.0, state.Positions[0])

	bad := state.Clone()
	bad.Positions = bad.Positions[:2]
	assert.ErrorIs(t, bad.Validate(), ErrInvalidState)

	assert.ErrorIs(t, (&RobotState{Positions: []float64{0}}).Validate(), ErrNoKinematics)
}
