package taskdef

import (
	"errors"
	"testing"

	"github.com/fyrsmithlabs/taskstack/internal/collision"
	"github.com/fyrsmithlabs/taskstack/internal/faults"
	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
	"github.com/fyrsmithlabs/taskstack/internal/primitive"
	"github.com/fyrsmithlabs/taskstack/internal/visual"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// stubChecker returns canned gradients and records every query.
type stubChecker struct {
	gradients []collision.Gradient
	err       error
	active    int
	batches   [][]r3.Vec
	frames    []string
}

func (s *stubChecker) Activate() error   { s.active++; return nil }
func (s *stubChecker) Deactivate() error { s.active--; return nil }

func (s *stubChecker) Gradients(points []r3.Vec, frame string) ([]collision.Gradient, error) {
	s.batches = append(s.batches, append([]r3.Vec(nil), points...))
	s.frames = append(s.frames, frame)
	if s.err != nil {
		return nil, s.err
	}
	return s.gradients, nil
}

func avoidanceScene(t *testing.T) *primitive.Registry {
	t.Helper()
	reg := primitive.NewRegistry()
	for _, s := range []primitive.Spec{
		{Name: "tip", Kind: "point", FrameID: "tool", Params: []float64{0, 0, 0}},
		{Name: "wrist", Kind: "sphere", FrameID: "link4", Params: []float64{0, 0, 0, 0.04}},
		{Name: "elbow", Kind: "point", FrameID: "link3", Params: []float64{0, 0, 0.02}},
		{Name: "lens", Kind: "point", FrameID: "camera", Params: []float64{0, 0, 0}},
		{Name: "crate", Kind: "box", FrameID: "tool", Params: []float64{0, 0, 0, 1, 1, 1}},
	} {
		_, err := reg.Upsert(s)
		require.NoError(t, err)
	}
	return reg
}

func TestAvoidCollisionsSDF_PartialFailureTolerance(t *testing.T) {
	reg := avoidanceScene(t)
	state := kinematics.NewTestState()
	checker := &stubChecker{gradients: []collision.Gradient{
		{Vector: r3.Vec{X: 0.3, Y: 0, Z: 0.4}, Valid: true},
		{Valid: false},
		{Vector: r3.Vec{Z: -0.2}, Valid: true},
	}}
	params := []string{TypeAvoidance, "tip", "wrist", "elbow"}

	d := newDefinition(t, Deps{Primitives: reg, Collision: checker}, params, state)

	require.Len(t, checker.batches, 1, "one batched query per update")
	assert.Len(t, checker.batches[0], 3)
	assert.Equal(t, "world", checker.frames[0])
	assert.Equal(t, 1, checker.active)

	require.Equal(t, 3, d.Dim())
	assert.Equal(t, []RowType{GreaterEq, GreaterEq, GreaterEq}, d.RowTypes())
	e := d.Value()
	require.Len(t, e, 3)
	assert.InDelta(t, 0.5-DefaultMargin, e[0], 1e-12)
	assert.Equal(t, 0.0, e[1])
	assert.InDelta(t, 0.2-DefaultMargin, e[2], 1e-12)

	j := d.Jacobian()
	r, c := j.Dims()
	require.Equal(t, []int{3, 4}, []int{r, c})
	assert.Equal(t, []float64{0, 0, 0, 0}, mat.Row(nil, 1, j))

	// Row 0 is -g^T Jv for the tool tip.
	pose, frameJac, err := state.Tree.PoseAndJacobian(state.Positions, "tool")
	require.NoError(t, err)
	jv := kinematics.PointJacobian(frameJac, pose.Position, pose.Position)
	g := r3.Vec{X: 0.6, Y: 0, Z: 0.8}
	for q := 0; q < 4; q++ {
		col := r3.Vec{X: jv.At(0, q), Y: jv.At(1, q), Z: jv.At(2, q)}
		assert.InDelta(t, -r3.Dot(g, col), j.At(0, q), 1e-12)
	}

	d.Monitor()
	assert.Equal(t, []float64{0}, d.Measures())

	require.NoError(t, d.Close())
	assert.Equal(t, 0, checker.active)
	require.NoError(t, d.Close())
	assert.Equal(t, 0, checker.active)
}

func TestAvoidCollisionsSDF_SphereSubtractsRadius(t *testing.T) {
	reg := avoidanceScene(t)
	state := kinematics.NewTestState()
	checker := &stubChecker{gradients: []collision.Gradient{{Vector: r3.Vec{Y: 0.5}, Valid: true}}}

	d := newDefinition(t, Deps{Primitives: reg, Collision: checker, SafetyMargin: 0.01}, []string{TypeAvoidance, "wrist"}, state)
	assert.InDelta(t, 0.5-0.01-0.04, d.Value()[0], 1e-12)
}

func TestAvoidCollisionsSDF_ContactKeepsNegativeClearance(t *testing.T) {
	reg := avoidanceScene(t)
	state := kinematics.NewTestState()
	checker := &stubChecker{gradients: []collision.Gradient{{Valid: true}}}

	d := newDefinition(t, Deps{Primitives: reg, Collision: checker, SafetyMargin: 0.01}, []string{TypeAvoidance, "tip"}, state)

	assert.InDelta(t, -0.01, d.Value()[0], 1e-12)
	assert.Equal(t, []float64{0, 0, 0, 0}, mat.Row(nil, 0, d.Jacobian()))
}

func TestAvoidCollisionsSDF_InitFailures(t *testing.T) {
	reg := avoidanceScene(t)
	state := kinematics.NewTestState()

	tests := []struct {
		name    string
		params  []string
		deps    Deps
		wantErr error
	}{
		{"no primitives", []string{TypeAvoidance}, Deps{Primitives: reg, Collision: &stubChecker{}}, ErrInvalidParameterCount},
		{"unknown primitive", []string{TypeAvoidance, "nose"}, Deps{Primitives: reg, Collision: &stubChecker{}}, primitive.ErrNotFound},
		{"wrong kind", []string{TypeAvoidance, "crate"}, Deps{Primitives: reg, Collision: &stubChecker{}}, primitive.ErrKindMismatch},
		{"fixed to the base", []string{TypeAvoidance, "tip", "lens"}, Deps{Primitives: reg, Collision: &stubChecker{}}, ErrNotAttachedToManipulator},
		{"no checker", []string{TypeAvoidance, "tip"}, Deps{Primitives: reg}, ErrCollisionCheckerMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.deps, tt.params)
			require.NoError(t, err)
			err = Initialize(d, tt.params, state)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Less(t, faults.Status(err), 0)
			if errors.Is(tt.wantErr, ErrNotAttachedToManipulator) {
				assert.Equal(t, faults.StatusKinematic, faults.Status(err))
			}
			if c, ok := tt.deps.Collision.(*stubChecker); ok {
				assert.Zero(t, c.active, "failed init must not hold the checker")
			}
		})
	}
}

func TestAvoidCollisionsSDF_BatchFailureEscalates(t *testing.T) {
	reg := avoidanceScene(t)
	state := kinematics.NewTestState()
	checker := &stubChecker{gradients: []collision.Gradient{{Vector: r3.Vec{X: 1}, Valid: true}}}
	d := newDefinition(t, Deps{Primitives: reg, Collision: checker}, []string{TypeAvoidance, "tip"}, state)
	before := d.Value()

	checker.err = errors.New("sdf server gone")
	err := d.Update(state)
	assert.ErrorIs(t, err, faults.ErrCollisionQuery)
	assert.Equal(t, faults.StatusCollisionQuery, faults.Status(err))
	assert.Equal(t, before, d.Value())

	checker.err = nil
	checker.gradients = nil
	assert.ErrorIs(t, d.Update(state), faults.ErrCollisionQuery, "short batch")
}

func TestAvoidCollisionsSDF_RendersGradientsWhenVisible(t *testing.T) {
	reg := avoidanceScene(t)
	state := kinematics.NewTestState()
	checker := &stubChecker{gradients: []collision.Gradient{{Vector: r3.Vec{X: 1}, Valid: true}}}
	rec := &visual.Recorder{}

	params := []string{TypeAvoidance, "tip"}
	d, err := New(Deps{Primitives: reg, Collision: checker, Visualizer: rec}, params)
	require.NoError(t, err)
	d.SetMeta(Meta{Name: "avoid", Visible: true})
	require.NoError(t, Initialize(d, params, state))

	batches := rec.Gradients()
	require.Len(t, batches, 1)
	assert.Equal(t, "world", batches[0].Frame)
	assert.Len(t, batches[0].Points, 1)
}

func TestAvoidCollisionsSDF_JacobianMatchesFieldDistance(t *testing.T) {
	reg := avoidanceScene(t)
	state := kinematics.NewTestState()
	field, err := collision.NewField("world", 0, []collision.Obstacle{
		{Name: "ball", Kind: collision.ObstacleSphere, Center: []float64{0.8, 0.5, 0.9}, Radius: 0.1},
	})
	require.NoError(t, err)

	d := newDefinition(t, Deps{Primitives: reg, Collision: field}, []string{TypeAvoidance, "tip", "wrist"}, state)
	assert.True(t, field.Active())
	want := numericJacobian(t, d, state)
	assertJacobianRowsNear(t, want, d.Jacobian(), 2, 1e-6)

	require.NoError(t, d.Close())
	assert.False(t, field.Active())
}
