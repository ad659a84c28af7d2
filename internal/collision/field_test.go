package collision

import (
	"testing"

	"github.com/fyrsmithlabs/taskstack/internal/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func newTestField(t *testing.T, maxRange float64) *Field {
	t.Helper()
	f, err := NewField("world", maxRange, []Obstacle{
		{Name: "ball", Kind: ObstacleSphere, Center: []float64{2, 0, 0}, Radius: 0.5},
		{Name: "crate", Kind: "BOX", Center: []float64{0, 2, 0}, Size: []float64{1, 1, 1}},
		{Name: "floor", Kind: ObstaclePlane, Center: []float64{0, 0, -1}, Normal: []float64{0, 0, 2}},
	})
	require.NoError(t, err)
	require.NoError(t, f.Activate())
	return f
}

func TestNewField_Validation(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		maxRange float64
		obstacle Obstacle
	}{
		{"empty frame", "", 0, Obstacle{Kind: ObstacleSphere, Center: []float64{0, 0, 0}, Radius: 1}},
		{"negative range", "world", -1, Obstacle{Kind: ObstacleSphere, Center: []float64{0, 0, 0}, Radius: 1}},
		{"short center", "world", 0, Obstacle{Kind: ObstacleSphere, Center: []float64{0, 0}, Radius: 1}},
		{"zero radius", "world", 0, Obstacle{Kind: ObstacleSphere, Center: []float64{0, 0, 0}}},
		{"flat box", "world", 0, Obstacle{Kind: ObstacleBox, Center: []float64{0, 0, 0}, Size: []float64{1, 0, 1}}},
		{"zero normal", "world", 0, Obstacle{Kind: ObstaclePlane, Center: []float64{0, 0, 0}, Normal: []float64{0, 0, 0}}},
		{"unknown kind", "world", 0, Obstacle{Kind: "torus", Center: []float64{0, 0, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewField(tt.frame, tt.maxRange, []Obstacle{tt.obstacle})
			assert.ErrorIs(t, err, ErrBadObstacle)
			assert.Equal(t, faults.StatusValidation, faults.Status(err))
		})
	}
}

func TestField_Gradients(t *testing.T) {
	f := newTestField(t, 0)
	assert.Equal(t, []string{"ball", "crate", "floor"}, f.Obstacles())
	assert.Equal(t, "world", f.Frame())

	grads, err := f.Gradients([]r3.Vec{
		{X: 1, Y: 0, Z: 0},     // ball surface at x=1.5
		{X: 0, Y: 1, Z: 0},     // crate face at y=1.5
		{X: 0, Y: 0, Z: -0.8},  // floor below
		{X: 2, Y: 0, Z: 0.1},   // inside the ball
		{X: 0, Y: 2.2, Z: 0.1}, // inside the crate
	}, "world")
	require.NoError(t, err)
	require.Len(t, grads, 5)

	assert.True(t, grads[0].Valid)
	assert.InDelta(t, 0.5, grads[0].Vector.X, 1e-12)
	assert.InDelta(t, 0.5, r3.Norm(grads[0].Vector), 1e-12)

	assert.True(t, grads[1].Valid)
	assert.InDelta(t, 0.5, grads[1].Vector.Y, 1e-12)

	assert.True(t, grads[2].Valid)
	assert.InDelta(t, -0.2, grads[2].Vector.Z, 1e-12)

	assert.False(t, grads[3].Valid, "inside an obstacle")
	assert.False(t, grads[4].Valid, "inside an obstacle")
}

func TestField_MaxRange(t *testing.T) {
	f := newTestField(t, 0.3)
	grads, err := f.Gradients([]r3.Vec{{X: 1.3, Y: 0, Z: 5}, {X: 0, Y: 0, Z: -0.9}}, "world")
	require.NoError(t, err)
	assert.False(t, grads[0].Valid)
	assert.True(t, grads[1].Valid)
}

func TestField_Empty(t *testing.T) {
	f, err := NewField("world", 0, nil)
	require.NoError(t, err)
	require.NoError(t, f.Activate())
	grads, err := f.Gradients([]r3.Vec{{X: 1}}, "world")
	require.NoError(t, err)
	assert.False(t, grads[0].Valid)
}

func TestField_Activation(t *testing.T) {
	f, err := NewField("world", 0, nil)
	require.NoError(t, err)

	_, err = f.Gradients(nil, "world")
	assert.ErrorIs(t, err, ErrNotActive)
	assert.ErrorIs(t, f.Deactivate(), ErrNotActive)

	require.NoError(t, f.Activate())
	require.NoError(t, f.Activate())
	require.NoError(t, f.Deactivate())
	assert.True(t, f.Active())
	require.NoError(t, f.Deactivate())
	assert.False(t, f.Active())
}

func TestField_FrameMismatch(t *testing.T) {
	f := newTestField(t, 0)
	_, err := f.Gradients([]r3.Vec{{}}, "base")
	assert.ErrorIs(t, err, ErrQuery)
	assert.Equal(t, faults.StatusCollisionQuery, faults.Status(err))
}
