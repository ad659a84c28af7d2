package primitive

import (
	"errors"
	"math"
	"testing"

	"github.com/fyrsmithlabs/taskstack/internal/faults"
	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func pointSpec(name string, params ...float64) Spec {
	return Spec{Name: name, Kind: "point", FrameID: "tool", Visible: true, Params: params}
}

func TestNewShape_ParameterCounts(t *testing.T) {
	tests := []struct {
		kind    Kind
		params  []float64
		wantErr error
	}{
		{KindPoint, []float64{1, 2, 3}, nil},
		{KindPoint, []float64{1, 2}, ErrInvalidParameterCount},
		{KindPoint, []float64{1, 2, 3, 4}, ErrInvalidParameterCount},
		{KindLine, []float64{0, 0, 2, 1, 1, 1}, nil},
		{KindLine, []float64{0, 0, 0, 1, 1, 1}, ErrInvalidParameter},
		{KindPlane, []float64{0, 0, 1, 0.5}, nil},
		{KindPlane, []float64{0, 0, 1}, ErrInvalidParameterCount},
		{KindBox, []float64{0, 0, 0, 1, 1, 1}, nil},
		{KindBox, []float64{0, 0, 0, 1, 1, 1, 0.1, 0.2, 0.3}, nil},
		{KindBox, []float64{0, 0, 0, 1, 1, 1, 1, 0, 0, 0}, nil},
		{KindBox, []float64{0, 0, 0, 1, 1, 1, 0}, ErrInvalidParameterCount},
		{KindBox, []float64{0, 0, 0, 1, 0, 1}, ErrInvalidParameter},
		{KindBox, []float64{0, 0, 0, 1, 1, 1, 0, 0, 0, 0}, ErrInvalidParameter},
		{KindCylinder, []float64{0, 0, 1, 0, 0, 0, 0.1, 0.5}, nil},
		{KindCylinder, []float64{0, 0, 1, 0, 0, 0, -0.1, 0.5}, ErrInvalidParameter},
		{KindSphere, []float64{0, 0, 0, 0.2}, nil},
		{KindSphere, []float64{0, 0, 0, 0}, ErrInvalidParameter},
		{KindFrame, []float64{0, 0, 0}, nil},
		{KindFrame, []float64{0, 0, 0, 0, 0, math.Pi}, nil},
		{KindFrame, []float64{0, 0, 0, 1, 0, 0, 0}, nil},
		{KindFrame, []float64{0, 0, 0, 1}, ErrInvalidParameterCount},
		{KindPoint, []float64{math.NaN(), 0, 0}, ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			shape, err := NewShape(tt.kind, tt.params)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, faults.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, shape.Kind())
		})
	}
}

func TestNewShape_Normalizes(t *testing.T) {
	shape, err := NewShape(KindLine, []float64{0, 0, 2, 1, 1, 1})
	require.NoError(t, err)
	line := shape.(Line)
	assert.InDelta(t, 1, r3.Norm(line.Direction), 1e-12)

	shape, err = NewShape(KindPlane, []float64{0, 0, 2, 1})
	require.NoError(t, err)
	plane := shape.(Plane)
	assert.InDelta(t, 1, r3.Norm(plane.Normal), 1e-12)
	assert.InDelta(t, 0.5, plane.Offset, 1e-12)
}

func TestBox_SixParameters(t *testing.T) {
	shape, err := NewShape(KindBox, []float64{0, 0, 0, 2, 4, 6})
	require.NoError(t, err)
	box := shape.(Box)

	assert.Equal(t, r3.Vec{}, box.Center())
	assert.Equal(t, r3.Vec{X: 2, Y: 4, Z: 6}, box.Dimensions())
	assert.Equal(t, kinematics.Identity(), box.Rotation())

	w, x, y, z := box.Quaternion()
	assert.Equal(t, []float64{1, 0, 0, 0}, []float64{w, x, y, z})

	assert.InDelta(t, 0.5, box.Scaling().At(0, 0), 1e-12)
	assert.InDelta(t, 0.25, box.Scaling().At(1, 1), 1e-12)
	assert.InDelta(t, 1.0/6, box.Scaling().At(2, 2), 1e-12)
	assert.InDelta(t, 6.0, box.ScalingInverted().At(2, 2), 1e-12)
}

func TestBox_Orientation(t *testing.T) {
	shape, err := NewShape(KindBox, []float64{1, 0, 0, 1, 1, 1, 0.1, 0.2, 0.3})
	require.NoError(t, err)
	assert.Equal(t, kinematics.FromEulerXYZ(0.1, 0.2, 0.3), shape.(Box).Rotation())

	half := math.Sqrt(0.5)
	shape, err = NewShape(KindBox, []float64{1, 0, 0, 1, 1, 1, 2 * half, 0, 0, 2 * half})
	require.NoError(t, err)
	box := shape.(Box)
	w, _, _, z := box.Quaternion()
	assert.InDelta(t, half, w, 1e-12)
	assert.InDelta(t, half, z, 1e-12)
	got := box.Rotation().Apply(r3.Vec{X: 1})
	assert.InDelta(t, 1, got.Y, 1e-12)
}

func TestRegistry_UpsertIsIdempotent(t *testing.T) {
	r := NewRegistry()

	h1, err := r.Upsert(pointSpec("p1", 0, 0, 0.1))
	require.NoError(t, err)
	first, _, err := r.Get("p1")
	require.NoError(t, err)

	h2, err := r.Upsert(pointSpec("p1", 0, 0, 0.1))
	require.NoError(t, err)
	second, _, err := r.Get("p1")
	require.NoError(t, err)

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, h1, h2)
	assert.Equal(t, first, second)
}

func TestRegistry_FailedUpsertLeavesRegistryUnchanged(t *testing.T) {
	r := NewRegistry()
	_, err := r.Upsert(pointSpec("p1", 1, 2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidParameterCount))
	assert.Less(t, faults.Status(err), 0)
	assert.Equal(t, 0, r.Len())

	_, err = r.Upsert(pointSpec("p2", 1, 2, 3))
	require.NoError(t, err)
	_, err = r.Upsert(pointSpec("p2", 1, 2))
	require.Error(t, err)
	prim, _, err := r.Get("p2")
	require.NoError(t, err)
	assert.Equal(t, Point{Position: r3.Vec{X: 1, Y: 2, Z: 3}}, prim.Shape)
}

func TestRegistry_BuildValidation(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want error
	}{
		{"empty name", Spec{Kind: "point", FrameID: "f", Params: []float64{0, 0, 0}}, ErrInvalidParameter},
		{"empty frame", Spec{Name: "p", Kind: "point", Params: []float64{0, 0, 0}}, ErrInvalidParameter},
		{"unknown kind", Spec{Name: "p", Kind: "torus", FrameID: "f"}, ErrUnknownKind},
		{"bad color", Spec{Name: "p", Kind: "point", FrameID: "f", Color: []float64{1}, Params: []float64{0, 0, 0}}, ErrInvalidParameterCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.spec)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	prim, err := Build(Spec{Name: "p", Kind: "Point", FrameID: "f", Color: []float64{1, 0, 0}, Params: []float64{0, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, [4]float64{1, 0, 0, 1}, prim.Color)

	prim, err = Build(Spec{Name: "p", Kind: "point", FrameID: "f", Params: []float64{0, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, DefaultColor, prim.Color)
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	_, err := r.Upsert(pointSpec("p1", 1, 2, 3))
	require.NoError(t, err)

	prim, pt, h, err := Lookup[Point](r, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", prim.Name)
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, pt.Position)
	assert.NotZero(t, h.Generation)

	_, _, _, err = Lookup[Sphere](r, "p1")
	assert.ErrorIs(t, err, ErrKindMismatch)

	_, _, _, err = Lookup[Point](r, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestRegistry_Handles(t *testing.T) {
	r := NewRegistry()
	h, err := r.Upsert(pointSpec("p1", 0, 0, 0))
	require.NoError(t, err)

	t.Run("same kind replacement keeps handle", func(t *testing.T) {
		h2, err := r.Upsert(pointSpec("p1", 1, 1, 1))
		require.NoError(t, err)
		assert.Equal(t, h, h2)
		prim, err := r.Resolve(h)
		require.NoError(t, err)
		assert.Equal(t, r3.Vec{X: 1, Y: 1, Z: 1}, prim.Shape.(Point).Position)
	})

	t.Run("kind change expires handle", func(t *testing.T) {
		_, err := r.Upsert(Spec{Name: "p1", Kind: "sphere", FrameID: "tool", Params: []float64{0, 0, 0, 0.1}})
		require.NoError(t, err)
		_, err = r.Resolve(h)
		assert.ErrorIs(t, err, ErrHandleExpired)
		assert.Equal(t, faults.StatusHandleExpired, faults.Status(err))
	})

	t.Run("remove expires handle and slot is reused", func(t *testing.T) {
		_, sh, err := r.Get("p1")
		require.NoError(t, err)
		require.NoError(t, r.Remove("p1"))
		_, err = r.Resolve(sh)
		assert.ErrorIs(t, err, ErrHandleExpired)

		nh, err := r.Upsert(pointSpec("p9", 0, 0, 0))
		require.NoError(t, err)
		_, err = r.Resolve(sh)
		assert.ErrorIs(t, err, ErrHandleExpired, "reused slot must not revive old handle")
		_, err = r.Resolve(nh)
		assert.NoError(t, err)
	})

	t.Run("zero handle never resolves", func(t *testing.T) {
		_, err := r.Resolve(Handle{})
		assert.ErrorIs(t, err, ErrHandleExpired)
		_, err = r.Resolve(Handle{Index: 99, Generation: 1})
		assert.ErrorIs(t, err, ErrHandleExpired)
	})
}

func TestRegistry_RemoveAndList(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		_, err := r.Upsert(pointSpec(name, 0, 0, 0))
		require.NoError(t, err)
	}

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{list[0].Name, list[1].Name, list[2].Name})

	assert.ErrorIs(t, r.Remove("zzz"), ErrNotFound)
	require.NoError(t, r.Remove("b"))
	assert.Equal(t, 2, r.Len())

	r.RemoveAll()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.List())
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("cone")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestParams_Rebuilds(t *testing.T) {
	for _, tt := range []struct {
		kind   Kind
		params []float64
	}{
		{KindLine, []float64{0, 0, 2, 1, 1, 1}},
		{KindPlane, []float64{0, 0, 2, 1}},
		{KindBox, []float64{1, 2, 3, 0.5, 0.5, 1, 0.1, 0.2, 0.3}},
		{KindFrame, []float64{0, 0, 1, 0, 0, math.Pi / 2}},
	} {
		shape, err := NewShape(tt.kind, tt.params)
		require.NoError(t, err)
		rebuilt, err := NewShape(tt.kind, Params(shape))
		require.NoError(t, err, tt.kind.String())
		assert.InDeltaSlice(t, Params(shape), Params(rebuilt), 1e-12, tt.kind.String())
	}
}
