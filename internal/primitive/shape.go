package primitive

import (
	"fmt"
	"math"
	"strings"

	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Kind identifies a primitive variant.
type Kind int

const (
	KindPoint Kind = iota + 1
	KindLine
	KindPlane
	KindBox
	KindCylinder
	KindSphere
	KindFrame
)

// Kinds lists every primitive kind.
var Kinds = []Kind{KindPoint, KindLine, KindPlane, KindBox, KindCylinder, KindSphere, KindFrame}

var kindNames = map[Kind]string{
	KindPoint:    "point",
	KindLine:     "line",
	KindPlane:    "plane",
	KindBox:      "box",
	KindCylinder: "cylinder",
	KindSphere:   "sphere",
	KindFrame:    "frame",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind parses a kind name such as "point" or "cylinder".
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Shape is the closed set of primitive geometries. All coordinates are
// expressed in the owning frame of the primitive.
type Shape interface {
	Kind() Kind
	shape()
}

// Point is a single position.
type Point struct {
	Position r3.Vec
}

// Line is an infinite line through Origin along the unit Direction.
type Line struct {
	Direction r3.Vec
	Origin    r3.Vec
}

// Plane holds the points x with Normal . x = Offset; Normal is unit length.
type Plane struct {
	Normal r3.Vec
	Offset float64
}

// Cylinder is a cylinder of Radius and Height whose axis passes through Origin
// along the unit Direction.
type Cylinder struct {
	Direction r3.Vec
	Origin    r3.Vec
	Radius    float64
	Height    float64
}

// Sphere is a ball.
type Sphere struct {
	Center r3.Vec
	Radius float64
}

// Frame is a coordinate frame attached to the owning frame.
type Frame struct {
	Position r3.Vec
	Rotation kinematics.Rotation
}

// Box is an oriented box. Rotation, the quaternion and the scaling matrices
// are derived once at construction.
type Box struct {
	center     r3.Vec
	dimensions r3.Vec
	rotation   kinematics.Rotation
	quat       [4]float64
	scaling    *mat.DiagDense
	scalingInv *mat.DiagDense
}

func (Point) Kind() Kind    { return KindPoint }
func (Line) Kind() Kind     { return KindLine }
func (Plane) Kind() Kind    { return KindPlane }
func (Box) Kind() Kind      { return KindBox }
func (Cylinder) Kind() Kind { return KindCylinder }
func (Sphere) Kind() Kind   { return KindSphere }
func (Frame) Kind() Kind    { return KindFrame }

func (Point) shape()    {}
func (Line) shape()     {}
func (Plane) shape()    {}
func (Box) shape()      {}
func (Cylinder) shape() {}
func (Sphere) shape()   {}
func (Frame) shape()    {}

// Center returns the box center.
func (b Box) Center() r3.Vec { return b.center }

// Dimensions returns the edge lengths along the box axes.
func (b Box) Dimensions() r3.Vec { return b.dimensions }

// Rotation returns the box orientation relative to its owning frame.
func (b Box) Rotation() kinematics.Rotation { return b.rotation }

// Quaternion returns the box orientation as w, x, y, z.
func (b Box) Quaternion() (w, x, y, z float64) {
	return b.quat[0], b.quat[1], b.quat[2], b.quat[3]
}

// Scaling returns diag(1/dx, 1/dy, 1/dz).
func (b Box) Scaling() *mat.DiagDense { return b.scaling }

// ScalingInverted returns diag(dx, dy, dz).
func (b Box) ScalingInverted() *mat.DiagDense { return b.scalingInv }

// NewShape parses params for kind. Parameter layouts:
//
//	point     x y z
//	line      dx dy dz px py pz
//	plane     nx ny nz d
//	box       cx cy cz dx dy dz [ax ay az | qw qx qy qz]
//	cylinder  dx dy dz px py pz radius height
//	sphere    cx cy cz radius
//	frame     x y z [ax ay az | qw qx qy qz]
func NewShape(kind Kind, params []float64) (Shape, error) {
	for _, p := range params {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("%w: non-finite value", ErrInvalidParameter)
		}
	}
	switch kind {
	case KindPoint:
		if err := wantCount(kind, params, 3); err != nil {
			return nil, err
		}
		return Point{Position: vec(params[0:3])}, nil

	case KindLine:
		if err := wantCount(kind, params, 6); err != nil {
			return nil, err
		}
		dir, err := unit(vec(params[0:3]), "line direction")
		if err != nil {
			return nil, err
		}
		return Line{Direction: dir, Origin: vec(params[3:6])}, nil

	case KindPlane:
		if err := wantCount(kind, params, 4); err != nil {
			return nil, err
		}
		raw := vec(params[0:3])
		n := r3.Norm(raw)
		if n == 0 {
			return nil, fmt.Errorf("%w: zero plane normal", ErrInvalidParameter)
		}
		// Scaling the normal also scales the offset so the plane is unchanged.
		return Plane{Normal: r3.Scale(1/n, raw), Offset: params[3] / n}, nil

	case KindBox:
		return newBox(params)

	case KindCylinder:
		if err := wantCount(kind, params, 8); err != nil {
			return nil, err
		}
		dir, err := unit(vec(params[0:3]), "cylinder direction")
		if err != nil {
			return nil, err
		}
		if params[6] <= 0 || params[7] <= 0 {
			return nil, fmt.Errorf("%w: cylinder radius and height must be positive", ErrInvalidParameter)
		}
		return Cylinder{Direction: dir, Origin: vec(params[3:6]), Radius: params[6], Height: params[7]}, nil

	case KindSphere:
		if err := wantCount(kind, params, 4); err != nil {
			return nil, err
		}
		if params[3] <= 0 {
			return nil, fmt.Errorf("%w: sphere radius must be positive", ErrInvalidParameter)
		}
		return Sphere{Center: vec(params[0:3]), Radius: params[3]}, nil

	case KindFrame:
		if err := wantCount(kind, params, 3, 6, 7); err != nil {
			return nil, err
		}
		rot, _, err := orientation(params[3:])
		if err != nil {
			return nil, err
		}
		return Frame{Position: vec(params[0:3]), Rotation: rot}, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
}

func newBox(params []float64) (Shape, error) {
	if err := wantCount(KindBox, params, 6, 9, 10); err != nil {
		return nil, err
	}
	dims := vec(params[3:6])
	if dims.X <= 0 || dims.Y <= 0 || dims.Z <= 0 {
		return nil, fmt.Errorf("%w: box dimensions must be positive", ErrInvalidParameter)
	}
	rot, quat, err := orientation(params[6:])
	if err != nil {
		return nil, err
	}
	return Box{
		center:     vec(params[0:3]),
		dimensions: dims,
		rotation:   rot,
		quat:       quat,
		scaling:    mat.NewDiagDense(3, []float64{1 / dims.X, 1 / dims.Y, 1 / dims.Z}),
		scalingInv: mat.NewDiagDense(3, []float64{dims.X, dims.Y, dims.Z}),
	}, nil
}

// orientation parses the optional trailing orientation block: nothing
// (identity), XYZ Euler angles, or a w, x, y, z quaternion.
func orientation(params []float64) (kinematics.Rotation, [4]float64, error) {
	switch len(params) {
	case 3:
		rot := kinematics.FromEulerXYZ(params[0], params[1], params[2])
		w, x, y, z := rot.Quaternion()
		return rot, [4]float64{w, x, y, z}, nil
	case 4:
		w, x, y, z := params[0], params[1], params[2], params[3]
		n := math.Sqrt(w*w + x*x + y*y + z*z)
		if n == 0 {
			return kinematics.Rotation{}, [4]float64{}, fmt.Errorf("%w: zero quaternion", ErrInvalidParameter)
		}
		return kinematics.FromQuaternion(w, x, y, z), [4]float64{w / n, x / n, y / n, z / n}, nil
	}
	return kinematics.Identity(), [4]float64{1, 0, 0, 0}, nil
}

func wantCount(kind Kind, params []float64, counts ...int) error {
	for _, c := range counts {
		if len(params) == c {
			return nil
		}
	}
	return fmt.Errorf("%w: %s takes %v parameters, got %d", ErrInvalidParameterCount, kind, counts, len(params))
}

func vec(p []float64) r3.Vec {
	return r3.Vec{X: p[0], Y: p[1], Z: p[2]}
}

func unit(v r3.Vec, what string) (r3.Vec, error) {
	n := r3.Norm(v)
	if n == 0 {
		return r3.Vec{}, fmt.Errorf("%w: zero %s", ErrInvalidParameter, what)
	}
	return r3.Scale(1/n, v), nil
}

// Params returns the parameter list that rebuilds s with NewShape. Boxes and
// frames always use the quaternion layout.
func Params(s Shape) []float64 {
	switch v := s.(type) {
	case Point:
		return []float64{v.Position.X, v.Position.Y, v.Position.Z}
	case Line:
		return []float64{v.Direction.X, v.Direction.Y, v.Direction.Z, v.Origin.X, v.Origin.Y, v.Origin.Z}
	case Plane:
		return []float64{v.Normal.X, v.Normal.Y, v.Normal.Z, v.Offset}
	case Box:
		c, d := v.center, v.dimensions
		return []float64{c.X, c.Y, c.Z, d.X, d.Y, d.Z, v.quat[0], v.quat[1], v.quat[2], v.quat[3]}
	case Cylinder:
		return []float64{v.Direction.X, v.Direction.Y, v.Direction.Z, v.Origin.X, v.Origin.Y, v.Origin.Z, v.Radius, v.Height}
	case Sphere:
		return []float64{v.Center.X, v.Center.Y, v.Center.Z, v.Radius}
	case Frame:
		w, x, y, z := v.Rotation.Quaternion()
		return []float64{v.Position.X, v.Position.Y, v.Position.Z, w, x, y, z}
	}
	return nil
}
