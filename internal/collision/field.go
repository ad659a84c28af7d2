package collision

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// Obstacle kinds understood by NewField.
const (
	ObstacleSphere = "sphere"
	ObstacleBox    = "box"
	ObstaclePlane  = "plane"
)

// Obstacle describes one static obstacle. Center is the sphere or box center,
// or a point on a plane. Boxes are axis aligned with edge lengths Size.
type Obstacle struct {
	Name   string    `json:"name" toml:"name" koanf:"name"`
	Kind   string    `json:"kind" toml:"kind" koanf:"kind"`
	Center []float64 `json:"center" toml:"center" koanf:"center"`
	Radius float64   `json:"radius,omitempty" toml:"radius" koanf:"radius"`
	Size   []float64 `json:"size,omitempty" toml:"size" koanf:"size"`
	Normal []float64 `json:"normal,omitempty" toml:"normal" koanf:"normal"`
}

// surface returns the closest surface point to p and the signed distance to
// it, negative inside the obstacle.
type surface func(p r3.Vec) (r3.Vec, float64)

// Field is an analytic distance field over a fixed set of obstacles. Samples
// farther than the mapped range from every obstacle, or inside one, are
// reported invalid.
type Field struct {
	frame    string
	maxRange float64
	names    []string
	surfaces []surface

	mu   sync.Mutex
	refs int
}

// NewField compiles obstacles expressed in frame. maxRange bounds the mapped
// region; zero means unbounded.
func NewField(frame string, maxRange float64, obstacles []Obstacle) (*Field, error) {
	if frame == "" {
		return nil, fmt.Errorf("%w: empty frame", ErrBadObstacle)
	}
	if maxRange < 0 {
		return nil, fmt.Errorf("%w: negative range", ErrBadObstacle)
	}
	if maxRange == 0 {
		maxRange = math.Inf(1)
	}
	f := &Field{frame: frame, maxRange: maxRange}
	for i, o := range obstacles {
		s, err := compile(o)
		if err != nil {
			return nil, fmt.Errorf("obstacle %d (%s): %w", i, o.Name, err)
		}
		f.names = append(f.names, o.Name)
		f.surfaces = append(f.surfaces, s)
	}
	return f, nil
}

func compile(o Obstacle) (surface, error) {
	center, err := vec3(o.Center, "center")
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(o.Kind) {
	case ObstacleSphere:
		if o.Radius <= 0 {
			return nil, fmt.Errorf("%w: sphere radius must be positive", ErrBadObstacle)
		}
		return sphereSurface(center, o.Radius), nil
	case ObstacleBox:
		size, err := vec3(o.Size, "size")
		if err != nil {
			return nil, err
		}
		if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
			return nil, fmt.Errorf("%w: box size must be positive", ErrBadObstacle)
		}
		return boxSurface(center, r3.Scale(0.5, size)), nil
	case ObstaclePlane:
		n, err := vec3(o.Normal, "normal")
		if err != nil {
			return nil, err
		}
		if r3.Norm(n) == 0 {
			return nil, fmt.Errorf("%w: zero plane normal", ErrBadObstacle)
		}
		return planeSurface(center, r3.Unit(n)), nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrBadObstacle, o.Kind)
}

func sphereSurface(c r3.Vec, radius float64) surface {
	return func(p r3.Vec) (r3.Vec, float64) {
		d := r3.Sub(p, c)
		n := r3.Norm(d)
		if n == 0 {
			return r3.Add(c, r3.Vec{X: radius}), -radius
		}
		return r3.Add(c, r3.Scale(radius/n, d)), n - radius
	}
}

func boxSurface(c, half r3.Vec) surface {
	return func(p r3.Vec) (r3.Vec, float64) {
		l := r3.Sub(p, c)
		q := r3.Vec{
			X: math.Max(-half.X, math.Min(half.X, l.X)),
			Y: math.Max(-half.Y, math.Min(half.Y, l.Y)),
			Z: math.Max(-half.Z, math.Min(half.Z, l.Z)),
		}
		if q != l {
			return r3.Add(c, q), r3.Norm(r3.Sub(l, q))
		}
		// Inside: nearest face.
		dx, dy, dz := half.X-math.Abs(l.X), half.Y-math.Abs(l.Y), half.Z-math.Abs(l.Z)
		switch {
		case dx <= dy && dx <= dz:
			q.X = math.Copysign(half.X, l.X)
			return r3.Add(c, q), -dx
		case dy <= dz:
			q.Y = math.Copysign(half.Y, l.Y)
			return r3.Add(c, q), -dy
		}
		q.Z = math.Copysign(half.Z, l.Z)
		return r3.Add(c, q), -dz
	}
}

func planeSurface(x0, n r3.Vec) surface {
	return func(p r3.Vec) (r3.Vec, float64) {
		d := r3.Dot(n, r3.Sub(p, x0))
		return r3.Sub(p, r3.Scale(d, n)), d
	}
}

// Frame returns the frame the field is expressed in.
func (f *Field) Frame() string { return f.frame }

// Obstacles returns the obstacle names in declaration order.
func (f *Field) Obstacles() []string { return append([]string(nil), f.names...) }

// Activate implements Checker.
func (f *Field) Activate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs++
	return nil
}

// Deactivate implements Checker.
func (f *Field) Deactivate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refs == 0 {
		return fmt.Errorf("%w: deactivate without activate", ErrNotActive)
	}
	f.refs--
	return nil
}

// Active reports whether at least one user holds the field.
func (f *Field) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refs > 0
}

// Gradients implements Checker.
func (f *Field) Gradients(points []r3.Vec, frame string) ([]Gradient, error) {
	if !f.Active() {
		return nil, ErrNotActive
	}
	if frame != f.frame {
		return nil, fmt.Errorf("%w: points in %q, field in %q", ErrQuery, frame, f.frame)
	}
	out := make([]Gradient, len(points))
	for i, p := range points {
		out[i] = f.sample(p)
	}
	return out, nil
}

func (f *Field) sample(p r3.Vec) Gradient {
	best := math.Inf(1)
	var closest r3.Vec
	for _, s := range f.surfaces {
		c, d := s(p)
		if d < best {
			best, closest = d, c
		}
	}
	if best <= 0 || best > f.maxRange || math.IsInf(best, 1) {
		return Gradient{}
	}
	return Gradient{Vector: r3.Sub(closest, p), Valid: true}
}

func vec3(v []float64, what string) (r3.Vec, error) {
	if len(v) != 3 {
		return r3.Vec{}, fmt.Errorf("%w: %s needs 3 components, got %d", ErrBadObstacle, what, len(v))
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}
