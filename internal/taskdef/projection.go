package taskdef

import (
	"math"

	"github.com/fyrsmithlabs/taskstack/internal/primitive"
	"gonum.org/v1/gonum/spatial/r3"
)

type projection struct {
	rows int
	fn   func(a, b *feature) relation
}

var projections = map[pair]projection{
	{primitive.KindPoint, primitive.KindPoint}:    {3, projectPointPoint},
	{primitive.KindPoint, primitive.KindLine}:     {3, projectPointLine},
	{primitive.KindPoint, primitive.KindPlane}:    {1, projectPointPlane},
	{primitive.KindPoint, primitive.KindBox}:      {1, projectPointBox},
	{primitive.KindPoint, primitive.KindCylinder}: {1, projectPointCylinder},
	{primitive.KindPoint, primitive.KindSphere}:   {1, projectPointSphere},
	{primitive.KindLine, primitive.KindLine}:      {2, projectLineLine},
	{primitive.KindSphere, primitive.KindPlane}:   {1, projectSpherePlane},
	{primitive.KindSphere, primitive.KindSphere}:  {1, projectSphereSphere},
	{primitive.KindFrame, primitive.KindFrame}:    {6, projectFrameFrame},
}

// projectPointPoint: e = pB - pA.
func projectPointPoint(a, b *feature) relation {
	d := r3.Sub(b.at, a.at)
	return relation{
		e:    []float64{d.X, d.Y, d.Z},
		rows: offsetRows(),
		cA:   a.at,
		cB:   b.at,
	}
}

// projectPointLine: e is the component of p - x orthogonal to the line.
func projectPointLine(a, b *feature) relation {
	v := b.dir
	d := r3.Sub(a.at, b.at)
	foot := r3.Add(b.at, r3.Scale(r3.Dot(v, d), v))
	res := r3.Sub(a.at, foot)
	twist := r3.Cross(v, d)

	rows := make([]row, 3)
	for k := range rows {
		p := r3.Sub(axis(k), r3.Scale(component(v, k), v))
		rows[k] = row{
			linA: p,
			linB: r3.Scale(-1, p),
			angB: r3.Scale(-component(v, k), twist),
		}
	}
	return relation{
		e:    []float64{res.X, res.Y, res.Z},
		rows: rows,
		cA:   a.at,
		cB:   foot,
	}
}

// projectPointPlane: e is the signed distance of the point above the plane.
func projectPointPlane(a, b *feature) relation {
	return pointAbovePlane(a.at, b, 0)
}

// projectSpherePlane: e is the signed distance of the sphere surface above the
// plane.
func projectSpherePlane(a, b *feature) relation {
	return pointAbovePlane(a.at, b, a.radius)
}

func pointAbovePlane(p r3.Vec, plane *feature, radius float64) relation {
	n := plane.dir
	dist := r3.Dot(n, r3.Sub(p, plane.at))
	return relation{
		e:    []float64{dist - radius},
		rows: []row{{linA: n, linB: r3.Scale(-1, n)}},
		cA:   p,
		cB:   r3.Sub(p, r3.Scale(dist, n)),
	}
}

// projectPointBox: e is the signed distance to the box surface, negative
// inside.
func projectPointBox(a, b *feature) relation {
	rt := b.rot.Transpose()
	local := rt.Apply(r3.Sub(a.at, b.at))
	half := r3.Scale(0.5, b.dims)

	var surface, normal r3.Vec
	inside := math.Abs(local.X) <= half.X && math.Abs(local.Y) <= half.Y && math.Abs(local.Z) <= half.Z
	if inside {
		// Push out through the nearest face.
		best, depth := 0, math.Inf(1)
		for k := 0; k < 3; k++ {
			if d := component(half, k) - math.Abs(component(local, k)); d < depth {
				best, depth = k, d
			}
		}
		sign := 1.0
		if component(local, best) < 0 {
			sign = -1
		}
		normal = r3.Scale(sign, axis(best))
		surface = r3.Add(local, r3.Scale(sign*depth, axis(best)))
	} else {
		surface = r3.Vec{
			X: math.Max(-half.X, math.Min(half.X, local.X)),
			Y: math.Max(-half.Y, math.Min(half.Y, local.Y)),
			Z: math.Max(-half.Z, math.Min(half.Z, local.Z)),
		}
		normal = r3.Unit(r3.Sub(local, surface))
	}

	n := b.rot.Apply(normal)
	c := r3.Add(b.at, b.rot.Apply(surface))
	return relation{
		e:    []float64{r3.Dot(n, r3.Sub(a.at, c))},
		rows: []row{{linA: n, linB: r3.Scale(-1, n)}},
		cA:   a.at,
		cB:   c,
	}
}

// projectPointCylinder: e is the radial distance to the cylinder mantle. The
// cylinder is treated as infinite along its axis.
func projectPointCylinder(a, b *feature) relation {
	v := b.dir
	d := r3.Sub(a.at, b.at)
	along := r3.Dot(v, d)
	radial := r3.Sub(d, r3.Scale(along, v))
	rho := r3.Norm(radial)
	u := perpendicular(v)
	if rho > singularCutoff {
		u = r3.Scale(1/rho, radial)
	}
	c := r3.Add(b.at, r3.Add(r3.Scale(along, v), r3.Scale(b.radius, u)))
	return relation{
		e:    []float64{rho - b.radius},
		rows: []row{{linA: u, linB: r3.Scale(-1, u)}},
		cA:   a.at,
		cB:   c,
	}
}

// projectPointSphere: e is the distance to the sphere surface.
func projectPointSphere(a, b *feature) relation {
	d := r3.Sub(a.at, b.at)
	dist := r3.Norm(d)
	u := r3.Vec{X: 1}
	if dist > singularCutoff {
		u = r3.Scale(1/dist, d)
	}
	return relation{
		e:    []float64{dist - b.radius},
		rows: []row{{linA: u, linB: r3.Scale(-1, u)}},
		cA:   a.at,
		cB:   r3.Add(b.at, r3.Scale(b.radius, u)),
	}
}

// projectLineLine: e = [1 - vA·vB, signed common-normal distance].
func projectLineLine(a, b *feature) relation {
	w := r3.Cross(a.dir, b.dir)
	rows := []row{{angA: r3.Scale(-1, w), angB: w}, {}}
	e := []float64{1 - r3.Dot(a.dir, b.dir), 0}
	cA, cB := a.at, b.at

	if s := r3.Norm(w); s > singularCutoff {
		n := r3.Scale(1/s, w)
		cA, cB = closestPoints(a, b)
		e[1] = r3.Dot(n, r3.Sub(b.at, a.at))
		rows[1] = row{linA: r3.Scale(-1, n), linB: n}
	} else {
		d := r3.Sub(b.at, a.at)
		along := r3.Dot(a.dir, d)
		perp := r3.Sub(d, r3.Scale(along, a.dir))
		if dist := r3.Norm(perp); dist > singularCutoff {
			n := r3.Scale(1/dist, perp)
			cA = r3.Add(a.at, r3.Scale(along, a.dir))
			e[1] = dist
			rows[1] = row{linA: r3.Scale(-1, n), linB: n}
		}
	}
	return relation{e: e, rows: rows, cA: cA, cB: cB}
}

// closestPoints returns the closest points of two non-parallel lines.
func closestPoints(a, b *feature) (r3.Vec, r3.Vec) {
	w0 := r3.Sub(a.at, b.at)
	c := r3.Dot(a.dir, b.dir)
	d := r3.Dot(a.dir, w0)
	e := r3.Dot(b.dir, w0)
	den := 1 - c*c
	s := (c*e - d) / den
	t := (e - c*d) / den
	return r3.Add(a.at, r3.Scale(s, a.dir)), r3.Add(b.at, r3.Scale(t, b.dir))
}

// projectSphereSphere: e is the center distance minus both radii.
func projectSphereSphere(a, b *feature) relation {
	d := r3.Sub(b.at, a.at)
	dist := r3.Norm(d)
	u := r3.Vec{X: 1}
	if dist > singularCutoff {
		u = r3.Scale(1/dist, d)
	}
	return relation{
		e:    []float64{dist - a.radius - b.radius},
		rows: []row{{linA: r3.Scale(-1, u), linB: u}},
		cA:   a.at,
		cB:   b.at,
	}
}

// projectFrameFrame: e = [oB - oA, Log(R_B R_A^T)].
func projectFrameFrame(a, b *feature) relation {
	d := r3.Sub(b.at, a.at)
	return relation{
		e:    append([]float64{d.X, d.Y, d.Z}, rotationError(a.rot, b.rot)...),
		rows: append(offsetRows(), rotationRows()...),
		cA:   a.at,
		cB:   b.at,
	}
}
