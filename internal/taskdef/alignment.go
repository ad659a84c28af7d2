package taskdef

import (
	"github.com/fyrsmithlabs/taskstack/internal/primitive"
	"gonum.org/v1/gonum/spatial/r3"
)

type alignment struct {
	rows int
	fn   func(a, b *feature, target float64) relation
}

var alignments = map[pair]alignment{
	{primitive.KindLine, primitive.KindLine}:     {1, alignDirections},
	{primitive.KindLine, primitive.KindPlane}:    {1, alignDirections},
	{primitive.KindLine, primitive.KindCylinder}: {1, alignDirections},
	{primitive.KindLine, primitive.KindSphere}:   {1, alignLineSphere},
	{primitive.KindFrame, primitive.KindFrame}:   {3, alignFrameFrame},
}

// alignDirections: e = cos(angle) - vA·vB, with vB the line or cylinder
// direction or the plane normal.
func alignDirections(a, b *feature, target float64) relation {
	w := r3.Cross(a.dir, b.dir)
	return relation{
		e:    []float64{target - r3.Dot(a.dir, b.dir)},
		rows: []row{{angA: r3.Scale(-1, w), angB: w}},
		cA:   a.at,
		cB:   b.at,
	}
}

// alignLineSphere: e = cos(angle) - vA·u, u the unit vector from the line
// origin to the sphere center.
func alignLineSphere(a, b *feature, target float64) relation {
	d := r3.Sub(b.at, a.at)
	l := r3.Norm(d)
	if l < singularCutoff {
		return relation{e: []float64{0}, rows: []row{{}}, cA: a.at, cB: b.at}
	}
	u := r3.Scale(1/l, d)
	c := r3.Dot(a.dir, u)
	m := r3.Scale(1/l, r3.Sub(a.dir, r3.Scale(c, u)))
	r := row{
		angA: r3.Scale(-1, r3.Cross(a.dir, u)),
		linA: m,
		linB: r3.Scale(-1, m),
	}
	return relation{
		e:    []float64{target - c},
		rows: []row{r},
		cA:   a.at,
		cB:   b.at,
	}
}

// alignFrameFrame: e = Log(R_B R_A^T). The target angle does not apply.
func alignFrameFrame(a, b *feature, _ float64) relation {
	return relation{
		e:    rotationError(a.rot, b.rot),
		rows: rotationRows(),
		cA:   a.at,
		cB:   b.at,
	}
}
