package taskdef

import (
	"fmt"
	"math"
	"sort"

	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
	"github.com/fyrsmithlabs/taskstack/internal/primitive"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// feature is a primitive expressed in the base frame, together with the pose
// and Jacobian of the frame that carries it.
type feature struct {
	kind   primitive.Kind
	at     r3.Vec // point, line or cylinder origin, sphere or box center, plane point, frame origin
	dir    r3.Vec // line or cylinder direction, plane normal
	radius float64
	dims   r3.Vec
	rot    kinematics.Rotation
	frame  kinematics.Pose
	jac    *mat.Dense
}

func newFeature(prim *primitive.Primitive, pose kinematics.Pose, jac *mat.Dense) *feature {
	f := &feature{kind: prim.Kind(), frame: pose, jac: jac}
	switch s := prim.Shape.(type) {
	case primitive.Point:
		f.at = pose.Apply(s.Position)
	case primitive.Line:
		f.at = pose.Apply(s.Origin)
		f.dir = pose.Rotation.Apply(s.Direction)
	case primitive.Plane:
		f.at = pose.Apply(r3.Scale(s.Offset, s.Normal))
		f.dir = pose.Rotation.Apply(s.Normal)
	case primitive.Box:
		f.at = pose.Apply(s.Center())
		f.rot = pose.Rotation.Mul(s.Rotation())
		f.dims = s.Dimensions()
	case primitive.Cylinder:
		f.at = pose.Apply(s.Origin)
		f.dir = pose.Rotation.Apply(s.Direction)
		f.radius = s.Radius
	case primitive.Sphere:
		f.at = pose.Apply(s.Center)
		f.radius = s.Radius
	case primitive.Frame:
		f.at = pose.Apply(s.Position)
		f.rot = pose.Rotation.Mul(s.Rotation)
	}
	return f
}

// row is one task row. Its Jacobian entry for joint q is
//
//	linA·vA + angA·wA + linB·vB + angB·wB
//
// where vA is the joint-q velocity of the contact point on A, wA the joint-q
// angular velocity of A's frame, and likewise for B.
type row struct {
	linA, angA r3.Vec
	linB, angB r3.Vec
}

// relation is the evaluated task function of a primitive pair.
type relation struct {
	e      []float64
	rows   []row
	cA, cB r3.Vec
}

// jacobian assembles the masked task Jacobian of rel.
func (rel relation) jacobian(a, b *feature, state *kinematics.RobotState) *mat.Dense {
	n := state.NumJoints()
	j := mat.NewDense(len(rel.rows), n, nil)
	for q := 0; q < n; q++ {
		if !state.IsControlled(q) {
			continue
		}
		vA := kinematics.PointVelocity(a.jac, q, a.frame.Position, rel.cA)
		wA := kinematics.AngularColumn(a.jac, q)
		vB := kinematics.PointVelocity(b.jac, q, b.frame.Position, rel.cB)
		wB := kinematics.AngularColumn(b.jac, q)
		for k, r := range rel.rows {
			j.Set(k, q, r3.Dot(r.linA, vA)+r3.Dot(r.angA, wA)+r3.Dot(r.linB, vB)+r3.Dot(r.angB, wB))
		}
	}
	return j
}

// pair keys the relation tables.
type pair struct {
	a, b primitive.Kind
}

func (p pair) String() string { return p.a.String() + "-" + p.b.String() }

// Pairs lists the primitive-kind pairs supported by a geometric definition
// type, sorted.
func Pairs(typeName string) [][2]primitive.Kind {
	var out [][2]primitive.Kind
	switch typeName {
	case TypeGeomProj:
		for p := range projections {
			out = append(out, [2]primitive.Kind{p.a, p.b})
		}
	case TypeGeomAlign:
		for p := range alignments {
			out = append(out, [2]primitive.Kind{p.a, p.b})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

// checkPair validates the kind pair of a geometric parameter list:
// <type> <kindA> <kindB> ...
func checkPair(params []string) error {
	p, err := pairOf(params)
	if err != nil {
		return err
	}
	var ok bool
	switch params[0] {
	case TypeGeomProj:
		_, ok = projections[p]
	case TypeGeomAlign:
		_, ok = alignments[p]
	}
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrUnsupportedPrimitivePair, params[0], p)
	}
	return nil
}

func pairOf(params []string) (pair, error) {
	if len(params) < 3 {
		return pair{}, fmt.Errorf("%w: %s needs two primitive kinds", ErrInvalidParameterCount, params[0])
	}
	a, err := primitive.ParseKind(params[1])
	if err != nil {
		return pair{}, err
	}
	b, err := primitive.ParseKind(params[2])
	if err != nil {
		return pair{}, err
	}
	return pair{a, b}, nil
}

// geometric is the part shared by projection and alignment definitions:
// resolving both primitives and evaluating a relation between them.
type geometric struct {
	base
	deps   Deps
	hA, hB primitive.Handle
	eval   func(a, b *feature) relation
}

// bind resolves <nameA> <nameB> of params against the registry and fixes the
// row layout.
func (g *geometric) bind(params []string, state *kinematics.RobotState, kinds pair, rows int, t RowType) error {
	if g.deps.Primitives == nil {
		return ErrPrimitiveRegistryRequired
	}
	var err error
	if g.hA, err = g.lookup(params[3], kinds.a, state); err != nil {
		return err
	}
	if g.hB, err = g.lookup(params[4], kinds.b, state); err != nil {
		return err
	}
	g.setRows(rows, t)
	return nil
}

func (g *geometric) lookup(name string, kind primitive.Kind, state *kinematics.RobotState) (primitive.Handle, error) {
	prim, h, err := g.deps.Primitives.Get(name)
	if err != nil {
		return primitive.Handle{}, err
	}
	if prim.Kind() != kind {
		return primitive.Handle{}, fmt.Errorf("%w: %q is a %s, want %s", primitive.ErrKindMismatch, name, prim.Kind(), kind)
	}
	if !state.Tree.HasFrame(prim.FrameID) {
		return primitive.Handle{}, fmt.Errorf("%w: %q of primitive %q", kinematics.ErrUnknownFrame, prim.FrameID, name)
	}
	return h, nil
}

func (g *geometric) feature(h primitive.Handle, state *kinematics.RobotState) (*feature, error) {
	prim, err := g.deps.Primitives.Resolve(h)
	if err != nil {
		return nil, err
	}
	pose, jac, err := state.Tree.PoseAndJacobian(state.Positions, prim.FrameID)
	if err != nil {
		return nil, err
	}
	return newFeature(prim, pose, jac), nil
}

// Update implements Definition.
func (g *geometric) Update(state *kinematics.RobotState) error {
	a, err := g.feature(g.hA, state)
	if err != nil {
		return err
	}
	b, err := g.feature(g.hB, state)
	if err != nil {
		return err
	}
	rel := g.eval(a, b)
	return g.commit(rel.e, rel.jacobian(a, b, state))
}

// GeomProj constrains the position of primitive B relative to primitive A.
//
//	TDefGeomProj <kindA> <kindB> <nameA> <nameB> [= | < | > | <= | >=]
type GeomProj struct {
	geometric
}

// Init implements Definition.
func (d *GeomProj) Init(params []string, state *kinematics.RobotState) error {
	if err := wantParams(params, 5, 6); err != nil {
		return err
	}
	kinds, err := pairOf(params)
	if err != nil {
		return err
	}
	p, ok := projections[kinds]
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrUnsupportedPrimitivePair, TypeGeomProj, kinds)
	}
	t := Equality
	if len(params) == 6 {
		if t, err = ParseRowType(params[5]); err != nil {
			return err
		}
	}
	d.eval = p.fn
	return d.bind(params, state, kinds, p.rows, t)
}

// GeomAlign aligns a direction of primitive A with one of primitive B. The
// optional angle, in radians, is the target angle between the directions;
// frame pairs always target identical orientation.
//
//	TDefGeomAlign <kindA> <kindB> <nameA> <nameB> [angle]
type GeomAlign struct {
	geometric
	angle float64
}

// Init implements Definition.
func (d *GeomAlign) Init(params []string, state *kinematics.RobotState) error {
	if err := wantParams(params, 5, 6); err != nil {
		return err
	}
	kinds, err := pairOf(params)
	if err != nil {
		return err
	}
	al, ok := alignments[kinds]
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrUnsupportedPrimitivePair, TypeGeomAlign, kinds)
	}
	if len(params) == 6 {
		v, err := parseFloats(params[5:6])
		if err != nil {
			return err
		}
		d.angle = v[0]
	}
	target := math.Cos(d.angle)
	d.eval = func(a, b *feature) relation { return al.fn(a, b, target) }
	return d.bind(params, state, kinds, al.rows, Equality)
}

func axis(k int) r3.Vec {
	switch k {
	case 0:
		return r3.Vec{X: 1}
	case 1:
		return r3.Vec{Y: 1}
	}
	return r3.Vec{Z: 1}
}

func component(v r3.Vec, k int) float64 {
	switch k {
	case 0:
		return v.X
	case 1:
		return v.Y
	}
	return v.Z
}

// perpendicular returns a unit vector orthogonal to the unit vector v.
func perpendicular(v r3.Vec) r3.Vec {
	ref := r3.Vec{X: 1}
	if math.Abs(v.X) > 0.9 {
		ref = r3.Vec{Y: 1}
	}
	return r3.Unit(r3.Cross(v, ref))
}

// offsetRows returns the rows of e_k = (pB - pA)_k for k = 0..2.
func offsetRows() []row {
	rows := make([]row, 3)
	for k := range rows {
		rows[k] = row{linA: r3.Scale(-1, axis(k)), linB: axis(k)}
	}
	return rows
}

// rotationRows returns the rows of the rotation-vector error of B relative to A.
func rotationRows() []row {
	rows := make([]row, 3)
	for k := range rows {
		rows[k] = row{angA: r3.Scale(-1, axis(k)), angB: axis(k)}
	}
	return rows
}

// rotationError returns Log(R_B R_A^T) as a slice.
func rotationError(a, b kinematics.Rotation) []float64 {
	w := b.Mul(a.Transpose()).Log()
	return []float64{w.X, w.Y, w.Z}
}
