package taskdef

import (
	"fmt"

	"github.com/fyrsmithlabs/taskstack/internal/faults"
	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
	"github.com/fyrsmithlabs/taskstack/internal/primitive"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// AvoidCollisionsSDF keeps points and spheres on the manipulator away from
// obstacles described by a signed distance field. It has one GreaterEq row per
// primitive:
//
//	TDefAvoidCollisionsSDF <prim1> [prim2 ...]
//
// Each row's value is the distance to the nearest obstacle minus the safety
// margin, and minus the radius for a sphere.
type AvoidCollisionsSDF struct {
	base
	deps    Deps
	handles []primitive.Handle
	active  bool
}

// Init implements Definition. It activates the collision checker; Close
// releases it.
func (d *AvoidCollisionsSDF) Init(params []string, state *kinematics.RobotState) error {
	if len(params) < 2 {
		return fmt.Errorf("%w: %s needs at least one primitive", ErrInvalidParameterCount, TypeAvoidance)
	}
	if d.deps.Primitives == nil {
		return ErrPrimitiveRegistryRequired
	}
	if d.deps.Collision == nil {
		return ErrCollisionCheckerMissing
	}

	handles := make([]primitive.Handle, 0, len(params)-1)
	for _, name := range params[1:] {
		prim, h, err := d.deps.Primitives.Get(name)
		if err != nil {
			return err
		}
		switch prim.Kind() {
		case primitive.KindPoint, primitive.KindSphere:
		default:
			return fmt.Errorf("%w: %q is a %s, want point or sphere", primitive.ErrKindMismatch, name, prim.Kind())
		}
		if _, ok := state.Tree.JointForFrame(prim.FrameID); !ok {
			return fmt.Errorf("%w: %q on frame %q", ErrNotAttachedToManipulator, name, prim.FrameID)
		}
		handles = append(handles, h)
	}

	if err := d.deps.Collision.Activate(); err != nil {
		return fmt.Errorf("%w: activate: %v", faults.ErrCollisionQuery, err)
	}
	d.active = true
	d.handles = handles
	d.setRows(len(handles), GreaterEq)
	return nil
}

// Update implements Definition. All sample points go to the checker in a
// single query. An invalid sample yields a zero row and a zero value.
func (d *AvoidCollisionsSDF) Update(state *kinematics.RobotState) error {
	n := state.NumJoints()
	points := make([]r3.Vec, len(d.handles))
	radii := make([]float64, len(d.handles))
	jacobians := make([]*mat.Dense, len(d.handles))

	for i, h := range d.handles {
		prim, err := d.deps.Primitives.Resolve(h)
		if err != nil {
			return err
		}
		pose, jac, err := state.Tree.PoseAndJacobian(state.Positions, prim.FrameID)
		if err != nil {
			return err
		}
		switch s := prim.Shape.(type) {
		case primitive.Point:
			points[i] = pose.Apply(s.Position)
		case primitive.Sphere:
			points[i] = pose.Apply(s.Center)
			radii[i] = s.Radius
		}
		jv := kinematics.PointJacobian(jac, pose.Position, points[i])
		kinematics.MaskColumns(jv, state)
		jacobians[i] = jv
	}

	root := state.Tree.RootFrame()
	grads, err := d.deps.Collision.Gradients(points, root)
	if err != nil {
		if faults.Category(err) == nil {
			err = fmt.Errorf("%w: %v", faults.ErrCollisionQuery, err)
		}
		return err
	}
	if len(grads) != len(points) {
		return fmt.Errorf("%w: %d gradients for %d points", faults.ErrCollisionQuery, len(grads), len(points))
	}

	e := make([]float64, len(points))
	j := mat.NewDense(len(points), n, nil)
	for i, g := range grads {
		if !g.Valid {
			continue
		}
		dist := r3.Norm(g.Vector)
		e[i] = dist - d.deps.SafetyMargin - radii[i]
		// At contact the direction is undefined; the row keeps its value
		// with a zero Jacobian.
		if dist < singularCutoff {
			continue
		}
		dir := r3.Scale(1/dist, g.Vector)
		for q := 0; q < n; q++ {
			col := r3.Vec{X: jacobians[i].At(0, q), Y: jacobians[i].At(1, q), Z: jacobians[i].At(2, q)}
			j.Set(i, q, -r3.Dot(dir, col))
		}
	}

	if d.meta.Visible {
		d.deps.Visualizer.RenderGradients(root, points, grads)
	}
	return d.commit(e, j)
}

// Monitor reports the smallest clearance.
func (d *AvoidCollisionsSDF) Monitor() {
	if len(d.e) == 0 {
		d.measures = nil
		return
	}
	d.measures = []float64{floats.Min(d.e)}
}

// Close deactivates the collision checker.
func (d *AvoidCollisionsSDF) Close() error {
	if !d.active {
		return nil
	}
	d.active = false
	return d.deps.Collision.Deactivate()
}
