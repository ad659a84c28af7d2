package kinematics

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// JointType selects how a link moves relative to its parent.
type JointType int

const (
	JointFixed JointType = iota
	JointRevolute
	JointPrismatic
)

func (t JointType) String() string {
	switch t {
	case JointRevolute:
		return "revolute"
	case JointPrismatic:
		return "prismatic"
	default:
		return "fixed"
	}
}

// ParseJointType parses "fixed", "revolute" or "prismatic".
func ParseJointType(s string) (JointType, error) {
	switch strings.ToLower(s) {
	case "", "fixed":
		return JointFixed, nil
	case "revolute":
		return JointRevolute, nil
	case "prismatic":
		return JointPrismatic, nil
	}
	return JointFixed, fmt.Errorf("%w: joint type %q", ErrInvalidTree, s)
}

// Link is one frame of the tree and the joint connecting it to its parent.
// The link frame is parent * Origin * motion(q), where motion is a rotation
// about (revolute) or translation along (prismatic) Axis.
type Link struct {
	Name   string
	Parent string
	Joint  JointType
	Axis   r3.Vec
	Origin Pose
}

type node struct {
	link   Link
	parent int // -1 for children of the root
	joint  int // -1 for fixed links
	axis   r3.Vec
}

// Tree is a kinematic tree of links hanging off a root frame. It is immutable
// after construction and safe for concurrent use.
type Tree struct {
	root    string
	nodes   []node
	byName  map[string]int
	nJoints int
}

// NewTree validates links and builds a tree. Parents must be declared before
// their children; an empty parent refers to the root frame.
func NewTree(root string, links []Link) (*Tree, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty root frame", ErrInvalidTree)
	}
	t := &Tree{
		root:   root,
		byName: make(map[string]int, len(links)),
	}
	for _, l := range links {
		if l.Name == "" || l.Name == root {
			return nil, fmt.Errorf("%w: invalid link name %q", ErrInvalidTree, l.Name)
		}
		if _, dup := t.byName[l.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate link %q", ErrInvalidTree, l.Name)
		}
		n := node{link: l, parent: -1, joint: -1}
		if l.Parent != "" && l.Parent != root {
			idx, ok := t.byName[l.Parent]
			if !ok {
				return nil, fmt.Errorf("%w: link %q has undeclared parent %q", ErrInvalidTree, l.Name, l.Parent)
			}
			n.parent = idx
		}
		if n.link.Origin.Rotation == (Rotation{}) {
			n.link.Origin.Rotation = Identity()
		}
		if l.Joint != JointFixed {
			norm := r3.Norm(l.Axis)
			if norm == 0 {
				return nil, fmt.Errorf("%w: link %q has a zero joint axis", ErrInvalidTree, l.Name)
			}
			n.axis = r3.Scale(1/norm, l.Axis)
			n.joint = t.nJoints
			t.nJoints++
		}
		t.byName[l.Name] = len(t.nodes)
		t.nodes = append(t.nodes, n)
	}
	if t.nJoints == 0 {
		return nil, fmt.Errorf("%w: no movable joints", ErrInvalidTree)
	}
	return t, nil
}

// RootFrame implements Kinematics.
func (t *Tree) RootFrame() string { return t.root }

// NumJoints implements Kinematics.
func (t *Tree) NumJoints() int { return t.nJoints }

// HasFrame implements Kinematics.
func (t *Tree) HasFrame(frameID string) bool {
	if frameID == t.root {
		return true
	}
	_, ok := t.byName[frameID]
	return ok
}

// JointForFrame implements Kinematics.
func (t *Tree) JointForFrame(frameID string) (int, bool) {
	idx, ok := t.byName[frameID]
	if !ok {
		return -1, false
	}
	for idx >= 0 {
		if j := t.nodes[idx].joint; j >= 0 {
			return j, true
		}
		idx = t.nodes[idx].parent
	}
	return -1, false
}

// JointNames returns the link name owning each joint, by joint index.
func (t *Tree) JointNames() []string {
	names := make([]string, t.nJoints)
	for _, n := range t.nodes {
		if n.joint >= 0 {
			names[n.joint] = n.link.Name
		}
	}
	return names
}

// PoseAndJacobian implements Kinematics.
func (t *Tree) PoseAndJacobian(q []float64, frameID string) (Pose, *mat.Dense, error) {
	if len(q) != t.nJoints {
		return Pose{}, nil, fmt.Errorf("%w: got %d, want %d", ErrJointCount, len(q), t.nJoints)
	}
	jac := mat.NewDense(6, t.nJoints, nil)
	if frameID == t.root {
		return IdentityPose(), jac, nil
	}
	idx, ok := t.byName[frameID]
	if !ok {
		return Pose{}, nil, fmt.Errorf("%w: %q", ErrUnknownFrame, frameID)
	}

	chain := t.chain(idx)
	type jointAxis struct {
		index    int
		typ      JointType
		position r3.Vec
		axis     r3.Vec
	}
	axes := make([]jointAxis, 0, len(chain))
	pose := IdentityPose()
	for _, i := range chain {
		n := t.nodes[i]
		pose = pose.Compose(n.link.Origin)
		if n.joint < 0 {
			continue
		}
		axisWorld := pose.Rotation.Apply(n.axis)
		axes = append(axes, jointAxis{index: n.joint, typ: n.link.Joint, position: pose.Position, axis: axisWorld})
		switch n.link.Joint {
		case JointRevolute:
			pose.Rotation = pose.Rotation.Mul(FromAxisAngle(n.axis, q[n.joint]))
		case JointPrismatic:
			pose.Position = r3.Add(pose.Position, r3.Scale(q[n.joint], axisWorld))
		}
	}

	for _, a := range axes {
		var lin, ang r3.Vec
		switch a.typ {
		case JointRevolute:
			lin = r3.Cross(a.axis, r3.Sub(pose.Position, a.position))
			ang = a.axis
		case JointPrismatic:
			lin = a.axis
		}
		jac.Set(0, a.index, lin.X)
		jac.Set(1, a.index, lin.Y)
		jac.Set(2, a.index, lin.Z)
		jac.Set(3, a.index, ang.X)
		jac.Set(4, a.index, ang.Y)
		jac.Set(5, a.index, ang.Z)
	}
	return pose, jac, nil
}

// chain returns node indices from the root down to idx.
func (t *Tree) chain(idx int) []int {
	var rev []int
	for i := idx; i >= 0; i = t.nodes[i].parent {
		rev = append(rev, i)
	}
	out := make([]int, len(rev))
	for i := range rev {
		out[i] = rev[len(rev)-1-i]
	}
	return out
}
