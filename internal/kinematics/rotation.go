package kinematics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Rotation is a 3x3 rotation matrix in row-major order.
type Rotation [3][3]float64

// Identity returns the identity rotation.
func Identity() Rotation {
	return Rotation{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// FromQuaternion builds a rotation from a quaternion given as w, x, y, z.
// The quaternion is normalized first; a zero quaternion yields the identity.
func FromQuaternion(w, x, y, z float64) Rotation {
	n := math.Sqrt(w*w + x*x + y*y + z*z)
	if n == 0 {
		return Identity()
	}
	w, x, y, z = w/n, x/n, y/n, z/n
	return Rotation{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}

// FromAxisAngle builds the rotation of angle radians about axis.
func FromAxisAngle(axis r3.Vec, angle float64) Rotation {
	n := r3.Norm(axis)
	if n == 0 || angle == 0 {
		return Identity()
	}
	half := angle / 2
	s := math.Sin(half) / n
	return FromQuaternion(math.Cos(half), axis.X*s, axis.Y*s, axis.Z*s)
}

// FromEulerXYZ composes rotations about the fixed X, Y and Z axes as
// Rx(x) * Ry(y) * Rz(z).
func FromEulerXYZ(x, y, z float64) Rotation {
	rx := FromAxisAngle(r3.Vec{X: 1}, x)
	ry := FromAxisAngle(r3.Vec{Y: 1}, y)
	rz := FromAxisAngle(r3.Vec{Z: 1}, z)
	return rx.Mul(ry).Mul(rz)
}

// Mul returns r * o.
func (r Rotation) Mul(o Rotation) Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = r[i][0]*o[0][j] + r[i][1]*o[1][j] + r[i][2]*o[2][j]
		}
	}
	return out
}

// Apply rotates v.
func (r Rotation) Apply(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: r[0][0]*v.X + r[0][1]*v.Y + r[0][2]*v.Z,
		Y: r[1][0]*v.X + r[1][1]*v.Y + r[1][2]*v.Z,
		Z: r[2][0]*v.X + r[2][1]*v.Y + r[2][2]*v.Z,
	}
}

// Transpose returns the inverse rotation.
func (r Rotation) Transpose() Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = r[j][i]
		}
	}
	return out
}

// Column returns column i, the image of the i-th basis vector.
func (r Rotation) Column(i int) r3.Vec {
	return r3.Vec{X: r[0][i], Y: r[1][i], Z: r[2][i]}
}

// Log returns the rotation vector (axis scaled by angle) of r.
func (r Rotation) Log() r3.Vec {
	trace := r[0][0] + r[1][1] + r[2][2]
	cos := math.Max(-1, math.Min(1, (trace-1)/2))
	angle := math.Acos(cos)
	skew := r3.Vec{
		X: r[2][1] - r[1][2],
		Y: r[0][2] - r[2][0],
		Z: r[1][0] - r[0][1],
	}
	if angle < 1e-9 {
		return r3.Scale(0.5, skew)
	}
	if math.Pi-angle < 1e-6 {
		// Near pi the skew part vanishes; recover the axis from the diagonal.
		axis := r3.Vec{
			X: math.Sqrt(math.Max(0, (r[0][0]+1)/2)),
			Y: math.Sqrt(math.Max(0, (r[1][1]+1)/2)),
			Z: math.Sqrt(math.Max(0, (r[2][2]+1)/2)),
		}
		if r[0][1]+r[1][0] < 0 {
			axis.Y = -axis.Y
		}
		if r[0][2]+r[2][0] < 0 {
			axis.Z = -axis.Z
		}
		return r3.Scale(angle, axis)
	}
	return r3.Scale(angle/(2*math.Sin(angle)), skew)
}

// Quaternion returns r as a unit quaternion w, x, y, z with w >= 0.
func (r Rotation) Quaternion() (w, x, y, z float64) {
	trace := r[0][0] + r[1][1] + r[2][2]
	switch {
	case trace > 0:
		s := 2 * math.Sqrt(trace+1)
		w = s / 4
		x = (r[2][1] - r[1][2]) / s
		y = (r[0][2] - r[2][0]) / s
		z = (r[1][0] - r[0][1]) / s
	case r[0][0] > r[1][1] && r[0][0] > r[2][2]:
		s := 2 * math.Sqrt(1+r[0][0]-r[1][1]-r[2][2])
		w = (r[2][1] - r[1][2]) / s
		x = s / 4
		y = (r[0][1] + r[1][0]) / s
		z = (r[0][2] + r[2][0]) / s
	case r[1][1] > r[2][2]:
		s := 2 * math.Sqrt(1+r[1][1]-r[0][0]-r[2][2])
		w = (r[0][2] - r[2][0]) / s
		x = (r[0][1] + r[1][0]) / s
		y = s / 4
		z = (r[1][2] + r[2][1]) / s
	default:
		s := 2 * math.Sqrt(1+r[2][2]-r[0][0]-r[1][1])
		w = (r[1][0] - r[0][1]) / s
		x = (r[0][2] + r[2][0]) / s
		y = (r[1][2] + r[2][1]) / s
		z = s / 4
	}
	if w < 0 {
		w, x, y, z = -w, -x, -y, -z
	}
	return w, x, y, z
}
