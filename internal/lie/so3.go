// Package lie implements the rigid-body groups SO(3) and SE(3) with their exponential
// and logarithm maps, and the two-parameter affine brightness model.
package lie

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

const smallAngle = 1e-10

// SO3 is a rotation stored as a unit quaternion.
type SO3 struct {
	q quat.Number
}

// IdentitySO3 returns the identity rotation.
func IdentitySO3() SO3 { return SO3{q: quat.Number{Real: 1}} }

// SO3FromQuat normalizes q and wraps it as a rotation.
func SO3FromQuat(q quat.Number) SO3 {
	n := quat.Abs(q)
	if n == 0 {
		return IdentitySO3()
	}
	return SO3{q: quat.Scale(1/n, q)}
}

// ExpSO3 maps an axis-angle vector to a rotation.
func ExpSO3(omega r3.Vector) SO3 {
	theta2 := omega.Norm2()
	theta := math.Sqrt(theta2)
	var real, imag float64
	if theta < smallAngle {
		theta4 := theta2 * theta2
		real = 1 - theta2/8 + theta4/384
		imag = 0.5 - theta2/48 + theta4/3840
	} else {
		half := 0.5 * theta
		real = math.Cos(half)
		imag = math.Sin(half) / theta
	}
	return SO3{q: quat.Number{Real: real, Imag: imag * omega.X, Jmag: imag * omega.Y, Kmag: imag * omega.Z}}
}

// Log returns the axis-angle vector of the rotation.
func (r SO3) Log() r3.Vector {
	v := r3.Vector{X: r.q.Imag, Y: r.q.Jmag, Z: r.q.Kmag}
	n := v.Norm()
	w := r.q.Real
	var factor float64
	switch {
	case n < smallAngle:
		factor = 2/w - 2.0/3.0*n*n/(w*w*w)
	case math.Abs(w) < smallAngle:
		if w > 0 {
			factor = math.Pi / n
		} else {
			factor = -math.Pi / n
		}
	default:
		factor = 2 * math.Atan(n/w) / n
	}
	return v.Mul(factor)
}

// Quat returns the unit quaternion of the rotation.
func (r SO3) Quat() quat.Number { return r.q }

// Mul returns r·o.
func (r SO3) Mul(o SO3) SO3 { return SO3FromQuat(quat.Mul(r.q, o.q)) }

// Inverse returns r⁻¹.
func (r SO3) Inverse() SO3 { return SO3{q: quat.Conj(r.q)} }

// Rotate applies the rotation to p.
func (r SO3) Rotate(p r3.Vector) r3.Vector {
	v := quat.Mul(quat.Mul(r.q, quat.Number{Imag: p.X, Jmag: p.Y, Kmag: p.Z}), quat.Conj(r.q))
	return r3.Vector{X: v.Imag, Y: v.Jmag, Z: v.Kmag}
}

// Matrix returns the row-major rotation matrix.
func (r SO3) Matrix() [3][3]float64 {
	w, x, y, z := r.q.Real, r.q.Imag, r.q.Jmag, r.q.Kmag
	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}

// hat returns the skew-symmetric cross-product matrix of v.
func hat(v r3.Vector) [3][3]float64 {
	return [3][3]float64{
		{0, -v.Z, v.Y},
		{v.Z, 0, -v.X},
		{-v.Y, v.X, 0},
	}
}

func matMul3(a, b [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := range 3 {
		for j := range 3 {
			for k := range 3 {
				out[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return out
}

func matVec3(m [3][3]float64, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// affine3 returns I + a·A + b·B.
func affine3(a float64, A [3][3]float64, b float64, B [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := range 3 {
		for j := range 3 {
			out[i][j] = a*A[i][j] + b*B[i][j]
		}
		out[i][i]++
	}
	return out
}
