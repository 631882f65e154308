package lie

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// Tangent is an se(3) vector: translational part in [0:3], rotational part in [3:6].
type Tangent [6]float64

// SE3 is a rigid transform p ↦ R·p + t.
type SE3 struct {
	R SO3
	T r3.Vector
}

// Identity returns the identity transform.
func Identity() SE3 { return SE3{R: IdentitySO3()} }

// Exp maps a tangent vector to a transform.
func Exp(xi Tangent) SE3 {
	upsilon := r3.Vector{X: xi[0], Y: xi[1], Z: xi[2]}
	omega := r3.Vector{X: xi[3], Y: xi[4], Z: xi[5]}
	theta2 := omega.Norm2()
	theta := math.Sqrt(theta2)

	Omega := hat(omega)
	Omega2 := matMul3(Omega, Omega)
	var V [3][3]float64
	if theta < smallAngle {
		V = affine3(0.5, Omega, 1.0/6.0, Omega2)
	} else {
		V = affine3((1-math.Cos(theta))/theta2, Omega, (theta-math.Sin(theta))/(theta2*theta), Omega2)
	}
	return SE3{R: ExpSO3(omega), T: matVec3(V, upsilon)}
}

// Log returns the tangent vector of the transform.
func (g SE3) Log() Tangent {
	omega := g.R.Log()
	theta := omega.Norm()
	Omega := hat(omega)
	Omega2 := matMul3(Omega, Omega)

	var Vinv [3][3]float64
	if theta < smallAngle {
		Vinv = affine3(-0.5, Omega, 1.0/12.0, Omega2)
	} else {
		half := 0.5 * theta
		c := (1 - half*math.Cos(half)/math.Sin(half)) / (theta * theta)
		Vinv = affine3(-0.5, Omega, c, Omega2)
	}
	upsilon := matVec3(Vinv, g.T)
	return Tangent{upsilon.X, upsilon.Y, upsilon.Z, omega.X, omega.Y, omega.Z}
}

// Mul returns the composition g·o (apply o first).
func (g SE3) Mul(o SE3) SE3 {
	return SE3{R: g.R.Mul(o.R), T: g.R.Rotate(o.T).Add(g.T)}
}

// Inverse returns g⁻¹.
func (g SE3) Inverse() SE3 {
	ri := g.R.Inverse()
	return SE3{R: ri, T: ri.Rotate(g.T).Mul(-1)}
}

// Act transforms point p.
func (g SE3) Act(p r3.Vector) r3.Vector { return g.R.Rotate(p).Add(g.T) }

// String formats the tangent vector of g.
func (g SE3) String() string {
	xi := g.Log()
	return fmt.Sprintf("[%.5f %.5f %.5f | %.5f %.5f %.5f]", xi[0], xi[1], xi[2], xi[3], xi[4], xi[5])
}

// AffLight is the brightness model I_new ≈ e^A·I_ref + B.
type AffLight struct {
	A float64 `json:"a" yaml:"a"`
	B float64 `json:"b" yaml:"b"`
}

// AffFromExposure seeds the model from exposure times; unknown exposures give the
// identity model.
func AffFromExposure(exposureRef, exposureNew float64) AffLight {
	if exposureRef > 0 && exposureNew > 0 {
		return AffLight{A: math.Log(exposureNew / exposureRef)}
	}
	return AffLight{}
}

// Gain returns e^A.
func (a AffLight) Gain() float64 { return math.Exp(a.A) }
