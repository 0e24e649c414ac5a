package transform

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

const secondsPerDay = 86400.0

// RotationAngle returns the polar-axis rotation angle (radians, [0, 2π)) for t:
// the sidereal rate times the J2000 epoch day count.
func (m Model) RotationAngle(t time.Time) float64 {
	theta := math.Mod(m.RotationRate*secondsPerDay*m.EpochDays(t), 2*math.Pi)
	if theta < 0 {
		theta += 2 * math.Pi
	}
	return theta
}

// InertialToRotating returns the 3x3 matrix taking inertial vectors into the
// Earth-fixed rotating frame at t:
//
//	[ cosθ  -sinθ  0 ]
//	[ sinθ   cosθ  0 ]
//	[  0      0    1 ]
//
// The matrix is orthonormal; its transpose is the inverse transform.
func (m Model) InertialToRotating(t time.Time) *mat.Dense {
	return rotationZ(m.RotationAngle(t))
}

// ToRotating rotates an inertial vector into the rotating frame at t.
func (m Model) ToRotating(t time.Time, inertial r3.Vec) r3.Vec {
	return mulVec(m.InertialToRotating(t), inertial)
}

// ToInertial rotates a rotating-frame vector into the inertial frame at t.
func (m Model) ToInertial(t time.Time, rotating r3.Vec) r3.Vec {
	return mulVec(m.InertialToRotating(t).T(), rotating)
}

func rotationZ(theta float64) *mat.Dense {
	sin, cos := math.Sincos(theta)
	return mat.NewDense(3, 3, []float64{
		cos, -sin, 0,
		sin, cos, 0,
		0, 0, 1,
	})
}

func mulVec(a mat.Matrix, v r3.Vec) r3.Vec {
	var out mat.VecDense
	out.MulVec(a, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}
