package calib

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Rodrigues converts a rotation vector to a 3x3 rotation matrix:
// R = I + sin(θ)K + (1-cos(θ))K² with K the unit-axis cross matrix.
func Rodrigues(rvec r3.Vector) *mat.Dense {
	theta := rvec.Norm()
	r := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	if theta < 1e-12 {
		// first-order approximation for tiny angles
		r.Set(0, 1, -rvec.Z)
		r.Set(0, 2, rvec.Y)
		r.Set(1, 0, rvec.Z)
		r.Set(1, 2, -rvec.X)
		r.Set(2, 0, -rvec.Y)
		r.Set(2, 1, rvec.X)
		return r
	}
	axis := rvec.Mul(1 / theta)
	k := mat.NewDense(3, 3, []float64{
		0, -axis.Z, axis.Y,
		axis.Z, 0, -axis.X,
		-axis.Y, axis.X, 0,
	})
	var k2 mat.Dense
	k2.Mul(k, k)

	s, c := math.Sincos(theta)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r.Set(i, j, r.At(i, j)+s*k.At(i, j)+(1-c)*k2.At(i, j))
		}
	}
	return r
}

// RodriguesInverse converts a rotation matrix back to a rotation vector.
func RodriguesInverse(r mat.Matrix) r3.Vector {
	trace := r.At(0, 0) + r.At(1, 1) + r.At(2, 2)
	cosTheta := math.Max(-1, math.Min(1, (trace-1)/2))
	theta := math.Acos(cosTheta)

	if theta < 1e-12 {
		return r3.Vector{}
	}
	if math.Pi-theta < 1e-6 {
		// near π the antisymmetric part vanishes; recover the axis from
		// the symmetric part instead
		xx := (r.At(0, 0) + 1) / 2
		yy := (r.At(1, 1) + 1) / 2
		zz := (r.At(2, 2) + 1) / 2
		axis := r3.Vector{X: math.Sqrt(math.Max(0, xx)), Y: math.Sqrt(math.Max(0, yy)), Z: math.Sqrt(math.Max(0, zz))}
		// fix signs using the off-diagonal sums
		if r.At(0, 1)+r.At(1, 0) < 0 {
			axis.Y = -axis.Y
		}
		if r.At(0, 2)+r.At(2, 0) < 0 {
			axis.Z = -axis.Z
		}
		return axis.Normalize().Mul(theta)
	}

	scale := theta / (2 * math.Sin(theta))
	return r3.Vector{
		X: scale * (r.At(2, 1) - r.At(1, 2)),
		Y: scale * (r.At(0, 2) - r.At(2, 0)),
		Z: scale * (r.At(1, 0) - r.At(0, 1)),
	}
}

// transformPoint applies pose rotation and translation to a template point.
func transformPoint(rot *mat.Dense, t r3.Vector, p r3.Vector) r3.Vector {
	return r3.Vector{
		X: rot.At(0, 0)*p.X + rot.At(0, 1)*p.Y + rot.At(0, 2)*p.Z + t.X,
		Y: rot.At(1, 0)*p.X + rot.At(1, 1)*p.Y + rot.At(1, 2)*p.Z + t.Y,
		Z: rot.At(2, 0)*p.X + rot.At(2, 1)*p.Y + rot.At(2, 2)*p.Z + t.Z,
	}
}
