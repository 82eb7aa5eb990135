package pinhole

import (
	"github.com/golang/geo/r2"
)

// Distortion holds the Brown-Conrady radial and tangential coefficients in
// the conventional (k1, k2, p1, p2, k3) order.
type Distortion struct {
	K1 float64 `json:"k1"`
	K2 float64 `json:"k2"`
	P1 float64 `json:"p1"`
	P2 float64 `json:"p2"`
	K3 float64 `json:"k3"`
}

// Coefficients returns the distortion vector as a slice, (k1,k2,p1,p2,k3).
func (d *Distortion) Coefficients() []float64 {
	return []float64{d.K1, d.K2, d.P1, d.P2, d.K3}
}

// Apply distorts a point in normalized image coordinates:
//
//	xd = x*(1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p1*x*y + p2*(r² + 2*x²)
//	yd = y*(1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*p2*x*y + p1*(r² + 2*y²)
func (d *Distortion) Apply(pt r2.Point) r2.Point {
	x, y := pt.X, pt.Y
	r2s := x*x + y*y
	r4 := r2s * r2s
	r6 := r4 * r2s
	radial := 1 + d.K1*r2s + d.K2*r4 + d.K3*r6
	return r2.Point{
		X: x*radial + 2*d.P1*x*y + d.P2*(r2s+2*x*x),
		Y: y*radial + 2*d.P2*x*y + d.P1*(r2s+2*y*y),
	}
}

// Remove inverts Apply with Newton-Raphson on the forward model, solving
// for the undistorted point that images at pt.
func (d *Distortion) Remove(pt r2.Point) r2.Point {
	const (
		maxIterations = 20
		tolerance     = 1e-10
	)
	xu, yu := pt.X, pt.Y

	for i := 0; i < maxIterations; i++ {
		r2s := xu*xu + yu*yu
		r4 := r2s * r2s
		radial := 1 + d.K1*r2s + d.K2*r4 + d.K3*r4*r2s

		xdEst := xu*radial + 2*d.P1*xu*yu + d.P2*(r2s+2*xu*xu)
		ydEst := yu*radial + 2*d.P2*xu*yu + d.P1*(r2s+2*yu*yu)

		errX := xdEst - pt.X
		errY := ydEst - pt.Y
		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}

		// jacobian of the forward model at the current estimate
		dRad := d.K1 + 2*d.K2*r2s + 3*d.K3*r4
		dRadDx := 2 * xu * dRad
		dRadDy := 2 * yu * dRad

		j00 := radial + xu*dRadDx + 2*d.P1*yu + 6*d.P2*xu
		j01 := xu*dRadDy + 2*d.P1*xu + 2*d.P2*yu
		j10 := yu*dRadDx + 2*d.P2*yu + 2*d.P1*xu
		j11 := radial + yu*dRadDy + 2*d.P2*xu + 6*d.P1*yu

		det := j00*j11 - j01*j10
		if det == 0 {
			break
		}
		xu -= (j11*errX - j01*errY) / det
		yu -= (-j10*errX + j00*errY) / det
	}
	return r2.Point{X: xu, Y: yu}
}
