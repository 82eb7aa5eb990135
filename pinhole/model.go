// Package pinhole models a pinhole camera with Brown-Conrady lens
// distortion: intrinsic projection, forward and inverse distortion, and
// image undistortion by remapping.
package pinhole

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Intrinsics holds the parameters of the perspective projection from the
// camera frame onto the pixel plane. Skew is always zero.
type Intrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Cx     float64 `json:"cx"`
	Cy     float64 `json:"cy"`
}

// CheckValid reports whether the intrinsics describe a usable camera.
func (in *Intrinsics) CheckValid() error {
	if in == nil {
		return errors.New("no intrinsics")
	}
	if in.Width <= 0 || in.Height <= 0 {
		return errors.Errorf("invalid image size (%d, %d)", in.Width, in.Height)
	}
	if in.Fx <= 0 || in.Fy <= 0 {
		return errors.Errorf("invalid focal lengths (%v, %v)", in.Fx, in.Fy)
	}
	return nil
}

// Matrix returns the 3x3 camera matrix in row-major order.
//
//	[[fx 0 cx], [0 fy cy], [0 0 1]]
func (in *Intrinsics) Matrix() [3][3]float64 {
	return [3][3]float64{
		{in.Fx, 0, in.Cx},
		{0, in.Fy, in.Cy},
		{0, 0, 1},
	}
}

// PixelToIdeal maps a pixel to normalized image-plane coordinates.
func (in *Intrinsics) PixelToIdeal(pt r2.Point) r2.Point {
	return r2.Point{X: (pt.X - in.Cx) / in.Fx, Y: (pt.Y - in.Cy) / in.Fy}
}

// IdealToPixel maps normalized image-plane coordinates to a pixel.
func (in *Intrinsics) IdealToPixel(pt r2.Point) r2.Point {
	return r2.Point{X: pt.X*in.Fx + in.Cx, Y: pt.Y*in.Fy + in.Cy}
}

// Model is a shared camera model: one set of intrinsics plus one
// distortion vector. It is the quantity calibration solves for.
type Model struct {
	Intrinsics Intrinsics `json:"intrinsics"`
	Distortion Distortion `json:"distortion"`
}

// Project maps a point in the camera frame to its distorted pixel
// location. Points at or behind the camera plane project to (NaN, NaN).
func (m *Model) Project(p r3.Vector) r2.Point {
	if p.Z <= 0 {
		return r2.Point{X: math.NaN(), Y: math.NaN()}
	}
	ideal := r2.Point{X: p.X / p.Z, Y: p.Y / p.Z}
	return m.Intrinsics.IdealToPixel(m.Distortion.Apply(ideal))
}

// DistortPixel pushes an ideal (distortion-free) pixel through the lens
// model, giving the pixel where the lens actually images it.
func (m *Model) DistortPixel(pt r2.Point) r2.Point {
	return m.Intrinsics.IdealToPixel(m.Distortion.Apply(m.Intrinsics.PixelToIdeal(pt)))
}

// UndistortPixel is the inverse of DistortPixel.
func (m *Model) UndistortPixel(pt r2.Point) r2.Point {
	return m.Intrinsics.IdealToPixel(m.Distortion.Remove(m.Intrinsics.PixelToIdeal(pt)))
}
