// Package calib estimates a shared pinhole camera model and per-image
// poses from checkerboard corner observations, using planar homographies
// for a closed-form start and joint Levenberg-Marquardt refinement over
// intrinsics, distortion, and all poses at once.
package calib

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Target describes the calibration board by its inner-corner counts. The
// object template lives on the plane z=0 with unit square spacing and is
// identical for every image.
type Target struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NewTarget validates the board dimensions.
func NewTarget(width, height int) (*Target, error) {
	if width < 2 || height < 2 {
		return nil, errors.Errorf("target needs at least 2x2 inner corners, got %dx%d", width, height)
	}
	return &Target{Width: width, Height: height}, nil
}

// Count is the number of inner corners, and so the number of point pairs
// every observation must carry.
func (t *Target) Count() int {
	return t.Width * t.Height
}

// ObjectPoints returns the 3D template in row-major order, x varying
// fastest, matching the detector's corner ordering.
func (t *Target) ObjectPoints() []r3.Vector {
	pts := make([]r3.Vector, 0, t.Count())
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			pts = append(pts, r3.Vector{X: float64(x), Y: float64(y), Z: 0})
		}
	}
	return pts
}

// PlanePoints is the template restricted to the board plane, used for
// homography estimation.
func (t *Target) PlanePoints() []r2.Point {
	pts := make([]r2.Point, 0, t.Count())
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			pts = append(pts, r2.Point{X: float64(x), Y: float64(y)})
		}
	}
	return pts
}

// Observation pairs one image with the full set of detected corner pixels,
// ordered 1:1 with the target template. It exists only for images where
// detection and refinement both succeeded.
type Observation struct {
	Image  string
	Points []r2.Point
}

// Pose is the target-to-camera transform for one observation, as a
// Rodrigues rotation vector and a translation.
type Pose struct {
	Rotation    r3.Vector `json:"rvec"`
	Translation r3.Vector `json:"tvec"`
}
