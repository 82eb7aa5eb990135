package calib

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"checkercal/pinhole"
)

// Solution is the output of Calibrate: one shared camera model, one pose
// per observation in observation order, and the reprojection quality.
type Solution struct {
	Model         pinhole.Model
	Poses         []Pose
	Converged     bool
	PerImageError []float64
	MeanError     float64
}

// Calibrate jointly estimates the shared camera model and one pose per
// observation from the full correspondence set. Every observation must use
// the identical object template defined by target. Calling with zero
// observations is a programming error and is rejected outright; numerical
// failure of the optimization is reported through Solution.Converged.
func Calibrate(target *Target, obs []Observation, width, height int) (*Solution, error) {
	if target == nil {
		return nil, errors.New("nil target")
	}
	if len(obs) == 0 {
		return nil, errors.New("calibration requires at least one observation")
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid image dimensions (%d, %d)", width, height)
	}
	for _, o := range obs {
		if len(o.Points) != target.Count() {
			return nil, errors.Errorf("observation %q has %d points, target needs %d",
				o.Image, len(o.Points), target.Count())
		}
	}

	plane := target.PlanePoints()
	homs := make([]*mat.Dense, len(obs))
	for i, o := range obs {
		h, err := Homography(plane, o.Points)
		if err != nil {
			return nil, errors.Wrapf(err, "homography for %q", o.Image)
		}
		homs[i] = h
	}

	intr, err := initIntrinsics(homs, width, height)
	if err != nil {
		return nil, err
	}
	poses := make([]Pose, len(obs))
	for i, h := range homs {
		poses[i], err = initExtrinsics(intr, h)
		if err != nil {
			return nil, errors.Wrapf(err, "extrinsics for %q", obs[i].Image)
		}
	}

	obj := target.ObjectPoints()
	model := &pinhole.Model{Intrinsics: intr}
	model, poses, converged, _ := refineAll(model, poses, obj, obs)

	sol := &Solution{Model: *model, Poses: poses, Converged: converged}
	if converged {
		sol.PerImageError, sol.MeanError = ReprojectionError(&sol.Model, poses, target, obs)
	}
	return sol, nil
}

// ProjectPoints maps the object template through one pose and the camera
// model, giving the predicted pixel location of every corner.
func ProjectPoints(model *pinhole.Model, pose Pose, obj []r3.Vector) []r2.Point {
	rot := Rodrigues(pose.Rotation)
	out := make([]r2.Point, len(obj))
	for i, p := range obj {
		out[i] = model.Project(transformPoint(rot, pose.Translation, p))
	}
	return out
}

// ReprojectionError reprojects every observation through the solved model
// and pose. The per-image error is the L2 norm of the stacked residual
// divided by the point count; the overall metric is the arithmetic mean of
// the per-image errors. Both are in pixels and non-negative.
func ReprojectionError(model *pinhole.Model, poses []Pose, target *Target, obs []Observation) ([]float64, float64) {
	obj := target.ObjectPoints()
	perImage := make([]float64, len(obs))
	total := 0.0
	for i, o := range obs {
		pred := ProjectPoints(model, poses[i], obj)
		sum := 0.0
		for j := range pred {
			dx := pred[j].X - o.Points[j].X
			dy := pred[j].Y - o.Points[j].Y
			sum += dx*dx + dy*dy
		}
		perImage[i] = math.Sqrt(sum) / float64(len(pred))
		total += perImage[i]
	}
	return perImage, total / float64(len(obs))
}
