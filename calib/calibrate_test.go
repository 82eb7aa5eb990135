package calib

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"checkercal/pinhole"
)

func syntheticModel() *pinhole.Model {
	return &pinhole.Model{
		Intrinsics: pinhole.Intrinsics{
			Width: 640, Height: 480,
			Fx: 800, Fy: 810, Cx: 322.5, Cy: 238.1,
		},
		Distortion: pinhole.Distortion{K1: -0.2, K2: 0.05, P1: 0.001, P2: -0.001},
	}
}

func syntheticPoses() []Pose {
	return []Pose{
		{Rotation: r3.Vector{X: 0.10, Y: 0.15, Z: 0.02}, Translation: r3.Vector{X: -3.1, Y: -4.4, Z: 14}},
		{Rotation: r3.Vector{X: -0.25, Y: 0.05, Z: -0.10}, Translation: r3.Vector{X: -2.8, Y: -4.6, Z: 16}},
		{Rotation: r3.Vector{X: 0.05, Y: -0.30, Z: 0.12}, Translation: r3.Vector{X: -3.3, Y: -4.2, Z: 15}},
		{Rotation: r3.Vector{X: 0.30, Y: 0.20, Z: -0.05}, Translation: r3.Vector{X: -2.9, Y: -4.8, Z: 18}},
		{Rotation: r3.Vector{X: -0.12, Y: -0.18, Z: 0.25}, Translation: r3.Vector{X: -3.0, Y: -4.5, Z: 13}},
	}
}

func syntheticObservations(t *testing.T, model *pinhole.Model, target *Target, poses []Pose) []Observation {
	t.Helper()
	obj := target.ObjectPoints()
	obs := make([]Observation, len(poses))
	for i, pose := range poses {
		pts := ProjectPoints(model, pose, obj)
		for _, p := range pts {
			test.That(t, math.IsNaN(p.X), test.ShouldBeFalse)
		}
		obs[i] = Observation{Image: "synthetic", Points: pts}
	}
	return obs
}

func TestCalibrateRecoversModel(t *testing.T) {
	truth := syntheticModel()
	target, err := NewTarget(7, 10)
	test.That(t, err, test.ShouldBeNil)
	obs := syntheticObservations(t, truth, target, syntheticPoses())

	sol, err := Calibrate(target, obs, truth.Intrinsics.Width, truth.Intrinsics.Height)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sol.Converged, test.ShouldBeTrue)
	test.That(t, len(sol.Poses), test.ShouldEqual, len(obs))

	in := sol.Model.Intrinsics
	test.That(t, in.Fx, test.ShouldAlmostEqual, truth.Intrinsics.Fx, 0.8)
	test.That(t, in.Fy, test.ShouldAlmostEqual, truth.Intrinsics.Fy, 0.8)
	test.That(t, in.Cx, test.ShouldAlmostEqual, truth.Intrinsics.Cx, 0.8)
	test.That(t, in.Cy, test.ShouldAlmostEqual, truth.Intrinsics.Cy, 0.8)

	d := sol.Model.Distortion
	test.That(t, d.K1, test.ShouldAlmostEqual, truth.Distortion.K1, 1e-2)
	test.That(t, d.K2, test.ShouldAlmostEqual, truth.Distortion.K2, 1e-2)

	test.That(t, sol.MeanError, test.ShouldBeLessThan, 1e-2)
	test.That(t, len(sol.PerImageError), test.ShouldEqual, len(obs))
	for _, e := range sol.PerImageError {
		test.That(t, e, test.ShouldBeGreaterThanOrEqualTo, 0)
	}
}

func TestCalibrateRecoversPoses(t *testing.T) {
	truth := syntheticModel()
	target, err := NewTarget(7, 10)
	test.That(t, err, test.ShouldBeNil)
	poses := syntheticPoses()
	obs := syntheticObservations(t, truth, target, poses)

	sol, err := Calibrate(target, obs, truth.Intrinsics.Width, truth.Intrinsics.Height)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sol.Converged, test.ShouldBeTrue)

	for i, got := range sol.Poses {
		test.That(t, got.Rotation.Sub(poses[i].Rotation).Norm(), test.ShouldBeLessThan, 0.05)
		test.That(t, got.Translation.Sub(poses[i].Translation).Norm(), test.ShouldBeLessThan, 0.2)
		test.That(t, got.Translation.Z, test.ShouldBeGreaterThan, 0)
	}
}

func TestCalibrateSingleObservation(t *testing.T) {
	truth := syntheticModel()
	target, err := NewTarget(7, 10)
	test.That(t, err, test.ShouldBeNil)
	obs := syntheticObservations(t, truth, target, syntheticPoses()[:1])

	sol, err := Calibrate(target, obs, truth.Intrinsics.Width, truth.Intrinsics.Height)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(sol.Poses), test.ShouldEqual, 1)
}

func TestCalibrateArgumentErrors(t *testing.T) {
	target, err := NewTarget(7, 10)
	test.That(t, err, test.ShouldBeNil)

	_, err = Calibrate(nil, nil, 640, 480)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = Calibrate(target, nil, 640, 480)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = Calibrate(target, []Observation{{Image: "x"}}, 640, 480)
	test.That(t, err, test.ShouldNotBeNil)

	truth := syntheticModel()
	obs := syntheticObservations(t, truth, target, syntheticPoses()[:2])
	_, err = Calibrate(target, obs, 0, 480)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReprojectionErrorZeroForExactData(t *testing.T) {
	truth := syntheticModel()
	target, err := NewTarget(6, 9)
	test.That(t, err, test.ShouldBeNil)
	poses := syntheticPoses()[:3]
	obs := syntheticObservations(t, truth, target, poses)

	perImage, mean := ReprojectionError(truth, poses, target, obs)
	test.That(t, len(perImage), test.ShouldEqual, 3)
	for _, e := range perImage {
		test.That(t, e, test.ShouldAlmostEqual, 0, 1e-9)
	}
	test.That(t, mean, test.ShouldAlmostEqual, 0, 1e-9)
}

func TestTargetObjectPoints(t *testing.T) {
	target, err := NewTarget(3, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, target.Count(), test.ShouldEqual, 6)

	obj := target.ObjectPoints()
	// x varies fastest and the template lies on z=0
	test.That(t, obj[0], test.ShouldResemble, r3.Vector{})
	test.That(t, obj[1], test.ShouldResemble, r3.Vector{X: 1})
	test.That(t, obj[3], test.ShouldResemble, r3.Vector{Y: 1})
	for _, p := range obj {
		test.That(t, p.Z, test.ShouldEqual, 0)
	}

	_, err = NewTarget(1, 5)
	test.That(t, err, test.ShouldNotBeNil)
}
