package checkercal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"checkercal/calib"
	"checkercal/pinhole"
)

func sampleSolution() (*calib.Solution, *calib.Target) {
	target, _ := calib.NewTarget(7, 10)
	return &calib.Solution{
		Model: pinhole.Model{
			Intrinsics: pinhole.Intrinsics{Width: 640, Height: 480, Fx: 812.3, Fy: 815.9, Cx: 321.1, Cy: 243.7},
			Distortion: pinhole.Distortion{K1: -0.21, K2: 0.06, P1: 0.001, P2: -0.002, K3: 0.003},
		},
		Poses: []calib.Pose{
			{Rotation: r3.Vector{X: 0.1, Y: 0.2, Z: 0.3}, Translation: r3.Vector{X: -3, Y: -4, Z: 15}},
			{Rotation: r3.Vector{X: -0.2, Y: 0.1, Z: 0}, Translation: r3.Vector{X: -2, Y: -5, Z: 17}},
		},
		Converged:     true,
		PerImageError: []float64{0.11, 0.15},
		MeanError:     0.13,
	}, target
}

func TestResultFieldNames(t *testing.T) {
	sol, target := sampleSolution()
	res := NewResult(sol, target)

	path := filepath.Join(t.TempDir(), "calibration_results.json")
	test.That(t, res.Save(path), test.ShouldBeNil)

	b, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	raw := map[string]json.RawMessage{}
	test.That(t, json.Unmarshal(b, &raw), test.ShouldBeNil)

	for _, key := range []string{
		"camera_matrix",
		"distortion_coefficients",
		"rotation_vectors",
		"translation_vectors",
		"calibration_success",
		"image_dimensions_wh",
		"checkerboard_dimensions_wh",
		"num_images_used",
		"mean_reprojection_error",
	} {
		_, ok := raw[key]
		test.That(t, ok, test.ShouldBeTrue)
	}
}

func TestResultRoundTrip(t *testing.T) {
	sol, target := sampleSolution()
	res := NewResult(sol, target)
	test.That(t, res.NumImagesUsed, test.ShouldEqual, 2)
	test.That(t, len(res.RotationVectors), test.ShouldEqual, 2)
	test.That(t, len(res.TranslationVectors), test.ShouldEqual, 2)
	test.That(t, res.CheckerboardWH, test.ShouldResemble, [2]int{7, 10})

	path := filepath.Join(t.TempDir(), "out.json")
	test.That(t, res.Save(path), test.ShouldBeNil)

	back, err := LoadResult(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back, test.ShouldResemble, res)

	model, err := back.Model()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Intrinsics.Fx, test.ShouldAlmostEqual, 812.3, 1e-9)
	test.That(t, model.Distortion.K3, test.ShouldAlmostEqual, 0.003, 1e-9)
}

func TestResultModelRejectsFailedRun(t *testing.T) {
	sol, target := sampleSolution()
	sol.Converged = false
	res := NewResult(sol, target)
	_, err := res.Model()
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLoadResultErrors(t *testing.T) {
	_, err := LoadResult(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)

	bad := filepath.Join(t.TempDir(), "bad.json")
	test.That(t, os.WriteFile(bad, []byte("not json"), 0o644), test.ShouldBeNil)
	_, err = LoadResult(bad)
	test.That(t, err, test.ShouldNotBeNil)
}
