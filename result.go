package checkercal

import (
	"encoding/json"
	"fmt"
	"os"

	"checkercal/calib"
	"checkercal/pinhole"
)

// Result is the calibration artifact written after a successful run. The
// field layout matches the conventional JSON schema for checkerboard
// calibration results, so downstream consumers can read it directly.
type Result struct {
	CameraMatrix           [3][3]float64 `json:"camera_matrix"`
	DistortionCoefficients []float64     `json:"distortion_coefficients"`
	RotationVectors        [][3]float64  `json:"rotation_vectors"`
	TranslationVectors     [][3]float64  `json:"translation_vectors"`
	Success                bool          `json:"calibration_success"`
	ImageDimensionsWH      [2]int        `json:"image_dimensions_wh"`
	CheckerboardWH         [2]int        `json:"checkerboard_dimensions_wh"`
	NumImagesUsed          int           `json:"num_images_used"`
	MeanReprojectionError  float64       `json:"mean_reprojection_error"`
}

// NewResult assembles the artifact from a solver solution. Pose order
// follows observation order, so the pose count always equals the number of
// images used.
func NewResult(sol *calib.Solution, target *calib.Target) *Result {
	r := &Result{
		CameraMatrix:           sol.Model.Intrinsics.Matrix(),
		DistortionCoefficients: sol.Model.Distortion.Coefficients(),
		Success:                sol.Converged,
		ImageDimensionsWH:      [2]int{sol.Model.Intrinsics.Width, sol.Model.Intrinsics.Height},
		CheckerboardWH:         [2]int{target.Width, target.Height},
		NumImagesUsed:          len(sol.Poses),
		MeanReprojectionError:  sol.MeanError,
	}
	for _, p := range sol.Poses {
		r.RotationVectors = append(r.RotationVectors, [3]float64{p.Rotation.X, p.Rotation.Y, p.Rotation.Z})
		r.TranslationVectors = append(r.TranslationVectors, [3]float64{p.Translation.X, p.Translation.Y, p.Translation.Z})
	}
	return r
}

// Model rebuilds the camera model from the artifact.
func (r *Result) Model() (*pinhole.Model, error) {
	if !r.Success {
		return nil, fmt.Errorf("calibration artifact is not from a successful run")
	}
	if len(r.DistortionCoefficients) != 5 {
		return nil, fmt.Errorf("expected 5 distortion coefficients, got %d", len(r.DistortionCoefficients))
	}
	d := r.DistortionCoefficients
	m := &pinhole.Model{
		Intrinsics: pinhole.Intrinsics{
			Width:  r.ImageDimensionsWH[0],
			Height: r.ImageDimensionsWH[1],
			Fx:     r.CameraMatrix[0][0],
			Fy:     r.CameraMatrix[1][1],
			Cx:     r.CameraMatrix[0][2],
			Cy:     r.CameraMatrix[1][2],
		},
		Distortion: pinhole.Distortion{K1: d[0], K2: d[1], P1: d[2], P2: d[3], K3: d[4]},
	}
	if err := m.Intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	return m, nil
}

// Save writes the artifact as indented JSON.
func (r *Result) Save(path string) error {
	b, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// LoadResult reads a previously saved artifact.
func LoadResult(path string) (*Result, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r := &Result{}
	if err := json.Unmarshal(b, r); err != nil {
		return nil, fmt.Errorf("parsing calibration artifact %s: %w", path, err)
	}
	return r, nil
}
