package pinhole

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestOptimalIntrinsicsNoDistortion(t *testing.T) {
	m := &Model{
		Intrinsics: Intrinsics{Width: 640, Height: 480, Fx: 500, Fy: 505, Cx: 319.5, Cy: 239.5},
	}
	// with zero distortion the valid region is the whole frame, so every
	// alpha gives back the original intrinsics
	for _, alpha := range []float64{0, 0.5, 1} {
		newIn, err := m.OptimalIntrinsics(alpha)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, newIn.Fx, test.ShouldAlmostEqual, m.Intrinsics.Fx, 1e-6)
		test.That(t, newIn.Fy, test.ShouldAlmostEqual, m.Intrinsics.Fy, 1e-6)
		test.That(t, newIn.Cx, test.ShouldAlmostEqual, m.Intrinsics.Cx, 1e-6)
		test.That(t, newIn.Cy, test.ShouldAlmostEqual, m.Intrinsics.Cy, 1e-6)
	}
}

func TestOptimalIntrinsicsBarrel(t *testing.T) {
	m := &Model{
		Intrinsics: Intrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Cx: 319.5, Cy: 239.5},
		Distortion: Distortion{K1: -0.25, K2: 0.05},
	}
	crop, err := m.OptimalIntrinsics(0)
	test.That(t, err, test.ShouldBeNil)
	keep, err := m.OptimalIntrinsics(1)
	test.That(t, err, test.ShouldBeNil)

	// barrel distortion bulges outward when removed; keeping every source
	// pixel needs a wider view (smaller focal) than cropping to valid pixels
	test.That(t, keep.Fx, test.ShouldBeLessThan, crop.Fx)
	test.That(t, keep.Fy, test.ShouldBeLessThan, crop.Fy)
	test.That(t, crop.CheckValid(), test.ShouldBeNil)
	test.That(t, keep.CheckValid(), test.ShouldBeNil)
}

func TestOptimalIntrinsicsInvalidModel(t *testing.T) {
	m := &Model{}
	_, err := m.OptimalIntrinsics(1)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestUndistortIdentity(t *testing.T) {
	// unit focal and zero principal point keep the remap exact in floating
	// point, so the output can be compared pixel for pixel
	m := &Model{
		Intrinsics: Intrinsics{Width: 64, Height: 48, Fx: 1, Fy: 1, Cx: 0, Cy: 0},
	}
	src := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 5), B: 77, A: 255})
		}
	}

	out, err := m.Undistort(src, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Bounds(), test.ShouldResemble, src.Bounds())
	// with no distortion interior pixels map onto themselves exactly
	for y := 1; y < 47; y++ {
		for x := 1; x < 63; x++ {
			test.That(t, out.NRGBAAt(x, y), test.ShouldResemble, src.NRGBAAt(x, y))
		}
	}
}

func TestUndistortSizeMismatch(t *testing.T) {
	m := &Model{
		Intrinsics: Intrinsics{Width: 640, Height: 480, Fx: 500, Fy: 500, Cx: 319.5, Cy: 239.5},
	}
	src := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	_, err := m.Undistort(src, nil)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = m.Undistort(nil, nil)
	test.That(t, err, test.ShouldNotBeNil)
}
