package pinhole

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func testModel() *Model {
	return &Model{
		Intrinsics: Intrinsics{Width: 640, Height: 480, Fx: 500, Fy: 505, Cx: 319.5, Cy: 239.5},
		Distortion: Distortion{K1: -0.15, K2: 0.03},
	}
}

func TestIntrinsicsCheckValid(t *testing.T) {
	m := testModel()
	test.That(t, m.Intrinsics.CheckValid(), test.ShouldBeNil)

	bad := m.Intrinsics
	bad.Fx = 0
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)

	bad = m.Intrinsics
	bad.Width = -1
	test.That(t, bad.CheckValid(), test.ShouldNotBeNil)

	var nilIn *Intrinsics
	test.That(t, nilIn.CheckValid(), test.ShouldNotBeNil)
}

func TestIdealPixelRoundTrip(t *testing.T) {
	in := testModel().Intrinsics
	p := r2.Point{X: 123.4, Y: 456.7}
	back := in.IdealToPixel(in.PixelToIdeal(p))
	test.That(t, back.Sub(p).Norm(), test.ShouldBeLessThan, 1e-10)

	// the principal point maps to the optical axis
	center := in.PixelToIdeal(r2.Point{X: in.Cx, Y: in.Cy})
	test.That(t, center.Norm(), test.ShouldAlmostEqual, 0, 1e-12)
}

func TestProject(t *testing.T) {
	m := testModel()

	// a point straight down the optical axis lands on the principal point
	p := m.Project(r3.Vector{Z: 5})
	test.That(t, p.X, test.ShouldAlmostEqual, m.Intrinsics.Cx, 1e-9)
	test.That(t, p.Y, test.ShouldAlmostEqual, m.Intrinsics.Cy, 1e-9)

	behind := m.Project(r3.Vector{X: 1, Y: 1, Z: -2})
	test.That(t, math.IsNaN(behind.X), test.ShouldBeTrue)
	test.That(t, math.IsNaN(behind.Y), test.ShouldBeTrue)

	onPlane := m.Project(r3.Vector{X: 1, Y: 1, Z: 0})
	test.That(t, math.IsNaN(onPlane.X), test.ShouldBeTrue)
}

func TestDistortUndistortPixel(t *testing.T) {
	m := testModel()
	p := r2.Point{X: 100, Y: 80}
	back := m.UndistortPixel(m.DistortPixel(p))
	test.That(t, back.Sub(p).Norm(), test.ShouldBeLessThan, 1e-6)

	// barrel distortion moves off-center pixels toward the principal point
	d := m.DistortPixel(p)
	center := r2.Point{X: m.Intrinsics.Cx, Y: m.Intrinsics.Cy}
	test.That(t, d.Sub(center).Norm(), test.ShouldBeLessThan, p.Sub(center).Norm())
}

func TestMatrixLayout(t *testing.T) {
	in := testModel().Intrinsics
	k := in.Matrix()
	test.That(t, k[0][0], test.ShouldEqual, in.Fx)
	test.That(t, k[1][1], test.ShouldEqual, in.Fy)
	test.That(t, k[0][2], test.ShouldEqual, in.Cx)
	test.That(t, k[1][2], test.ShouldEqual, in.Cy)
	test.That(t, k[2][2], test.ShouldEqual, 1.0)
	test.That(t, k[1][0], test.ShouldEqual, 0.0)
}
