package calib

import (
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestHomographyRecoversKnownMap(t *testing.T) {
	truth := mat.NewDense(3, 3, []float64{
		420, 12, 300,
		-8, 435, 250,
		1e-4, -2e-4, 1,
	})

	var src, dst []r2.Point
	for j := 0; j < 4; j++ {
		for i := 0; i < 5; i++ {
			p := r2.Point{X: float64(i), Y: float64(j)}
			src = append(src, p)
			dst = append(dst, applyHomography(truth, p))
		}
	}

	h, err := Homography(src, dst)
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			test.That(t, h.At(i, j), test.ShouldAlmostEqual, truth.At(i, j), 1e-6)
		}
	}

	// mapping an unseen point lands where the true transform puts it
	p := r2.Point{X: 2.3, Y: 1.7}
	got := applyHomography(h, p)
	want := applyHomography(truth, p)
	test.That(t, got.Sub(want).Norm(), test.ShouldBeLessThan, 1e-6)
}

func TestHomographyMinimalCase(t *testing.T) {
	src := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	dst := []r2.Point{{X: 10, Y: 20}, {X: 110, Y: 15}, {X: 120, Y: 130}, {X: 5, Y: 115}}

	h, err := Homography(src, dst)
	test.That(t, err, test.ShouldBeNil)
	for i := range src {
		got := applyHomography(h, src[i])
		test.That(t, got.Sub(dst[i]).Norm(), test.ShouldBeLessThan, 1e-8)
	}
}

func TestHomographyErrors(t *testing.T) {
	tri := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}
	_, err := Homography(tri, tri)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = Homography(tri, tri[:2])
	test.That(t, err, test.ShouldNotBeNil)

	same := []r2.Point{{X: 2, Y: 2}, {X: 2, Y: 2}, {X: 2, Y: 2}, {X: 2, Y: 2}}
	other := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	_, err = Homography(same, other)
	test.That(t, err, test.ShouldNotBeNil)
}
