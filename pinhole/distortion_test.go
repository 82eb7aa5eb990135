package pinhole

import (
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestDistortionRoundTrip(t *testing.T) {
	d := Distortion{K1: -0.28, K2: 0.07, P1: 0.0008, P2: -0.0005, K3: 0.01}
	for y := -0.7; y <= 0.7; y += 0.175 {
		for x := -0.7; x <= 0.7; x += 0.175 {
			p := r2.Point{X: x, Y: y}
			back := d.Remove(d.Apply(p))
			test.That(t, back.Sub(p).Norm(), test.ShouldBeLessThan, 1e-8)
		}
	}
}

func TestDistortionZeroIsIdentity(t *testing.T) {
	var d Distortion
	p := r2.Point{X: 0.31, Y: -0.12}
	test.That(t, d.Apply(p), test.ShouldResemble, p)
	test.That(t, d.Remove(p).Sub(p).Norm(), test.ShouldBeLessThan, 1e-12)
}

func TestDistortionCoefficientsOrder(t *testing.T) {
	d := Distortion{K1: 1, K2: 2, P1: 3, P2: 4, K3: 5}
	test.That(t, d.Coefficients(), test.ShouldResemble, []float64{1, 2, 3, 4, 5})
}

func TestDistortionPullsBarrelInward(t *testing.T) {
	d := Distortion{K1: -0.3}
	p := r2.Point{X: 0.5, Y: 0.5}
	got := d.Apply(p)
	// negative k1 is barrel distortion, points move toward the center
	test.That(t, got.Norm(), test.ShouldBeLessThan, p.Norm())
}
