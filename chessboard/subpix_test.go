package chessboard

import (
	"image"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestRefineCornerRecenters(t *testing.T) {
	cam := synthCam{fx: 560, fy: 560, cx: 319.5, cy: 239.5}
	bw, bh := 7, 10

	rot := rotationXYZ(0.18, -0.12, 0.05)
	tvec := centeredT(rot, 3, 4.5, 19)
	hom := planeHomography(cam, rot, tvec)
	img := renderBoard(hom, 640, 480, bw, bh)

	truth := trueCorners(hom, bw, bh)
	// nudge every corner off its true position and refine back
	nudges := []r2.Point{{X: 1.2, Y: -0.9}, {X: -1.0, Y: 0.7}, {X: 0.4, Y: 1.3}}
	starts := make([]r2.Point, len(truth))
	for i, p := range truth {
		starts[i] = p.Add(nudges[i%len(nudges)])
	}

	refined := RefineCorners(img, starts)
	test.That(t, len(refined), test.ShouldEqual, len(truth))
	for i, p := range refined {
		before := starts[i].Sub(truth[i]).Norm()
		after := p.Sub(truth[i]).Norm()
		test.That(t, after, test.ShouldBeLessThan, 0.4)
		test.That(t, after, test.ShouldBeLessThan, before)
	}
}

func TestRefineCornerNearBorder(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	start := r2.Point{X: 2, Y: 2}
	out := RefineCorners(img, []r2.Point{start})
	// too close to the edge to build a window, so the input comes back
	test.That(t, out[0], test.ShouldResemble, start)
}

func TestRefineCornerFlatPatch(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	start := r2.Point{X: 50, Y: 50}
	out := RefineCorners(img, []r2.Point{start})
	// no gradient structure means nothing to refine against
	test.That(t, out[0], test.ShouldResemble, start)
}
