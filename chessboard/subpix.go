package chessboard

import (
	"image"
	"math"

	"github.com/golang/geo/r2"
)

const (
	refineWindow   = 5 // half width, 11x11 pixels total
	refineMaxIters = 30
	refineEpsilon  = 0.001
)

// RefineCorners sharpens integer-precision corner estimates using the
// gradient structure inside an 11x11 window around each corner. At the true
// saddle point of a checkerboard corner every image gradient in the window
// is orthogonal to the vector from the corner to that pixel; each iteration
// solves the small normal system expressing that constraint. Iteration
// stops after 30 rounds or once a corner moves less than 0.001 px.
//
// The returned slice has the same length and order as corners, so the
// row-major grid ordering survives refinement.
func RefineCorners(gray *image.Gray, corners []r2.Point) []r2.Point {
	out := make([]r2.Point, len(corners))
	for i, c := range corners {
		out[i] = refineCorner(gray, c)
	}
	return out
}

func refineCorner(gray *image.Gray, corner r2.Point) r2.Point {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	cur := corner

	for iter := 0; iter < refineMaxIters; iter++ {
		cx, cy := int(math.Round(cur.X)), int(math.Round(cur.Y))
		if cx < refineWindow+1 || cy < refineWindow+1 || cx >= w-refineWindow-1 || cy >= h-refineWindow-1 {
			return cur // too close to the border to refine further
		}

		var gxx, gxy, gyy, bx, by float64
		for dy := -refineWindow; dy <= refineWindow; dy++ {
			for dx := -refineWindow; dx <= refineWindow; dx++ {
				px, py := cx+dx, cy+dy
				gx := (float64(gray.Pix[py*gray.Stride+px+1]) - float64(gray.Pix[py*gray.Stride+px-1])) / 2
				gy := (float64(gray.Pix[(py+1)*gray.Stride+px]) - float64(gray.Pix[(py-1)*gray.Stride+px])) / 2

				// gaussian falloff relative to the current sub-pixel center
				rx, ry := float64(px)-cur.X, float64(py)-cur.Y
				wgt := math.Exp(-(rx*rx + ry*ry) / float64(2*refineWindow*refineWindow))

				gxx += wgt * gx * gx
				gxy += wgt * gx * gy
				gyy += wgt * gy * gy
				bx += wgt * (gx*gx*float64(px) + gx*gy*float64(py))
				by += wgt * (gx*gy*float64(px) + gy*gy*float64(py))
			}
		}

		det := gxx*gyy - gxy*gxy
		if math.Abs(det) < 1e-12 {
			return cur // no gradient structure, nothing to refine against
		}
		next := r2.Point{
			X: (gyy*bx - gxy*by) / det,
			Y: (gxx*by - gxy*bx) / det,
		}
		moved := next.Sub(cur).Norm()
		// reject wild jumps out of the window, they mean a degenerate system
		if next.Sub(corner).Norm() > float64(refineWindow) {
			return cur
		}
		cur = next
		if moved < refineEpsilon {
			break
		}
	}
	return cur
}
