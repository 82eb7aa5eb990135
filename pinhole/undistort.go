package pinhole

import (
	"image"
	"image/color"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

const rectSamples = 9 // sample grid used to estimate the valid-pixel rectangles

type rect struct {
	x0, y0, x1, y1 float64
}

func (r rect) width() float64  { return r.x1 - r.x0 }
func (r rect) height() float64 { return r.y1 - r.y0 }

// validRectangles undistorts a coarse grid of source pixels and measures, in
// normalized coordinates, the outer bounding box of everything the lens saw
// and the largest inner box free of invalid border pixels.
func (m *Model) validRectangles() (inner, outer rect) {
	w, h := float64(m.Intrinsics.Width), float64(m.Intrinsics.Height)
	outer = rect{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	inner = rect{math.Inf(-1), math.Inf(-1), math.Inf(1), math.Inf(1)}

	for j := 0; j < rectSamples; j++ {
		for i := 0; i < rectSamples; i++ {
			src := r2.Point{
				X: float64(i) * (w - 1) / (rectSamples - 1),
				Y: float64(j) * (h - 1) / (rectSamples - 1),
			}
			p := m.Distortion.Remove(m.Intrinsics.PixelToIdeal(src))

			outer.x0 = math.Min(outer.x0, p.X)
			outer.y0 = math.Min(outer.y0, p.Y)
			outer.x1 = math.Max(outer.x1, p.X)
			outer.y1 = math.Max(outer.y1, p.Y)

			if i == 0 {
				inner.x0 = math.Max(inner.x0, p.X)
			}
			if i == rectSamples-1 {
				inner.x1 = math.Min(inner.x1, p.X)
			}
			if j == 0 {
				inner.y0 = math.Max(inner.y0, p.Y)
			}
			if j == rectSamples-1 {
				inner.y1 = math.Min(inner.y1, p.Y)
			}
		}
	}
	return inner, outer
}

// OptimalIntrinsics computes a new intrinsic matrix for undistorted output.
// alpha interpolates between cropping every invalid border pixel away
// (alpha=0) and retaining every source pixel at the cost of black borders
// (alpha=1). The output image size stays that of the model.
func (m *Model) OptimalIntrinsics(alpha float64) (Intrinsics, error) {
	if err := m.Intrinsics.CheckValid(); err != nil {
		return Intrinsics{}, err
	}
	alpha = math.Max(0, math.Min(1, alpha))
	inner, outer := m.validRectangles()
	if inner.width() <= 0 || inner.height() <= 0 || outer.width() <= 0 || outer.height() <= 0 {
		return Intrinsics{}, errors.New("distortion model maps the image to a degenerate region")
	}
	w, h := float64(m.Intrinsics.Width), float64(m.Intrinsics.Height)

	fx0, fy0 := (w-1)/inner.width(), (h-1)/inner.height()
	cx0, cy0 := -fx0*inner.x0, -fy0*inner.y0
	fx1, fy1 := (w-1)/outer.width(), (h-1)/outer.height()
	cx1, cy1 := -fx1*outer.x0, -fy1*outer.y0

	return Intrinsics{
		Width:  m.Intrinsics.Width,
		Height: m.Intrinsics.Height,
		Fx:     fx0*(1-alpha) + fx1*alpha,
		Fy:     fy0*(1-alpha) + fy1*alpha,
		Cx:     cx0*(1-alpha) + cx1*alpha,
		Cy:     cy0*(1-alpha) + cy1*alpha,
	}, nil
}

// Undistort remaps src into a distortion-free image under the adjusted
// intrinsics newIn (usually from OptimalIntrinsics). Every destination
// pixel is filled by pushing its ideal coordinates forward through the
// distortion model and bilinearly sampling the source there; destinations
// whose source location falls outside the image are painted black.
func (m *Model) Undistort(src image.Image, newIn *Intrinsics) (*image.NRGBA, error) {
	if src == nil {
		return nil, errors.New("input image is nil")
	}
	if newIn == nil {
		newIn = &m.Intrinsics
	}
	bounds := src.Bounds()
	if bounds.Dx() != m.Intrinsics.Width || bounds.Dy() != m.Intrinsics.Height {
		return nil, errors.Errorf("image size (%d,%d) does not match intrinsics (%d,%d)",
			bounds.Dx(), bounds.Dy(), m.Intrinsics.Width, m.Intrinsics.Height)
	}

	out := image.NewNRGBA(image.Rect(0, 0, newIn.Width, newIn.Height))
	for v := 0; v < newIn.Height; v++ {
		for u := 0; u < newIn.Width; u++ {
			ideal := newIn.PixelToIdeal(r2.Point{X: float64(u), Y: float64(v)})
			srcPt := m.Intrinsics.IdealToPixel(m.Distortion.Apply(ideal))
			out.SetNRGBA(u, v, bilinearSample(src, srcPt))
		}
	}
	return out, nil
}

// bilinearSample interpolates src at a floating-point location, returning
// black for out-of-bounds or non-finite coordinates.
func bilinearSample(src image.Image, pt r2.Point) color.NRGBA {
	bounds := src.Bounds()
	if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || math.IsInf(pt.X, 0) || math.IsInf(pt.Y, 0) {
		return color.NRGBA{A: 255}
	}
	x0 := int(math.Floor(pt.X))
	y0 := int(math.Floor(pt.Y))
	if x0 < bounds.Min.X || y0 < bounds.Min.Y || x0+1 >= bounds.Max.X || y0+1 >= bounds.Max.Y {
		return color.NRGBA{A: 255}
	}
	fx := pt.X - float64(x0)
	fy := pt.Y - float64(y0)

	blend := func(c00, c10, c01, c11 uint32) uint8 {
		top := float64(c00)*(1-fx) + float64(c10)*fx
		bot := float64(c01)*(1-fx) + float64(c11)*fx
		return uint8((top*(1-fy) + bot*fy) / 257)
	}
	r00, g00, b00, _ := src.At(x0, y0).RGBA()
	r10, g10, b10, _ := src.At(x0+1, y0).RGBA()
	r01, g01, b01, _ := src.At(x0, y0+1).RGBA()
	r11, g11, b11, _ := src.At(x0+1, y0+1).RGBA()
	return color.NRGBA{
		R: blend(r00, r10, r01, r11),
		G: blend(g00, g10, g01, g11),
		B: blend(b00, b10, b01, b11),
		A: 255,
	}
}
