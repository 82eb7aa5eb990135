package chessboard

import (
	"image"
	"image/color"
)

// ToGray converts any image to 8-bit grayscale using the standard luminance weights.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			out.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return out
}

// Equalize performs histogram equalization so uneven lighting does not
// starve the adaptive threshold of contrast.
func Equalize(g *image.Gray) *image.Gray {
	bounds := g.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	total := w * h
	if total == 0 {
		return g
	}

	var hist [256]int
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+w]
		for _, v := range row {
			hist[v]++
		}
	}

	var lut [256]uint8
	cum := 0
	for i := 0; i < 256; i++ {
		cum += hist[i]
		lut[i] = uint8((cum*255 + total/2) / total)
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := g.Pix[y*g.Stride : y*g.Stride+w]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x, v := range src {
			dst[x] = lut[v]
		}
	}
	return out
}

// integral is a summed-area table, one row and column larger than the
// source so window sums need no edge special cases.
type integral struct {
	w, h int
	sum  []int64
}

func newIntegral(g *image.Gray) *integral {
	bounds := g.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	it := &integral{w: w, h: h, sum: make([]int64, (w+1)*(h+1))}
	stride := w + 1
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(g.Pix[y*g.Stride+x])
			it.sum[(y+1)*stride+(x+1)] = it.sum[y*stride+(x+1)] + rowSum
		}
	}
	return it
}

// windowSum returns the sum of pixels in the clipped window centered at (x,y)
// with the given radius, along with the number of pixels summed.
func (it *integral) windowSum(x, y, radius int) (int64, int) {
	x0, y0 := x-radius, y-radius
	x1, y1 := x+radius+1, y+radius+1
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > it.w {
		x1 = it.w
	}
	if y1 > it.h {
		y1 = it.h
	}
	stride := it.w + 1
	s := it.sum[y1*stride+x1] - it.sum[y0*stride+x1] - it.sum[y1*stride+x0] + it.sum[y0*stride+x0]
	return s, (x1 - x0) * (y1 - y0)
}

// adaptiveThreshold marks a pixel dark when it falls below the local mean
// minus a small constant. blockSize must be odd.
func adaptiveThreshold(g *image.Gray, blockSize int, c float64) []bool {
	bounds := g.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	it := newIntegral(g)
	radius := blockSize / 2
	dark := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s, n := it.windowSum(x, y, radius)
			mean := float64(s) / float64(n)
			dark[y*w+x] = float64(g.Pix[y*g.Stride+x]) < mean-c
		}
	}
	return dark
}

// erodeDark peels one pixel off every dark region. Dark squares of the
// board touch only diagonally, so this separates them cleanly.
func erodeDark(dark []bool, w, h int) []bool {
	out := make([]bool, len(dark))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !dark[y*w+x] {
				continue
			}
			keep := true
			for dy := -1; dy <= 1 && keep; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h || !dark[ny*w+nx] {
						keep = false
						break
					}
				}
			}
			out[y*w+x] = keep
		}
	}
	return out
}
