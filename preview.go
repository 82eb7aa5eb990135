package checkercal

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/lucasb-eyer/go-colorful"
	"go.viam.com/rdk/logging"
	xdraw "golang.org/x/image/draw"
)

// PreviewSink receives the before/after image pair once calibration has
// succeeded. Implementations must not assume the two images share a size.
type PreviewSink interface {
	Preview(before, after image.Image) error
}

const previewHeight = 480

// FilePreview writes the pair side by side to a single PNG on disk.
type FilePreview struct {
	Path   string
	Logger logging.Logger
}

func (f *FilePreview) Preview(before, after image.Image) error {
	combined := sideBySide(before, after)
	if err := imaging.Save(combined, f.Path); err != nil {
		return err
	}
	if f.Logger != nil {
		f.Logger.Infof("undistortion preview saved to %s", f.Path)
	}
	return nil
}

// sideBySide scales both images to a common height and pastes them onto
// one canvas, original on the left.
func sideBySide(before, after image.Image) *image.NRGBA {
	left := scaleToHeight(before, previewHeight)
	right := scaleToHeight(after, previewHeight)

	out := image.NewNRGBA(image.Rect(0, 0, left.Bounds().Dx()+right.Bounds().Dx(), previewHeight))
	xdraw.Draw(out, left.Bounds(), left, image.Point{}, xdraw.Src)
	xdraw.Draw(out, right.Bounds().Add(image.Pt(left.Bounds().Dx(), 0)), right, image.Point{}, xdraw.Src)
	return out
}

func scaleToHeight(img image.Image, h int) *image.NRGBA {
	b := img.Bounds()
	w := b.Dx() * h / b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// DrawCorners renders the detected grid on top of the source image, hue
// rotating with corner index so ordering mistakes are visible, with lines
// tracing the row-major traversal.
func DrawCorners(img image.Image, corners []r2.Point, boardW, boardH int) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetLineWidth(2)

	for i, pt := range corners {
		hue := 360 * float64(i) / float64(len(corners))
		c := colorful.Hsv(hue, 1, 1)
		if i%boardW != 0 {
			prev := corners[i-1]
			dc.SetColor(c)
			dc.DrawLine(prev.X, prev.Y, pt.X, pt.Y)
			dc.Stroke()
		}
		dc.SetColor(c)
		dc.DrawCircle(pt.X, pt.Y, 4)
		dc.Stroke()
	}
	if len(corners) > 0 {
		// mark the origin corner so orientation is obvious at a glance
		dc.SetRGB(1, 0, 0)
		dc.DrawCircle(corners[0].X, corners[0].Y, 8)
		dc.Stroke()
	}
	return dc.Image()
}
