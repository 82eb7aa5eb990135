// Package chessboard locates the inner corners of a planar checkerboard
// target in a grayscale image and refines them to sub-pixel precision.
//
// Detection binarizes the image with a local adaptive threshold, separates
// the dark board squares into convex quadrilaterals, and reassembles the
// inner-corner lattice from the corners that neighboring squares share.
package chessboard

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when no complete boardW x boardH corner grid is
// present in the image. A partially visible board also reports this; the
// detector never returns fewer corners than the full grid.
var ErrNotFound = errors.New("chessboard pattern not found")

// Config holds the detection retry schedule. The zero value selects
// defaults scaled to the image.
type Config struct {
	BlockSizes  []int   `json:"block-sizes"` // adaptive threshold windows, odd
	ThresholdC  float64 `json:"threshold-c"` // offset below local mean
	Erosions    []int   `json:"erosions"`    // erosion passes to try per block size
	MinQuadArea float64 `json:"min-quad-area"`
	SkipCheck   bool    `json:"skip-check"` // disable the fast-reject pre-check
}

func (cfg *Config) withDefaults(w, h int) Config {
	out := *cfg
	if len(out.BlockSizes) == 0 {
		base := minInt(w, h) / 8
		if base%2 == 0 {
			base++
		}
		if base < 11 {
			base = 11
		}
		half := base / 2
		if half%2 == 0 {
			half++
		}
		if half < 11 {
			half = 11
		}
		out.BlockSizes = []int{base, 2*base + 1, half}
	}
	if out.ThresholdC == 0 {
		out.ThresholdC = 7
	}
	if len(out.Erosions) == 0 {
		out.Erosions = []int{1, 2, 0}
	}
	if out.MinQuadArea == 0 {
		out.MinQuadArea = 25
	}
	return out
}

// FindCorners locates the boardW x boardH inner corners of a checkerboard
// in gray, returning them in row-major grid order. It retries the threshold
// schedule until a complete grid assembles, and reports ErrNotFound when no
// attempt produces one.
func FindCorners(gray *image.Gray, boardW, boardH int, cfg Config) ([]r2.Point, error) {
	if boardW < 2 || boardH < 2 {
		return nil, errors.Errorf("board dimensions must be at least 2x2, got %dx%d", boardW, boardH)
	}
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 2*boardW || h < 2*boardH {
		return nil, ErrNotFound
	}
	conf := cfg.withDefaults(w, h)

	eq := Equalize(gray)
	if !conf.SkipCheck && !plausibleBoard(eq, boardW) {
		return nil, ErrNotFound
	}

	for _, block := range conf.BlockSizes {
		dark := adaptiveThreshold(eq, block, conf.ThresholdC)
		for _, erosions := range conf.Erosions {
			mask := dark
			for e := 0; e < erosions; e++ {
				mask = erodeDark(mask, w, h)
			}
			quads := findQuads(mask, w, h, conf.MinQuadArea)
			if len(quads) < boardGridQuads(boardW, boardH) {
				continue
			}
			if grid, ok := assembleGrid(quads, boardW, boardH); ok {
				return grid, nil
			}
		}
	}
	return nil, ErrNotFound
}

// boardGridQuads is the number of dark squares whose corners participate in
// the inner lattice; fewer detected quads cannot possibly complete it.
func boardGridQuads(boardW, boardH int) int {
	return (boardW + 1) * (boardH + 1) / 2
}

func assembleGrid(quads []quad, boardW, boardH int) ([]r2.Point, bool) {
	clusters, memberOf := clusterCorners(quads)
	inner, adj := buildLattice(quads, clusters, memberOf)
	if len(inner) < boardW*boardH {
		return nil, false
	}
	coords, ok := assignGrid(clusters, inner, adj)
	if !ok {
		return nil, false
	}
	return extractGrid(clusters, coords, boardW, boardH)
}

// plausibleBoard is a cheap scanline pre-check: a board crossed by a row
// produces a run of dark/light alternations. Flat or near-flat images are
// rejected before any thresholding work.
func plausibleBoard(eq *image.Gray, boardW int) bool {
	bounds := eq.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	const sampleRows = 16
	need := minInt(boardW, 5)
	hits := 0
	for s := 0; s < sampleRows; s++ {
		y := (s + 1) * h / (sampleRows + 1)
		transitions := 0
		prev := eq.Pix[y*eq.Stride] < 128
		for x := 1; x < w; x++ {
			cur := eq.Pix[y*eq.Stride+x] < 128
			if cur != prev {
				transitions++
				prev = cur
			}
		}
		if transitions >= need {
			hits++
		}
	}
	return hits >= 2
}
