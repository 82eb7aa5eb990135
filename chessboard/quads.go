package chessboard

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

// quad is a dark board square reduced to its four corners, in convex order.
type quad struct {
	corners [4]r2.Point
	minEdge float64
}

// findQuads labels dark 4-connected components and fits a convex
// quadrilateral to each one that plausibly is a board square.
func findQuads(dark []bool, w, h int, minArea float64) []quad {
	labels := make([]int32, w*h)
	var quads []quad
	var stack []int
	next := int32(0)

	for start := range dark {
		if !dark[start] || labels[start] != 0 {
			continue
		}
		next++
		stack = stack[:0]
		stack = append(stack, start)
		labels[start] = next
		var pixels []int
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			pixels = append(pixels, p)
			x, y := p%w, p/w
			if x > 0 && dark[p-1] && labels[p-1] == 0 {
				labels[p-1] = next
				stack = append(stack, p-1)
			}
			if x < w-1 && dark[p+1] && labels[p+1] == 0 {
				labels[p+1] = next
				stack = append(stack, p+1)
			}
			if y > 0 && dark[p-w] && labels[p-w] == 0 {
				labels[p-w] = next
				stack = append(stack, p-w)
			}
			if y < h-1 && dark[p+w] && labels[p+w] == 0 {
				labels[p+w] = next
				stack = append(stack, p+w)
			}
		}
		if float64(len(pixels)) < minArea {
			continue
		}
		if q, ok := componentToQuad(pixels, w, minArea); ok {
			quads = append(quads, q)
		}
	}
	return quads
}

func componentToQuad(pixels []int, w int, minArea float64) (quad, bool) {
	pts := make([]r2.Point, len(pixels))
	for i, p := range pixels {
		pts[i] = r2.Point{X: float64(p % w), Y: float64(p / w)}
	}
	hull := convexHull(pts)
	if len(hull) < 4 {
		return quad{}, false
	}
	hullArea := polygonArea(hull)
	corners := reduceToQuad(hull)
	quadArea := polygonArea(corners[:])
	// a real square loses very little area when its hull collapses to 4 corners
	if quadArea < minArea || quadArea < 0.8*hullArea {
		return quad{}, false
	}
	minEdge, maxEdge := math.Inf(1), 0.0
	for i := 0; i < 4; i++ {
		e := corners[(i+1)%4].Sub(corners[i]).Norm()
		if e < minEdge {
			minEdge = e
		}
		if e > maxEdge {
			maxEdge = e
		}
	}
	if minEdge < 3 || maxEdge > 10*minEdge {
		return quad{}, false
	}
	return quad{corners: corners, minEdge: minEdge}, true
}

// convexHull is Andrew's monotone chain, counter-clockwise in image coordinates.
func convexHull(pts []r2.Point) []r2.Point {
	if len(pts) < 3 {
		return pts
	}
	sorted := make([]r2.Point, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	var hull []r2.Point
	for _, p := range sorted {
		for len(hull) >= 2 && cross2(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross2(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

func cross2(o, a, b r2.Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func polygonArea(pts []r2.Point) float64 {
	area := 0.0
	for i := range pts {
		j := (i + 1) % len(pts)
		area += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(area) / 2
}

// reduceToQuad strips hull vertices, dropping the one whose removal costs the
// least area, until four remain. The survivors are the extreme corners.
func reduceToQuad(hull []r2.Point) [4]r2.Point {
	poly := make([]r2.Point, len(hull))
	copy(poly, hull)
	for len(poly) > 4 {
		bestIdx, bestLoss := 0, math.Inf(1)
		for i := range poly {
			prev := poly[(i+len(poly)-1)%len(poly)]
			next := poly[(i+1)%len(poly)]
			loss := math.Abs(cross2(prev, poly[i], next)) / 2
			if loss < bestLoss {
				bestLoss = loss
				bestIdx = i
			}
		}
		poly = append(poly[:bestIdx], poly[bestIdx+1:]...)
	}
	var out [4]r2.Point
	copy(out[:], poly)
	return out
}
