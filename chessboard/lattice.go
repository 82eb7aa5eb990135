package chessboard

import (
	"sort"

	"github.com/golang/geo/r2"
)

// An inner corner of the board is where exactly two dark squares meet
// diagonally, so it shows up as a tight cluster of corner points from two
// different quads. Consecutive corners of one quad connect neighboring
// inner corners along a grid line, which gives us the lattice edges.

type cornerCluster struct {
	center r2.Point
	quads  []int
	edge   float64 // smallest quad edge among members, sets local scale
}

// clusterCorners groups quad corners that land within a fraction of the
// local square size of each other.
func clusterCorners(quads []quad) ([]cornerCluster, [][4]int) {
	n := len(quads) * 4
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	for i := 0; i < n; i++ {
		qi := i / 4
		pi := quads[qi].corners[i%4]
		for j := i + 1; j < n; j++ {
			qj := j / 4
			if qi == qj {
				continue
			}
			tol := 0.3 * minf(quads[qi].minEdge, quads[qj].minEdge)
			if pi.Sub(quads[qj].corners[j%4]).Norm() < tol {
				parent[find(i)] = find(j)
			}
		}
	}

	clusterOf := make(map[int]int)
	var clusters []cornerCluster
	memberOf := make([][4]int, len(quads))
	for i := 0; i < n; i++ {
		root := find(i)
		ci, ok := clusterOf[root]
		if !ok {
			ci = len(clusters)
			clusterOf[root] = ci
			clusters = append(clusters, cornerCluster{edge: quads[i/4].minEdge})
		}
		c := &clusters[ci]
		c.center = c.center.Add(quads[i/4].corners[i%4])
		c.quads = append(c.quads, i/4)
		if quads[i/4].minEdge < c.edge {
			c.edge = quads[i/4].minEdge
		}
		memberOf[i/4][i%4] = ci
	}
	for i := range clusters {
		k := float64(len(clusters[i].quads))
		clusters[i].center = r2.Point{X: clusters[i].center.X / k, Y: clusters[i].center.Y / k}
	}
	return clusters, memberOf
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// buildLattice returns the candidate inner corners and their grid-line
// adjacency. Corners touched by only one quad sit on the outer border of
// the board and are dropped.
func buildLattice(quads []quad, clusters []cornerCluster, memberOf [][4]int) (map[int]bool, map[int][]int) {
	inner := make(map[int]bool)
	for i, c := range clusters {
		distinct := map[int]bool{}
		for _, q := range c.quads {
			distinct[q] = true
		}
		if len(distinct) >= 2 {
			inner[i] = true
		}
	}

	adj := make(map[int][]int)
	seen := map[[2]int]bool{}
	for qi := range quads {
		for k := 0; k < 4; k++ {
			a, b := memberOf[qi][k], memberOf[qi][(k+1)%4]
			if a == b || !inner[a] || !inner[b] {
				continue
			}
			key := [2]int{minInt(a, b), maxInt(a, b)}
			if seen[key] {
				continue
			}
			seen[key] = true
			adj[a] = append(adj[a], b)
			adj[b] = append(adj[b], a)
		}
	}
	for _, nb := range adj {
		sort.Ints(nb)
	}
	return inner, adj
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// assignGrid walks the lattice breadth-first, classifying each edge against
// running estimates of the two grid axes, and assigns integer coordinates.
func assignGrid(clusters []cornerCluster, inner map[int]bool, adj map[int][]int) (map[int][2]int, bool) {
	start := -1
	for i := range clusters {
		if !inner[i] || len(adj[i]) < 2 {
			continue
		}
		if start == -1 || lessPoint(clusters[i].center, clusters[start].center) {
			start = i
		}
	}
	if start == -1 {
		return nil, false
	}

	// seed the two axes from the start corner's neighbors
	var ex, ey r2.Point
	exIdx, eyIdx := -1, -1
	for _, nb := range adj[start] {
		v := clusters[nb].center.Sub(clusters[start].center)
		if exIdx == -1 || absf(v.X) > absf(ex.X) {
			ex, exIdx = v, nb
		}
	}
	bestCos := 2.0
	for _, nb := range adj[start] {
		if nb == exIdx {
			continue
		}
		v := clusters[nb].center.Sub(clusters[start].center)
		c := absf(dot(v, ex)) / (v.Norm() * ex.Norm())
		if c < bestCos {
			bestCos, ey, eyIdx = c, v, nb
		}
	}
	if eyIdx == -1 || bestCos > 0.7 {
		return nil, false
	}

	coords := map[int][2]int{start: {0, 0}, exIdx: {1, 0}, eyIdx: {0, 1}}
	taken := map[[2]int]int{{0, 0}: start, {1, 0}: exIdx, {0, 1}: eyIdx}
	queue := []int{start, exIdx, eyIdx}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		cc := coords[cur]
		for _, nb := range adj[cur] {
			v := clusters[nb].center.Sub(clusters[cur].center)
			a := dot(v, ex) / dot(ex, ex)
			b := dot(v, ey) / dot(ey, ey)
			var step [2]int
			switch {
			case absf(a) > absf(b) && a > 0:
				step = [2]int{1, 0}
			case absf(a) > absf(b):
				step = [2]int{-1, 0}
			case b > 0:
				step = [2]int{0, 1}
			default:
				step = [2]int{0, -1}
			}
			nc := [2]int{cc[0] + step[0], cc[1] + step[1]}
			if prev, ok := coords[nb]; ok {
				if prev != nc {
					return nil, false
				}
				continue
			}
			if other, ok := taken[nc]; ok && other != nb {
				return nil, false
			}
			coords[nb] = nc
			taken[nc] = nb
			queue = append(queue, nb)
			// drift the axis estimates so moderate perspective keeps classifying cleanly
			if step[0] != 0 {
				ex = blend(ex, v.Mul(float64(step[0])))
			} else {
				ey = blend(ey, v.Mul(float64(step[1])))
			}
		}
	}
	return coords, true
}

func blend(axis, v r2.Point) r2.Point {
	return axis.Mul(0.9).Add(v.Mul(0.1))
}

func dot(a, b r2.Point) float64 {
	return a.X*b.X + a.Y*b.Y
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func lessPoint(a, b r2.Point) bool {
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}

// extractGrid validates that the assigned coordinates form a complete
// boardW x boardH lattice and emits the corners in canonical row-major
// order: rows along the height, columns along the width, right-handed in
// image coordinates.
func extractGrid(clusters []cornerCluster, coords map[int][2]int, boardW, boardH int) ([]r2.Point, bool) {
	if len(coords) != boardW*boardH {
		return nil, false
	}
	minI, maxI := 1<<30, -(1 << 30)
	minJ, maxJ := 1<<30, -(1 << 30)
	for _, c := range coords {
		minI, maxI = minInt(minI, c[0]), maxInt(maxI, c[0])
		minJ, maxJ = minInt(minJ, c[1]), maxInt(maxJ, c[1])
	}
	di, dj := maxI-minI+1, maxJ-minJ+1

	cell := make(map[[2]int]int, len(coords))
	for idx, c := range coords {
		key := [2]int{c[0] - minI, c[1] - minJ}
		if _, dup := cell[key]; dup {
			return nil, false
		}
		cell[key] = idx
	}

	at := func(i, j int) (r2.Point, bool) {
		idx, ok := cell[[2]int{i, j}]
		if !ok {
			return r2.Point{}, false
		}
		return clusters[idx].center, true
	}
	transposed := false
	switch {
	case di == boardW && dj == boardH:
	case di == boardH && dj == boardW:
		transposed = true
	default:
		return nil, false
	}
	get := func(col, row int) (r2.Point, bool) {
		if transposed {
			return at(row, col)
		}
		return at(col, row)
	}

	grid := make([]r2.Point, boardW*boardH)
	for row := 0; row < boardH; row++ {
		for col := 0; col < boardW; col++ {
			p, ok := get(col, row)
			if !ok {
				return nil, false
			}
			grid[row*boardW+col] = p
		}
	}
	return canonicalize(grid, boardW, boardH), true
}

// canonicalize fixes the orientation so output is deterministic: the column
// axis runs toward positive image x, and (column axis) x (row axis) > 0 so
// correspondences stay a proper rotation away from the object template.
func canonicalize(grid []r2.Point, w, h int) []r2.Point {
	ex := grid[w-1].Sub(grid[0])
	ey := grid[(h-1)*w].Sub(grid[0])

	if ex.X*ey.Y-ex.Y*ey.X < 0 {
		flipped := make([]r2.Point, len(grid))
		for row := 0; row < h; row++ {
			copy(flipped[(h-1-row)*w:(h-row)*w], grid[row*w:(row+1)*w])
		}
		grid = flipped
		ex = grid[w-1].Sub(grid[0])
	}
	if ex.X < 0 || (ex.X == 0 && ex.Y < 0) {
		rotated := make([]r2.Point, len(grid))
		for i, p := range grid {
			rotated[len(grid)-1-i] = p
		}
		grid = rotated
	}
	return grid
}
