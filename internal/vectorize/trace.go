package vectorize

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/terralens/landcover-cli/internal/imagery"
)

// gridNode addresses a cell corner; row in [0,Rows], col in [0,Cols].
type gridNode struct {
	row, col int
}

// boundaryEdge is one directed cell side of unit length. Direction is
// chosen so the component interior sits on the left, which makes outer
// rings counterclockwise and holes clockwise in lon/lat space.
type boundaryEdge struct {
	from, to gridNode
}

func (e boundaryEdge) dir() (int, int) {
	return e.to.row - e.from.row, e.to.col - e.from.col
}

// collectEdges gathers the directed boundary of one component. Cells
// arrive in ascending scan order and sides are emitted in a fixed
// order, so the edge list is deterministic.
func collectEdges(grid imagery.GridSpec, labels []int, id int, cells []int) []boundaryEdge {
	outside := func(r, c int) bool {
		if r < 0 || r >= grid.Rows || c < 0 || c >= grid.Cols {
			return true
		}
		return labels[grid.Index(r, c)] != id
	}

	edges := make([]boundaryEdge, 0, 4*len(cells))
	for _, i := range cells {
		r := i / grid.Cols
		c := i % grid.Cols
		if outside(r-1, c) { // north side, walked westward
			edges = append(edges, boundaryEdge{gridNode{r, c + 1}, gridNode{r, c}})
		}
		if outside(r+1, c) { // south side, walked eastward
			edges = append(edges, boundaryEdge{gridNode{r + 1, c}, gridNode{r + 1, c + 1}})
		}
		if outside(r, c-1) { // west side, walked southward
			edges = append(edges, boundaryEdge{gridNode{r, c}, gridNode{r + 1, c}})
		}
		if outside(r, c+1) { // east side, walked northward
			edges = append(edges, boundaryEdge{gridNode{r + 1, c + 1}, gridNode{r, c + 1}})
		}
	}
	return edges
}

// chainRings stitches directed edges into closed node loops. At a
// node with two departures (diagonally touching holes) the sharpest
// left turn is taken, which keeps the background 8-connected the way a
// 4-connected foreground requires.
func chainRings(grid imagery.GridSpec, edges []boundaryEdge) [][]gridNode {
	nodeKey := func(n gridNode) int {
		return n.row*(grid.Cols+1) + n.col
	}

	outgoing := make(map[int][]int, len(edges))
	for i, e := range edges {
		k := nodeKey(e.from)
		outgoing[k] = append(outgoing[k], i)
	}

	used := make([]bool, len(edges))

	// pickNext prefers left turn, then straight, then right turn
	// relative to the incoming direction. A left turn of (dr,dc) in
	// lon/lat space is (-dc,dr).
	pickNext := func(at gridNode, dr, dc int) int {
		candidates := outgoing[nodeKey(at)]
		wantDirs := [3][2]int{{-dc, dr}, {dr, dc}, {dc, -dr}}
		for _, want := range wantDirs {
			for _, ei := range candidates {
				if used[ei] {
					continue
				}
				edr, edc := edges[ei].dir()
				if edr == want[0] && edc == want[1] {
					return ei
				}
			}
		}
		return -1
	}

	var rings [][]gridNode
	for start := range edges {
		if used[start] {
			continue
		}

		loop := []gridNode{edges[start].from}
		used[start] = true
		cur := edges[start].to
		dr, dc := edges[start].dir()

		for cur != loop[0] {
			loop = append(loop, cur)
			next := pickNext(cur, dr, dc)
			if next < 0 {
				// Cannot happen on a well-formed boundary; bail out
				// rather than spin.
				loop = nil
				break
			}
			used[next] = true
			cur = edges[next].to
			dr, dc = edges[next].dir()
		}

		if len(loop) >= 4 {
			rings = append(rings, collapseCollinear(loop))
		}
	}
	return rings
}

// collapseCollinear drops nodes where the walk continues straight,
// wrapping around the seam so the loop start is not special.
func collapseCollinear(loop []gridNode) []gridNode {
	n := len(loop)
	out := make([]gridNode, 0, n)
	for i := 0; i < n; i++ {
		prev := loop[(i-1+n)%n]
		next := loop[(i+1)%n]
		inDR, inDC := loop[i].row-prev.row, loop[i].col-prev.col
		outDR, outDC := next.row-loop[i].row, next.col-loop[i].col
		if inDR == outDR && inDC == outDC {
			continue
		}
		out = append(out, loop[i])
	}
	return out
}

// ringToLonLat converts a node loop to a closed orb ring.
func ringToLonLat(grid imagery.GridSpec, loop []gridNode) orb.Ring {
	ring := make(orb.Ring, 0, len(loop)+1)
	for _, n := range loop {
		ring = append(ring, grid.Vertex(n.row, n.col))
	}
	ring = append(ring, ring[0])
	return ring
}

// tracePolygon extracts one polygon per component: the largest ring is
// the outer boundary, every other ring is a hole.
func tracePolygon(grid imagery.GridSpec, labels []int, id int, cells []int) orb.Polygon {
	loops := chainRings(grid, collectEdges(grid, labels, id, cells))
	if len(loops) == 0 {
		return nil
	}

	rings := make([]orb.Ring, 0, len(loops))
	for _, loop := range loops {
		rings = append(rings, ringToLonLat(grid, loop))
	}

	outerIdx := 0
	outerArea := 0.0
	for i, r := range rings {
		if a := math.Abs(planar.Area(r)); a > outerArea {
			outerArea = a
			outerIdx = i
		}
	}

	poly := make(orb.Polygon, 0, len(rings))
	outer := rings[outerIdx]
	if outer.Orientation() == orb.CW {
		outer.Reverse()
	}
	poly = append(poly, outer)

	for i, r := range rings {
		if i == outerIdx {
			continue
		}
		if r.Orientation() == orb.CCW {
			r.Reverse()
		}
		poly = append(poly, r)
	}
	return poly
}
