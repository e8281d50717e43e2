package vectorize

import "github.com/paulmach/orb"

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// intersect returns where segment p1-p2 crosses the infinite line
// through a and b. Callers only invoke it when the endpoints straddle
// the line, so the denominator cannot vanish.
func intersect(p1, p2, a, b orb.Point) orb.Point {
	d1 := cross(a, b, p1)
	d2 := cross(a, b, p2)
	t := d1 / (d1 - d2)
	return orb.Point{
		p1[0] + t*(p2[0]-p1[0]),
		p1[1] + t*(p2[1]-p1[1]),
	}
}

// clipRing runs Sutherland-Hodgman against a convex counterclockwise
// window. Both rings must be closed. Winding order survives clipping.
// Returns nil when nothing of the ring remains inside the window.
func clipRing(ring orb.Ring, window orb.Ring) orb.Ring {
	if len(ring) < 4 {
		return nil
	}

	output := make([]orb.Point, len(ring)-1)
	copy(output, ring[:len(ring)-1])

	for i := 0; i+1 < len(window); i++ {
		a, b := window[i], window[i+1]

		input := output
		if len(input) == 0 {
			return nil
		}
		output = make([]orb.Point, 0, len(input)+4)

		prev := input[len(input)-1]
		prevInside := cross(a, b, prev) >= 0
		for _, cur := range input {
			curInside := cross(a, b, cur) >= 0
			switch {
			case curInside && prevInside:
				output = append(output, cur)
			case curInside && !prevInside:
				output = append(output, intersect(prev, cur, a, b), cur)
			case !curInside && prevInside:
				output = append(output, intersect(prev, cur, a, b))
			}
			prev, prevInside = cur, curInside
		}
	}

	return closeRing(dedupe(output))
}

// dedupe removes consecutive duplicate points that clipping can
// introduce when a vertex lies exactly on a window edge.
func dedupe(points []orb.Point) []orb.Point {
	if len(points) == 0 {
		return nil
	}
	out := points[:1]
	for _, p := range points[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	if len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	return out
}

func closeRing(points []orb.Point) orb.Ring {
	if len(points) < 3 {
		return nil
	}
	return append(orb.Ring(points), points[0])
}

// clipPolygon clips every ring separately. Losing the outer ring loses
// the polygon; losing a hole just heals it.
func clipPolygon(poly orb.Polygon, window orb.Ring) orb.Polygon {
	if len(poly) == 0 {
		return nil
	}
	outer := clipRing(poly[0], window)
	if len(outer) == 0 {
		return nil
	}

	out := orb.Polygon{outer}
	for _, hole := range poly[1:] {
		if h := clipRing(hole, window); len(h) >= 4 {
			out = append(out, h)
		}
	}
	return out
}
