// Package geometry constructs the AOI polygon for an analysis request.
package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	"github.com/terralens/landcover-cli/internal/model"
)

// circleVertices is the number of bearings sampled around the circle. The
// closed ring carries one extra vertex (first == last).
const circleVertices = 64

// AOI is the closed polygonal approximation of a geodesic circle around the
// request center. Points are (lon, lat) in EPSG:4326.
type AOI struct {
	Name    string
	Center  orb.Point
	RadiusM float64
	Ring    orb.Ring
}

// Build validates the request and constructs its AOI polygon. The radius is
// derived from the requested area (r = sqrt(area/pi)) and each vertex is the
// geodesic destination of the center at an equally spaced bearing, so the
// polygon stays a circle at any radius and latitude.
func Build(req model.AOIRequest) (*AOI, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	radius := math.Sqrt(req.AreaSqM / math.Pi)
	center := orb.Point{req.Longitude, req.Latitude}

	ring := make(orb.Ring, 0, circleVertices+1)
	for i := 0; i < circleVertices; i++ {
		bearing := float64(i) * 360.0 / circleVertices
		ring = append(ring, geo.PointAtBearingAndDistance(center, bearing, radius))
	}
	ring = append(ring, ring[0])

	if ring.Orientation() == orb.CW {
		ring.Reverse()
	}

	return &AOI{
		Name:    req.Name,
		Center:  center,
		RadiusM: radius,
		Ring:    ring,
	}, nil
}

// Polygon returns the AOI as a single-ring polygon.
func (a *AOI) Polygon() orb.Polygon {
	return orb.Polygon{a.Ring}
}

// Bound returns the bounding box of the AOI ring.
func (a *AOI) Bound() orb.Bound {
	return a.Ring.Bound()
}

// Contains reports whether the point lies inside the AOI ring.
func (a *AOI) Contains(p orb.Point) bool {
	return planar.RingContains(a.Ring, p)
}

// AreaSqM returns the geodesic area of the AOI polygon. This is the
// authoritative total for the area accounting, independent of any raster
// resolution chosen later.
func (a *AOI) AreaSqM() float64 {
	return geo.Area(a.Polygon())
}
