// Package vectorize turns a classified raster into per-class polygon
// layers clipped to the area of interest.
package vectorize

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/terralens/landcover-cli/internal/classify"
	"github.com/terralens/landcover-cli/internal/geometry"
	"github.com/terralens/landcover-cli/internal/model"
)

// Vectorizer converts raster components to simplified polygons.
type Vectorizer struct {
	minAreaSqM float64
	tolerance  float64
}

// New builds a vectorizer. minAreaSqM drops slivers below that
// geodesic area after clipping; tolerance is the Douglas-Peucker
// threshold in degrees, zero to disable simplification.
func New(minAreaSqM, tolerance float64) *Vectorizer {
	return &Vectorizer{minAreaSqM: minAreaSqM, tolerance: tolerance}
}

// Layers vectorizes every component of the classified raster and
// groups the resulting features by class. All four classes are always
// present in the result, empty collections included, so consumers can
// index without guarding.
func (v *Vectorizer) Layers(ctx context.Context, cr *classify.ClassifiedRaster, aoi *geometry.AOI) (model.Layers, error) {
	layers := model.Layers{}
	for _, cls := range model.Classes() {
		layers[cls] = geojson.NewFeatureCollection()
	}

	labels, comps := label(cr)

	kept, dropped := 0, 0
	for id, comp := range comps {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "vectorize: build layers")
		}

		poly := tracePolygon(cr.Grid, labels, id, comp.cells)
		if poly == nil {
			continue
		}

		poly = clipPolygon(poly, aoi.Ring)
		if poly == nil {
			dropped++
			continue
		}

		poly = v.simplifyPolygon(poly)

		area := geo.Area(poly)
		if area < v.minAreaSqM {
			dropped++
			continue
		}

		feature := geojson.NewFeature(poly)
		feature.Properties["class"] = string(comp.class)
		feature.Properties["area_sq_m"] = area
		layers[comp.class].Append(feature)
		kept++
	}

	zap.L().Debug("vectorize: layers built",
		zap.Int("components", len(comps)),
		zap.Int("kept", kept),
		zap.Int("dropped", dropped))

	return layers, nil
}

// simplifyPolygon applies Douglas-Peucker per ring. A ring that
// simplification would degenerate keeps its original shape.
func (v *Vectorizer) simplifyPolygon(poly orb.Polygon) orb.Polygon {
	if v.tolerance <= 0 {
		return poly
	}

	s := simplify.DouglasPeucker(v.tolerance)
	out := make(orb.Polygon, 0, len(poly))
	for _, ring := range poly {
		simplified := s.Ring(ring.Clone())
		if len(simplified) < 4 {
			simplified = ring
		}
		out = append(out, simplified)
	}
	return out
}
