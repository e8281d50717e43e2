package export

import (
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/terralens/landcover-cli/internal/model"
)

// WriteShapefile writes every classified region into a single polygon
// shapefile with CLASS and AREA_SQM attributes. Shapefile winding is the
// reverse of GeoJSON, so each ring is flipped on the way out: outer rings
// end up clockwise and holes counter-clockwise.
func WriteShapefile(path string, result *model.AnalysisResult) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}
	defer w.Close()

	w.SetFields([]shp.Field{
		shp.StringField("CLASS", 32),
		shp.FloatField("AREA_SQM", 32, 6),
	})

	var written int
	for _, class := range model.Classes() {
		fc := result.Layers[class]
		if fc == nil {
			return eris.Errorf("export: missing layer %s", class)
		}
		for _, feature := range fc.Features {
			poly, ok := feature.Geometry.(orb.Polygon)
			if !ok {
				return eris.Errorf("export: %s feature carries %T, want polygon", class, feature.Geometry)
			}

			row := int(w.Write(shapefilePolygon(poly)))
			if err := w.WriteAttribute(row, 0, string(class)); err != nil {
				return eris.Wrap(err, "export: write CLASS attribute")
			}
			area, _ := feature.Properties["area_sq_m"].(float64)
			if err := w.WriteAttribute(row, 1, area); err != nil {
				return eris.Wrap(err, "export: write AREA_SQM attribute")
			}
			written++
		}
	}

	zap.L().Debug("export: wrote shapefile",
		zap.Int("shapes", written),
		zap.String("path", path),
	)
	return nil
}

// shapefilePolygon converts an orb polygon into shapefile parts, reversing
// every ring to match shapefile winding.
func shapefilePolygon(poly orb.Polygon) *shp.Polygon {
	parts := make([][]shp.Point, 0, len(poly))
	for _, ring := range poly {
		pts := make([]shp.Point, len(ring))
		for i, pt := range ring {
			pts[len(ring)-1-i] = shp.Point{X: pt[0], Y: pt[1]}
		}
		parts = append(parts, pts)
	}
	p := shp.Polygon(*shp.NewPolyLine(parts))
	return &p
}
