// Package aggregate reduces polygon layers to geodesic area totals and
// builds the analysis summary.
package aggregate

import (
	"math"

	"github.com/paulmach/orb/geo"

	"github.com/terralens/landcover-cli/internal/geometry"
	"github.com/terralens/landcover-cli/internal/model"
)

// round4 keeps reported coordinates and percentages stable across
// platforms without dragging sub-millimeter noise into responses.
func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}

// Summarize totals the layer areas against the authoritative AOI area.
// The AOI polygon area is the denominator for every percentage, so the
// raster resolution never shows up in the numbers.
func Summarize(req model.AOIRequest, aoi *geometry.AOI, layers model.Layers) *model.AnalysisSummary {
	total := aoi.AreaSqM()

	areas := make(map[model.LandCoverClass]float64, len(model.Classes()))
	sum := 0.0
	for _, cls := range model.Classes() {
		fc := layers[cls]
		if fc == nil {
			continue
		}
		a := 0.0
		for _, f := range fc.Features {
			a += geo.Area(f.Geometry)
		}
		areas[cls] = a
		sum += a
	}

	// Clipping keeps every polygon inside the AOI, so the classified
	// sum can only exceed the total by floating point noise. Scale it
	// back so the coverage bound holds exactly.
	if sum > total && sum > 0 {
		scale := total / sum
		for cls := range areas {
			areas[cls] *= scale
		}
	}

	pct := func(cls model.LandCoverClass) float64 {
		if total <= 0 {
			return 0
		}
		return round4(areas[cls] / total * 100)
	}

	return &model.AnalysisSummary{
		Name:                  req.Name,
		Latitude:              round4(req.Latitude),
		Longitude:             round4(req.Longitude),
		InputAreaSqM:          round4(req.AreaSqM),
		CalculatedRadiusM:     round4(aoi.RadiusM),
		TotalAreaSqM:          total,
		WaterAreaSqM:          areas[model.ClassWater],
		AgricultureAreaSqM:    areas[model.ClassAgriculture],
		ForestAreaSqM:         areas[model.ClassForest],
		InfrastructureAreaSqM: areas[model.ClassInfrastructure],
		WaterPct:              pct(model.ClassWater),
		AgriculturePct:        pct(model.ClassAgriculture),
		ForestPct:             pct(model.ClassForest),
		InfrastructurePct:     pct(model.ClassInfrastructure),
	}
}
