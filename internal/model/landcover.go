package model

import (
	"github.com/paulmach/orb/geojson"
)

// LandCoverClass identifies one land-cover category. Classification assigns
// at most one class per raster cell.
type LandCoverClass string

const (
	ClassWater          LandCoverClass = "water"
	ClassAgriculture    LandCoverClass = "agriculture"
	ClassForest         LandCoverClass = "forest"
	ClassInfrastructure LandCoverClass = "infrastructure"
	ClassUnclassified   LandCoverClass = "unclassified"
)

// Classes lists the four vectorized classes in their stable output order.
// Unclassified cells produce no layer.
func Classes() []LandCoverClass {
	return []LandCoverClass{ClassWater, ClassAgriculture, ClassForest, ClassInfrastructure}
}

// Layers maps each vectorized class to its feature collection. All four
// classes are always present; a class without regions holds an empty
// collection so consumers never branch on missing keys.
type Layers map[LandCoverClass]*geojson.FeatureCollection

// AnalysisSummary is the flat area accounting for one request.
// TotalAreaSqM is the geodesic area of the AOI polygon itself, so the class
// areas sum to at most the total (unclassified and invalid cells reduce
// coverage, they are never padded back in).
type AnalysisSummary struct {
	Name              string  `json:"name"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	InputAreaSqM      float64 `json:"input_area_sq_m"`
	CalculatedRadiusM float64 `json:"calculated_radius_m"`
	TotalAreaSqM      float64 `json:"total_area_sq_m"`

	WaterAreaSqM          float64 `json:"water_area_sq_m"`
	AgricultureAreaSqM    float64 `json:"agriculture_area_sq_m"`
	ForestAreaSqM         float64 `json:"forest_area_sq_m"`
	InfrastructureAreaSqM float64 `json:"infrastructure_area_sq_m"`

	WaterPct          float64 `json:"water_pct"`
	AgriculturePct    float64 `json:"agriculture_pct"`
	ForestPct         float64 `json:"forest_pct"`
	InfrastructurePct float64 `json:"infrastructure_pct"`
}

// ClassArea returns the summary's area for a class.
func (s AnalysisSummary) ClassArea(class LandCoverClass) float64 {
	switch class {
	case ClassWater:
		return s.WaterAreaSqM
	case ClassAgriculture:
		return s.AgricultureAreaSqM
	case ClassForest:
		return s.ForestAreaSqM
	case ClassInfrastructure:
		return s.InfrastructureAreaSqM
	default:
		return 0
	}
}

// ClassPct returns the summary's percentage for a class.
func (s AnalysisSummary) ClassPct(class LandCoverClass) float64 {
	switch class {
	case ClassWater:
		return s.WaterPct
	case ClassAgriculture:
		return s.AgriculturePct
	case ClassForest:
		return s.ForestPct
	case ClassInfrastructure:
		return s.InfrastructurePct
	default:
		return 0
	}
}

// ClassifiedAreaSqM returns the sum of the four class areas.
func (s AnalysisSummary) ClassifiedAreaSqM() float64 {
	return s.WaterAreaSqM + s.AgricultureAreaSqM + s.ForestAreaSqM + s.InfrastructureAreaSqM
}

// AnalysisResult is the unit returned to callers: the summary plus one
// feature collection per class. Immutable once assembled. RunID is empty
// when the pipeline ran without a store.
type AnalysisResult struct {
	RunID   string          `json:"run_id,omitempty"`
	Summary AnalysisSummary `json:"summary"`
	Layers  Layers          `json:"layers"`
}
