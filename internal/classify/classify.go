// Package classify assigns a land cover class to every valid composite
// cell using normalized difference indices over Sentinel-2 bands.
package classify

import (
	"context"
	"runtime"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/terralens/landcover-cli/internal/imagery"
	"github.com/terralens/landcover-cli/internal/model"
	"github.com/terralens/landcover-cli/internal/profile"
)

// NDWI is the normalized difference water index, (G-NIR)/(G+NIR).
func NDWI(green, nir float64) float64 {
	return normalizedDifference(green, nir)
}

// NDVI is the normalized difference vegetation index, (NIR-R)/(NIR+R).
func NDVI(nir, red float64) float64 {
	return normalizedDifference(nir, red)
}

// NDBI is the normalized difference built-up index, (SWIR-NIR)/(SWIR+NIR).
func NDBI(swir, nir float64) float64 {
	return normalizedDifference(swir, nir)
}

// normalizedDifference returns 0 for a zero denominator, which keeps
// dark cells (both reflectances zero) out of every class.
func normalizedDifference(a, b float64) float64 {
	den := a + b
	if den == 0 {
		return 0
	}
	return (a - b) / den
}

// Pixel carries the indices a rule can test.
type Pixel struct {
	NDWI float64
	NDVI float64
	NDBI float64
}

// Rule pairs a class with its spectral predicate.
type Rule struct {
	Class model.LandCoverClass
	Match func(px Pixel) bool
}

// Rules returns the classification chain for a threshold set. Rules
// are evaluated in order and the first match wins, so a cell can never
// land in two classes. Water outranks everything because flooded
// vegetation still reads as water; built-up outranks vegetation
// because bare roofs push NDVI up in mixed cells.
func Rules(t profile.Thresholds) []Rule {
	return []Rule{
		{Class: model.ClassWater, Match: func(px Pixel) bool { return px.NDWI > t.Water }},
		{Class: model.ClassInfrastructure, Match: func(px Pixel) bool { return px.NDBI > t.BuiltUp }},
		{Class: model.ClassForest, Match: func(px Pixel) bool { return px.NDVI > t.Forest }},
		{Class: model.ClassAgriculture, Match: func(px Pixel) bool { return px.NDVI > t.Agriculture }},
	}
}

// ClassifiedRaster holds one class per grid cell. Cells without valid
// composite data stay ClassUnclassified.
type ClassifiedRaster struct {
	Grid    imagery.GridSpec
	Classes []model.LandCoverClass
}

// At returns the class at a cell.
func (c *ClassifiedRaster) At(row, col int) model.LandCoverClass {
	return c.Classes[c.Grid.Index(row, col)]
}

// Counts tallies cells per class, unclassified included.
func (c *ClassifiedRaster) Counts() map[model.LandCoverClass]int {
	counts := make(map[model.LandCoverClass]int)
	for _, cls := range c.Classes {
		counts[cls]++
	}
	return counts
}

// Classifier applies a rule chain across a composite, row-parallel.
type Classifier struct {
	rules   []Rule
	workers int
}

// Option configures the classifier.
type Option func(*Classifier)

// WithWorkers caps row parallelism. Zero means one worker per CPU.
func WithWorkers(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.workers = n
		}
	}
}

// New builds a classifier for one threshold set.
func New(t profile.Thresholds, opts ...Option) *Classifier {
	c := &Classifier{
		rules:   Rules(t),
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify labels every cell of the composite. The only failure mode
// is context cancellation.
func (c *Classifier) Classify(ctx context.Context, comp *imagery.RasterComposite) (*ClassifiedRaster, error) {
	grid := comp.Grid
	out := &ClassifiedRaster{
		Grid:    grid,
		Classes: make([]model.LandCoverClass, grid.Cells()),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for row := 0; row < grid.Rows; row++ {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			for col := 0; col < grid.Cols; col++ {
				i := grid.Index(row, col)
				if !comp.Valid[i] {
					out.Classes[i] = model.ClassUnclassified
					continue
				}
				out.Classes[i] = c.classifyCell(comp, i)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "classify: label composite")
	}
	return out, nil
}

func (c *Classifier) classifyCell(comp *imagery.RasterComposite, i int) model.LandCoverClass {
	green := comp.Samples[imagery.BandGreen][i]
	red := comp.Samples[imagery.BandRed][i]
	nir := comp.Samples[imagery.BandNIR][i]
	swir := comp.Samples[imagery.BandSWIR][i]

	px := Pixel{
		NDWI: NDWI(green, nir),
		NDVI: NDVI(nir, red),
		NDBI: NDBI(swir, nir),
	}
	for _, rule := range c.rules {
		if rule.Match(px) {
			return rule.Class
		}
	}
	return model.ClassUnclassified
}
