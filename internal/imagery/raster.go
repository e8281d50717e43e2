// Package imagery acquires a representative multi-band raster composite for
// an AOI from an external scene source.
package imagery

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/terralens/landcover-cli/internal/model"
)

// Band identifies a spectral band by its Sentinel-2 name.
type Band string

const (
	BandBlue  Band = "B02"
	BandGreen Band = "B03"
	BandRed   Band = "B04"
	BandNIR   Band = "B08"
	BandSWIR  Band = "B11"
)

// Bands lists the bands every composite carries, in stable order.
func Bands() []Band {
	return []Band{BandBlue, BandGreen, BandRed, BandNIR, BandSWIR}
}

// GridSpec is the regular raster grid shared by the composite and every
// downstream stage. Cells are addressed row-major with row 0 at the northern
// edge. Coordinates are EPSG:4326; cell sizes are fixed in degrees, derived
// from the metric scale at the AOI center.
type GridSpec struct {
	Bound   orb.Bound `json:"bound"`
	Rows    int       `json:"rows"`
	Cols    int       `json:"cols"`
	LonStep float64   `json:"lon_step"`
	LatStep float64   `json:"lat_step"`
}

// NewGridSpec sizes a grid over the bound at roughly scaleM meters per cell.
// When the bound would exceed maxCells cells, the cell size grows uniformly
// until the grid fits, so very large AOIs degrade in resolution instead of
// exhausting memory.
func NewGridSpec(bound orb.Bound, scaleM float64, maxCells int) (GridSpec, error) {
	if scaleM <= 0 {
		return GridSpec{}, model.Validationf("grid scale %v must be positive", scaleM)
	}
	if maxCells <= 0 {
		maxCells = 1 << 22
	}

	center := bound.Center()
	widthM := geo.Distance(orb.Point{bound.Min.Lon(), center.Lat()}, orb.Point{bound.Max.Lon(), center.Lat()})
	heightM := geo.Distance(orb.Point{center.Lon(), bound.Min.Lat()}, orb.Point{center.Lon(), bound.Max.Lat()})

	cols := int(math.Ceil(widthM / scaleM))
	rows := int(math.Ceil(heightM / scaleM))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	if rows*cols > maxCells {
		shrink := math.Sqrt(float64(rows*cols) / float64(maxCells))
		cols = int(float64(cols) / shrink)
		rows = int(float64(rows) / shrink)
		if cols < 1 {
			cols = 1
		}
		if rows < 1 {
			rows = 1
		}
	}

	return GridSpec{
		Bound:   bound,
		Rows:    rows,
		Cols:    cols,
		LonStep: (bound.Max.Lon() - bound.Min.Lon()) / float64(cols),
		LatStep: (bound.Max.Lat() - bound.Min.Lat()) / float64(rows),
	}, nil
}

// Cells returns the total cell count.
func (g GridSpec) Cells() int {
	return g.Rows * g.Cols
}

// Index returns the row-major slice index for a cell.
func (g GridSpec) Index(row, col int) int {
	return row*g.Cols + col
}

// CellCenter returns the center point of a cell.
func (g GridSpec) CellCenter(row, col int) orb.Point {
	return orb.Point{
		g.Bound.Min.Lon() + (float64(col)+0.5)*g.LonStep,
		g.Bound.Max.Lat() - (float64(row)+0.5)*g.LatStep,
	}
}

// Vertex returns the grid node at the given row/col corner. Valid rows are
// 0..Rows and cols 0..Cols inclusive; node (0, 0) is the northwest corner.
func (g GridSpec) Vertex(row, col int) orb.Point {
	return orb.Point{
		g.Bound.Min.Lon() + float64(col)*g.LonStep,
		g.Bound.Max.Lat() - float64(row)*g.LatStep,
	}
}

// RasterComposite is a per-band raster over one grid, reduced from one or
// more scenes. A cell with Valid false contributed no usable sample in any
// scene and is excluded from classification.
type RasterComposite struct {
	Grid    GridSpec           `json:"grid"`
	Samples map[Band][]float64 `json:"samples"`
	Valid   []bool             `json:"valid"`
}

// NewRasterComposite allocates an empty composite over the grid.
func NewRasterComposite(grid GridSpec) *RasterComposite {
	samples := make(map[Band][]float64, len(Bands()))
	for _, b := range Bands() {
		samples[b] = make([]float64, grid.Cells())
	}
	return &RasterComposite{
		Grid:    grid,
		Samples: samples,
		Valid:   make([]bool, grid.Cells()),
	}
}

// At returns the reflectance for a band at a cell.
func (r *RasterComposite) At(band Band, row, col int) float64 {
	return r.Samples[band][r.Grid.Index(row, col)]
}

// IsValid reports whether the cell carries usable data.
func (r *RasterComposite) IsValid(row, col int) bool {
	return r.Valid[r.Grid.Index(row, col)]
}
