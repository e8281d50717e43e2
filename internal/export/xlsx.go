package export

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/terralens/landcover-cli/internal/model"
)

// WriteXLSX writes a two-sheet workbook: Summary holds the request echo and
// the per-class area accounting, Regions lists every vectorized polygon.
func WriteXLSX(path string, result *model.AnalysisResult) error {
	file := xlsx.NewFile()

	if err := writeSummarySheet(file, result.Summary); err != nil {
		return err
	}
	if err := writeRegionsSheet(file, result); err != nil {
		return err
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "export: save workbook %s", path)
	}
	zap.L().Debug("export: wrote workbook", zap.String("path", path))
	return nil
}

// BatchRow is one line of the aggregate batch report: the request plus
// either its summary or the failure that stopped it.
type BatchRow struct {
	Request model.AOIRequest
	Summary *model.AnalysisSummary
	Error   string
}

// WriteBatchXLSX writes a single-sheet workbook with one row per batch
// request, failed rows included.
func WriteBatchXLSX(path string, rows []BatchRow) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Batch")
	if err != nil {
		return eris.Wrap(err, "export: add batch sheet")
	}

	header := sheet.AddRow()
	for _, label := range []string{"Name", "Latitude", "Longitude", "Requested area (sq m)", "AOI area (sq m)"} {
		header.AddCell().SetString(label)
	}
	for _, class := range model.Classes() {
		header.AddCell().SetString(string(class) + " (sq m)")
	}
	for _, class := range model.Classes() {
		header.AddCell().SetString(string(class) + " (%)")
	}
	header.AddCell().SetString("Error")

	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Request.Name)
		row.AddCell().SetFloat(r.Request.Latitude)
		row.AddCell().SetFloat(r.Request.Longitude)
		row.AddCell().SetFloat(r.Request.AreaSqM)

		if r.Summary == nil {
			for range 9 {
				row.AddCell()
			}
			row.AddCell().SetString(r.Error)
			continue
		}

		row.AddCell().SetFloat(r.Summary.TotalAreaSqM)
		for _, class := range model.Classes() {
			row.AddCell().SetFloat(r.Summary.ClassArea(class))
		}
		for _, class := range model.Classes() {
			row.AddCell().SetFloat(r.Summary.ClassPct(class))
		}
		row.AddCell()
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "export: save batch workbook %s", path)
	}
	zap.L().Debug("export: wrote batch workbook",
		zap.String("path", path),
		zap.Int("rows", len(rows)),
	)
	return nil
}

func writeSummarySheet(file *xlsx.File, summary model.AnalysisSummary) error {
	sheet, err := file.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	addPair := func(label string, set func(*xlsx.Cell)) {
		row := sheet.AddRow()
		row.AddCell().SetString(label)
		set(row.AddCell())
	}

	addPair("Name", func(c *xlsx.Cell) { c.SetString(summary.Name) })
	addPair("Latitude", func(c *xlsx.Cell) { c.SetFloat(summary.Latitude) })
	addPair("Longitude", func(c *xlsx.Cell) { c.SetFloat(summary.Longitude) })
	addPair("Requested area (sq m)", func(c *xlsx.Cell) { c.SetFloat(summary.InputAreaSqM) })
	addPair("Radius (m)", func(c *xlsx.Cell) { c.SetFloat(summary.CalculatedRadiusM) })
	addPair("AOI area (sq m)", func(c *xlsx.Cell) { c.SetFloat(summary.TotalAreaSqM) })

	sheet.AddRow()

	header := sheet.AddRow()
	header.AddCell().SetString("Class")
	header.AddCell().SetString("Area (sq m)")
	header.AddCell().SetString("Share (%)")

	for _, class := range model.Classes() {
		row := sheet.AddRow()
		row.AddCell().SetString(string(class))
		row.AddCell().SetFloat(summary.ClassArea(class))
		row.AddCell().SetFloat(summary.ClassPct(class))
	}
	return nil
}

func writeRegionsSheet(file *xlsx.File, result *model.AnalysisResult) error {
	sheet, err := file.AddSheet("Regions")
	if err != nil {
		return eris.Wrap(err, "export: add regions sheet")
	}

	header := sheet.AddRow()
	header.AddCell().SetString("Class")
	header.AddCell().SetString("Area (sq m)")
	header.AddCell().SetString("Rings")
	header.AddCell().SetString("Vertices")

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
			vertices := 0
			for _, ring := range poly {
				vertices += len(ring)
			}
			area, _ := feature.Properties["area_sq_m"].(float64)

			row := sheet.AddRow()
			row.AddCell().SetString(string(class))
			row.AddCell().SetFloat(area)
			row.AddCell().SetInt(len(poly))
			row.AddCell().SetInt(vertices)
		}
	}
	return nil
}
