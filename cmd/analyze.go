package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/terralens/landcover-cli/internal/export"
	"github.com/terralens/landcover-cli/internal/model"
)

var (
	analyzeTimeout   time.Duration
	analyzeGeoJSON   string
	analyzeShapefile string
	analyzeXLSX      string
	analyzeJSON      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze land cover for a single area of interest",
	Long: `Runs the full pipeline for one circular area of interest: composite
fetch, spectral classification, vectorization, and geodesic area
aggregation. The area of interest comes from the coordinate flags or
from a JSON file passed via --input. The summary is printed as a table
by default; --json emits the full result document, layers included.
Optional flags export the layers as GeoJSON files, an ESRI shapefile,
or an XLSX workbook.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req, err := analyzeRequest(cmd)
		if err != nil {
			return err
		}

		if analyzeTimeout > 0 {
			cfg.Pipeline.TimeoutSecs = int(analyzeTimeout.Seconds())
		}

		env, err := initAnalysis(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, req)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		zap.L().Info("analysis complete",
			zap.String("aoi", req.Name),
			zap.String("run_id", result.RunID),
			zap.Float64("total_area_sq_m", result.Summary.TotalAreaSqM),
		)

		if err := writeExports(result); err != nil {
			return err
		}

		if analyzeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		formatSummary(os.Stdout, result.Summary)
		return nil
	},
}

// analyzeRequest builds the request from --input or from the coordinate
// flags. The two sources are exclusive; --input wins when both appear.
func analyzeRequest(cmd *cobra.Command) (model.AOIRequest, error) {
	input, _ := cmd.Flags().GetString("input")
	if input != "" {
		data, err := os.ReadFile(input)
		if err != nil {
			return model.AOIRequest{}, eris.Wrapf(err, "read input %s", input)
		}
		var req model.AOIRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return model.AOIRequest{}, eris.Wrapf(err, "parse input %s", input)
		}
		return req, nil
	}

	for _, name := range []string{"name", "lat", "lon", "area"} {
		if !cmd.Flags().Changed(name) {
			return model.AOIRequest{}, eris.Errorf("--%s is required unless --input is given", name)
		}
	}

	name, _ := cmd.Flags().GetString("name")
	lat, _ := cmd.Flags().GetFloat64("lat")
	lon, _ := cmd.Flags().GetFloat64("lon")
	area, _ := cmd.Flags().GetFloat64("area")
	return model.AOIRequest{
		Name:      name,
		Latitude:  lat,
		Longitude: lon,
		AreaSqM:   area,
	}, nil
}

// writeExports writes whichever export formats were requested by flags.
func writeExports(result *model.AnalysisResult) error {
	if analyzeGeoJSON != "" {
		paths, err := export.WriteGeoJSON(analyzeGeoJSON, result)
		if err != nil {
			return err
		}
		zap.L().Info("geojson layers written",
			zap.Int("files", len(paths)),
			zap.String("dir", analyzeGeoJSON),
		)
	}
	if analyzeShapefile != "" {
		if err := export.WriteShapefile(analyzeShapefile, result); err != nil {
			return err
		}
		zap.L().Info("shapefile written", zap.String("path", analyzeShapefile))
	}
	if analyzeXLSX != "" {
		if err := export.WriteXLSX(analyzeXLSX, result); err != nil {
			return err
		}
		zap.L().Info("workbook written", zap.String("path", analyzeXLSX))
	}
	return nil
}

// formatSummary writes the area accounting for one run as a table.
func formatSummary(out io.Writer, s model.AnalysisSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "AOI:\t%s\n", s.Name)
	_, _ = fmt.Fprintf(w, "Center:\t%.5f, %.5f\n", s.Latitude, s.Longitude)
	_, _ = fmt.Fprintf(w, "Radius:\t%.1f m\n", s.CalculatedRadiusM)
	_, _ = fmt.Fprintf(w, "Total area:\t%s\n", formatArea(s.TotalAreaSqM))
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "CLASS\tAREA\tSHARE")
	_, _ = fmt.Fprintln(w, "-----\t----\t-----")
	for _, class := range model.Classes() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f%%\n",
			class, formatArea(s.ClassArea(class)), s.ClassPct(class))
	}
	_ = w.Flush()
}

// formatArea renders square meters, switching to square kilometers at
// one square kilometer.
func formatArea(sqm float64) string {
	if sqm >= 1e6 {
		return fmt.Sprintf("%.2f sq km", sqm/1e6)
	}
	return fmt.Sprintf("%.0f sq m", sqm)
}

func init() {
	analyzeCmd.Flags().String("input", "", "path to a JSON file holding the request")
	analyzeCmd.Flags().String("name", "", "area of interest name")
	analyzeCmd.Flags().Float64("lat", 0, "center latitude in decimal degrees")
	analyzeCmd.Flags().Float64("lon", 0, "center longitude in decimal degrees")
	analyzeCmd.Flags().Float64("area", 0, "area of interest in square meters")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 0, "per-run deadline (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeGeoJSON, "geojson", "", "directory to write per-class GeoJSON layers into")
	analyzeCmd.Flags().StringVar(&analyzeShapefile, "shapefile", "", "path to write an ESRI shapefile of all regions")
	analyzeCmd.Flags().StringVar(&analyzeXLSX, "xlsx", "", "path to write the XLSX summary workbook")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full result as JSON instead of a table")
	rootCmd.AddCommand(analyzeCmd)
}
