package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/terralens/landcover-cli/internal/export"
	"github.com/terralens/landcover-cli/internal/model"
)

var (
	batchCSV         string
	batchLimit       int
	batchConcurrency int
	batchOutput      string
	batchXLSX        string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Analyze a CSV of areas of interest",
	Long: `Reads areas of interest from a CSV with a header row naming the
name, latitude, longitude, and area_sq_m columns, then analyzes them
concurrently. Individual failures are logged and do not abort the batch.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reqs, err := parseAOICSV(batchCSV)
		if err != nil {
			return eris.Wrap(err, "batch: parse csv")
		}
		zap.L().Info("parsed csv", zap.Int("aois", len(reqs)))

		if batchLimit > 0 && len(reqs) > batchLimit {
			reqs = reqs[:batchLimit]
		}

		env, err := initAnalysis(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrent
		}

		outcomes := processBatch(ctx, reqs, concurrency, env.Pipeline.Run)

		if batchOutput != "" {
			if err := writeBatchOutput(batchOutput, outcomes); err != nil {
				return err
			}
			zap.L().Info("batch results written", zap.String("path", batchOutput))
		}
		if batchXLSX != "" {
			if err := export.WriteBatchXLSX(batchXLSX, batchRows(outcomes)); err != nil {
				return err
			}
			zap.L().Info("batch workbook written", zap.String("path", batchXLSX))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchCSV, "csv", "", "CSV file of areas of interest (required)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of rows to process (0 = all)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "concurrent analyses (default from config)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "write a JSON report of all outcomes to this path")
	batchCmd.Flags().StringVar(&batchXLSX, "xlsx", "", "write an aggregate XLSX report to this path")
	_ = batchCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(batchCmd)
}

// analyzeFunc is the callback signature for running one analysis.
type analyzeFunc func(ctx context.Context, req model.AOIRequest) (*model.AnalysisResult, error)

// batchOutcome records one row's result or failure.
type batchOutcome struct {
	Request model.AOIRequest      `json:"request"`
	Result  *model.AnalysisResult `json:"result,omitempty"`
	Error   string                `json:"error,omitempty"`
	Kind    model.Kind            `json:"kind,omitempty"`
}

// processBatch runs the requests concurrently, preserving input order in
// the outcomes. Individual failures never abort the batch.
func processBatch(ctx context.Context, reqs []model.AOIRequest, concurrency int, analyze analyzeFunc) []batchOutcome {
	if len(reqs) == 0 {
		zap.L().Info("no areas of interest to process")
		return nil
	}

	zap.L().Info("processing batch",
		zap.Int("aois", len(reqs)),
		zap.Int("concurrency", concurrency),
	)

	outcomes := make([]batchOutcome, len(reqs))
	var succeeded, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			log := zap.L().With(zap.String("aoi", req.Name))

			result, err := analyze(gctx, req)
			if err != nil {
				failed.Add(1)
				log.Error("analysis failed", zap.Error(err))
				outcomes[i] = batchOutcome{Request: req, Error: err.Error(), Kind: model.KindOf(err)}
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("analysis complete",
				zap.Float64("total_sq_m", result.Summary.TotalAreaSqM),
				zap.Float64("water_pct", result.Summary.WaterPct),
			)
			outcomes[i] = batchOutcome{Request: req, Result: result}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return outcomes
}

// batchRows converts outcomes into aggregate workbook rows.
func batchRows(outcomes []batchOutcome) []export.BatchRow {
	rows := make([]export.BatchRow, len(outcomes))
	for i, o := range outcomes {
		rows[i] = export.BatchRow{Request: o.Request, Error: o.Error}
		if o.Result != nil {
			rows[i].Summary = &o.Result.Summary
		}
	}
	return rows
}

// writeBatchOutput writes the outcome list as indented JSON.
func writeBatchOutput(path string, outcomes []batchOutcome) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "batch: create output %s", path)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcomes); err != nil {
		return eris.Wrap(err, "batch: encode output")
	}
	return nil
}

// csvColumns maps accepted header names to request fields.
var csvColumns = map[string]string{
	"name":      "name",
	"aoi":       "name",
	"latitude":  "lat",
	"lat":       "lat",
	"longitude": "lon",
	"lon":       "lon",
	"lng":       "lon",
	"area_sq_m": "area",
	"area":      "area",
}

// parseAOICSV reads requests from a CSV file. The header row names the
// columns; unknown columns are ignored.
func parseAOICSV(path string) ([]model.AOIRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}

	cols := map[string]int{}
	for i, h := range header {
		if field, ok := csvColumns[strings.ToLower(strings.TrimSpace(h))]; ok {
			cols[field] = i
		}
	}
	for _, field := range []string{"name", "lat", "lon", "area"} {
		if _, ok := cols[field]; !ok {
			return nil, eris.Errorf("missing required column %s", field)
		}
	}

	var reqs []model.AOIRequest
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, eris.Wrapf(err, "line %d", line)
		}

		req := model.AOIRequest{Name: strings.TrimSpace(record[cols["name"]])}
		if req.Latitude, err = strconv.ParseFloat(strings.TrimSpace(record[cols["lat"]]), 64); err != nil {
			return nil, eris.Wrapf(err, "line %d: latitude", line)
		}
		if req.Longitude, err = strconv.ParseFloat(strings.TrimSpace(record[cols["lon"]]), 64); err != nil {
			return nil, eris.Wrapf(err, "line %d: longitude", line)
		}
		if req.AreaSqM, err = strconv.ParseFloat(strings.TrimSpace(record[cols["area"]]), 64); err != nil {
			return nil, eris.Wrapf(err, "line %d: area", line)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
