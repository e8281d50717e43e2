// Package pipeline orchestrates the land cover analysis stages: validate,
// fetch imagery, classify, vectorize, aggregate. Stages run strictly in
// order and the first failure aborts the run; callers receive either a
// complete result or an error carrying the failure kind, never both.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/terralens/landcover-cli/internal/aggregate"
	"github.com/terralens/landcover-cli/internal/classify"
	"github.com/terralens/landcover-cli/internal/geometry"
	"github.com/terralens/landcover-cli/internal/imagery"
	"github.com/terralens/landcover-cli/internal/model"
	"github.com/terralens/landcover-cli/internal/store"
	"github.com/terralens/landcover-cli/internal/vectorize"
)

// Stage names as recorded on runs, in execution order.
const (
	StageValidate     = "validate"
	StageFetchImagery = "fetch_imagery"
	StageClassify     = "classify"
	StageVectorize    = "vectorize"
	StageAggregate    = "aggregate"
)

// Pipeline executes analysis runs over fixed stage dependencies.
type Pipeline struct {
	store      store.Store
	fetcher    *imagery.Fetcher
	classifier *classify.Classifier
	vectorizer *vectorize.Vectorizer
	timeout    time.Duration
}

// New creates a Pipeline. A nil store disables run persistence; a zero
// timeout leaves the caller's context bound in place.
func New(
	st store.Store,
	fetcher *imagery.Fetcher,
	classifier *classify.Classifier,
	vectorizer *vectorize.Vectorizer,
	timeout time.Duration,
) *Pipeline {
	return &Pipeline{
		store:      st,
		fetcher:    fetcher,
		classifier: classifier,
		vectorizer: vectorizer,
		timeout:    timeout,
	}
}

// Run executes the full analysis pipeline for a single request.
func (p *Pipeline) Run(ctx context.Context, req model.AOIRequest) (*model.AnalysisResult, error) {
	log := zap.L().With(zap.String("aoi", req.Name))
	log.Info("pipeline: starting analysis")

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	// Store writes must outlive the run deadline, or a timed-out run could
	// never record its own failure.
	persistCtx := context.WithoutCancel(ctx)

	var run *model.Run
	if p.store != nil {
		var err error
		run, err = p.store.CreateRun(persistCtx, req)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		log = log.With(zap.String("run_id", run.ID))
	}

	setStatus := func(status model.RunStatus) {
		if run == nil {
			return
		}
		if statusErr := p.store.UpdateRunStatus(persistCtx, run.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}

	trackStage := func(name string, fn func() error) error {
		var stageID string
		if run != nil {
			stage, stageErr := p.store.CreateStage(persistCtx, run.ID, name)
			if stageErr != nil {
				log.Warn("pipeline: failed to create stage", zap.String("stage", name), zap.Error(stageErr))
			} else {
				stageID = stage.ID
			}
		}

		start := time.Now()
		fnErr := fn()
		duration := time.Since(start).Milliseconds()

		result := model.StageResult{Name: name, Duration: duration}
		if fnErr != nil {
			result.Status = model.StageStatusFailed
			result.Error = fnErr.Error()
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		} else {
			result.Status = model.StageStatusComplete
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
			)
		}

		if run != nil {
			run.Stages = append(run.Stages, result)
		}
		if stageID != "" {
			if completeErr := p.store.CompleteStage(persistCtx, stageID, &result); completeErr != nil {
				log.Warn("pipeline: failed to complete stage", zap.String("stage", name), zap.Error(completeErr))
			}
		}

		if fnErr != nil {
			return &model.PipelineError{Kind: model.KindOf(fnErr), Stage: name, Err: fnErr}
		}
		return nil
	}

	fail := func(err error) (*model.AnalysisResult, error) {
		kind := model.KindInternal
		var pe *model.PipelineError
		if errors.As(err, &pe) {
			kind = pe.Kind
		}
		if run != nil {
			if failErr := p.store.FailRun(persistCtx, run.ID, kind, err.Error()); failErr != nil {
				log.Warn("pipeline: failed to record failure", zap.Error(failErr))
			}
		}
		log.Error("pipeline: analysis failed", zap.String("kind", string(kind)), zap.Error(err))
		return nil, err
	}

	setStatus(model.RunStatusValidating)
	var aoi *geometry.AOI
	if err := trackStage(StageValidate, func() error {
		var stageErr error
		aoi, stageErr = geometry.Build(req)
		return stageErr
	}); err != nil {
		return fail(err)
	}

	setStatus(model.RunStatusFetchingImagery)
	var comp *imagery.RasterComposite
	if err := trackStage(StageFetchImagery, func() error {
		var stageErr error
		comp, stageErr = p.fetcher.Fetch(ctx, aoi)
		return stageErr
	}); err != nil {
		return fail(err)
	}

	setStatus(model.RunStatusClassifying)
	var classified *classify.ClassifiedRaster
	if err := trackStage(StageClassify, func() error {
		var stageErr error
		classified, stageErr = p.classifier.Classify(ctx, comp)
		return stageErr
	}); err != nil {
		return fail(err)
	}

	setStatus(model.RunStatusVectorizing)
	var layers model.Layers
	if err := trackStage(StageVectorize, func() error {
		var stageErr error
		layers, stageErr = p.vectorizer.Layers(ctx, classified, aoi)
		return stageErr
	}); err != nil {
		return fail(err)
	}

	setStatus(model.RunStatusAggregating)
	var summary *model.AnalysisSummary
	if err := trackStage(StageAggregate, func() error {
		summary = aggregate.Summarize(req, aoi, layers)
		return nil
	}); err != nil {
		return fail(err)
	}

	setStatus(model.RunStatusDone)
	log.Info("pipeline: analysis complete",
		zap.Float64("total_sq_m", summary.TotalAreaSqM),
		zap.Float64("water_pct", summary.WaterPct),
		zap.Float64("agriculture_pct", summary.AgriculturePct),
		zap.Float64("forest_pct", summary.ForestPct),
		zap.Float64("infrastructure_pct", summary.InfrastructurePct),
	)

	result := &model.AnalysisResult{
		Summary: *summary,
		Layers:  layers,
	}
	if run != nil {
		result.RunID = run.ID
	}
	return result, nil
}
