package imagery

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/terralens/landcover-cli/internal/geometry"
	"github.com/terralens/landcover-cli/internal/model"
)

// Window is the closed acquisition interval considered for compositing.
// Bounds are truncated to UTC day resolution so the same request hashes to
// the same cache key for the rest of the day.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// FetchPolicy holds the externally configured acquisition parameters.
type FetchPolicy struct {
	LookbackDays     int
	MaxCloudFraction float64
	ScaleM           float64
	MaxCells         int
}

// CompositeCache stores assembled composites under their fingerprint key.
// Implementations decide freshness; Get must never return a stale entry.
type CompositeCache interface {
	Get(ctx context.Context, key string) (*RasterComposite, bool)
	Put(ctx context.Context, key string, comp *RasterComposite)
}

// Fetcher reduces the scenes matching an AOI and window to one composite
// raster using a per-pixel, per-band median.
type Fetcher struct {
	source      SceneSource
	policy      FetchPolicy
	cache       CompositeCache
	now         func() time.Time
	chipWorkers int
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithCache attaches a composite cache.
func WithCache(c CompositeCache) FetcherOption {
	return func(f *Fetcher) {
		f.cache = c
	}
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		f.now = now
	}
}

// WithChipWorkers bounds the number of concurrent chip fetches.
func WithChipWorkers(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.chipWorkers = n
		}
	}
}

// NewFetcher creates a Fetcher over a scene source.
func NewFetcher(source SceneSource, policy FetchPolicy, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		source:      source,
		policy:      policy,
		now:         time.Now,
		chipWorkers: 4,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Window returns the acquisition window the policy selects right now.
func (f *Fetcher) Window() Window {
	to := f.now().UTC().Truncate(24 * time.Hour)
	return Window{From: to.AddDate(0, 0, -f.policy.LookbackDays), To: to}
}

// Fetch assembles the composite for the AOI. Zero qualifying scenes surface
// as a data-unavailable error; context expiry anywhere in the external
// exchange surfaces as a timeout, never as data-unavailable.
func (f *Fetcher) Fetch(ctx context.Context, aoi *geometry.AOI) (*RasterComposite, error) {
	grid, err := NewGridSpec(aoi.Bound(), f.policy.ScaleM, f.policy.MaxCells)
	if err != nil {
		return nil, err
	}
	win := f.Window()

	var key string
	if f.cache != nil {
		key, err = Fingerprint(aoi, win, f.policy.MaxCloudFraction, f.policy.ScaleM)
		if err != nil {
			zap.L().Warn("imagery: fingerprint failed, bypassing cache", zap.Error(err))
			key = ""
		} else if comp, ok := f.cache.Get(ctx, key); ok {
			zap.L().Debug("imagery: composite cache hit", zap.String("key", key))
			return comp, nil
		}
	}

	scenes, err := f.source.SearchScenes(ctx, SceneQuery{
		Bound:            grid.Bound,
		From:             win.From,
		To:               win.To,
		MaxCloudFraction: f.policy.MaxCloudFraction,
	})
	if err != nil {
		return nil, f.external(ctx, err, "search scenes")
	}

	usable := make([]Scene, 0, len(scenes))
	for _, s := range scenes {
		if err := s.Validate(); err != nil {
			zap.L().Warn("imagery: rejecting non-conforming scene", zap.Error(err))
			continue
		}
		if s.CloudFraction > f.policy.MaxCloudFraction {
			continue
		}
		usable = append(usable, s)
	}
	if len(usable) == 0 {
		return nil, model.Unavailablef(
			"no scenes for window %s to %s under cloud fraction %.2f",
			win.From.Format(time.DateOnly), win.To.Format(time.DateOnly), f.policy.MaxCloudFraction,
		)
	}

	// Scene order feeds the median; sort by ID so the composite is
	// deterministic for a given scene set.
	sort.Slice(usable, func(i, j int) bool { return usable[i].ID < usable[j].ID })

	zap.L().Info("imagery: compositing scenes",
		zap.Int("scenes", len(usable)),
		zap.Int("rows", grid.Rows),
		zap.Int("cols", grid.Cols),
	)

	bands := Bands()
	chips := make([]*Chip, len(usable)*len(bands))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.chipWorkers)
	for si, scene := range usable {
		for bi, band := range bands {
			slot := si*len(bands) + bi
			sceneID, b := scene.ID, band
			g.Go(func() error {
				chip, err := f.source.FetchChip(gCtx, sceneID, b, grid)
				if err != nil {
					return eris.Wrapf(err, "imagery: fetch chip %s %s", sceneID, b)
				}
				if len(chip.Values) != grid.Cells() || len(chip.Valid) != grid.Cells() {
					return model.Internalf("chip %s %s has %d values for %d cells", sceneID, b, len(chip.Values), grid.Cells())
				}
				chips[slot] = chip
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, f.external(ctx, err, "fetch chips")
	}

	comp := reduceMedian(grid, usable, bands, chips)

	if f.cache != nil && key != "" {
		f.cache.Put(ctx, key, comp)
	}
	return comp, nil
}

// reduceMedian collapses per-scene chips to one value per band and cell. A
// cell is valid only when every band received at least one valid sample.
func reduceMedian(grid GridSpec, scenes []Scene, bands []Band, chips []*Chip) *RasterComposite {
	comp := NewRasterComposite(grid)
	cells := grid.Cells()

	samples := make([]float64, 0, len(scenes))
	counts := make([]int, cells)

	for bi, band := range bands {
		out := comp.Samples[band]
		for cell := 0; cell < cells; cell++ {
			samples = samples[:0]
			for si := range scenes {
				chip := chips[si*len(bands)+bi]
				if chip.Valid[cell] {
					samples = append(samples, chip.Values[cell])
				}
			}
			if len(samples) == 0 {
				continue
			}
			out[cell] = median(samples)
			counts[cell]++
		}
	}

	for cell := 0; cell < cells; cell++ {
		comp.Valid[cell] = counts[cell] == len(bands)
	}
	return comp
}

// median returns the middle value, averaging the two central values for an
// even count. The input slice is sorted in place.
func median(v []float64) float64 {
	sort.Float64s(v)
	mid := len(v) / 2
	if len(v)%2 == 1 {
		return v[mid]
	}
	return (v[mid-1] + v[mid]) / 2
}

// external maps a scene-source failure to its stable kind: context expiry
// means timeout, anything else is internal. Only an empty scene set maps to
// data-unavailable, and that is decided in Fetch, not here.
func (f *Fetcher) external(ctx context.Context, err error, action string) error {
	wrapped := eris.Wrap(err, "imagery: "+action)
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.NewError(model.KindTimeout, wrapped)
	}
	return model.NewError(model.KindInternal, wrapped)
}
