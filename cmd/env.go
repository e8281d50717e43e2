package main

import (
	"context"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/terralens/landcover-cli/internal/cache"
	"github.com/terralens/landcover-cli/internal/classify"
	"github.com/terralens/landcover-cli/internal/imagery"
	"github.com/terralens/landcover-cli/internal/pipeline"
	"github.com/terralens/landcover-cli/internal/profile"
	"github.com/terralens/landcover-cli/internal/resilience"
	"github.com/terralens/landcover-cli/internal/store"
	"github.com/terralens/landcover-cli/internal/vectorize"
	"github.com/terralens/landcover-cli/pkg/copernicus"
	"github.com/terralens/landcover-cli/pkg/scenearchive"
)

// analysisEnv holds the initialized store, cache, and pipeline needed by
// the analyze/batch/serve commands.
type analysisEnv struct {
	Store    store.Store
	Cache    *cache.Memory
	Pipeline *pipeline.Pipeline
	Profiles *profile.Config
}

// Close releases resources held by the environment.
func (ae *analysisEnv) Close() {
	if ae.Store != nil {
		_ = ae.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "landcover.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// retryPolicy converts the configured retry bounds.
func retryPolicy() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    cfg.Imagery.Retry.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Imagery.Retry.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Imagery.Retry.MaxBackoffMS) * time.Millisecond,
	}
}

// initSource builds the configured scene source.
func initSource() (imagery.SceneSource, error) {
	switch cfg.Imagery.Provider {
	case "copernicus":
		client := copernicus.NewClient(cfg.Imagery.Key,
			copernicus.WithBaseURL(cfg.Imagery.BaseURL),
			copernicus.WithCollection(cfg.Imagery.Collection),
			copernicus.WithRateLimit(cfg.Imagery.RateLimitPerSec),
			copernicus.WithRetry(retryPolicy()),
		)
		return imagery.NewCopernicusSource(client), nil
	case "archive":
		u, err := url.Parse(cfg.Imagery.Archive.URL)
		if err != nil {
			return nil, eris.Wrapf(err, "parse archive url %s", cfg.Imagery.Archive.URL)
		}
		opts := scenearchive.Options{
			Host:    u.Host,
			Root:    cfg.Imagery.Archive.Root,
			Timeout: time.Duration(cfg.Imagery.Archive.TimeoutSecs) * time.Second,
			Retry:   retryPolicy(),
		}
		if opts.Root == "" {
			opts.Root = u.Path
		}
		if u.User != nil {
			opts.User = u.User.Username()
			opts.Password, _ = u.User.Password()
		}
		return imagery.NewArchiveSource(scenearchive.NewClient(opts)), nil
	default:
		return nil, eris.Errorf("unsupported imagery provider: %s", cfg.Imagery.Provider)
	}
}

// initProfiles loads the threshold profile set, falling back to the stock
// defaults when no profile file is configured.
func initProfiles() (*profile.Config, error) {
	if cfg.Classify.ProfilePath == "" {
		return profile.NewConfig(), nil
	}
	return profile.Load(cfg.Classify.ProfilePath)
}

// initAnalysis validates config for the given mode and builds the full
// analysis environment. Callers should defer env.Close().
func initAnalysis(ctx context.Context, mode string) (*analysisEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	source, err := initSource()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	profiles, err := initProfiles()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	thresholds, err := profiles.Get(cfg.Classify.Profile)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	fetchOpts := []imagery.FetcherOption{
		imagery.WithChipWorkers(cfg.Imagery.ChipWorkers),
	}
	var memCache *cache.Memory
	if cfg.Cache.Enabled {
		memCache = cache.NewMemory(cfg.Cache.MaxEntries, cfg.Cache.TTL())
		fetchOpts = append(fetchOpts,
			imagery.WithCache(cache.NewTiered(memCache, cache.NewStored(st, cfg.Cache.TTL()))))
		zap.L().Debug("composite cache enabled",
			zap.Int("max_entries", cfg.Cache.MaxEntries),
			zap.Duration("ttl", cfg.Cache.TTL()),
		)
	}

	fetcher := imagery.NewFetcher(source, imagery.FetchPolicy{
		LookbackDays:     cfg.Imagery.LookbackDays,
		MaxCloudFraction: cfg.Imagery.MaxCloudFraction,
		ScaleM:           cfg.Imagery.ScaleM,
		MaxCells:         cfg.Imagery.MaxCells,
	}, fetchOpts...)

	classifier := classify.New(thresholds, classify.WithWorkers(cfg.Classify.Workers))
	vectorizer := vectorize.New(cfg.Vectorize.MinAreaSqM, cfg.Vectorize.SimplifyTolerance)

	p := pipeline.New(st, fetcher, classifier, vectorizer, cfg.Pipeline.Timeout())

	return &analysisEnv{
		Store:    st,
		Cache:    memCache,
		Pipeline: p,
		Profiles: profiles,
	}, nil
}
