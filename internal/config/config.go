package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Imagery   ImageryConfig   `yaml:"imagery" mapstructure:"imagery"`
	Classify  ClassifyConfig  `yaml:"classify" mapstructure:"classify"`
	Vectorize VectorizeConfig `yaml:"vectorize" mapstructure:"vectorize"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. The pool sizes apply to
// the postgres driver only.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ImageryConfig configures scene search and composite assembly.
type ImageryConfig struct {
	Provider         string        `yaml:"provider" mapstructure:"provider"`
	BaseURL          string        `yaml:"base_url" mapstructure:"base_url"`
	Key              string        `yaml:"key" mapstructure:"key"`
	Collection       string        `yaml:"collection" mapstructure:"collection"`
	LookbackDays     int           `yaml:"lookback_days" mapstructure:"lookback_days"`
	MaxCloudFraction float64       `yaml:"max_cloud_fraction" mapstructure:"max_cloud_fraction"`
	ScaleM           float64       `yaml:"scale_m" mapstructure:"scale_m"`
	MaxCells         int           `yaml:"max_cells" mapstructure:"max_cells"`
	ChipWorkers      int           `yaml:"chip_workers" mapstructure:"chip_workers"`
	RateLimitPerSec  float64       `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	Retry            RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Archive          ArchiveConfig `yaml:"archive" mapstructure:"archive"`
}

// RetryConfig bounds transient-failure retries for provider requests.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ArchiveConfig configures the FTP scene archive fallback provider.
type ArchiveConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	Root        string `yaml:"root" mapstructure:"root"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ClassifyConfig configures spectral classification.
type ClassifyConfig struct {
	ProfilePath string `yaml:"profile_path" mapstructure:"profile_path"`
	Profile     string `yaml:"profile" mapstructure:"profile"`
	Workers     int    `yaml:"workers" mapstructure:"workers"`
}

// VectorizeConfig configures region extraction from the classified raster.
type VectorizeConfig struct {
	MinAreaSqM        float64 `yaml:"min_area_sq_m" mapstructure:"min_area_sq_m"`
	SimplifyTolerance float64 `yaml:"simplify_tolerance_deg" mapstructure:"simplify_tolerance_deg"`
}

// CacheConfig configures composite caching.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled" mapstructure:"enabled"`
	MaxEntries int  `yaml:"max_entries" mapstructure:"max_entries"`
	TTLHours   int  `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// TTL returns the cache freshness window as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// PipelineConfig configures orchestration behavior.
type PipelineConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the per-run deadline as a duration. Zero means no bound.
func (c PipelineConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the configuration required for the given mode is
// present. Mode is the command family: "analyze", "batch", or "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Imagery.Provider {
	case "copernicus":
		if c.Imagery.Key == "" {
			problems = append(problems, "imagery.key is required for the copernicus provider")
		}
	case "archive":
		if c.Imagery.Archive.URL == "" {
			problems = append(problems, "imagery.archive.url is required for the archive provider")
		}
	default:
		problems = append(problems, "imagery.provider must be copernicus or archive")
	}

	if c.Imagery.LookbackDays <= 0 {
		problems = append(problems, "imagery.lookback_days must be positive")
	}
	if c.Imagery.MaxCloudFraction < 0 || c.Imagery.MaxCloudFraction > 1 {
		problems = append(problems, "imagery.max_cloud_fraction must be in [0, 1]")
	}
	if c.Imagery.ScaleM <= 0 {
		problems = append(problems, "imagery.scale_m must be positive")
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		problems = append(problems, "server.port must be in (0, 65535]")
	}
	if mode == "batch" && c.Batch.MaxConcurrent <= 0 {
		problems = append(problems, "batch.max_concurrent must be positive")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("landcover")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LANDCOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "landcover.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent", 4)
	v.SetDefault("imagery.provider", "copernicus")
	v.SetDefault("imagery.base_url", "https://sh.dataspace.copernicus.eu")
	v.SetDefault("imagery.collection", "sentinel-2-l2a")
	v.SetDefault("imagery.lookback_days", 365)
	v.SetDefault("imagery.max_cloud_fraction", 0.4)
	v.SetDefault("imagery.scale_m", 10)
	v.SetDefault("imagery.max_cells", 4_000_000)
	v.SetDefault("imagery.chip_workers", 4)
	v.SetDefault("imagery.rate_limit_per_sec", 5)
	v.SetDefault("imagery.retry.max_attempts", 3)
	v.SetDefault("imagery.retry.initial_backoff_ms", 500)
	v.SetDefault("imagery.retry.max_backoff_ms", 30_000)
	v.SetDefault("imagery.archive.timeout_secs", 30)
	v.SetDefault("classify.workers", 0)
	v.SetDefault("vectorize.min_area_sq_m", 100)
	v.SetDefault("vectorize.simplify_tolerance_deg", 0.00001)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_entries", 128)
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("pipeline.timeout_secs", 300)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
