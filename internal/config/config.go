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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Run        RunConfig        `yaml:"run" mapstructure:"run"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the signal cache backend. DatabaseURL is a file
// path for sqlite and a connection string for postgres.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GoogleConfig holds mapping-provider credentials and call budgets.
type GoogleConfig struct {
	APIKey                string  `yaml:"api_key" mapstructure:"api_key"`
	ValidationAPIKey      string  `yaml:"validation_api_key" mapstructure:"validation_api_key"`
	MapsBaseURL           string  `yaml:"maps_base_url" mapstructure:"maps_base_url"`
	ValidationBaseURL     string  `yaml:"validation_base_url" mapstructure:"validation_base_url"`
	GeocodeQPS            float64 `yaml:"geocode_qps" mapstructure:"geocode_qps"`
	ImageryQPS            float64 `yaml:"imagery_qps" mapstructure:"imagery_qps"`
	ValidationQPS         float64 `yaml:"validation_qps" mapstructure:"validation_qps"`
	TimeoutSecs           int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ValidationTimeoutSecs int     `yaml:"validation_timeout_secs" mapstructure:"validation_timeout_secs"`
}

// RetryConfig configures provider retries. MaxAttempts may not exceed 3.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// PipelineConfig configures stage behavior.
type PipelineConfig struct {
	Workers          int     `yaml:"workers" mapstructure:"workers"`
	StaleYears       float64 `yaml:"stale_years" mapstructure:"stale_years"`
	FootprintRadiusM float64 `yaml:"footprint_radius_m" mapstructure:"footprint_radius_m"`
	DefaultCountry   string  `yaml:"default_country" mapstructure:"default_country"`
	// FootprintsPath is a file, a directory, or an http(s) URL that is
	// mirrored into FootprintsCacheDir before loading.
	FootprintsPath     string `yaml:"footprints_path" mapstructure:"footprints_path"`
	FootprintsCacheDir string `yaml:"footprints_cache_dir" mapstructure:"footprints_cache_dir"`
}

// CacheConfig sets retention for cached provider values.
type CacheConfig struct {
	LatLngTTLDays int `yaml:"latlng_ttl_days" mapstructure:"latlng_ttl_days"`
	IDTTLDays     int `yaml:"id_ttl_days" mapstructure:"id_ttl_days"`
}

// RunConfig anchors a run for reproducible output.
type RunConfig struct {
	// AnchorDate (YYYY-MM-DD) is the date imagery age is measured from.
	AnchorDate string `yaml:"anchor_date" mapstructure:"anchor_date"`
	// AnchorTimestamp (RFC 3339) stamps every decision.
	AnchorTimestamp string `yaml:"anchor_timestamp" mapstructure:"anchor_timestamp"`
	CallLogPath     string `yaml:"call_log_path" mapstructure:"call_log_path"`
	OutputDir       string `yaml:"output_dir" mapstructure:"output_dir"`
}

// ServerConfig configures the classification API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// PricingConfig holds per-provider pricing (USD per thousand requests).
type PricingConfig struct {
	Geocoding  float64 `yaml:"geocoding" mapstructure:"geocoding"`
	Imagery    float64 `yaml:"imagery" mapstructure:"imagery"`
	Validation float64 `yaml:"validation" mapstructure:"validation"`
}

// MonitoringConfig configures post-run alerting.
type MonitoringConfig struct {
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	UnresolvedRateThreshold float64 `yaml:"unresolved_rate_threshold" mapstructure:"unresolved_rate_threshold"`
	ReviewRateThreshold     float64 `yaml:"review_rate_threshold" mapstructure:"review_rate_threshold"`
	CostThresholdUSD        float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	MinRecords              int     `yaml:"min_records" mapstructure:"min_records"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ADDRVERIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/cache/signal_cache.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("google.api_key", "")
	v.SetDefault("google.validation_api_key", "")
	v.SetDefault("google.maps_base_url", "https://maps.googleapis.com/maps/api")
	v.SetDefault("google.validation_base_url", "https://addressvalidation.googleapis.com/v1")
	v.SetDefault("google.geocode_qps", 25)
	v.SetDefault("google.imagery_qps", 25)
	v.SetDefault("google.validation_qps", 10)
	v.SetDefault("google.timeout_secs", 15)
	v.SetDefault("google.validation_timeout_secs", 20)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 8000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("pipeline.workers", 10)
	v.SetDefault("pipeline.stale_years", 5)
	v.SetDefault("pipeline.footprint_radius_m", 40)
	v.SetDefault("pipeline.default_country", "US")
	v.SetDefault("pipeline.footprints_path", "data/footprints")
	v.SetDefault("pipeline.footprints_cache_dir", "data/footprints_cache")
	v.SetDefault("cache.latlng_ttl_days", 30)
	v.SetDefault("cache.id_ttl_days", 90)
	v.SetDefault("run.anchor_date", "")
	v.SetDefault("run.anchor_timestamp", "")
	v.SetDefault("run.call_log_path", "data/logs/provider_calls.jsonl")
	v.SetDefault("run.output_dir", "data/out")
	v.SetDefault("server.port", 8080)
	v.SetDefault("pricing.geocoding", 5.00)
	v.SetDefault("pricing.imagery", 0.0)
	v.SetDefault("pricing.validation", 17.00)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.unresolved_rate_threshold", 0.10)
	v.SetDefault("monitoring.review_rate_threshold", 0.0)
	v.SetDefault("monitoring.cost_threshold_usd", 0.0)
	v.SetDefault("monitoring.min_records", 20)

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

// AnchorDate returns the staleness anchor, or the zero time when unset.
func (c *Config) AnchorDate() (time.Time, error) {
	if c.Run.AnchorDate == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, c.Run.AnchorDate)
	if err != nil {
		return time.Time{}, eris.Wrap(err, "config: parse run.anchor_date")
	}
	return t, nil
}

// AnchorTimestamp returns the decision timestamp anchor. ok is false when
// unset.
func (c *Config) AnchorTimestamp() (t time.Time, ok bool, err error) {
	if c.Run.AnchorTimestamp == "" {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(time.RFC3339, c.Run.AnchorTimestamp)
	if err != nil {
		return time.Time{}, false, eris.Wrap(err, "config: parse run.anchor_timestamp")
	}
	return t.UTC(), true, nil
}

// ValidationKey returns the postal-validation key, falling back to the
// shared maps key.
func (c *Config) ValidationKey() string {
	if c.Google.ValidationAPIKey != "" {
		return c.Google.ValidationAPIKey
	}
	return c.Google.APIKey
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
