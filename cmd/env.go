package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/addrverify/internal/cache"
	"github.com/sells-group/addrverify/internal/config"
	"github.com/sells-group/addrverify/internal/cost"
	"github.com/sells-group/addrverify/internal/decision"
	"github.com/sells-group/addrverify/internal/fetcher"
	"github.com/sells-group/addrverify/internal/footprint"
	"github.com/sells-group/addrverify/internal/pipeline"
	"github.com/sells-group/addrverify/internal/resilience"
	"github.com/sells-group/addrverify/pkg/google"
)

// pipelineEnv holds the shared dependencies for run and serve.
type pipelineEnv struct {
	Cache        *cache.Cache
	CallLog      *resilience.CallLog
	Orchestrator *pipeline.Orchestrator
	Engine       *decision.Engine
	Adapters     []*resilience.Adapter
	Footprints   int
}

// Usage prices the requests made so far through each adapter.
func (e *pipelineEnv) Usage(rates config.PricingConfig) cost.Usage {
	requests := make(map[string]int64, len(e.Adapters))
	for _, a := range e.Adapters {
		requests[a.Provider()] += a.Attempts()
	}
	return cost.NewCalculator(cost.Rates{
		Geocoding:  rates.Geocoding,
		Imagery:    rates.Imagery,
		Validation: rates.Validation,
	}).Estimate(requests)
}

// Close releases the cache store and the call log.
func (e *pipelineEnv) Close() {
	if e.Cache != nil {
		if err := e.Cache.Close(); err != nil {
			zap.L().Warn("close cache", zap.Error(err))
		}
	}
	if err := e.CallLog.Close(); err != nil {
		zap.L().Warn("close call log", zap.Error(err))
	}
}

// initCache opens and migrates the configured signal cache store.
func initCache(ctx context.Context, c *config.Config) (*cache.Cache, error) {
	switch c.Store.Driver {
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "signal_cache.db"
		}
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, eris.Wrap(err, "create cache directory")
			}
		}
		b, err := cache.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := b.Migrate(ctx); err != nil {
			b.Close() //nolint:errcheck
			return nil, err
		}
		return cache.New(b), nil
	case "postgres":
		b, err := cache.NewPostgres(ctx, c.Store.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		if err := b.Migrate(ctx); err != nil {
			b.Close() //nolint:errcheck
			return nil, err
		}
		return cache.New(b), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// initCallLog opens the provider call log for runID. An empty path
// disables it.
func initCallLog(path, runID string) (*resilience.CallLog, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrap(err, "create call log directory")
	}
	return resilience.OpenCallLog(path, runID)
}

// newGoogleClient builds the provider client from config.
func newGoogleClient(c *config.Config) google.Client {
	opts := []google.Option{google.WithValidationKey(c.ValidationKey())}
	if c.Google.MapsBaseURL != "" {
		opts = append(opts, google.WithMapsBaseURL(c.Google.MapsBaseURL))
	}
	if c.Google.ValidationBaseURL != "" {
		opts = append(opts, google.WithValidationBaseURL(c.Google.ValidationBaseURL))
	}
	return google.NewClient(c.Google.APIKey, opts...)
}

// buildStages wires the four signal stages into an orchestrator and
// returns the provider adapters it created.
func buildStages(c *config.Config, client google.Client, sc *cache.Cache, ix pipeline.Locator, callLog *resilience.CallLog) (*pipeline.Orchestrator, []*resilience.Adapter, error) {
	anchor, err := c.AnchorDate()
	if err != nil {
		return nil, nil, err
	}

	retry := resilience.FromRetryConfig(
		c.Retry.MaxAttempts,
		c.Retry.InitialBackoffMs,
		c.Retry.MaxBackoffMs,
		c.Retry.Multiplier,
		c.Retry.JitterFraction,
	)
	timeout := time.Duration(c.Google.TimeoutSecs) * time.Second
	var adapters []*resilience.Adapter
	adapter := func(provider string, qps float64, timeout time.Duration) *resilience.Adapter {
		a := resilience.NewAdapter(provider,
			resilience.WithRetry(retry),
			resilience.WithTimeout(timeout),
			resilience.WithRateLimit(qps),
			resilience.WithCallLog(callLog),
		)
		adapters = append(adapters, a)
		return a
	}

	country := c.Pipeline.DefaultCountry
	geocode := pipeline.NewGeocodeStage(client, adapter(resilience.ProviderGeocoding, c.Google.GeocodeQPS, timeout), sc,
		pipeline.GeocodeOptions{
			Region:        strings.ToLower(country),
			LatLngTTLDays: c.Cache.LatLngTTLDays,
			IDTTLDays:     c.Cache.IDTTLDays,
		})
	imagery := pipeline.NewImageryStage(client, adapter(resilience.ProviderImagery, c.Google.ImageryQPS, timeout), sc,
		pipeline.ImageryOptions{
			StaleYears: c.Pipeline.StaleYears,
			Anchor:     anchor,
			IDTTLDays:  c.Cache.IDTTLDays,
		})
	fp := pipeline.NewFootprintStage(ix, resilience.NewAdapter(resilience.ProviderFootprint,
		resilience.WithRetry(resilience.RetryConfig{MaxAttempts: 1}),
		resilience.WithCallLog(callLog),
	), c.Pipeline.FootprintRadiusM)
	validation := pipeline.NewValidationStage(client,
		adapter(resilience.ProviderValidation, c.Google.ValidationQPS, time.Duration(c.Google.ValidationTimeoutSecs)*time.Second),
		country)

	return pipeline.Standard(c.Pipeline.Workers, geocode, imagery, fp, validation), adapters, nil
}

// buildEngine returns the decision engine, pinned to the configured
// timestamp anchor when one is set.
func buildEngine(c *config.Config) (*decision.Engine, error) {
	ts, ok, err := c.AnchorTimestamp()
	if err != nil {
		return nil, err
	}
	if ok {
		return decision.New(decision.WithAnchor(ts)), nil
	}
	return decision.New(), nil
}

// initPipeline validates config for mode and wires the full pipeline.
func initPipeline(ctx context.Context, mode, runID string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	fpPath := cfg.Pipeline.FootprintsPath
	if fetcher.IsRemote(fpPath) {
		var err error
		fpPath, _, err = fetcher.New(fetcher.Options{}).Sync(ctx, fpPath, cfg.Pipeline.FootprintsCacheDir)
		if err != nil {
			return nil, eris.Wrap(err, "fetch footprints")
		}
	}
	ix, err := footprint.Load(fpPath)
	if err != nil {
		return nil, eris.Wrap(err, "load footprints")
	}

	sc, err := initCache(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "init cache")
	}

	callLog, err := initCallLog(cfg.Run.CallLogPath, runID)
	if err != nil {
		sc.Close() //nolint:errcheck
		return nil, err
	}

	env := &pipelineEnv{Cache: sc, CallLog: callLog, Footprints: ix.Len()}

	orch, adapters, err := buildStages(cfg, newGoogleClient(cfg), sc, ix, callLog)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Orchestrator = orch
	env.Adapters = adapters

	engine, err := buildEngine(cfg)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Engine = engine

	zap.L().Info("pipeline ready",
		zap.String("run_id", runID),
		zap.String("store", cfg.Store.Driver),
		zap.Int("footprints", env.Footprints),
		zap.Int("workers", cfg.Pipeline.Workers),
	)
	return env, nil
}
