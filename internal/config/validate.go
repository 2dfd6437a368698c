package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validation modes name the command being validated for.
const (
	ModeRun         = "run"
	ModeServe       = "serve"
	ModeCache       = "cache"
	ModeConsolidate = "consolidate"
)

// maxCoordinateTTLDays is the retention ceiling for cached coordinates.
const maxCoordinateTTLDays = 30

// Validate checks that the fields a mode needs are present and in range.
// All problems are reported together.
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	needsProviders := false
	needsStore := false
	switch mode {
	case ModeRun, ModeServe:
		needsProviders, needsStore = true, true
	case ModeCache:
		needsStore = true
	case ModeConsolidate:
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if needsStore {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			add("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
		}
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required")
		}
		if c.Cache.LatLngTTLDays < 1 || c.Cache.LatLngTTLDays > maxCoordinateTTLDays {
			add("cache.latlng_ttl_days must be between 1 and %d, got %d", maxCoordinateTTLDays, c.Cache.LatLngTTLDays)
		}
		if c.Cache.IDTTLDays < 1 {
			add("cache.id_ttl_days must be >= 1, got %d", c.Cache.IDTTLDays)
		}
	}

	if needsProviders {
		if c.Google.APIKey == "" {
			add("google.api_key is required")
		}
		if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 3 {
			add("retry.max_attempts must be between 1 and 3, got %d", c.Retry.MaxAttempts)
		}
		if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction > 1 {
			add("retry.jitter_fraction must be between 0 and 1, got %g", c.Retry.JitterFraction)
		}
		if c.Google.TimeoutSecs < 1 || c.Google.ValidationTimeoutSecs < 1 {
			add("google timeouts must be >= 1 second")
		}
		if c.Google.GeocodeQPS < 0 || c.Google.ImageryQPS < 0 || c.Google.ValidationQPS < 0 {
			add("google qps limits must not be negative")
		}
		if c.Pipeline.Workers < 1 {
			add("pipeline.workers must be >= 1, got %d", c.Pipeline.Workers)
		}
		if c.Pipeline.StaleYears <= 0 {
			add("pipeline.stale_years must be > 0")
		}
		if c.Pipeline.FootprintRadiusM <= 0 {
			add("pipeline.footprint_radius_m must be > 0")
		}
		if c.Pipeline.FootprintsPath == "" {
			add("pipeline.footprints_path is required")
		}
		if _, err := c.AnchorDate(); err != nil {
			add("run.anchor_date must be YYYY-MM-DD")
		}
		if _, _, err := c.AnchorTimestamp(); err != nil {
			add("run.anchor_timestamp must be RFC 3339")
		}
	}

	if mode == ModeServe && (c.Server.Port < 1 || c.Server.Port > 65535) {
		add("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}
