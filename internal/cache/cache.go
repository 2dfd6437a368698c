// Package cache implements the retention-bounded signal cache. Only
// allow-listed (provider, field) pairs may be stored, coordinate values
// expire within MaxCoordinateTTLDays, and every write is persisted before
// Put returns.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/addrverify/internal/model"
	"github.com/sells-group/addrverify/internal/resilience"
)

// MaxCoordinateTTLDays is the retention ceiling for cached coordinates.
const MaxCoordinateTTLDays = 30

// Field names a cacheable piece of a provider response.
type Field string

const (
	FieldCoordinates Field = "coordinates"
	FieldPlaceID     Field = "place_id"
	FieldPanoID      Field = "pano_id"
)

type pair struct {
	provider string
	field    Field
}

// allowList holds every (provider, field) pair the cache accepts.
var allowList = map[pair]bool{
	{resilience.ProviderGeocoding, FieldCoordinates}: true,
	{resilience.ProviderGeocoding, FieldPlaceID}:     true,
	{resilience.ProviderImagery, FieldPanoID}:        true,
}

// Allowed reports whether provider/field may be cached.
func Allowed(provider string, field Field) bool {
	return allowList[pair{provider, field}]
}

// Value is a cached value: either a coordinate or an opaque provider ID.
type Value struct {
	Coordinate *model.Coordinate `json:"coordinate,omitempty"`
	ID         string            `json:"id,omitempty"`
}

// Entry is one persisted cache row.
type Entry struct {
	Provider  string
	Field     Field
	Key       string
	Value     Value
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ProviderStats counts entries for one provider/field pair.
type ProviderStats struct {
	Provider string `json:"provider"`
	Field    Field  `json:"field"`
	Live     int    `json:"live"`
	Expired  int    `json:"expired"`
}

// Backend persists cache entries.
type Backend interface {
	Migrate(ctx context.Context) error
	// Load returns the entry for the key, or nil when none exists.
	Load(ctx context.Context, provider string, field Field, key string) (*Entry, error)
	// Upsert writes e, replacing any prior value and expiry.
	Upsert(ctx context.Context, e Entry) error
	// Evict deletes the key only if it is still expired at now.
	Evict(ctx context.Context, provider string, field Field, key string, now time.Time) error
	// PurgeExpired deletes every entry expired at now.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
	Stats(ctx context.Context, now time.Time) ([]ProviderStats, error)
	Close() error
}

// ErrPolicyViolation is matched by every PolicyError.
var ErrPolicyViolation = eris.New("cache: policy violation")

// PolicyError reports a write rejected by the retention policy.
type PolicyError struct {
	Provider string
	Field    Field
	Reason   string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("cache: CACHE_POLICY_VIOLATION %s/%s: %s", e.Provider, e.Field, e.Reason)
}

// Is lets errors.Is match ErrPolicyViolation.
func (e *PolicyError) Is(target error) bool {
	return target == ErrPolicyViolation
}

// Cache enforces the retention policy over a Backend.
type Cache struct {
	backend Backend
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New wraps backend with the retention policy.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the live value for the key. Expired entries are evicted and
// reported as absent.
func (c *Cache) Get(ctx context.Context, provider string, field Field, key string) (Value, bool, error) {
	e, err := c.backend.Load(ctx, provider, field, key)
	if err != nil {
		return Value{}, false, eris.Wrapf(err, "cache: get %s/%s", provider, field)
	}
	if e == nil {
		return Value{}, false, nil
	}

	now := c.now().UTC()
	if !now.Before(e.ExpiresAt) {
		if err := c.backend.Evict(ctx, provider, field, key, now); err != nil {
			return Value{}, false, eris.Wrapf(err, "cache: evict %s/%s", provider, field)
		}
		zap.L().Debug("cache: evicted expired entry",
			zap.String("provider", provider),
			zap.String("field", string(field)),
			zap.Time("expired_at", e.ExpiresAt),
		)
		return Value{}, false, nil
	}
	return e.Value, true, nil
}

// Put stores v for ttlDays, fully replacing any prior entry and its expiry.
// Writes outside the allow-list or TTL ceiling return a *PolicyError.
func (c *Cache) Put(ctx context.Context, provider string, field Field, key string, v Value, ttlDays int) error {
	if err := checkPolicy(provider, field, v, ttlDays); err != nil {
		zap.L().Warn("cache: rejected write",
			zap.String("provider", provider),
			zap.String("field", string(field)),
			zap.Int("ttl_days", ttlDays),
			zap.Error(err),
		)
		return err
	}

	now := c.now().UTC()
	e := Entry{
		Provider:  provider,
		Field:     field,
		Key:       key,
		Value:     v,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(ttlDays) * 24 * time.Hour),
	}
	if err := c.backend.Upsert(ctx, e); err != nil {
		return eris.Wrapf(err, "cache: put %s/%s", provider, field)
	}
	return nil
}

// Purge deletes all expired entries and returns how many were removed.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	n, err := c.backend.PurgeExpired(ctx, c.now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "cache: purge")
	}
	return n, nil
}

// Stats reports live and expired counts per provider/field.
func (c *Cache) Stats(ctx context.Context) ([]ProviderStats, error) {
	stats, err := c.backend.Stats(ctx, c.now().UTC())
	if err != nil {
		return nil, eris.Wrap(err, "cache: stats")
	}
	return stats, nil
}

// Close closes the backend.
func (c *Cache) Close() error {
	return c.backend.Close()
}

func checkPolicy(provider string, field Field, v Value, ttlDays int) error {
	violation := func(reason string) error {
		return &PolicyError{Provider: provider, Field: field, Reason: reason}
	}
	if !Allowed(provider, field) {
		return violation("pair not on allow-list")
	}
	if ttlDays <= 0 {
		return violation("ttl must be positive")
	}
	if field == FieldCoordinates {
		if v.Coordinate == nil || v.ID != "" {
			return violation("coordinate entry must hold only a coordinate")
		}
		if ttlDays > MaxCoordinateTTLDays {
			return violation(fmt.Sprintf("ttl %d days exceeds %d", ttlDays, MaxCoordinateTTLDays))
		}
		return nil
	}
	if v.ID == "" || v.Coordinate != nil {
		return violation("identifier entry must hold only an id")
	}
	return nil
}
