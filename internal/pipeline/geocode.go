package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/addrverify/internal/cache"
	"github.com/sells-group/addrverify/internal/model"
	"github.com/sells-group/addrverify/internal/resilience"
	"github.com/sells-group/addrverify/pkg/google"
)

// GeocodeStage resolves the raw address to a coordinate and precision.
type GeocodeStage struct {
	client    google.Client
	adapter   *resilience.Adapter
	cache     *cache.Cache
	region    string
	latlngTTL int
	idTTL     int
}

// GeocodeOptions configures a GeocodeStage. Zero TTLs disable the
// corresponding cache writes.
type GeocodeOptions struct {
	Region        string
	LatLngTTLDays int
	IDTTLDays     int
}

// NewGeocodeStage builds the geocode stage. c may be nil to run uncached.
func NewGeocodeStage(client google.Client, adapter *resilience.Adapter, c *cache.Cache, opts GeocodeOptions) *GeocodeStage {
	return &GeocodeStage{
		client:    client,
		adapter:   adapter,
		cache:     c,
		region:    opts.Region,
		latlngTTL: opts.LatLngTTLDays,
		idTTL:     opts.IDTTLDays,
	}
}

// Name implements Stage.
func (s *GeocodeStage) Name() string { return StageGeocode }

// Done implements Stage.
func (s *GeocodeStage) Done(b *model.SignalBundle) bool { return b.Geocode != nil }

// Ready implements Stage. Geocoding only needs the record itself.
func (s *GeocodeStage) Ready(*model.SignalBundle) bool { return true }

// Skip implements Stage.
func (s *GeocodeStage) Skip(*model.SignalBundle) {}

// Run implements Stage. On success the coordinate and place ID are cached;
// when the call fails, cached values are salvaged without changing the
// reported status.
func (s *GeocodeStage) Run(ctx context.Context, rec model.Record, b *model.SignalBundle) error {
	res := resilience.Call(ctx, s.adapter, "geocode", rec.ID, func(ctx context.Context) (*google.GeocodeResult, error) {
		return s.client.Geocode(ctx, google.GeocodeRequest{Address: rec.RawAddress, Region: s.region})
	})

	sig := &model.GeocodeSignal{
		Status:     res.Code,
		Outcome:    res.Outcome,
		ErrorCodes: res.ErrorCodes,
	}

	switch {
	case res.Outcome == model.OutcomeOK && res.Value != nil:
		loc := res.Value.Location
		sig.Location = &loc
		sig.Precision = model.ParsePrecision(res.Value.LocationType)
		sig.PlaceID = res.Value.PlaceID
		s.store(ctx, rec.ID, sig)
	case res.Outcome.Failed():
		sig.Status = string(res.Outcome)
		s.salvage(ctx, rec.ID, sig)
	}

	b.Geocode = sig
	return nil
}

func (s *GeocodeStage) store(ctx context.Context, key string, sig *model.GeocodeSignal) {
	if s.cache == nil {
		return
	}
	// Writes finish even when the run is cancelled mid-record.
	ctx = context.WithoutCancel(ctx)
	if s.latlngTTL > 0 {
		if err := s.cache.Put(ctx, resilience.ProviderGeocoding, cache.FieldCoordinates, key,
			cache.Value{Coordinate: sig.Location}, s.latlngTTL); err != nil {
			zap.L().Warn("geocode: cache coordinates", zap.String("record_id", key), zap.Error(err))
		}
	}
	if s.idTTL > 0 && sig.PlaceID != "" {
		if err := s.cache.Put(ctx, resilience.ProviderGeocoding, cache.FieldPlaceID, key,
			cache.Value{ID: sig.PlaceID}, s.idTTL); err != nil {
			zap.L().Warn("geocode: cache place id", zap.String("record_id", key), zap.Error(err))
		}
	}
}

func (s *GeocodeStage) salvage(ctx context.Context, key string, sig *model.GeocodeSignal) {
	if s.cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	v, ok, err := s.cache.Get(ctx, resilience.ProviderGeocoding, cache.FieldCoordinates, key)
	if err != nil {
		zap.L().Warn("geocode: cache lookup", zap.String("record_id", key), zap.Error(err))
		return
	}
	if ok && v.Coordinate != nil {
		loc := *v.Coordinate
		sig.Location = &loc
		sig.FromCache = true
	}

	if v, ok, err := s.cache.Get(ctx, resilience.ProviderGeocoding, cache.FieldPlaceID, key); err == nil && ok {
		sig.PlaceID = v.ID
	}
}
