package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/addrverify/internal/cache"
	"github.com/sells-group/addrverify/internal/model"
	"github.com/sells-group/addrverify/internal/resilience"
	"github.com/sells-group/addrverify/pkg/google"
)

// daysPerYear is the mean Gregorian year used for imagery age.
const daysPerYear = 365.2425

// ImageryStage fetches street-level imagery metadata for the geocoded
// coordinate. Imagery itself is never requested.
type ImageryStage struct {
	client     google.Client
	adapter    *resilience.Adapter
	cache      *cache.Cache
	staleYears float64
	anchor     time.Time
	idTTL      int
}

// ImageryOptions configures an ImageryStage. Anchor is the date imagery
// age is measured from; the zero value means today in UTC.
type ImageryOptions struct {
	StaleYears float64
	Anchor     time.Time
	IDTTLDays  int
}

// NewImageryStage builds the imagery-metadata stage.
func NewImageryStage(client google.Client, adapter *resilience.Adapter, c *cache.Cache, opts ImageryOptions) *ImageryStage {
	anchor := opts.Anchor
	if anchor.IsZero() {
		anchor = time.Now().UTC()
	}
	return &ImageryStage{
		client:     client,
		adapter:    adapter,
		cache:      c,
		staleYears: opts.StaleYears,
		anchor:     truncateDay(anchor),
		idTTL:      opts.IDTTLDays,
	}
}

// Name implements Stage.
func (s *ImageryStage) Name() string { return StageImagery }

// Done implements Stage.
func (s *ImageryStage) Done(b *model.SignalBundle) bool { return b.Imagery != nil }

// Ready implements Stage. Metadata lookups need a coordinate.
func (s *ImageryStage) Ready(b *model.SignalBundle) bool { return b.HasCoordinate() }

// Skip implements Stage. Nothing is written without a coordinate.
func (s *ImageryStage) Skip(*model.SignalBundle) {}

// Run implements Stage.
func (s *ImageryStage) Run(ctx context.Context, rec model.Record, b *model.SignalBundle) error {
	loc, ok := b.Coordinate()
	if !ok {
		return nil
	}

	res := resilience.Call(ctx, s.adapter, "streetview_metadata", rec.ID, func(ctx context.Context) (*google.StreetViewMetadata, error) {
		return s.client.StreetViewMetadata(ctx, loc)
	})

	sig := &model.ImagerySignal{
		Status:     res.Code,
		Outcome:    res.Outcome,
		ErrorCodes: res.ErrorCodes,
	}
	if res.Outcome.Failed() {
		sig.Status = string(res.Outcome)
	}
	if res.Outcome == model.OutcomeOK && res.Value != nil {
		sig.CaptureDate = res.Value.Date
		s.storePano(ctx, loc, res.Value.PanoID)
	}
	sig.Stale = IsStale(sig.Status, sig.CaptureDate, s.staleYears, s.anchor)

	b.Imagery = sig
	return nil
}

func (s *ImageryStage) storePano(ctx context.Context, loc model.Coordinate, pano string) {
	if s.cache == nil || s.idTTL <= 0 || pano == "" {
		return
	}
	key := fmt.Sprintf("%.6f,%.6f", loc.Lat, loc.Lng)
	if err := s.cache.Put(context.WithoutCancel(ctx), resilience.ProviderImagery, cache.FieldPanoID, key,
		cache.Value{ID: pano}, s.idTTL); err != nil {
		zap.L().Warn("imagery: cache pano id", zap.String("key", key), zap.Error(err))
	}
}

// ParseCaptureDate parses "YYYY-MM" as the first of the month and "YYYY"
// as December 31 of that year. Anything else reports false.
func ParseCaptureDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	switch len(s) {
	case 7:
		t, err := time.Parse("2006-01", s)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	case 4:
		t, err := time.Parse("2006", s)
		if err != nil {
			return time.Time{}, false
		}
		return time.Date(t.Year(), time.December, 31, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// IsStale reports imagery staleness. Only OK imagery can be stale; OK
// imagery with a missing or unparseable capture date counts as stale.
func IsStale(status, captureDate string, staleYears float64, anchor time.Time) bool {
	if status != model.StatusOK {
		return false
	}
	d, ok := ParseCaptureDate(captureDate)
	if !ok {
		return true
	}
	days := truncateDay(anchor).Sub(d).Hours() / 24
	return days/daysPerYear >= staleYears
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
