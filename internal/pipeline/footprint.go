package pipeline

import (
	"context"

	"github.com/sells-group/addrverify/internal/model"
	"github.com/sells-group/addrverify/internal/resilience"
)

// Locator finds the nearest structure centroid within a radius.
// *footprint.Index implements it.
type Locator interface {
	Nearest(c model.Coordinate, radiusM float64) (float64, bool)
}

// FootprintStage checks for a known structure near the coordinate.
type FootprintStage struct {
	index   Locator
	adapter *resilience.Adapter
	radiusM float64
}

// NewFootprintStage builds the footprint stage over a loaded index.
func NewFootprintStage(index Locator, adapter *resilience.Adapter, radiusM float64) *FootprintStage {
	return &FootprintStage{index: index, adapter: adapter, radiusM: radiusM}
}

// Name implements Stage.
func (s *FootprintStage) Name() string { return StageFootprint }

// Done implements Stage.
func (s *FootprintStage) Done(b *model.SignalBundle) bool { return b.Footprint != nil }

// Ready implements Stage.
func (s *FootprintStage) Ready(b *model.SignalBundle) bool { return b.HasCoordinate() }

// Skip implements Stage. Nothing is written without a coordinate.
func (s *FootprintStage) Skip(*model.SignalBundle) {}

type nearest struct {
	dist  float64
	found bool
}

// Run implements Stage. The lookup is local but goes through the adapter
// so it is logged and cancelled like every other provider call.
func (s *FootprintStage) Run(ctx context.Context, rec model.Record, b *model.SignalBundle) error {
	loc, ok := b.Coordinate()
	if !ok {
		return nil
	}

	res := resilience.Call(ctx, s.adapter, "nearest", rec.ID, func(context.Context) (nearest, error) {
		d, found := s.index.Nearest(loc, s.radiusM)
		return nearest{dist: d, found: found}, nil
	})

	sig := &model.FootprintSignal{
		RadiusM:    s.radiusM,
		Outcome:    res.Outcome,
		ErrorCodes: res.ErrorCodes,
	}
	if res.Outcome == model.OutcomeOK && res.Value.found {
		d := res.Value.dist
		sig.DistanceM = &d
		sig.Present = true
	}

	b.Footprint = sig
	return nil
}
