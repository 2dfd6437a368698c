package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/addrverify/internal/model"
)

var anchor = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type bundleOpt func(b *model.SignalBundle)

func newBundle(opts ...bundleOpt) *model.SignalBundle {
	b := &model.SignalBundle{RecordID: "rec-1"}
	for _, o := range opts {
		o(b)
	}
	return b
}

func geocoded(p model.Precision) bundleOpt {
	return func(b *model.SignalBundle) {
		b.Geocode = &model.GeocodeSignal{
			Status:    model.StatusOK,
			Location:  &model.Coordinate{Lat: 30.2672, Lng: -97.7431},
			Precision: p,
			Outcome:   model.OutcomeOK,
		}
	}
}

func zeroResults() bundleOpt {
	return func(b *model.SignalBundle) {
		b.Geocode = &model.GeocodeSignal{Status: model.StatusZeroResults, Outcome: model.OutcomeTerminal}
	}
}

func structure(present bool) bundleOpt {
	return func(b *model.SignalBundle) {
		b.Footprint = &model.FootprintSignal{Present: present, RadiusM: 40, Outcome: model.OutcomeOK}
		if present {
			d := 8.5
			b.Footprint.DistanceM = &d
		}
	}
}

func imagery(status, date string, stale bool) bundleOpt {
	return func(b *model.SignalBundle) {
		outcome := model.OutcomeOK
		if status == model.StatusZeroResults {
			outcome = model.OutcomeTerminal
		}
		b.Imagery = &model.ImagerySignal{Status: status, CaptureDate: date, Stale: stale, Outcome: outcome}
	}
}

func validated(v model.Verdict) bundleOpt {
	return func(b *model.SignalBundle) {
		b.Validation = &model.ValidationSignal{Ran: true, Verdict: v, Outcome: model.OutcomeOK}
	}
}

func nonPhysicalInput() bundleOpt {
	return func(b *model.SignalBundle) { b.NonPhysical = true }
}

func decide(b *model.SignalBundle) model.Decision {
	return New(WithAnchor(anchor)).Decide(b)
}

func TestDecide_AutoValid(t *testing.T) {
	d := decide(newBundle(
		geocoded(model.PrecisionRooftop),
		structure(true),
		imagery(model.StatusOK, "2024-03", false),
	))

	assert.Equal(t, model.LabelValidLocation, d.Label)
	assert.Equal(t, RuleAutoValid, d.Rule)
	assert.Equal(t, []model.ReasonCode{model.ReasonRooftop, model.ReasonFootprintMatch, model.ReasonSVOK}, d.Reasons)
	assert.Equal(t, "SV date 2024-03", d.Note)
}

func TestDecide_AutoValidOnImageryAlone(t *testing.T) {
	d := decide(newBundle(
		geocoded(model.PrecisionRooftop),
		structure(false),
		imagery(model.StatusOK, "2024-03", false),
	))

	assert.Equal(t, model.LabelValidLocation, d.Label)
	assert.Equal(t, []model.ReasonCode{model.ReasonRooftop, model.ReasonSVOK}, d.Reasons)
}

func TestDecide_NoGeocodeIsInvalidRegardless(t *testing.T) {
	d := decide(newBundle(
		zeroResults(),
		nonPhysicalInput(),
		validated(model.VerdictValid),
	))

	assert.Equal(t, model.LabelInvalidAddress, d.Label)
	assert.Equal(t, RuleHardInvalid, d.Rule)
	assert.Equal(t, []model.ReasonCode{model.ReasonNoGeocode}, d.Reasons)
}

func TestDecide_PostalInvalid(t *testing.T) {
	d := decide(newBundle(
		geocoded(model.PrecisionApproximate),
		structure(false),
		imagery(model.StatusZeroResults, "", false),
		validated(model.VerdictInvalid),
	))

	assert.Equal(t, model.LabelInvalidAddress, d.Label)
	assert.Equal(t, []model.ReasonCode{model.ReasonPostalInvalid}, d.Reasons)
}

func TestDecide_NonPhysicalBeatsValidLocation(t *testing.T) {
	d := decide(newBundle(
		nonPhysicalInput(),
		geocoded(model.PrecisionRooftop),
		structure(true),
		imagery(model.StatusOK, "2024-03", false),
		validated(model.VerdictValid),
	))

	assert.Equal(t, model.LabelNonPhysical, d.Label)
	assert.Equal(t, []model.ReasonCode{model.ReasonNonPhysical}, d.Reasons)
}

func TestDecide_LikelyEmptyLot(t *testing.T) {
	d := decide(newBundle(
		geocoded(model.PrecisionRangeInterpolated),
		structure(false),
		imagery(model.StatusZeroResults, "", false),
		validated(model.VerdictUnconfirmed),
	))

	assert.Equal(t, model.LabelLikelyEmptyLot, d.Label)
	assert.Equal(t, []model.ReasonCode{
		model.ReasonLowPrecisionGeocode,
		model.ReasonNoFootprint,
		model.ReasonSVZeroResults,
	}, d.Reasons)
}

func TestDecide_LikelyEmptyLotWithCurrentImagery(t *testing.T) {
	d := decide(newBundle(
		geocoded(model.PrecisionGeometricCenter),
		structure(false),
		imagery(model.StatusOK, "2023-08", false),
	))

	assert.Equal(t, model.LabelLikelyEmptyLot, d.Label)
	assert.Equal(t, []model.ReasonCode{
		model.ReasonLowPrecisionGeocode,
		model.ReasonNoFootprint,
		model.ReasonSVOK,
	}, d.Reasons)
}

func TestDecide_ConflictFallsToReview(t *testing.T) {
	d := decide(newBundle(
		geocoded(model.PrecisionRooftop),
		structure(false),
		imagery(model.StatusOK, "2012-06", true),
		validated(model.VerdictUnconfirmed),
	))

	assert.Equal(t, model.LabelNeedsHumanReview, d.Label)
	assert.Equal(t, RuleDefault, d.Rule)
	assert.Equal(t, []model.ReasonCode{model.ReasonRooftop, model.ReasonNoFootprint, model.ReasonSVStale}, d.Reasons)
	assert.Equal(t, "SV date 2012-06", d.Note)
}

func TestDecide_StaleImageryBlocksEmptyLot(t *testing.T) {
	d := decide(newBundle(
		geocoded(model.PrecisionApproximate),
		structure(false),
		imagery(model.StatusOK, "", true),
	))

	assert.Equal(t, model.LabelNeedsHumanReview, d.Label)
	assert.Equal(t, []model.ReasonCode{model.ReasonLowPrecisionGeocode, model.ReasonNoFootprint, model.ReasonSVStale}, d.Reasons)
}

func TestDecide_UnresolvedFailureGoesToReview(t *testing.T) {
	b := newBundle(
		geocoded(model.PrecisionRooftop),
		structure(true),
	)
	b.Imagery = &model.ImagerySignal{
		Status:     string(model.OutcomeAPIFailure),
		Outcome:    model.OutcomeAPIFailure,
		ErrorCodes: []string{"imagery:HTTP_503", "imagery:HTTP_503", "imagery:HTTP_503"},
	}

	d := decide(b)
	assert.Equal(t, model.LabelNeedsHumanReview, d.Label)
	assert.Equal(t, RuleUnresolvedFailure, d.Rule)
	assert.Equal(t, []model.ReasonCode{model.ReasonRooftop, model.ReasonFootprintMatch}, d.Reasons)
	assert.Equal(t, "unresolved: imagery: API_FAILURE", d.Note)
}

func TestDecide_AbortedRecord(t *testing.T) {
	b := newBundle()
	b.AddFailure("geocode", model.StatusAborted)

	d := decide(b)
	assert.Equal(t, model.LabelNeedsHumanReview, d.Label)
	assert.Equal(t, RuleUnresolvedFailure, d.Rule)
	assert.Empty(t, d.Reasons)
	assert.NotNil(t, d.Reasons)
	assert.Contains(t, d.Note, "geocode: ABORTED")
}

func TestDecide_SalvagedCoordinatesNoted(t *testing.T) {
	b := newBundle()
	b.Geocode = &model.GeocodeSignal{
		Status:    string(model.OutcomeAPIFailure),
		Location:  &model.Coordinate{Lat: 1, Lng: 2},
		FromCache: true,
		Outcome:   model.OutcomeAPIFailure,
	}

	d := decide(b)
	assert.Equal(t, model.LabelNeedsHumanReview, d.Label)
	assert.Equal(t, "coordinates from cache; unresolved: geocode: API_FAILURE", d.Note)
}

func TestDecide_Deterministic(t *testing.T) {
	b := newBundle(
		geocoded(model.PrecisionRooftop),
		structure(true),
		imagery(model.StatusOK, "2024-03", false),
	)
	e := New(WithAnchor(anchor))

	first := e.Decide(b)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, e.Decide(b))
	}
	assert.Equal(t, anchor, first.DecidedAt)
	assert.Equal(t, model.SourceEngine, first.Source)
	assert.NotEmpty(t, first.ID)
}

func TestDecide_ExactlyOneClosedLabel(t *testing.T) {
	precisions := []model.Precision{model.PrecisionNone, model.PrecisionApproximate, model.PrecisionRooftop}
	imageryOpts := []bundleOpt{
		func(*model.SignalBundle) {},
		imagery(model.StatusOK, "2024-01", false),
		imagery(model.StatusOK, "", true),
		imagery(model.StatusZeroResults, "", false),
	}
	verdicts := []model.Verdict{model.VerdictNotRun, model.VerdictValid, model.VerdictInvalid, model.VerdictUnconfirmed}

	e := New(WithAnchor(anchor))
	for _, p := range precisions {
		for _, img := range imageryOpts {
			for _, v := range verdicts {
				for _, present := range []bool{true, false} {
					for _, np := range []bool{true, false} {
						b := newBundle(structure(present), img)
						if p == model.PrecisionNone {
							zeroResults()(b)
						} else {
							geocoded(p)(b)
						}
						if v != model.VerdictNotRun {
							validated(v)(b)
						}
						b.NonPhysical = np

						d := e.Decide(b)
						require.True(t, d.Label.Valid(), "label %q", d.Label)
						seen := map[model.ReasonCode]bool{}
						for _, c := range d.Reasons {
							require.True(t, c.Valid(), "reason %q", c)
							require.False(t, seen[c], "duplicate reason %q", c)
							seen[c] = true
						}
						if np && p != model.PrecisionNone && v != model.VerdictInvalid {
							assert.Equal(t, model.LabelNonPhysical, d.Label)
						}
					}
				}
			}
		}
	}
}

func TestReasons_DropsDuplicatesAndUnknown(t *testing.T) {
	var r Reasons
	r.Add(model.ReasonRooftop)
	r.Add(model.ReasonRooftop)
	r.Add(model.ReasonCode("MADE_UP"))
	assert.Equal(t, []model.ReasonCode{model.ReasonRooftop}, r.Codes())
}

func TestDecide_ExhaustedTableFallsBackToReview(t *testing.T) {
	e := New(WithAnchor(anchor), WithRules([]Rule{
		{Name: "never", Label: model.LabelValidLocation, Eval: func(*model.SignalBundle, *Reasons) bool { return false }},
	}))

	d := e.Decide(newBundle(geocoded(model.PrecisionRooftop)))
	assert.Equal(t, model.LabelNeedsHumanReview, d.Label)
	assert.Equal(t, RuleDefault, d.Rule)
	assert.Equal(t, []model.ReasonCode{model.ReasonRooftop}, d.Reasons)
}

func TestDecideAll_KeepsOrder(t *testing.T) {
	a := newBundle(zeroResults())
	a.RecordID = "a"
	b := newBundle(nonPhysicalInput(), geocoded(model.PrecisionRooftop))
	b.RecordID = "b"

	ds := New(WithAnchor(anchor)).DecideAll([]*model.SignalBundle{a, b})
	require.Len(t, ds, 2)
	assert.Equal(t, "a", ds[0].RecordID)
	assert.Equal(t, model.LabelInvalidAddress, ds[0].Label)
	assert.Equal(t, "b", ds[1].RecordID)
	assert.Equal(t, model.LabelNonPhysical, ds[1].Label)
}
