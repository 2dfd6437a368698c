package evidence

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/addrverify/internal/model"
)

var decidedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestAssemble_FullRow(t *testing.T) {
	rec := model.Record{ID: "abc", RawAddress: "100 Main St, Austin TX"}
	dist := 12.34
	b := &model.SignalBundle{
		RecordID: "abc",
		Geocode: &model.GeocodeSignal{
			Status:    model.StatusOK,
			Location:  &model.Coordinate{Lat: 30.2672, Lng: -97.7431},
			Precision: model.PrecisionRooftop,
			PlaceID:   "ChIJ-1",
			Outcome:   model.OutcomeOK,
		},
		Imagery:    &model.ImagerySignal{Status: model.StatusOK, CaptureDate: "2024-03", Outcome: model.OutcomeOK},
		Footprint:  &model.FootprintSignal{DistanceM: &dist, Present: true, RadiusM: 40, Outcome: model.OutcomeOK},
		Validation: &model.ValidationSignal{Verdict: model.VerdictNotRun},
	}
	d := model.Decision{
		RecordID:  "abc",
		Label:     model.LabelValidLocation,
		Reasons:   []model.ReasonCode{model.ReasonRooftop, model.ReasonFootprintMatch, model.ReasonSVOK},
		Note:      "SV date 2024-03",
		DecidedAt: decidedAt,
	}

	row := Assemble(rec, b, d)

	assert.Equal(t, "abc", row.InputID)
	assert.Equal(t, "", row.StdAddress)
	assert.Equal(t, "OK", row.GeocodeStatus)
	assert.Equal(t, "30.267200", row.Lat)
	assert.Equal(t, "-97.743100", row.Lng)
	assert.Equal(t, "ROOFTOP", row.LocationType)
	assert.Equal(t, "2024-03", row.SVImageDate)
	assert.Equal(t, "false", row.SVStaleFlag)
	assert.Equal(t, "12.3", row.FootprintWithinM)
	assert.Equal(t, "true", row.FootprintPresentFlag)
	assert.Equal(t, "false", row.ValidationRanFlag)
	assert.Equal(t, "NOT_RUN", row.ValidationVerdict)
	assert.Equal(t, "VALID_LOCATION", row.FinalFlag)
	assert.Equal(t, "ROOFTOP|FOOTPRINT_MATCH|SV_OK", row.ReasonCodes)
	assert.Equal(t, "2025-01-01T00:00:00Z", row.RunTimestampUTC)
	assert.Equal(t,
		"https://www.google.com/maps/search/?api=1&query=100+Main+St%2C+Austin+TX&query_place_id=ChIJ-1",
		row.GoogleMapsURL)
	assert.Equal(t,
		"https://www.google.com/maps/search/?api=1&query=30.267200%2C-97.743100",
		row.GoogleMapsPinURL)
	assert.False(t, row.NeedsReview())
}

func TestAssemble_NoGeocode(t *testing.T) {
	rec := model.Record{ID: "x", RawAddress: "nowhere"}
	b := &model.SignalBundle{
		RecordID: "x",
		Geocode:  &model.GeocodeSignal{Status: model.StatusZeroResults, Outcome: model.OutcomeTerminal},
	}
	d := model.Decision{Label: model.LabelInvalidAddress, Reasons: []model.ReasonCode{model.ReasonNoGeocode}, DecidedAt: decidedAt}

	row := Assemble(rec, b, d)

	assert.Empty(t, row.Lat)
	assert.Empty(t, row.Lng)
	assert.Empty(t, row.LocationType)
	assert.Empty(t, row.SVMetadataStatus)
	assert.Equal(t, "-1", row.FootprintWithinM)
	assert.Equal(t, "NOT_RUN", row.ValidationVerdict)
	assert.Empty(t, row.GoogleMapsPinURL)
	assert.Equal(t, "https://www.google.com/maps/search/?api=1&query=nowhere", row.GoogleMapsURL)
}

func TestAssemble_PrefersStandardizedAddress(t *testing.T) {
	rec := model.Record{ID: "y", RawAddress: "po box 7 austin", NonPhysical: true}
	b := &model.SignalBundle{
		RecordID:   "y",
		Validation: &model.ValidationSignal{Ran: true, StdAddress: "PO Box 7, Austin, TX 78701", Verdict: model.VerdictValid},
	}
	b.Validation.ErrorCodes = []string{"validation:HTTP_503"}
	d := model.Decision{Label: model.LabelNonPhysical, DecidedAt: decidedAt}

	row := Assemble(rec, b, d)

	assert.Equal(t, "true", row.NonPhysicalFlag)
	assert.Equal(t, "true", row.ValidationRanFlag)
	assert.True(t, strings.HasSuffix(row.GoogleMapsURL, "query=PO+Box+7%2C+Austin%2C+TX+78701"))
	assert.Equal(t, "validation:HTTP_503", row.APIErrorCodes)
}

func TestAssemble_Pure(t *testing.T) {
	rec := model.Record{ID: "z", RawAddress: "1 A St"}
	b := &model.SignalBundle{RecordID: "z"}
	d := model.Decision{Label: model.LabelNeedsHumanReview, DecidedAt: decidedAt}
	assert.Equal(t, Assemble(rec, b, d), Assemble(rec, b, d))
}

func TestRowValues_MatchColumns(t *testing.T) {
	row := Row{InputID: "first", GoogleMapsPinURL: "last"}
	vals := row.Values()
	require.Len(t, vals, len(Columns))
	assert.Equal(t, "first", vals[0])
	assert.Equal(t, "last", vals[len(vals)-1])
	assert.Equal(t, "final_flag", Columns[16])
}

func TestReviewQueue(t *testing.T) {
	rows := []Row{
		{InputID: "1", FinalFlag: string(model.LabelValidLocation)},
		{InputID: "2", FinalFlag: string(model.LabelLikelyEmptyLot)},
		{InputID: "3", FinalFlag: string(model.LabelInvalidAddress)},
		{InputID: "4", FinalFlag: string(model.LabelNeedsHumanReview)},
	}
	q := ReviewQueue(rows)
	require.Len(t, q, 2)
	assert.Equal(t, "2", q[0].InputID)
	assert.Equal(t, "4", q[1].InputID)
}

func TestRowFromMap_RoundTripsValues(t *testing.T) {
	row := Row{InputID: "a", FinalFlag: "VALID_LOCATION", Notes: "SV date 2020", GoogleMapsPinURL: "pin"}
	m := map[string]string{}
	for i, v := range row.Values() {
		m[Columns[i]] = v
	}
	assert.Equal(t, row, RowFromMap(m))
}
