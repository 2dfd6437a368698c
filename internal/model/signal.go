package model

import (
	"strings"
)

// Provider status values shared by the mapping providers.
const (
	StatusOK          = "OK"
	StatusZeroResults = "ZERO_RESULTS"
	StatusNotFound    = "NOT_FOUND"
	StatusAborted     = "ABORTED"
)

// Outcome is the terminal result of one adapted provider call.
type Outcome string

const (
	OutcomeOK         Outcome = "OK"
	OutcomeTerminal   Outcome = "TERMINAL"
	OutcomePermanent  Outcome = "PERMANENT_ERROR"
	OutcomeAPIFailure Outcome = "API_FAILURE"

	// OutcomeRetry marks a call-log attempt that failed transiently and was
	// retried. It never ends up on a signal.
	OutcomeRetry Outcome = "RETRY"
)

// Failed reports whether the outcome left the signal unresolved.
func (o Outcome) Failed() bool {
	return o == OutcomePermanent || o == OutcomeAPIFailure
}

// Precision is the ordered geocode precision tier. Higher is better.
type Precision int

const (
	PrecisionNone Precision = iota
	PrecisionApproximate
	PrecisionGeometricCenter
	PrecisionRangeInterpolated
	PrecisionRooftop
)

var precisionNames = map[Precision]string{
	PrecisionApproximate:       "APPROXIMATE",
	PrecisionGeometricCenter:   "GEOMETRIC_CENTER",
	PrecisionRangeInterpolated: "RANGE_INTERPOLATED",
	PrecisionRooftop:           "ROOFTOP",
}

// ParsePrecision maps a provider location type onto a precision tier.
// Unknown values map to PrecisionNone.
func ParsePrecision(locationType string) Precision {
	want := strings.ToUpper(strings.TrimSpace(locationType))
	for p, name := range precisionNames {
		if name == want {
			return p
		}
	}
	return PrecisionNone
}

// String returns the provider location type, or "" for PrecisionNone.
func (p Precision) String() string {
	return precisionNames[p]
}

// IsTop reports whether p is the rooftop tier.
func (p Precision) IsTop() bool { return p == PrecisionRooftop }

// Verdict is the simplified postal-validation verdict.
type Verdict string

const (
	VerdictValid       Verdict = "VALID"
	VerdictUnconfirmed Verdict = "UNCONFIRMED"
	VerdictInvalid     Verdict = "INVALID"
	VerdictNotRun      Verdict = "NOT_RUN"
)

// GeocodeSignal is written by the geocode stage.
type GeocodeSignal struct {
	Status     string      `json:"status"`
	Location   *Coordinate `json:"location,omitempty"`
	Precision  Precision   `json:"precision"`
	PlaceID    string      `json:"place_id,omitempty"`
	FromCache  bool        `json:"from_cache,omitempty"`
	Outcome    Outcome     `json:"outcome"`
	ErrorCodes []string    `json:"error_codes,omitempty"`
}

// ImagerySignal is written by the imagery-metadata stage.
type ImagerySignal struct {
	Status      string   `json:"status"`
	CaptureDate string   `json:"capture_date,omitempty"`
	Stale       bool     `json:"stale"`
	Outcome     Outcome  `json:"outcome"`
	ErrorCodes  []string `json:"error_codes,omitempty"`
}

// FootprintSignal is written by the footprint stage. DistanceM is nil when
// no structure centroid lies within RadiusM.
type FootprintSignal struct {
	DistanceM  *float64 `json:"distance_m,omitempty"`
	Present    bool     `json:"present"`
	RadiusM    float64  `json:"radius_m"`
	Outcome    Outcome  `json:"outcome"`
	ErrorCodes []string `json:"error_codes,omitempty"`
}

// ValidationSignal is written by the postal-validation stage, or with
// VerdictNotRun when the gate skipped it.
type ValidationSignal struct {
	Ran        bool     `json:"ran"`
	StdAddress string   `json:"std_address,omitempty"`
	Verdict    Verdict  `json:"verdict"`
	Outcome    Outcome  `json:"outcome,omitempty"`
	ErrorCodes []string `json:"error_codes,omitempty"`
}

// StageFailure marks a stage that errored outright or never launched.
type StageFailure struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// SignalBundle accumulates the signals for one record. Each stage owns one
// field; stages running concurrently never touch the same field.
type SignalBundle struct {
	RecordID    string            `json:"input_id"`
	NonPhysical bool              `json:"non_physical"`
	Geocode     *GeocodeSignal    `json:"geocode,omitempty"`
	Imagery     *ImagerySignal    `json:"imagery,omitempty"`
	Footprint   *FootprintSignal  `json:"footprint,omitempty"`
	Validation  *ValidationSignal `json:"validation,omitempty"`
	Failures    []StageFailure    `json:"failures,omitempty"`
}

// NewBundle returns an empty bundle seeded with the ingestion-time fields.
func NewBundle(rec Record) *SignalBundle {
	return &SignalBundle{RecordID: rec.ID, NonPhysical: rec.NonPhysical}
}

// Coordinate returns the geocoded coordinate, if any.
func (b *SignalBundle) Coordinate() (Coordinate, bool) {
	if b.Geocode == nil || b.Geocode.Location == nil {
		return Coordinate{}, false
	}
	return *b.Geocode.Location, true
}

// HasCoordinate reports whether a usable coordinate exists.
func (b *SignalBundle) HasCoordinate() bool {
	_, ok := b.Coordinate()
	return ok
}

// GeocodeStatus returns the geocode status, or "" before the stage ran.
func (b *SignalBundle) GeocodeStatus() string {
	if b.Geocode == nil {
		return ""
	}
	return b.Geocode.Status
}

// Precision returns the geocode precision tier.
func (b *SignalBundle) Precision() Precision {
	if b.Geocode == nil {
		return PrecisionNone
	}
	return b.Geocode.Precision
}

// StructurePresent reports whether a footprint centroid was found in range.
func (b *SignalBundle) StructurePresent() bool {
	return b.Footprint != nil && b.Footprint.Present
}

// ImageryStatus returns the imagery metadata status, or "".
func (b *SignalBundle) ImageryStatus() string {
	if b.Imagery == nil {
		return ""
	}
	return b.Imagery.Status
}

// ImageryStale reports the derived staleness flag.
func (b *SignalBundle) ImageryStale() bool {
	return b.Imagery != nil && b.Imagery.Stale
}

// ImageryCurrent reports imagery with status OK that is not stale.
func (b *SignalBundle) ImageryCurrent() bool {
	return b.ImageryStatus() == StatusOK && !b.ImageryStale()
}

// ValidationRan reports whether postal validation was called.
func (b *SignalBundle) ValidationRan() bool {
	return b.Validation != nil && b.Validation.Ran
}

// Verdict returns the postal verdict, VerdictNotRun when absent.
func (b *SignalBundle) Verdict() Verdict {
	if b.Validation == nil {
		return VerdictNotRun
	}
	return b.Validation.Verdict
}

// StdAddress returns the standardized address from validation, if any.
func (b *SignalBundle) StdAddress() string {
	if b.Validation == nil {
		return ""
	}
	return b.Validation.StdAddress
}

// AddFailure appends a stage failure marker.
func (b *SignalBundle) AddFailure(stage, reason string) {
	b.Failures = append(b.Failures, StageFailure{Stage: stage, Reason: reason})
}

// Unresolved lists every stage whose signal could not be obtained, in
// stage order, as "stage: reason" strings.
func (b *SignalBundle) Unresolved() []string {
	var out []string
	if b.Geocode != nil && b.Geocode.Outcome.Failed() {
		out = append(out, "geocode: "+string(b.Geocode.Outcome))
	}
	if b.Imagery != nil && b.Imagery.Outcome.Failed() {
		out = append(out, "imagery: "+string(b.Imagery.Outcome))
	}
	if b.Footprint != nil && b.Footprint.Outcome.Failed() {
		out = append(out, "footprint: "+string(b.Footprint.Outcome))
	}
	if b.Validation != nil && b.Validation.Outcome.Failed() {
		out = append(out, "validation: "+string(b.Validation.Outcome))
	}
	for _, f := range b.Failures {
		out = append(out, f.Stage+": "+f.Reason)
	}
	return out
}

// APIErrorCodes returns the per-attempt provider error codes in stage order.
func (b *SignalBundle) APIErrorCodes() []string {
	var out []string
	if b.Geocode != nil {
		out = append(out, b.Geocode.ErrorCodes...)
	}
	if b.Imagery != nil {
		out = append(out, b.Imagery.ErrorCodes...)
	}
	if b.Footprint != nil {
		out = append(out, b.Footprint.ErrorCodes...)
	}
	if b.Validation != nil {
		out = append(out, b.Validation.ErrorCodes...)
	}
	return out
}
