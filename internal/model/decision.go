package model

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Label is the final classification of a record.
type Label string

const (
	LabelValidLocation    Label = "VALID_LOCATION"
	LabelInvalidAddress   Label = "INVALID_ADDRESS"
	LabelLikelyEmptyLot   Label = "LIKELY_EMPTY_LOT"
	LabelNonPhysical      Label = "NON_PHYSICAL_ADDRESS"
	LabelNeedsHumanReview Label = "NEEDS_HUMAN_REVIEW"
)

// Labels lists every label in report order.
var Labels = []Label{
	LabelValidLocation,
	LabelInvalidAddress,
	LabelLikelyEmptyLot,
	LabelNonPhysical,
	LabelNeedsHumanReview,
}

// Valid reports whether l is in the closed label set.
func (l Label) Valid() bool { return slices.Contains(Labels, l) }

// NeedsReview reports whether records with this label go to the review queue.
func (l Label) NeedsReview() bool {
	return l == LabelLikelyEmptyLot || l == LabelNeedsHumanReview
}

// ReasonCode explains which predicate fired for a decision.
type ReasonCode string

const (
	ReasonNoGeocode           ReasonCode = "NO_GEOCODE"
	ReasonPostalInvalid       ReasonCode = "POSTAL_INVALID"
	ReasonNonPhysical         ReasonCode = "NON_PHYSICAL"
	ReasonRooftop             ReasonCode = "ROOFTOP"
	ReasonLowPrecisionGeocode ReasonCode = "LOW_PRECISION_GEOCODE"
	ReasonFootprintMatch      ReasonCode = "FOOTPRINT_MATCH"
	ReasonNoFootprint         ReasonCode = "NO_FOOTPRINT"
	ReasonSVOK                ReasonCode = "SV_OK"
	ReasonSVZeroResults       ReasonCode = "SV_ZERO_RESULTS"
	ReasonSVStale             ReasonCode = "SV_STALE"
)

// ReasonCodes is the closed reason vocabulary.
var ReasonCodes = []ReasonCode{
	ReasonNoGeocode,
	ReasonPostalInvalid,
	ReasonNonPhysical,
	ReasonRooftop,
	ReasonLowPrecisionGeocode,
	ReasonFootprintMatch,
	ReasonNoFootprint,
	ReasonSVOK,
	ReasonSVZeroResults,
	ReasonSVStale,
}

// Valid reports whether c is in the closed vocabulary.
func (c ReasonCode) Valid() bool { return slices.Contains(ReasonCodes, c) }

// DecisionSource identifies who produced a decision.
type DecisionSource string

const (
	SourceEngine   DecisionSource = "engine"
	SourceReviewer DecisionSource = "reviewer"
)

// Decision is the terminal output for a record. Values are never mutated
// after creation; a reviewer override is a new Decision whose Supersedes
// field holds the ID of the decision it replaces.
type Decision struct {
	ID         string         `json:"id"`
	RecordID   string         `json:"input_id"`
	Label      Label          `json:"label"`
	Reasons    []ReasonCode   `json:"reason_codes"`
	Rule       string         `json:"rule"`
	Note       string         `json:"note,omitempty"`
	DecidedAt  time.Time      `json:"decided_at"`
	Source     DecisionSource `json:"source"`
	Reviewer   string         `json:"reviewer,omitempty"`
	Supersedes string         `json:"supersedes,omitempty"`
}

// decisionNamespace seeds deterministic decision IDs.
var decisionNamespace = uuid.MustParse("6f1c0f5e-4d0b-4f5e-9d55-2b7c8a1e3a10")

// DecisionID derives a stable ID from the parts that identify a decision.
func DecisionID(parts ...string) string {
	return uuid.NewSHA1(decisionNamespace, []byte(strings.Join(parts, "|"))).String()
}

// ReasonString renders the reason codes pipe-delimited.
func (d Decision) ReasonString() string {
	codes := make([]string, len(d.Reasons))
	for i, c := range d.Reasons {
		codes[i] = string(c)
	}
	return strings.Join(codes, "|")
}

// Override returns a reviewer decision that supersedes d. d is unchanged.
func (d Decision) Override(label Label, reviewer, note string, at time.Time) Decision {
	return Decision{
		ID:         DecisionID(d.ID, string(label), reviewer),
		RecordID:   d.RecordID,
		Label:      label,
		Reasons:    slices.Clone(d.Reasons),
		Rule:       "reviewer_override",
		Note:       note,
		DecidedAt:  at,
		Source:     SourceReviewer,
		Reviewer:   reviewer,
		Supersedes: d.ID,
	}
}
