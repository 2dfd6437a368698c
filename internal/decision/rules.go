// Package decision turns a record's signal bundle into exactly one label
// using an ordered rule table. The first rule that matches wins.
package decision

import (
	"slices"

	"github.com/sells-group/addrverify/internal/model"
)

// Rule names, recorded on every Decision.
const (
	RuleHardInvalid       = "hard_invalid"
	RuleNonPhysical       = "non_physical"
	RuleUnresolvedFailure = "unresolved_failure"
	RuleAutoValid         = "auto_valid"
	RuleLikelyEmptyLot    = "likely_empty_lot"
	RuleDefault           = "default"
)

// Rule is one guarded entry of the decision table. Eval appends the reason
// codes of the predicates it evaluates and reports whether the rule fires.
// Reasons appended by a rule that does not fire are discarded.
type Rule struct {
	Name  string
	Label model.Label
	Eval  func(b *model.SignalBundle, r *Reasons) bool
}

// Reasons accumulates reason codes in evaluation order. Duplicates and
// codes outside the closed vocabulary are dropped.
type Reasons struct {
	codes []model.ReasonCode
}

// Add appends c if it is valid and not already present.
func (r *Reasons) Add(c model.ReasonCode) {
	if !c.Valid() || slices.Contains(r.codes, c) {
		return
	}
	r.codes = append(r.codes, c)
}

// AddIf appends c when cond holds and returns cond.
func (r *Reasons) AddIf(cond bool, c model.ReasonCode) bool {
	if cond {
		r.Add(c)
	}
	return cond
}

// Codes returns a copy of the accumulated codes.
func (r *Reasons) Codes() []model.ReasonCode { return slices.Clone(r.codes) }

// DefaultRules returns the decision table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: RuleHardInvalid, Label: model.LabelInvalidAddress, Eval: hardInvalid},
		{Name: RuleNonPhysical, Label: model.LabelNonPhysical, Eval: nonPhysical},
		{Name: RuleUnresolvedFailure, Label: model.LabelNeedsHumanReview, Eval: unresolvedFailure},
		{Name: RuleAutoValid, Label: model.LabelValidLocation, Eval: autoValid},
		{Name: RuleLikelyEmptyLot, Label: model.LabelLikelyEmptyLot, Eval: likelyEmptyLot},
		{Name: RuleDefault, Label: model.LabelNeedsHumanReview, Eval: fallback},
	}
}

// noGeocode reports a terminal geocode outcome with no result.
func noGeocode(b *model.SignalBundle) bool {
	return b.Geocode != nil && b.Geocode.Outcome == model.OutcomeTerminal
}

func postalInvalid(b *model.SignalBundle) bool {
	return b.ValidationRan() && b.Verdict() == model.VerdictInvalid
}

// lowPrecision reports a successful geocode below the rooftop tier.
func lowPrecision(b *model.SignalBundle) bool {
	return b.GeocodeStatus() == model.StatusOK && !b.Precision().IsTop()
}

func hardInvalid(b *model.SignalBundle, r *Reasons) bool {
	a := r.AddIf(noGeocode(b), model.ReasonNoGeocode)
	p := r.AddIf(postalInvalid(b), model.ReasonPostalInvalid)
	return a || p
}

func nonPhysical(b *model.SignalBundle, r *Reasons) bool {
	return r.AddIf(b.NonPhysical, model.ReasonNonPhysical)
}

func unresolvedFailure(b *model.SignalBundle, r *Reasons) bool {
	if len(b.Unresolved()) == 0 {
		return false
	}
	describe(b, r)
	return true
}

// autoValid: rooftop precision and either a structure match or current
// imagery. Both supporting codes are recorded when both hold.
func autoValid(b *model.SignalBundle, r *Reasons) bool {
	rooftop := r.AddIf(b.Precision().IsTop(), model.ReasonRooftop)
	structure := r.AddIf(b.StructurePresent(), model.ReasonFootprintMatch)
	imagery := r.AddIf(b.ImageryCurrent(), model.ReasonSVOK)
	return rooftop && (structure || imagery)
}

// likelyEmptyLot: sub-rooftop precision, no structure, and imagery that is
// either current or confirmed absent.
func likelyEmptyLot(b *model.SignalBundle, r *Reasons) bool {
	low := r.AddIf(lowPrecision(b), model.ReasonLowPrecisionGeocode)
	empty := r.AddIf(b.Footprint != nil && !b.StructurePresent(), model.ReasonNoFootprint)
	current := r.AddIf(b.ImageryCurrent(), model.ReasonSVOK)
	absent := r.AddIf(b.ImageryStatus() == model.StatusZeroResults, model.ReasonSVZeroResults)
	return low && empty && (current || absent)
}

// fallback always fires and records every signal it can describe.
func fallback(b *model.SignalBundle, r *Reasons) bool {
	describe(b, r)
	return true
}

// describe appends a descriptive code for each signal present.
func describe(b *model.SignalBundle, r *Reasons) {
	r.AddIf(noGeocode(b), model.ReasonNoGeocode)
	r.AddIf(postalInvalid(b), model.ReasonPostalInvalid)
	r.AddIf(b.NonPhysical, model.ReasonNonPhysical)
	r.AddIf(b.Precision().IsTop(), model.ReasonRooftop)
	r.AddIf(lowPrecision(b), model.ReasonLowPrecisionGeocode)
	if b.Footprint != nil && !b.Footprint.Outcome.Failed() {
		r.AddIf(b.Footprint.Present, model.ReasonFootprintMatch)
		r.AddIf(!b.Footprint.Present, model.ReasonNoFootprint)
	}
	r.AddIf(b.ImageryCurrent(), model.ReasonSVOK)
	r.AddIf(b.ImageryStatus() == model.StatusZeroResults, model.ReasonSVZeroResults)
	r.AddIf(b.ImageryStale(), model.ReasonSVStale)
}
