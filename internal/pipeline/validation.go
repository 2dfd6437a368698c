package pipeline

import (
	"context"
	"strings"

	"github.com/sells-group/addrverify/internal/model"
	"github.com/sells-group/addrverify/internal/resilience"
	"github.com/sells-group/addrverify/pkg/google"
)

// Validation granularity ranks; unknown values rank with OTHER.
var granularityRank = map[string]int{
	"GRANULARITY_UNSPECIFIED": 0,
	"OTHER":                   0,
	"ROUTE":                   1,
	"BLOCK":                   2,
	"PREMISE_PROXIMITY":       3,
	"PREMISE":                 4,
	"SUB_PREMISE":             5,
}

const (
	rankOther   = 0
	rankPremise = 4
)

// DeriveVerdict simplifies the provider verdict:
//
//   - VALID: complete, no unconfirmed components, granularity PREMISE or finer.
//   - INVALID: incomplete, and unconfirmed components or granularity OTHER.
//   - UNCONFIRMED otherwise.
func DeriveVerdict(v google.ValidationVerdict) model.Verdict {
	rank := granularityRank[strings.ToUpper(strings.TrimSpace(v.ValidationGranularity))]

	if v.AddressComplete && !v.HasUnconfirmedComponents && rank >= rankPremise {
		return model.VerdictValid
	}
	if !v.AddressComplete && (v.HasUnconfirmedComponents || rank <= rankOther) {
		return model.VerdictInvalid
	}
	return model.VerdictUnconfirmed
}

// ValidationStage calls postal validation when the gate asks for it.
type ValidationStage struct {
	client  google.Client
	adapter *resilience.Adapter
	region  string
}

// NewValidationStage builds the postal-validation stage. region is the
// CLDR region code sent with every request; empty lets the provider infer.
func NewValidationStage(client google.Client, adapter *resilience.Adapter, region string) *ValidationStage {
	return &ValidationStage{client: client, adapter: adapter, region: strings.ToUpper(region)}
}

// Name implements Stage.
func (s *ValidationStage) Name() string { return StageValidation }

// Done implements Stage.
func (s *ValidationStage) Done(b *model.SignalBundle) bool { return b.Validation != nil }

// Ready implements Stage. Records without a coordinate go straight to the
// decision with geocode-only signals.
func (s *ValidationStage) Ready(b *model.SignalBundle) bool {
	return b.HasCoordinate() && NeedsValidation(b)
}

// Skip implements Stage.
func (s *ValidationStage) Skip(b *model.SignalBundle) {
	b.Validation = &model.ValidationSignal{Verdict: model.VerdictNotRun}
}

// Run implements Stage. A failed call still counts as run, with verdict
// UNCONFIRMED.
func (s *ValidationStage) Run(ctx context.Context, rec model.Record, b *model.SignalBundle) error {
	res := resilience.Call(ctx, s.adapter, "validate_address", rec.ID, func(ctx context.Context) (*google.ValidationResult, error) {
		return s.client.ValidateAddress(ctx, google.ValidationRequest{Address: rec.RawAddress, RegionCode: s.region})
	})

	sig := &model.ValidationSignal{
		Ran:        true,
		Verdict:    model.VerdictUnconfirmed,
		Outcome:    res.Outcome,
		ErrorCodes: res.ErrorCodes,
	}
	if res.Outcome == model.OutcomeOK && res.Value != nil {
		sig.StdAddress = res.Value.StandardizedAddress()
		sig.Verdict = DeriveVerdict(res.Value.Verdict)
	}

	b.Validation = sig
	return nil
}
