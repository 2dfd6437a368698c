package decision

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/addrverify/internal/model"
)

// Engine applies an ordered rule table. It holds no per-record state and
// is safe for concurrent use.
type Engine struct {
	rules []Rule
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the decision timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithAnchor stamps every decision with t, making output reproducible.
func WithAnchor(t time.Time) Option {
	t = t.UTC()
	return WithClock(func() time.Time { return t })
}

// WithRules replaces the rule table. The table must end with a rule that
// always fires; Decide falls back to review otherwise.
func WithRules(rules []Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// New returns an engine over DefaultRules.
func New(opts ...Option) *Engine {
	e := &Engine{
		rules: DefaultRules(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Decide labels one bundle. The same bundle always yields the same label,
// rule and reason sequence.
func (e *Engine) Decide(b *model.SignalBundle) model.Decision {
	for _, rule := range e.rules {
		var r Reasons
		if !rule.Eval(b, &r) {
			continue
		}
		if rule.Name == RuleDefault {
			zap.L().Debug("decision: no specific rule matched",
				zap.String("record_id", b.RecordID),
				zap.String("gap", "RULE_EVALUATION_GAP"),
			)
		}
		return e.decision(b, rule.Name, rule.Label, r.Codes())
	}

	zap.L().Warn("decision: rule table exhausted", zap.String("record_id", b.RecordID))
	var r Reasons
	describe(b, &r)
	return e.decision(b, RuleDefault, model.LabelNeedsHumanReview, r.Codes())
}

// DecideAll labels bundles in order.
func (e *Engine) DecideAll(bundles []*model.SignalBundle) []model.Decision {
	out := make([]model.Decision, len(bundles))
	for i, b := range bundles {
		out[i] = e.Decide(b)
	}
	return out
}

func (e *Engine) decision(b *model.SignalBundle, rule string, label model.Label, reasons []model.ReasonCode) model.Decision {
	if reasons == nil {
		reasons = []model.ReasonCode{}
	}
	return model.Decision{
		ID:        model.DecisionID(b.RecordID, rule, string(label)),
		RecordID:  b.RecordID,
		Label:     label,
		Reasons:   reasons,
		Rule:      rule,
		Note:      Note(b),
		DecidedAt: e.now(),
		Source:    model.SourceEngine,
	}
}

// Note summarizes the evidence a reviewer looks at first: the imagery
// capture date and any unresolved stages.
func Note(b *model.SignalBundle) string {
	var parts []string
	if b.Imagery != nil && b.Imagery.CaptureDate != "" {
		parts = append(parts, "SV date "+b.Imagery.CaptureDate)
	}
	if b.Geocode != nil && b.Geocode.FromCache {
		parts = append(parts, "coordinates from cache")
	}
	if u := b.Unresolved(); len(u) > 0 {
		parts = append(parts, fmt.Sprintf("unresolved: %s", strings.Join(u, ", ")))
	}
	return strings.Join(parts, "; ")
}
