package report

import (
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/addrverify/internal/cost"
	"github.com/sells-group/addrverify/internal/evidence"
	"github.com/sells-group/addrverify/internal/model"
)

// Run is everything a finished batch produced, in input order.
type Run struct {
	ID         string
	At         time.Time
	StaleYears float64
	Records    []model.Record
	Bundles    []*model.SignalBundle
	Decisions  []model.Decision
	// Usage is the provider request count and cost, when tracked.
	Usage *cost.Usage
}

// Rows assembles one evidence row per record.
func (r Run) Rows() []evidence.Row {
	rows := make([]evidence.Row, len(r.Records))
	for i, rec := range r.Records {
		b := r.Bundles[i]
		if b == nil {
			b = model.NewBundle(rec)
		}
		rows[i] = evidence.Assemble(rec, b, r.Decisions[i])
	}
	return rows
}

// WriteAll writes every run artifact into dir and returns the summary.
// Nothing is written unless every record carries exactly one decision.
func WriteAll(dir string, run Run) (Summary, error) {
	if err := Reconcile(run.Records, run.Decisions); err != nil {
		return Summary{}, err
	}

	rows := run.Rows()
	queue := evidence.ReviewQueue(rows)
	summary := Summarize(run.ID, run.At, run.Records, run.Bundles, run.Decisions)
	summary.Usage = run.Usage

	steps := []struct {
		name string
		fn   func() error
	}{
		{EnhancedCSV, func() error { return WriteEnhanced(filepath.Join(dir, EnhancedCSV), rows) }},
		{ReviewQueueCSV, func() error { return WriteReviewQueue(filepath.Join(dir, ReviewQueueCSV), queue) }},
		{ReviewQueueXLSX, func() error { return WriteReviewWorkbook(filepath.Join(dir, ReviewQueueXLSX), queue) }},
		{ReviewLogTemplate, func() error { return WriteReviewLogTemplate(filepath.Join(dir, ReviewLogTemplate), queue) }},
		{ReviewerRubric, func() error { return WriteRubric(filepath.Join(dir, ReviewerRubric), run.StaleYears) }},
		{SummaryJSON, func() error { return WriteSummary(filepath.Join(dir, SummaryJSON), summary) }},
		{AuditJSONL, func() error { return WriteAudit(filepath.Join(dir, AuditJSONL), run.Decisions) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return summary, eris.Wrapf(err, "report: write %s", s.name)
		}
	}

	zap.L().Info("report: artifacts written",
		zap.String("dir", dir),
		zap.Int("rows", len(rows)),
		zap.Int("review_queue", len(queue)),
	)

	if err := ReconcileRows(run.Records, rows); err != nil {
		return summary, err
	}
	return summary, nil
}
