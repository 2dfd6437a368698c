package report

import (
	"encoding/json"
	"errors"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/addrverify/internal/cost"
	"github.com/sells-group/addrverify/internal/evidence"
	"github.com/sells-group/addrverify/internal/model"
)

// maxUnresolvedExamples bounds the examples listed in the summary.
const maxUnresolvedExamples = 10

// ErrReconciliation means some input record did not get exactly one
// decision.
var ErrReconciliation = errors.New("report: count reconciliation failed")

// UnresolvedExample names a record with a stage that never resolved.
type UnresolvedExample struct {
	InputID    string   `json:"input_id"`
	Unresolved []string `json:"unresolved"`
}

// Summary is the run-level QA summary.
type Summary struct {
	RunID               string              `json:"run_id"`
	GeneratedAt         time.Time           `json:"generated_at"`
	TotalRecords        int                 `json:"total_records"`
	FinalFlagCounts     map[string]int      `json:"final_flag_counts"`
	ReasonCodeCounts    map[string]int      `json:"reason_code_counts"`
	APIErrorCodeCounts  map[string]int      `json:"api_error_code_counts"`
	ReviewQueueCount    int                 `json:"review_queue_count"`
	ValidationRanCount  int                 `json:"validation_ran_count"`
	StaleImageryCount   int                 `json:"stale_imagery_count"`
	NonPhysicalCount    int                 `json:"non_physical_count"`
	CountryDefaulted    int                 `json:"country_defaulted_count"`
	UnresolvedCount     int                 `json:"unresolved_count"`
	UnresolvedExamples  []UnresolvedExample `json:"unresolved_examples"`
	ReconciliationOK    bool                `json:"reconciliation_ok"`
	ReconciliationError string              `json:"reconciliation_error,omitempty"`
	Usage               *cost.Usage         `json:"provider_usage,omitempty"`
}

// Summarize counts labels, reasons and provider errors across the run.
// records, bundles and decisions are parallel slices in input order.
func Summarize(runID string, at time.Time, records []model.Record, bundles []*model.SignalBundle, decisions []model.Decision) Summary {
	s := Summary{
		RunID:              runID,
		GeneratedAt:        at.UTC(),
		TotalRecords:       len(records),
		FinalFlagCounts:    make(map[string]int, len(model.Labels)),
		ReasonCodeCounts:   map[string]int{},
		APIErrorCodeCounts: map[string]int{},
		UnresolvedExamples: []UnresolvedExample{},
	}
	for _, l := range model.Labels {
		s.FinalFlagCounts[string(l)] = 0
	}

	for _, d := range decisions {
		s.FinalFlagCounts[string(d.Label)]++
		for _, c := range d.Reasons {
			s.ReasonCodeCounts[string(c)]++
		}
		if d.Label.NeedsReview() {
			s.ReviewQueueCount++
		}
	}
	for _, r := range records {
		if r.NonPhysical {
			s.NonPhysicalCount++
		}
		if r.CountryDefaulted {
			s.CountryDefaulted++
		}
	}
	for _, b := range bundles {
		if b == nil {
			continue
		}
		for _, code := range b.APIErrorCodes() {
			s.APIErrorCodeCounts[code]++
		}
		if b.ImageryStale() {
			s.StaleImageryCount++
		}
		if b.ValidationRan() {
			s.ValidationRanCount++
		}
		if u := b.Unresolved(); len(u) > 0 {
			s.UnresolvedCount++
			if len(s.UnresolvedExamples) < maxUnresolvedExamples {
				s.UnresolvedExamples = append(s.UnresolvedExamples, UnresolvedExample{InputID: b.RecordID, Unresolved: u})
			}
		}
	}

	if err := Reconcile(records, decisions); err != nil {
		s.ReconciliationError = err.Error()
	} else {
		s.ReconciliationOK = true
	}
	return s
}

// Reconcile checks that every input record carries exactly one decision
// with a label from the closed set. Duplicate input addresses share an ID
// and are matched by position.
func Reconcile(records []model.Record, decisions []model.Decision) error {
	if len(records) != len(decisions) {
		return eris.Wrapf(ErrReconciliation, "%d records, %d decisions", len(records), len(decisions))
	}
	var bad []string
	for i, r := range records {
		d := decisions[i]
		if d.RecordID != r.ID || !d.Label.Valid() {
			bad = append(bad, r.ID)
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		if len(bad) > maxUnresolvedExamples {
			bad = bad[:maxUnresolvedExamples]
		}
		return eris.Wrapf(ErrReconciliation, "mismatched records: %s", strings.Join(bad, ", "))
	}
	return nil
}

// ReconcileRows checks that the written table has one row per record.
func ReconcileRows(records []model.Record, rows []evidence.Row) error {
	if len(records) != len(rows) {
		return eris.Wrapf(ErrReconciliation, "%d records, %d rows", len(records), len(rows))
	}
	return nil
}

// WriteSummary writes s as indented JSON.
func WriteSummary(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return eris.Wrap(err, "report: marshal summary")
	}
	return writeAtomic(path, func(f *os.File) error {
		_, err := f.Write(append(data, '\n'))
		return eris.Wrap(err, "report: write summary")
	})
}
