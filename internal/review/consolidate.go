package review

import (
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/addrverify/internal/evidence"
	"github.com/sells-group/addrverify/internal/model"
	"github.com/sells-group/addrverify/internal/report"
)

// FinalColumns extends the enhanced table with the review outcome.
var FinalColumns = append(append([]string{}, evidence.Columns...),
	"engine_flag",
	"decision_source",
	"review_decision",
	"reviewer_initials",
	"review_notes",
)

// Options locates the run output and the completed review log.
type Options struct {
	// Dir holds the enhanced table and the decision audit trail.
	Dir string
	// LogPath is the completed review log (.csv or .xlsx).
	LogPath string
	// Now stamps override decisions. Defaults to time.Now in UTC.
	Now func() time.Time
}

// Result counts what a consolidation pass did.
type Result struct {
	Applied         int            `json:"applied"`
	AlreadyApplied  int            `json:"already_applied"`
	Pending         int            `json:"pending"`
	Unknown         int            `json:"unknown_input_ids"`
	Invalid         int            `json:"invalid_decisions"`
	FinalFlagCounts map[string]int `json:"final_flag_counts"`
	Overrides       []model.Decision
}

// Consolidate applies reviewer decisions as overriding Decisions. The
// audit trail only grows: originals and earlier overrides stay in place,
// and a log line that is already reflected is not applied twice.
func Consolidate(opts Options) (Result, error) {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	enhancedPath := filepath.Join(opts.Dir, report.EnhancedCSV)
	auditPath := filepath.Join(opts.Dir, report.AuditJSONL)

	rows, err := report.ReadEnhanced(enhancedPath)
	if err != nil {
		return Result{}, err
	}
	trail, err := report.ReadAudit(auditPath)
	if err != nil {
		return Result{}, err
	}
	entries, err := ReadLog(opts.LogPath)
	if err != nil {
		return Result{}, err
	}

	effective := Effective(trail)
	res := Result{FinalFlagCounts: map[string]int{}}
	reviewed := map[string]Entry{}

	for _, e := range entries {
		log := zap.L().With(zap.String("input_id", e.InputID), zap.Int("line", e.Line))
		if e.Pending() {
			res.Pending++
			continue
		}
		label, ok := e.Decision.Label()
		if !ok {
			res.Invalid++
			log.Warn("review: unknown review_decision", zap.String("decision", string(e.Decision)))
			continue
		}
		cur, ok := effective[e.InputID]
		if !ok {
			res.Unknown++
			log.Warn("review: input_id not in run")
			continue
		}
		reviewed[e.InputID] = e

		if cur.Source == model.SourceReviewer && cur.Label == label && cur.Reviewer == e.Reviewer && cur.Note == e.Notes {
			res.AlreadyApplied++
			continue
		}
		o := cur.Override(label, e.Reviewer, e.Notes, now())
		effective[e.InputID] = o
		res.Overrides = append(res.Overrides, o)
		res.Applied++
	}

	if len(res.Overrides) > 0 {
		if err := report.AppendAudit(auditPath, res.Overrides); err != nil {
			return res, err
		}
	}

	final := make([][]string, len(rows))
	for i, r := range rows {
		engineFlag := r.FinalFlag
		source := string(model.SourceEngine)
		if d, ok := effective[r.InputID]; ok {
			r.FinalFlag = string(d.Label)
			source = string(d.Source)
		}
		e := reviewed[r.InputID]
		final[i] = append(r.Values(), engineFlag, source, string(e.Decision), e.Reviewer, e.Notes)
		res.FinalFlagCounts[r.FinalFlag]++
	}
	if err := report.WriteCSV(filepath.Join(opts.Dir, report.FinalCSV), FinalColumns, final); err != nil {
		return res, eris.Wrap(err, "review: write final table")
	}

	zap.L().Info("review: consolidated",
		zap.Int("applied", res.Applied),
		zap.Int("already_applied", res.AlreadyApplied),
		zap.Int("pending", res.Pending),
		zap.Int("unknown", res.Unknown),
		zap.Int("invalid", res.Invalid),
	)
	return res, nil
}

// Effective returns the latest decision per record from an audit trail.
// Later lines supersede earlier ones.
func Effective(trail []model.Decision) map[string]model.Decision {
	out := make(map[string]model.Decision, len(trail))
	for _, d := range trail {
		out[d.RecordID] = d
	}
	return out
}
