// Package report writes the run artifacts: the enhanced table, the review
// kit, and the run summary.
package report

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Default artifact file names inside the output directory.
const (
	EnhancedCSV       = "enhanced.csv"
	ReviewQueueCSV    = "review_queue.csv"
	ReviewQueueXLSX   = "review_queue.xlsx"
	ReviewLogTemplate = "review_log_template.csv"
	ReviewerRubric    = "reviewer_rubric.md"
	SummaryJSON       = "summary.json"
	FinalCSV          = "final.csv"
	AuditJSONL        = "decisions_audit.jsonl"
)

// WriteCSV writes header and rows to path. The file is written to a
// temporary name and renamed so readers never see a partial table.
func WriteCSV(path string, header []string, rows [][]string) error {
	return writeAtomic(path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			return eris.Wrap(err, "report: write header")
		}
		if err := w.WriteAll(rows); err != nil {
			return eris.Wrap(err, "report: write rows")
		}
		return nil
	})
}

func writeAtomic(path string, fn func(f *os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "report: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrapf(err, "report: create temp for %s", path)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := fn(tmp); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "report: close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "report: rename %s", path)
	}
	return nil
}
