// Package review folds completed reviewer logs back into the run output as
// overriding decisions.
package review

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/addrverify/internal/model"
	"github.com/sells-group/addrverify/internal/report"
)

// Decision is a reviewer's verdict in the review log.
type Decision string

const (
	ConfirmValid    Decision = "CONFIRM_VALID"
	ConfirmEmptyLot Decision = "CONFIRM_EMPTY_LOT"
	ConfirmInvalid  Decision = "CONFIRM_INVALID"
	Unsure          Decision = "UNSURE"
)

var decisionLabels = map[Decision]model.Label{
	ConfirmValid:    model.LabelValidLocation,
	ConfirmEmptyLot: model.LabelLikelyEmptyLot,
	ConfirmInvalid:  model.LabelInvalidAddress,
	Unsure:          model.LabelNeedsHumanReview,
}

// Label maps a reviewer decision to the final label.
func (d Decision) Label() (model.Label, bool) {
	l, ok := decisionLabels[d]
	return l, ok
}

// Entry is one line of a review log.
type Entry struct {
	Line     int
	InputID  string
	Decision Decision
	Reviewer string
	Notes    string
}

// Pending reports a line the reviewer has not filled in yet.
func (e Entry) Pending() bool { return e.Decision == "" }

// ReadLog reads a review log from a .csv file or from the review-log sheet
// of an .xlsx workbook (the last sheet when that name is missing).
func ReadLog(path string) ([]Entry, error) {
	var (
		rows [][]string
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err = readXLSX(path)
	} else {
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	return parseLog(rows)
}

func parseLog(rows [][]string) ([]Entry, error) {
	if len(rows) == 0 {
		return nil, eris.New("review: log is empty")
	}

	idx := map[string]int{}
	for i, h := range rows[0] {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, col := range []string{"input_id", "review_decision"} {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("review: log missing column %q", col)
		}
	}

	get := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []Entry
	for n, row := range rows[1:] {
		id := get(row, "input_id")
		if id == "" {
			continue
		}
		out = append(out, Entry{
			Line:     n + 2,
			InputID:  id,
			Decision: Decision(strings.ToUpper(get(row, "review_decision"))),
			Reviewer: get(row, "reviewer_initials"),
			Notes:    get(row, "review_notes"),
		})
	}
	return out, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "review: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "review: read log row")
		}
		rows = append(rows, rec)
	}
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, ok := f.Sheet[report.SheetLog]
	if !ok {
		if len(f.Sheets) == 0 {
			return nil, eris.New("xlsx: workbook has no sheets")
		}
		sheet = f.Sheets[len(f.Sheets)-1]
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
