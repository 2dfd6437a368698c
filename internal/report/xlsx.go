package report

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/addrverify/internal/evidence"
)

// Workbook sheet names.
const (
	SheetQueue = "Review Queue"
	SheetLog   = "Review Log"
)

// WriteReviewWorkbook writes the review queue and a blank review log as
// two sheets of one workbook, so reviewers can work from a single file.
func WriteReviewWorkbook(path string, queue []evidence.Row) error {
	f := xlsx.NewFile()

	qs, err := f.AddSheet(SheetQueue)
	if err != nil {
		return eris.Wrap(err, "xlsx: add queue sheet")
	}
	addRow(qs, ReviewQueueColumns)
	for _, r := range queue {
		addRow(qs, ReviewQueueValues(r))
	}

	ls, err := f.AddSheet(SheetLog)
	if err != nil {
		return eris.Wrap(err, "xlsx: add log sheet")
	}
	addRow(ls, ReviewLogColumns)
	for _, r := range queue {
		addRow(ls, []string{r.InputID, "", "", ""})
	}

	return writeAtomic(path, func(out *os.File) error {
		return eris.Wrap(f.Write(out), "xlsx: write workbook")
	})
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
