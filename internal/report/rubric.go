package report

import (
	"bytes"
	"os"
	"text/template"

	"github.com/rotisserie/eris"
)

var rubricTmpl = template.Must(template.New("rubric").Parse(`# Reviewer Rubric

Open the maps link for each queued row. Only the links are used for review;
no imagery is downloaded. Street View metadata in the queue is context and
may be outdated.

## Decisions

- CONFIRM_VALID: a principal structure is clearly present at the pin or parcel.
- CONFIRM_EMPTY_LOT: the land appears unbuilt, or holds only a minor shed or parking.
- CONFIRM_INVALID: the address or pin is clearly wrong.
- UNSURE: the evidence is unclear or conflicting.

## What to check

1. Pin and parcel alignment.
2. Structure presence at street or satellite zoom.
3. Street View capture date (sv_image_date). Imagery older than {{.StaleYears}} years may be outdated.
4. The compact evidence columns: location_type, footprint_present_flag,
   footprint_within_m, sv_metadata_status, validation_verdict, reason_codes.

NO_FOOTPRINT alone does not prove a lot is empty; footprint coverage is incomplete
in some regions. When imagery is old or conflicting, choose UNSURE.

## Review log

Fill in {{.LogFile}}: keep input_id unchanged, set review_decision to one of
CONFIRM_VALID, CONFIRM_EMPTY_LOT, CONFIRM_INVALID or UNSURE, add your initials
in reviewer_initials and an optional short review_notes.
`))

// WriteRubric renders the reviewer rubric.
func WriteRubric(path string, staleYears float64) error {
	var buf bytes.Buffer
	err := rubricTmpl.Execute(&buf, struct {
		StaleYears float64
		LogFile    string
	}{staleYears, ReviewLogTemplate})
	if err != nil {
		return eris.Wrap(err, "report: render rubric")
	}
	return writeAtomic(path, func(f *os.File) error {
		_, err := f.Write(buf.Bytes())
		return eris.Wrap(err, "report: write rubric")
	})
}
