package report

import (
	"github.com/sells-group/addrverify/internal/evidence"
)

// ReviewQueueColumns is the compact evidence subset shown to reviewers.
var ReviewQueueColumns = []string{
	"input_id",
	"final_flag",
	"input_address_raw",
	"std_address",
	"google_maps_url",
	"google_maps_pin_url",
	"location_type",
	"footprint_present_flag",
	"footprint_within_m",
	"sv_metadata_status",
	"sv_image_date",
	"sv_stale_flag",
	"validation_verdict",
	"non_physical_flag",
	"reason_codes",
	"notes",
}

// ReviewLogColumns is the header reviewers fill in.
var ReviewLogColumns = []string{"input_id", "review_decision", "reviewer_initials", "review_notes"}

// WriteEnhanced writes every row with the full column set.
func WriteEnhanced(path string, rows []evidence.Row) error {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = r.Values()
	}
	return WriteCSV(path, evidence.Columns, out)
}

// ReviewQueueValues projects a row onto ReviewQueueColumns.
func ReviewQueueValues(r evidence.Row) []string {
	all := make(map[string]string, len(evidence.Columns))
	for i, v := range r.Values() {
		all[evidence.Columns[i]] = v
	}
	out := make([]string, len(ReviewQueueColumns))
	for i, c := range ReviewQueueColumns {
		out[i] = all[c]
	}
	return out
}

// WriteReviewQueue writes the queue subset of rows as CSV.
func WriteReviewQueue(path string, queue []evidence.Row) error {
	out := make([][]string, len(queue))
	for i, r := range queue {
		out[i] = ReviewQueueValues(r)
	}
	return WriteCSV(path, ReviewQueueColumns, out)
}

// WriteReviewLogTemplate writes one blank log line per queued record.
func WriteReviewLogTemplate(path string, queue []evidence.Row) error {
	out := make([][]string, len(queue))
	for i, r := range queue {
		out[i] = []string{r.InputID, "", "", ""}
	}
	return WriteCSV(path, ReviewLogColumns, out)
}
