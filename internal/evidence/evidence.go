// Package evidence flattens a record, its signals and its decision into the
// row that reports and reviewers consume.
package evidence

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/addrverify/internal/model"
)

const mapsSearchURL = "https://www.google.com/maps/search/?api=1"

// Columns is the enhanced-table header in output order.
var Columns = []string{
	"input_id",
	"input_address_raw",
	"std_address",
	"geocode_status",
	"lat",
	"lng",
	"location_type",
	"sv_metadata_status",
	"sv_image_date",
	"sv_stale_flag",
	"footprint_within_m",
	"footprint_present_flag",
	"validation_ran_flag",
	"validation_verdict",
	"non_physical_flag",
	"google_maps_url",
	"final_flag",
	"reason_codes",
	"notes",
	"run_timestamp_utc",
	"api_error_codes",
	"google_maps_pin_url",
}

// Row is one enhanced-table row. Values are already rendered as the strings
// written to disk.
type Row struct {
	InputID              string `json:"input_id"`
	InputAddressRaw      string `json:"input_address_raw"`
	StdAddress           string `json:"std_address"`
	GeocodeStatus        string `json:"geocode_status"`
	Lat                  string `json:"lat"`
	Lng                  string `json:"lng"`
	LocationType         string `json:"location_type"`
	SVMetadataStatus     string `json:"sv_metadata_status"`
	SVImageDate          string `json:"sv_image_date"`
	SVStaleFlag          string `json:"sv_stale_flag"`
	FootprintWithinM     string `json:"footprint_within_m"`
	FootprintPresentFlag string `json:"footprint_present_flag"`
	ValidationRanFlag    string `json:"validation_ran_flag"`
	ValidationVerdict    string `json:"validation_verdict"`
	NonPhysicalFlag      string `json:"non_physical_flag"`
	GoogleMapsURL        string `json:"google_maps_url"`
	FinalFlag            string `json:"final_flag"`
	ReasonCodes          string `json:"reason_codes"`
	Notes                string `json:"notes"`
	RunTimestampUTC      string `json:"run_timestamp_utc"`
	APIErrorCodes        string `json:"api_error_codes"`
	GoogleMapsPinURL     string `json:"google_maps_pin_url"`
}

// Values returns the row in Columns order.
func (r Row) Values() []string {
	return []string{
		r.InputID,
		r.InputAddressRaw,
		r.StdAddress,
		r.GeocodeStatus,
		r.Lat,
		r.Lng,
		r.LocationType,
		r.SVMetadataStatus,
		r.SVImageDate,
		r.SVStaleFlag,
		r.FootprintWithinM,
		r.FootprintPresentFlag,
		r.ValidationRanFlag,
		r.ValidationVerdict,
		r.NonPhysicalFlag,
		r.GoogleMapsURL,
		r.FinalFlag,
		r.ReasonCodes,
		r.Notes,
		r.RunTimestampUTC,
		r.APIErrorCodes,
		r.GoogleMapsPinURL,
	}
}

// NeedsReview reports whether the row belongs in the review queue.
func (r Row) NeedsReview() bool {
	return model.Label(r.FinalFlag).NeedsReview()
}

// Assemble builds the evidence row. It makes no network calls.
func Assemble(rec model.Record, b *model.SignalBundle, d model.Decision) Row {
	row := Row{
		InputID:              rec.ID,
		InputAddressRaw:      rec.RawAddress,
		StdAddress:           b.StdAddress(),
		GeocodeStatus:        b.GeocodeStatus(),
		LocationType:         b.Precision().String(),
		SVMetadataStatus:     b.ImageryStatus(),
		SVStaleFlag:          formatBool(b.ImageryStale()),
		FootprintWithinM:     "-1",
		FootprintPresentFlag: formatBool(b.StructurePresent()),
		ValidationRanFlag:    formatBool(b.ValidationRan()),
		ValidationVerdict:    string(b.Verdict()),
		NonPhysicalFlag:      formatBool(rec.NonPhysical || b.NonPhysical),
		FinalFlag:            string(d.Label),
		ReasonCodes:          d.ReasonString(),
		Notes:                d.Note,
		RunTimestampUTC:      d.DecidedAt.UTC().Format(time.RFC3339),
		APIErrorCodes:        strings.Join(b.APIErrorCodes(), "|"),
	}

	if b.Imagery != nil {
		row.SVImageDate = b.Imagery.CaptureDate
	}
	if b.Footprint != nil && b.Footprint.DistanceM != nil {
		row.FootprintWithinM = strconv.FormatFloat(*b.Footprint.DistanceM, 'f', 1, 64)
	}

	var placeID string
	if b.Geocode != nil {
		placeID = b.Geocode.PlaceID
	}
	address := row.StdAddress
	if address == "" {
		address = row.InputAddressRaw
	}
	row.GoogleMapsURL = SearchURL(address, placeID)

	if c, ok := b.Coordinate(); ok {
		row.Lat = formatCoord(c.Lat)
		row.Lng = formatCoord(c.Lng)
		row.GoogleMapsPinURL = PinURL(c)
	}
	return row
}

// SearchURL is a keyless maps search link for an address, pinned to a
// place when placeID is known.
func SearchURL(address, placeID string) string {
	u := mapsSearchURL + "&query=" + url.QueryEscape(strings.TrimSpace(address))
	if placeID != "" {
		u += "&query_place_id=" + url.QueryEscape(placeID)
	}
	return u
}

// PinURL is a keyless maps search link for a coordinate.
func PinURL(c model.Coordinate) string {
	return mapsSearchURL + "&query=" + url.QueryEscape(fmt.Sprintf("%s,%s", formatCoord(c.Lat), formatCoord(c.Lng)))
}

// ReviewQueue returns the rows that need a human decision, in input order.
func ReviewQueue(rows []Row) []Row {
	var out []Row
	for _, r := range rows {
		if r.NeedsReview() {
			out = append(out, r)
		}
	}
	return out
}

func formatBool(b bool) string {
	return strconv.FormatBool(b)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// RowFromMap rebuilds a row from column name to value, as read back from
// an enhanced table. Missing columns stay empty.
func RowFromMap(m map[string]string) Row {
	return Row{
		InputID:              m["input_id"],
		InputAddressRaw:      m["input_address_raw"],
		StdAddress:           m["std_address"],
		GeocodeStatus:        m["geocode_status"],
		Lat:                  m["lat"],
		Lng:                  m["lng"],
		LocationType:         m["location_type"],
		SVMetadataStatus:     m["sv_metadata_status"],
		SVImageDate:          m["sv_image_date"],
		SVStaleFlag:          m["sv_stale_flag"],
		FootprintWithinM:     m["footprint_within_m"],
		FootprintPresentFlag: m["footprint_present_flag"],
		ValidationRanFlag:    m["validation_ran_flag"],
		ValidationVerdict:    m["validation_verdict"],
		NonPhysicalFlag:      m["non_physical_flag"],
		GoogleMapsURL:        m["google_maps_url"],
		FinalFlag:            m["final_flag"],
		ReasonCodes:          m["reason_codes"],
		Notes:                m["notes"],
		RunTimestampUTC:      m["run_timestamp_utc"],
		APIErrorCodes:        m["api_error_codes"],
		GoogleMapsPinURL:     m["google_maps_pin_url"],
	}
}
