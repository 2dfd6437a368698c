package model

// Schema identifies the input layout a record was read from.
type Schema string

const (
	SchemaSingleLine Schema = "single_line" // one full_address column
	SchemaMultiLine  Schema = "multi_line"  // address_line1..country columns
)

// Record is one input address. ID is derived from the canonical address
// text at ingestion and is the join key across every stage.
type Record struct {
	ID               string `json:"input_id"`
	Index            int    `json:"index"`
	RawAddress       string `json:"input_address_raw"`
	Schema           Schema `json:"schema"`
	NonPhysical      bool   `json:"non_physical"`
	CountryDefaulted bool   `json:"country_defaulted,omitempty"`
}

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
