// Package ingest reads address CSVs into canonical records.
package ingest

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/addrverify/internal/model"
)

// idVersion prefixes the hashed address so the ID scheme can change later
// without colliding with existing IDs.
const idVersion = "v1|"

var (
	nonPhysicalRe = regexp.MustCompile(`(?i)\b(` +
		`P\.?\s*O\.?\s*BOX` +
		`|POST\s+OFFICE\s+BOX` +
		`|LOCKBOX` +
		`|PMB` +
		`|PRIVATE\s+MAILBOX` +
		`|SUITE\s*#?\s*[\dA-Z]+\s+AT\s+UPS\s+STORE` +
		`)\b`)

	usZipRe = regexp.MustCompile(`^\d{5}(?:-\d{4})?$`)
)

// multiLineColumns are the structured columns in join order.
var multiLineColumns = []string{"address_line1", "address_line2", "city", "region", "postal_code", "country"}

// Canonicalize applies NFC normalization and collapses internal whitespace.
// Casing and punctuation are preserved.
func Canonicalize(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// RecordID returns the stable identifier for a canonical address.
func RecordID(canonical string) string {
	sum := sha256.Sum256([]byte(idVersion + canonical))
	return hex.EncodeToString(sum[:])
}

// IsNonPhysical reports whether the address matches a mailbox-style pattern.
func IsNonPhysical(addr string) bool {
	return nonPhysicalRe.MatchString(addr)
}

// IsUSZip reports whether s looks like a US ZIP or ZIP+4.
func IsUSZip(s string) bool {
	return usZipRe.MatchString(strings.TrimSpace(s))
}

// NewRecord builds a Record from an already-joined address string.
func NewRecord(index int, addr string) model.Record {
	canonical := Canonicalize(addr)
	return model.Record{
		ID:          RecordID(canonical),
		Index:       index,
		RawAddress:  canonical,
		Schema:      model.SchemaSingleLine,
		NonPhysical: IsNonPhysical(canonical),
	}
}

// DetectSchema picks the input layout from the header row.
func DetectSchema(header []string) (model.Schema, error) {
	cols := make(map[string]bool, len(header))
	for _, h := range header {
		cols[normalizeHeader(h)] = true
	}
	if cols["full_address"] {
		return model.SchemaSingleLine, nil
	}
	for _, c := range multiLineColumns {
		if cols[c] {
			return model.SchemaMultiLine, nil
		}
	}
	return "", eris.New("ingest: header needs full_address or one of address_line1, address_line2, city, region, postal_code, country")
}

// ReadFile opens path and reads it with Read.
func ReadFile(path, defaultCountry string) ([]model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Read(f, defaultCountry)
}

// Read parses an address CSV. Records keep input order; rows that produce
// an empty address are still returned so every input row gets a decision.
func Read(r io.Reader, defaultCountry string) ([]model.Record, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, eris.New("ingest: csv has no header row")
		}
		return nil, eris.Wrap(err, "ingest: read header")
	}

	schema, err := DetectSchema(header)
	if err != nil {
		return nil, err
	}

	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[normalizeHeader(h)] = i
	}

	var records []model.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read row %d", len(records)+1)
		}

		var addr string
		var defaulted bool
		if schema == model.SchemaSingleLine {
			addr = getCol(row, colIdx, "full_address")
		} else {
			addr, defaulted = joinMultiLine(row, colIdx, defaultCountry)
		}

		rec := NewRecord(len(records), addr)
		rec.Schema = schema
		rec.CountryDefaulted = defaulted
		records = append(records, rec)
	}

	zap.L().Info("ingest: read records",
		zap.Int("records", len(records)),
		zap.String("schema", string(schema)),
	)
	return records, nil
}

func joinMultiLine(row []string, colIdx map[string]int, defaultCountry string) (string, bool) {
	parts := make([]string, 0, len(multiLineColumns))
	for _, c := range multiLineColumns[:5] {
		if v := Canonicalize(getCol(row, colIdx, c)); v != "" {
			parts = append(parts, v)
		}
	}

	defaulted := false
	country := Canonicalize(getCol(row, colIdx, "country"))
	if country == "" && defaultCountry != "" && IsUSZip(getCol(row, colIdx, "postal_code")) {
		country = defaultCountry
		defaulted = true
	}
	if country != "" {
		parts = append(parts, country)
	}
	return strings.Join(parts, ", "), defaulted
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

func getCol(row []string, colIdx map[string]int, name string) string {
	i, ok := colIdx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
