package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/addrverify/internal/model"
)

func TestCanonicalize(t *testing.T) {
	assert.Equal(t, "1 Main St, Springfield", Canonicalize("  1  Main\tSt,   Springfield "))
	// Decomposed é becomes the composed form.
	assert.Equal(t, "Caf\u00e9 Rd", Canonicalize("Cafe\u0301 Rd"))
}

func TestRecordID_StableAndVersioned(t *testing.T) {
	id := RecordID("1 Main St")
	assert.Len(t, id, 64)
	assert.Equal(t, id, RecordID("1 Main St"))
	assert.NotEqual(t, id, RecordID("2 Main St"))
	assert.Equal(t, RecordID(Canonicalize("1  Main   St")), id)
}

func TestIsNonPhysical(t *testing.T) {
	positives := []string{
		"PO Box 123, Austin, TX",
		"P.O. Box 55",
		"p o box 9",
		"Post Office Box 77",
		"Lockbox 4410",
		"123 Main St PMB 12",
		"Private Mailbox 8",
		"Suite #204 at UPS Store, Reno NV",
	}
	for _, a := range positives {
		assert.True(t, IsNonPhysical(a), a)
	}
	negatives := []string{
		"1600 Amphitheatre Pkwy, Mountain View, CA",
		"12 Boxwood Ln",
		"Suite 200, 5 Market St",
	}
	for _, a := range negatives {
		assert.False(t, IsNonPhysical(a), a)
	}
}

func TestDetectSchema(t *testing.T) {
	s, err := DetectSchema([]string{"id", "full_address"})
	require.NoError(t, err)
	assert.Equal(t, model.SchemaSingleLine, s)

	s, err = DetectSchema([]string{"Address_Line1", "City"})
	require.NoError(t, err)
	assert.Equal(t, model.SchemaMultiLine, s)

	_, err = DetectSchema([]string{"name", "phone"})
	assert.Error(t, err)
}

func TestRead_SingleLine(t *testing.T) {
	in := "full_address\n\"1 Main St,  Springfield\"\nPO Box 4, Austin TX\n\n"
	recs, err := Read(strings.NewReader(in), "United States")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "1 Main St, Springfield", recs[0].RawAddress)
	assert.Equal(t, RecordID("1 Main St, Springfield"), recs[0].ID)
	assert.Equal(t, 0, recs[0].Index)
	assert.False(t, recs[0].NonPhysical)
	assert.True(t, recs[1].NonPhysical)
	assert.Equal(t, 1, recs[1].Index)
}

func TestRead_MultiLineDefaultsCountry(t *testing.T) {
	in := "address_line1,address_line2,city,region,postal_code,country\n" +
		"10 Elm St,,Dayton,OH,45402,\n" +
		"5 Rue X,,Paris,,75001,France\n" +
		"7 Oak Ave,Unit 2,Toronto,ON,M5V 2T6,\n"
	recs, err := Read(strings.NewReader(in), "United States")
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, "10 Elm St, Dayton, OH, 45402, United States", recs[0].RawAddress)
	assert.True(t, recs[0].CountryDefaulted)
	assert.Equal(t, "5 Rue X, Paris, 75001, France", recs[1].RawAddress)
	assert.False(t, recs[1].CountryDefaulted)
	assert.Equal(t, "7 Oak Ave, Unit 2, Toronto, ON, M5V 2T6", recs[2].RawAddress)
	assert.Equal(t, model.SchemaMultiLine, recs[2].Schema)
}

func TestRead_Errors(t *testing.T) {
	_, err := Read(strings.NewReader(""), "")
	assert.Error(t, err)

	_, err = Read(strings.NewReader("name\nbob\n"), "")
	assert.Error(t, err)
}
