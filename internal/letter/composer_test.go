package letter

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curbappeal/appeal-service/internal/domain"
)

func sampleInput() Input {
	violation := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	plate := "8ABC123"
	return Input{
		CitationNumber:   "9123456701",
		JurisdictionName: "San Francisco",
		AgencyName:       "SFMTA Citation Review",
		AgencyAddress: domain.Address{
			Line1: "11 South Van Ness Ave", City: "San Francisco", State: "CA", PostalCode: "94103",
		},
		ContactName: "Alex Rivera",
		ContactAddress: domain.Address{
			Line1: "120 Main St", Line2: "Apt 4", City: "San Francisco", State: "CA", PostalCode: "94105",
		},
		ViolationDate: &violation,
		VehiclePlate:  &plate,
		Statement:     "The posted signage at the location was obscured by construction scaffolding, making the restriction impossible to read from the curb.",
		EvidenceURLs:  []string{"https://evidence.example.com/photo-1.jpg"},
		LetterDate:    time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}
}

func TestCompose_Deterministic(t *testing.T) {
	c := NewComposer()
	in := sampleInput()

	first, err := c.Compose(in)
	require.NoError(t, err)
	second, err := c.Compose(in)
	require.NoError(t, err)

	require.NotEmpty(t, first)
	assert.True(t, strings.HasPrefix(string(first), "%PDF-"), "output must be a PDF")
	assert.Equal(t, first, second, "identical inputs must yield byte-identical PDFs")
}

func TestCompose_DifferentInputsDiffer(t *testing.T) {
	c := NewComposer()
	in := sampleInput()
	first, err := c.Compose(in)
	require.NoError(t, err)

	in.Statement = "A different statement entirely."
	second, err := c.Compose(in)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestCompose_ContentStartsBelowWindowClearance(t *testing.T) {
	c := NewComposer()
	f := c.buildDocument(sampleInput())
	require.False(t, f.Err())

	// Everything renders below the reserved envelope window on page one.
	assert.GreaterOrEqual(t, f.GetY(), windowClearancePt)
	_, top, _, _ := f.GetMargins()
	assert.Equal(t, windowClearancePt, top)
}

func TestCompose_LongStatementPaginates(t *testing.T) {
	c := NewComposer()
	in := sampleInput()
	in.Statement = strings.Repeat("The meter at this location was malfunctioning and rejected every payment attempt. ", 120)

	f := c.buildDocument(in)
	require.False(t, f.Err())
	assert.GreaterOrEqual(t, f.PageNo(), 2)

	first, err := c.Compose(in)
	require.NoError(t, err)
	second, err := c.Compose(in)
	require.NoError(t, err)
	assert.Equal(t, first, second, "pagination must not break determinism")
}

func TestCompose_InputValidation(t *testing.T) {
	c := NewComposer()

	type testCase struct {
		name    string
		mutate  func(*Input)
		wantErr error
	}

	tests := []testCase{
		{name: "EmptyStatement", mutate: func(in *Input) { in.Statement = "" }, wantErr: ErrEmptyStatement},
		{name: "IncompleteContact", mutate: func(in *Input) { in.ContactAddress.PostalCode = "" }, wantErr: ErrIncompleteAddress},
		{name: "IncompleteAgency", mutate: func(in *Input) { in.AgencyAddress.Line1 = "" }, wantErr: ErrIncompleteAddress},
		{name: "ZeroDate", mutate: func(in *Input) { in.LetterDate = time.Time{} }, wantErr: ErrMissingDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sampleInput()
			tt.mutate(&in)
			_, err := c.Compose(in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
