/**
 * @description
 * Deterministic appeal letter composition. Compose is a pure function from
 * letter content to PDF bytes: identical inputs always produce byte-identical
 * output, so a retried fulfillment attempt can re-derive the artifact instead
 * of depending on a cached copy.
 *
 * @dependencies
 * - github.com/go-pdf/fpdf: PDF generation with built-in core fonts. The
 *   document creation and modification dates are pinned and catalog sorting
 *   is enabled, which removes every nondeterministic byte from the output.
 *
 * @notes
 * - The top of page one is reserved for the carrier's windowed-envelope
 *   address block. Content starting above that clearance causes the carrier
 *   to reject the letter or add extra-cost handling, so the margin is a hard
 *   contract here, not a style choice.
 */

package letter

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/curbappeal/appeal-service/internal/domain"
)

// Page geometry, in points (72 pt = 1 inch). US Letter portrait.
const (
	// windowClearancePt reserves the top 3 1/3 inches of page one for the
	// carrier-printed address block.
	windowClearancePt = 240.0
	marginLeftPt      = 72.0
	marginRightPt     = 72.0
	marginBottomPt    = 72.0
	bodyLineHeightPt  = 14.0
)

// pinnedDocDate is the fixed timestamp written into the PDF metadata in
// place of "now". Any real timestamp would break byte-level determinism.
var pinnedDocDate = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

var (
	ErrEmptyStatement    = errors.New("letter: statement is empty")
	ErrIncompleteAddress = errors.New("letter: incomplete address")
	ErrMissingDate       = errors.New("letter: letter date is required")
)

// Input carries everything one appeal letter renders. All fields come from
// persisted records, never from the clock, so retries see identical input.
type Input struct {
	CitationNumber   string
	JurisdictionName string
	AgencyName       string
	AgencyAddress    domain.Address
	ContactName      string
	ContactAddress   domain.Address
	ViolationDate    *time.Time
	VehiclePlate     *string
	Statement        string
	EvidenceURLs     []string
	LetterDate       time.Time // typically the draft finalization date
}

// Composer renders appeal letters.
type Composer struct{}

// NewComposer returns a Composer.
func NewComposer() *Composer {
	return &Composer{}
}

// Compose renders the letter to PDF bytes. Deterministic: calling it twice
// with the same Input yields byte-identical output.
func (c *Composer) Compose(in Input) ([]byte, error) {
	if in.Statement == "" {
		return nil, ErrEmptyStatement
	}
	if !in.AgencyAddress.Complete() || !in.ContactAddress.Complete() {
		return nil, ErrIncompleteAddress
	}
	if in.LetterDate.IsZero() {
		return nil, ErrMissingDate
	}

	f := c.buildDocument(in)
	if f.Err() {
		return nil, fmt.Errorf("letter: compose failed: %w", f.Error())
	}

	var buf bytes.Buffer
	if err := f.Output(&buf); err != nil {
		return nil, fmt.Errorf("letter: pdf output failed: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Composer) buildDocument(in Input) *fpdf.Fpdf {
	f := fpdf.New("P", "pt", "Letter", "")
	f.SetCreationDate(pinnedDocDate)
	f.SetModificationDate(pinnedDocDate)
	f.SetCatalogSort(true)
	f.SetTitle(fmt.Sprintf("Appeal of Citation %s", in.CitationNumber), false)
	f.SetMargins(marginLeftPt, windowClearancePt, marginRightPt)
	f.SetAutoPageBreak(true, marginBottomPt)
	f.AddPage()

	// Page one content must start below the envelope window clearance.
	f.SetY(windowClearancePt)
	f.SetFont("Times", "", 11)

	f.MultiCell(0, bodyLineHeightPt, in.LetterDate.UTC().Format("January 2, 2006"), "", "L", false)
	f.Ln(bodyLineHeightPt)

	f.MultiCell(0, bodyLineHeightPt, addressBlock(in.AgencyName, in.AgencyAddress), "", "L", false)
	f.Ln(bodyLineHeightPt)

	f.SetFont("Times", "B", 11)
	f.MultiCell(0, bodyLineHeightPt, subjectLine(in), "", "L", false)
	f.SetFont("Times", "", 11)
	f.Ln(bodyLineHeightPt)

	f.MultiCell(0, bodyLineHeightPt, "To the Hearing Officer:", "", "L", false)
	f.Ln(bodyLineHeightPt)

	f.MultiCell(0, bodyLineHeightPt, in.Statement, "", "L", false)
	f.Ln(bodyLineHeightPt)

	if len(in.EvidenceURLs) > 0 {
		f.MultiCell(0, bodyLineHeightPt, evidenceBlock(in.EvidenceURLs), "", "L", false)
		f.Ln(bodyLineHeightPt)
	}

	f.MultiCell(0, bodyLineHeightPt, "Respectfully submitted,", "", "L", false)
	f.Ln(bodyLineHeightPt * 2)
	f.MultiCell(0, bodyLineHeightPt, signatureBlock(in), "", "L", false)

	return f
}

func subjectLine(in Input) string {
	s := fmt.Sprintf("RE: Appeal of Parking Citation %s (%s)", in.CitationNumber, in.JurisdictionName)
	if in.ViolationDate != nil {
		s += fmt.Sprintf(", issued %s", in.ViolationDate.UTC().Format("January 2, 2006"))
	}
	return s
}

func addressBlock(name string, a domain.Address) string {
	block := name + "\n" + a.Line1
	if a.Line2 != "" {
		block += "\n" + a.Line2
	}
	return fmt.Sprintf("%s\n%s, %s %s", block, a.City, a.State, a.PostalCode)
}

func signatureBlock(in Input) string {
	a := in.ContactAddress
	block := in.ContactName + "\n" + a.Line1
	if a.Line2 != "" {
		block += "\n" + a.Line2
	}
	block += fmt.Sprintf("\n%s, %s %s", a.City, a.State, a.PostalCode)
	if in.VehiclePlate != nil && *in.VehiclePlate != "" {
		block += "\nVehicle plate: " + *in.VehiclePlate
	}
	return block + "\nCitation: " + in.CitationNumber
}

func evidenceBlock(urls []string) string {
	block := "Supporting evidence referenced in this appeal:"
	for i, u := range urls {
		block += fmt.Sprintf("\n  %d. %s", i+1, u)
	}
	return block
}
