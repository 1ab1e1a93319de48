/**
 * @description
 * Citation validation. Given a citation number and a free-text jurisdiction
 * hint, the validator normalizes the number, scores it against the resolved
 * jurisdiction's format patterns, computes the statutory appeal deadline, and
 * flags deny-listed jurisdictions.
 *
 * @notes
 * - An unmatched-but-numeric citation degrades confidence instead of failing:
 *   it scores fallbackConfidence and passes only if that clears the
 *   configured threshold.
 * - A citation whose format clearly belongs to a different jurisdiction than
 *   the one selected produces a mismatch warning, not a rejection, so the
 *   caller can ask the user to confirm without blocking the flow.
 */

package citation

import (
	"regexp"
	"strings"
	"time"
)

// fallbackConfidence is the score for citations that match no jurisdiction
// pattern but still look like a citation number.
const fallbackConfidence = 0.5

var fallbackPattern = regexp.MustCompile(`^\d{6,12}$`)

// Input is one validation request.
type Input struct {
	CitationNumber string
	Jurisdiction   string // free-text hint: code or city name
	VehiclePlate   string
	ViolationDate  *time.Time
}

// Result is the validation outcome. Deadline fields are present only when a
// violation date was supplied.
type Result struct {
	Valid              bool       `json:"is_valid"`
	NormalizedCitation string     `json:"normalized_citation"`
	Jurisdiction       Code       `json:"jurisdiction,omitempty"`
	JurisdictionName   string     `json:"jurisdiction_name,omitempty"`
	State              string     `json:"state,omitempty"`
	ServiceBlocked     bool       `json:"service_blocked"`
	Confidence         float64    `json:"confidence"`
	MismatchWarning    bool       `json:"mismatch_warning,omitempty"`
	InferredCode       Code       `json:"inferred_jurisdiction,omitempty"`
	AppealWindowDays   int        `json:"appeal_window_days,omitempty"`
	AppealDeadline     *time.Time `json:"appeal_deadline,omitempty"`
	DaysRemaining      *int       `json:"days_remaining,omitempty"`
	DeadlinePassed     bool       `json:"deadline_passed,omitempty"`
	Reason             string     `json:"reason,omitempty"`
}

// Validator scores citations against the registry.
type Validator struct {
	registry  *Registry
	threshold float64

	now func() time.Time
}

// NewValidator builds a validator. threshold is the minimum confidence a
// citation must score to be reported valid; the numeric fallback scores
// exactly 0.5, so the default threshold of 0.5 lets it pass with a warning.
func NewValidator(registry *Registry, threshold float64) *Validator {
	return &Validator{registry: registry, threshold: threshold, now: time.Now}
}

// SetClock overrides the time source used for days-remaining math. Tests use
// this to pin the current date.
func (v *Validator) SetClock(now func() time.Time) {
	v.now = now
}

// Normalize strips spaces, hyphens and dots and uppercases the rest.
func Normalize(citation string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(citation)) {
		switch r {
		case ' ', '-', '.':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate scores one citation. It never returns an error: every outcome,
// including "we cannot serve this jurisdiction", is a field on the Result.
func (v *Validator) Validate(in Input) Result {
	res := Result{NormalizedCitation: Normalize(in.CitationNumber)}
	if res.NormalizedCitation == "" {
		res.Reason = "citation number is required"
		return res
	}

	selected := v.registry.Resolve(in.Jurisdiction)
	inferred := v.registry.Infer(res.NormalizedCitation)
	if selected == nil {
		// No usable hint; fall back to what the format tells us.
		selected = inferred
	}
	if selected == nil {
		res.Reason = "jurisdiction could not be determined"
		return res
	}

	res.Jurisdiction = selected.Code
	res.JurisdictionName = selected.Name
	res.State = selected.State
	res.AppealWindowDays = selected.AppealWindowDays
	res.ServiceBlocked = selected.Blocked()

	// Score against the selected jurisdiction's own patterns first.
	for _, p := range selected.Patterns {
		if p.re.MatchString(res.NormalizedCitation) && p.Confidence > res.Confidence {
			res.Confidence = p.Confidence
		}
	}
	if res.Confidence == 0 {
		if fallbackPattern.MatchString(res.NormalizedCitation) {
			res.Confidence = fallbackConfidence
		} else {
			res.Reason = "citation number does not match any known format"
			return res
		}
		// The selected jurisdiction didn't recognize the format; if another
		// one does, warn so the caller can confirm the selection.
		if inferred != nil && inferred.Code != selected.Code {
			res.MismatchWarning = true
			res.InferredCode = inferred.Code
		}
	}

	res.Valid = res.Confidence >= v.threshold
	if !res.Valid {
		res.Reason = "citation format confidence below threshold"
	}

	if in.ViolationDate != nil {
		deadline := in.ViolationDate.AddDate(0, 0, selected.AppealWindowDays)
		res.AppealDeadline = &deadline
		days := daysBetween(v.now(), deadline)
		res.DaysRemaining = &days
		res.DeadlinePassed = days < 0
	}
	return res
}

// daysBetween counts whole calendar days from now's date to deadline's date.
func daysBetween(now, deadline time.Time) int {
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	y, m, d = deadline.UTC().Date()
	due := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(due.Sub(today) / (24 * time.Hour))
}
