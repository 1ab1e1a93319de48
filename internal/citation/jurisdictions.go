/**
 * @description
 * The closed jurisdiction registry. Every jurisdiction the service can mail
 * an appeal for is declared here with its citation format patterns, statutory
 * appeal window, and the agency mailing address letters are sent to. The
 * registry is compiled and validated at startup so a bad pattern or an
 * incomplete entry fails the boot instead of a request.
 */

package citation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/curbappeal/appeal-service/internal/domain"
)

// Code identifies a supported jurisdiction.
type Code string

const (
	SanFrancisco Code = "sf"
	LosAngeles   Code = "la"
	SanDiego     Code = "sd"
	NewYork      Code = "nyc"
	Chicago      Code = "chi"
	Seattle      Code = "sea"
	Denver       Code = "den"
	Austin       Code = "aus"
	Houston      Code = "hou"
)

// blockedStates are states where the service is prohibited from operating.
// A citation resolved to a jurisdiction in one of these states always comes
// back with ServiceBlocked=true and can never reach checkout.
var blockedStates = map[string]bool{
	"TX": true,
}

// Pattern is one citation format rule with the confidence a match carries.
type Pattern struct {
	Expr       string
	Confidence float64

	re *regexp.Regexp
}

// Jurisdiction is one registry entry.
type Jurisdiction struct {
	Code             Code
	Name             string
	State            string // two-letter USPS code
	AppealWindowDays int
	Patterns         []Pattern
	AgencyName       string
	AgencyAddress    domain.Address
}

// Blocked reports whether the jurisdiction's state is deny-listed.
func (j *Jurisdiction) Blocked() bool {
	return blockedStates[j.State]
}

// registrySpec is the source of truth the registry is compiled from. Order
// matters: format inference walks entries in this order, so more specific
// patterns are listed before looser ones.
var registrySpec = []Jurisdiction{
	{
		Code: SanFrancisco, Name: "San Francisco", State: "CA", AppealWindowDays: 21,
		Patterns:   []Pattern{{Expr: `^9\d{8,9}$`, Confidence: 1.0}},
		AgencyName: "SFMTA Citation Review",
		AgencyAddress: domain.Address{
			Line1: "11 South Van Ness Ave", City: "San Francisco", State: "CA", PostalCode: "94103",
		},
	},
	{
		Code: LosAngeles, Name: "Los Angeles", State: "CA", AppealWindowDays: 21,
		Patterns:   []Pattern{{Expr: `^1\d{9}$`, Confidence: 1.0}},
		AgencyName: "LADOT Parking Violations Bureau",
		AgencyAddress: domain.Address{
			Line1: "PO Box 30420", City: "Los Angeles", State: "CA", PostalCode: "90030",
		},
	},
	{
		Code: SanDiego, Name: "San Diego", State: "CA", AppealWindowDays: 21,
		Patterns: []Pattern{
			{Expr: `^SD\d{8}$`, Confidence: 1.0},
			{Expr: `^4\d{8}$`, Confidence: 0.9},
		},
		AgencyName: "City of San Diego Parking Administration",
		AgencyAddress: domain.Address{
			Line1: "PO Box 129038", City: "San Diego", State: "CA", PostalCode: "92112",
		},
	},
	{
		Code: NewYork, Name: "New York City", State: "NY", AppealWindowDays: 30,
		Patterns:   []Pattern{{Expr: `^[2-8]\d{9}$`, Confidence: 1.0}},
		AgencyName: "NYC Department of Finance, Hearings by Mail",
		AgencyAddress: domain.Address{
			Line1: "PO Box 29021", City: "Brooklyn", State: "NY", PostalCode: "11202",
		},
	},
	{
		Code: Chicago, Name: "Chicago", State: "IL", AppealWindowDays: 21,
		Patterns:   []Pattern{{Expr: `^7\d{8}$`, Confidence: 1.0}},
		AgencyName: "City of Chicago Department of Finance",
		AgencyAddress: domain.Address{
			Line1: "PO Box 88292", City: "Chicago", State: "IL", PostalCode: "60680",
		},
	},
	{
		Code: Seattle, Name: "Seattle", State: "WA", AppealWindowDays: 20,
		Patterns:   []Pattern{{Expr: `^6\d{8}$`, Confidence: 1.0}},
		AgencyName: "Seattle Municipal Court",
		AgencyAddress: domain.Address{
			Line1: "PO Box 34987", City: "Seattle", State: "WA", PostalCode: "98124",
		},
	},
	{
		Code: Denver, Name: "Denver", State: "CO", AppealWindowDays: 20,
		Patterns:   []Pattern{{Expr: `^5\d{7,8}$`, Confidence: 1.0}},
		AgencyName: "City and County of Denver Parking Magistrate",
		AgencyAddress: domain.Address{
			Line1: "PO Box 46500", City: "Denver", State: "CO", PostalCode: "80201",
		},
	},
	{
		Code: Austin, Name: "Austin", State: "TX", AppealWindowDays: 30,
		Patterns:   []Pattern{{Expr: `^2\d{8}$`, Confidence: 1.0}},
		AgencyName: "Austin Municipal Court",
		AgencyAddress: domain.Address{
			Line1: "PO Box 2135", City: "Austin", State: "TX", PostalCode: "78768",
		},
	},
	{
		Code: Houston, Name: "Houston", State: "TX", AppealWindowDays: 30,
		Patterns:   []Pattern{{Expr: `^3\d{8}$`, Confidence: 1.0}},
		AgencyName: "City of Houston Municipal Courts",
		AgencyAddress: domain.Address{
			Line1: "PO Box 4996", City: "Houston", State: "TX", PostalCode: "77210",
		},
	},
}

// Registry holds the compiled jurisdiction set.
type Registry struct {
	ordered []*Jurisdiction
	byCode  map[Code]*Jurisdiction
}

// NewRegistry compiles and validates the built-in jurisdiction set. Any
// malformed entry is a startup error, never a runtime surprise.
func NewRegistry() (*Registry, error) {
	r := &Registry{byCode: make(map[Code]*Jurisdiction, len(registrySpec))}
	for i := range registrySpec {
		j := registrySpec[i]
		if j.Code == "" || j.Name == "" {
			return nil, fmt.Errorf("jurisdiction %d: missing code or name", i)
		}
		if len(j.State) != 2 {
			return nil, fmt.Errorf("jurisdiction %s: state must be a two-letter code, got %q", j.Code, j.State)
		}
		if j.AppealWindowDays <= 0 {
			return nil, fmt.Errorf("jurisdiction %s: appeal window must be positive, got %d", j.Code, j.AppealWindowDays)
		}
		if len(j.Patterns) == 0 {
			return nil, fmt.Errorf("jurisdiction %s: no citation patterns", j.Code)
		}
		for pi := range j.Patterns {
			re, err := regexp.Compile(j.Patterns[pi].Expr)
			if err != nil {
				return nil, fmt.Errorf("jurisdiction %s: pattern %q: %w", j.Code, j.Patterns[pi].Expr, err)
			}
			if c := j.Patterns[pi].Confidence; c <= 0 || c > 1 {
				return nil, fmt.Errorf("jurisdiction %s: pattern %q: confidence %v out of range", j.Code, j.Patterns[pi].Expr, c)
			}
			j.Patterns[pi].re = re
		}
		if !j.AgencyAddress.Complete() || j.AgencyName == "" {
			return nil, fmt.Errorf("jurisdiction %s: incomplete agency mailing address", j.Code)
		}
		if _, dup := r.byCode[j.Code]; dup {
			return nil, fmt.Errorf("jurisdiction %s: duplicate code", j.Code)
		}
		r.byCode[j.Code] = &j
		r.ordered = append(r.ordered, &j)
	}
	return r, nil
}

// Lookup returns the jurisdiction for a code, or nil.
func (r *Registry) Lookup(code Code) *Jurisdiction {
	return r.byCode[code]
}

// Resolve maps a free-text hint ("sf", "San Francisco", "SAN FRANCISCO, CA")
// to a jurisdiction. Returns nil when the hint matches nothing.
func (r *Registry) Resolve(hint string) *Jurisdiction {
	h := strings.ToLower(strings.TrimSpace(hint))
	if h == "" {
		return nil
	}
	if j, ok := r.byCode[Code(h)]; ok {
		return j
	}
	for _, j := range r.ordered {
		if strings.Contains(h, strings.ToLower(j.Name)) || strings.ToLower(j.Name) == h {
			return j
		}
	}
	return nil
}

// Infer returns the first jurisdiction whose format patterns match the
// normalized citation, or nil. Walks registry order, so specific patterns
// take precedence over looser ones.
func (r *Registry) Infer(normalized string) *Jurisdiction {
	for _, j := range r.ordered {
		for _, p := range j.Patterns {
			if p.re.MatchString(normalized) {
				return j
			}
		}
	}
	return nil
}

// Codes returns the registered codes in declaration order.
func (r *Registry) Codes() []Code {
	out := make([]Code, 0, len(r.ordered))
	for _, j := range r.ordered {
		out = append(out, j.Code)
	}
	return out
}
