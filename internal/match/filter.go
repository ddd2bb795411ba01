package match

import (
	"strings"

	"govwatch/discovery-service/internal/model"
)

// ContainsAny reports whether any non-empty term appears (case-insensitive)
// in text.
func ContainsAny(text string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// Filter reports whether opp satisfies a saved search. Every non-empty
// criterion must hold. An exclude term anywhere in title, office or
// description discards the record outright.
func Filter(opp model.Opportunity, f model.SavedFilter) bool {
	if ContainsAny(opp.Title+" "+opp.ContractingOffice+" "+opp.Description, f.ExcludeKeywords) {
		return false
	}
	if len(nonBlank(f.Keywords)) > 0 && !ContainsAny(opp.Title+" "+opp.Description, f.Keywords) {
		return false
	}
	if len(f.NAICSCodes) > 0 && !hasCodePrefix(opp.NAICSCode, f.NAICSCodes) {
		return false
	}
	if len(f.SetAsides) > 0 && !ContainsAny(opp.SetAsideType, f.SetAsides) {
		return false
	}
	if len(f.Types) > 0 && !equalsAny(opp.Type, f.Types) {
		return false
	}
	return true
}

// FilterAll returns the opportunities that satisfy f, in input order.
func FilterAll(opps []model.Opportunity, f model.SavedFilter) []model.Opportunity {
	out := make([]model.Opportunity, 0)
	for _, o := range opps {
		if Filter(o, f) {
			out = append(out, o)
		}
	}
	return out
}

// A filter code of "5415" accepts "541512".
func hasCodePrefix(code string, prefixes []string) bool {
	if code == "" {
		return false
	}
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if p != "" && strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

func equalsAny(s string, options []string) bool {
	for _, o := range options {
		if strings.EqualFold(strings.TrimSpace(o), strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}

func nonBlank(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out
}
