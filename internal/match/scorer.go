// Package match scores opportunities against a company's capability profile.
// Everything here is pure: no I/O, and inputs are never modified.
package match

import (
	"fmt"
	"sort"
	"strings"

	"govwatch/discovery-service/internal/model"
)

// Axis weights and tier thresholds.
const (
	NAICSPoints      = 30
	PSCPoints        = 20
	KeywordPoints    = 3
	KeywordCap       = 30
	SetAsidePoints   = 20
	MatchedMinimum   = 70
	NearMatchMinimum = 50
	StretchMinimum   = 30
)

// Tiers groups scored opportunities. Excluded results are only counted.
type Tiers struct {
	Matched       []model.MatchResult `json:"matched"`
	NearMatch     []model.MatchResult `json:"nearMatch"`
	Stretch       []model.MatchResult `json:"stretch"`
	TotalAnalyzed int                 `json:"totalAnalyzed"`
}

// Score rates one opportunity against profile.
func Score(opp model.Opportunity, profile model.CompanyProfile) model.MatchResult {
	r := model.MatchResult{
		NoticeID: opp.NoticeID,
		Title:    opp.Title,
		Reasons:  []string{},
		Gaps:     []string{},
	}

	naics, psc := capabilityCodes(profile.Capabilities)

	switch {
	case opp.NAICSCode == "":
		r.Gaps = append(r.Gaps, "opportunity lists no NAICS code")
	case naics[opp.NAICSCode]:
		r.NAICSScore = NAICSPoints
		r.Reasons = append(r.Reasons, fmt.Sprintf("NAICS %s matches a declared capability", opp.NAICSCode))
	default:
		r.Gaps = append(r.Gaps, fmt.Sprintf("NAICS %s is not a declared capability", opp.NAICSCode))
	}

	switch {
	case opp.PSCCode == "":
		r.Gaps = append(r.Gaps, "opportunity lists no PSC code")
	case psc[opp.PSCCode]:
		r.PSCScore = PSCPoints
		r.Reasons = append(r.Reasons, fmt.Sprintf("PSC %s matches a declared capability", opp.PSCCode))
	default:
		r.Gaps = append(r.Gaps, fmt.Sprintf("PSC %s is not a declared capability", opp.PSCCode))
	}

	if hits := keywordHits(opp, profile.Keywords); hits > 0 {
		r.KeywordScore = min(hits*KeywordPoints, KeywordCap)
		r.Reasons = append(r.Reasons, fmt.Sprintf("%d keyword(s) found in title or description", hits))
	}

	score, reason, gap := setAside(opp.SetAsideType, profile.Certifications)
	r.SetAsideScore = score
	if reason != "" {
		r.Reasons = append(r.Reasons, reason)
	}
	if gap != "" {
		r.Gaps = append(r.Gaps, gap)
	}

	r.Total = r.NAICSScore + r.PSCScore + r.KeywordScore + r.SetAsideScore
	r.Tier = TierFor(r.Total)
	return r
}

// TierFor maps a total onto its tier.
func TierFor(total int) model.Tier {
	switch {
	case total >= MatchedMinimum:
		return model.TierMatched
	case total >= NearMatchMinimum:
		return model.TierNearMatch
	case total >= StretchMinimum:
		return model.TierStretch
	default:
		return model.TierExcluded
	}
}

// Match scores every opportunity and buckets the results. Each bucket is
// ordered by total descending, then notice id ascending.
func Match(opps []model.Opportunity, profile model.CompanyProfile) Tiers {
	t := Tiers{
		Matched:       []model.MatchResult{},
		NearMatch:     []model.MatchResult{},
		Stretch:       []model.MatchResult{},
		TotalAnalyzed: len(opps),
	}
	for _, o := range opps {
		r := Score(o, profile)
		switch r.Tier {
		case model.TierMatched:
			t.Matched = append(t.Matched, r)
		case model.TierNearMatch:
			t.NearMatch = append(t.NearMatch, r)
		case model.TierStretch:
			t.Stretch = append(t.Stretch, r)
		}
	}
	sortResults(t.Matched)
	sortResults(t.NearMatch)
	sortResults(t.Stretch)
	return t
}

func sortResults(rs []model.MatchResult) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Total != rs[j].Total {
			return rs[i].Total > rs[j].Total
		}
		return rs[i].NoticeID < rs[j].NoticeID
	})
}

func capabilityCodes(caps []model.Capability) (naics, psc map[string]bool) {
	naics = make(map[string]bool, len(caps))
	psc = make(map[string]bool, len(caps))
	for _, c := range caps {
		if code := strings.TrimSpace(c.NAICSCode); code != "" {
			naics[code] = true
		}
		if code := strings.TrimSpace(c.PSCCode); code != "" {
			psc[code] = true
		}
	}
	return naics, psc
}

func keywordHits(opp model.Opportunity, keywords []string) int {
	text := strings.ToLower(opp.Title + " " + opp.Description)
	seen := make(map[string]bool, len(keywords))
	hits := 0
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		if strings.Contains(text, k) {
			hits++
		}
	}
	return hits
}

// Set-asides open to any small business, so no certification is needed.
var generalSetAsides = []string{"total small business", "partial small business"}

// Substring rule → required certification, checked in order.
var certRules = []struct {
	needles []string
	cert    string
}{
	{[]string{"8(a)", "8a "}, model.Cert8a},
	{[]string{"hubzone"}, model.CertHUBZone},
	{[]string{"woman", "women", "wosb"}, model.CertWOSB},
	{[]string{"veteran", "sdvosb"}, model.CertSDVOSB},
	{[]string{"small business"}, model.CertSmallBusiness},
}

// Bare SAM set-aside codes → required certification. An empty value marks a
// general small business set-aside.
var setAsideCodes = map[string]string{
	"SBA":      "",
	"SBP":      "",
	"8A":       model.Cert8a,
	"8AN":      model.Cert8a,
	"HZC":      model.CertHUBZone,
	"HZS":      model.CertHUBZone,
	"WOSB":     model.CertWOSB,
	"WOSBSS":   model.CertWOSB,
	"EDWOSB":   model.CertWOSB,
	"EDWOSBSS": model.CertWOSB,
	"SDVOSBC":  model.CertSDVOSB,
	"SDVOSBS":  model.CertSDVOSB,
	"VSA":      model.CertSDVOSB,
	"VSS":      model.CertSDVOSB,
}

func setAside(raw string, certs map[string]bool) (score int, reason, gap string) {
	trimmed := strings.TrimSpace(raw)
	sa := strings.ToLower(trimmed)
	if sa == "" || sa == "none" {
		return SetAsidePoints, "no set-aside restriction", ""
	}
	if cert, ok := setAsideCodes[strings.ToUpper(trimmed)]; ok {
		if cert == "" {
			return SetAsidePoints, "general small business set-aside", ""
		}
		return certified(raw, cert, certs)
	}
	if ContainsAny(sa, generalSetAsides) {
		return SetAsidePoints, "general small business set-aside", ""
	}
	for _, rule := range certRules {
		if ContainsAny(sa+" ", rule.needles) {
			return certified(raw, rule.cert, certs)
		}
	}
	return 0, "", fmt.Sprintf("set-aside %q is not recognised", raw)
}

func certified(raw, cert string, certs map[string]bool) (score int, reason, gap string) {
	if certs[cert] {
		return SetAsidePoints, fmt.Sprintf("holds %s certification for %q", cert, raw), ""
	}
	return 0, "", fmt.Sprintf("set-aside %q requires %s certification", raw, cert)
}
